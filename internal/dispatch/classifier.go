package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/vietddude/pushgate/internal/transport"
)

// Severity buckets a provider failure by how the dispatcher must react.
type Severity int

const (
	// SeverityTransient is worth retrying: network trouble, provider
	// 5xx, rate limiting.
	SeverityTransient Severity = iota

	// SeverityPermanentInvalid marks a dead token. Retrying cannot
	// help; the registration should be removed.
	SeverityPermanentInvalid

	// SeverityFatal means the transport itself is unusable (bad
	// credentials, project mismatch). The whole dispatch run aborts.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityPermanentInvalid:
		return "permanent_invalid"
	case SeverityFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// invalidTokenCodes are per-token provider verdicts that mean the token
// can never receive a delivery again. Covers both FCM API generations
// and Expo.
var invalidTokenCodes = map[string]bool{
	"UNREGISTERED":        true,
	"NOT_FOUND":           true,
	"INVALID_ARGUMENT":    true,
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"MissingRegistration": true,
	"MismatchSenderId":    true,
	"DeviceNotRegistered": true,
}

// ClassifyCode buckets a per-token provider error code. Unknown codes
// count as transient: the token is not condemned on a verdict we don't
// recognize.
func ClassifyCode(code string) Severity {
	if invalidTokenCodes[code] {
		return SeverityPermanentInvalid
	}
	return SeverityTransient
}

// ClassifyError buckets a whole-call transport error.
func ClassifyError(err error) Severity {
	if err == nil {
		return SeverityTransient
	}

	var tokenErr *transport.TokenError
	if errors.As(err, &tokenErr) {
		return ClassifyCode(tokenErr.Code)
	}

	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Status == 401 || statusErr.Status == 403:
			return SeverityFatal
		case statusErr.Status == 400:
			// The payload is malformed for every batch; retrying
			// cannot fix it.
			return SeverityFatal
		case statusErr.Status == 404:
			return SeverityPermanentInvalid
		default:
			return SeverityTransient
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return SeverityTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "invalid credentials"):
		return SeverityFatal
	case strings.Contains(msg, "unregistered"),
		strings.Contains(msg, "not registered"):
		return SeverityPermanentInvalid
	}

	// Default to retry: unknown failures are usually connectivity blips.
	return SeverityTransient
}
