package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AddressMode string

const (
	AddressSingleToken   AddressMode = "single_token"
	AddressSingleUser    AddressMode = "single_user"
	AddressMultipleUsers AddressMode = "multiple_users"
	AddressBroadcast     AddressMode = "broadcast"
)

// Addressing selects which endpoints a notification targets.
// Exactly one mode is set; Token and OwnerIDs only apply to the
// modes that use them.
type Addressing struct {
	Mode     AddressMode `json:"mode"`
	Token    string      `json:"token,omitempty"`
	OwnerIDs []string    `json:"owner_ids,omitempty"`
}

// ToToken addresses one raw device token that may not be registered.
func ToToken(token string) Addressing {
	return Addressing{Mode: AddressSingleToken, Token: token}
}

// ToUser addresses every registered device of a single owner.
func ToUser(ownerID string) Addressing {
	return Addressing{Mode: AddressSingleUser, OwnerIDs: []string{ownerID}}
}

// ToUsers addresses every registered device of the given owners.
func ToUsers(ownerIDs ...string) Addressing {
	return Addressing{Mode: AddressMultipleUsers, OwnerIDs: ownerIDs}
}

// ToEveryone addresses every registered device.
func ToEveryone() Addressing {
	return Addressing{Mode: AddressBroadcast}
}

func (a Addressing) Validate() error {
	switch a.Mode {
	case AddressSingleToken:
		if a.Token == "" {
			return errors.New("single_token addressing requires a token")
		}
	case AddressSingleUser:
		if len(a.OwnerIDs) != 1 || a.OwnerIDs[0] == "" {
			return errors.New("single_user addressing requires exactly one owner id")
		}
	case AddressMultipleUsers:
		if len(a.OwnerIDs) == 0 {
			return errors.New("multiple_users addressing requires at least one owner id")
		}
	case AddressBroadcast:
	default:
		return fmt.Errorf("unknown addressing mode: %q", a.Mode)
	}
	return nil
}

// String renders a compact form for logs and dispatch records.
func (a Addressing) String() string {
	switch a.Mode {
	case AddressSingleToken:
		return "token"
	case AddressSingleUser:
		if len(a.OwnerIDs) == 1 {
			return "user:" + a.OwnerIDs[0]
		}
		return "user"
	case AddressMultipleUsers:
		return fmt.Sprintf("users:%d", len(a.OwnerIDs))
	case AddressBroadcast:
		return "broadcast"
	}
	return string(a.Mode)
}

// Notification carries the content and addressing of one push message.
// Data rides along as key/value pairs the client app interprets; ImageURL,
// Sound and ClickAction are optional presentation hints.
type Notification struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
	Addressing  Addressing        `json:"addressing"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewNotification builds a notification with a fresh ID and creation time.
func NewNotification(title, body string, addr Addressing) *Notification {
	return &Notification{
		ID:         uuid.NewString(),
		Title:      title,
		Body:       body,
		Addressing: addr,
		CreatedAt:  time.Now().UTC(),
	}
}

func (n *Notification) Validate() error {
	if n.Title == "" {
		return errors.New("notification title cannot be empty")
	}
	if n.Body == "" {
		return errors.New("notification body cannot be empty")
	}
	return n.Addressing.Validate()
}
