package domain

import "time"

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformOther   Platform = "other"
)

// Endpoint is one deliverable push target: a registered device token
// together with the identity it belongs to. (OwnerID, DeviceID) is the
// stored identity; the token rotates in place under it.
type Endpoint struct {
	OwnerID         string    `db:"owner_id" json:"owner_id"`
	DeviceID        string    `db:"device_id" json:"device_id"`
	Token           string    `db:"token" json:"token"`
	Platform        Platform  `db:"platform" json:"platform"`
	LastConfirmedAt time.Time `db:"last_confirmed_at" json:"last_confirmed_at"`
}
