package domain

import "time"

// Device is a single enrolled mobile authenticator. The ID is the opaque
// device identifier the app presents at registration, unique across all users.
// Each device belongs to exactly one stage at a time; the stage carries the
// push credentials and matching mode used for its transactions.
type Device struct {
	ID          string
	UserID      string
	StageID     string
	PushToken   string // transport-specific delivery address (FCM registration token)
	State       string // free-form JSON blob maintained by the app
	LastCheckin time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeviceToken is a short-lived opaque credential binding a user (and, once
// registration completes, a device) for the out-of-band response write. Its
// expiry is independent of any transaction.
//
// The raw token presented by the device is "<id>.<secret>"; only the argon2id
// hash of the secret is stored.
type DeviceToken struct {
	ID         string
	UserID     string
	DeviceID   *string // nil until the token is bound to a registered device
	SecretHash string  // argon2id encoded
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
