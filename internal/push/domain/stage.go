package domain

import "time"

// ItemMatchingMode configures which items the app shows the user, and what
// the user must select.
type ItemMatchingMode string

const (
	// ItemMatchingAcceptDeny presents a plain approve/reject choice.
	ItemMatchingAcceptDeny ItemMatchingMode = "accept_deny"
	// ItemMatchingNumber2 presents 2-digit number matching.
	ItemMatchingNumber2 ItemMatchingMode = "number_matching_2"
	// ItemMatchingNumber3 presents 3-digit number matching.
	ItemMatchingNumber3 ItemMatchingMode = "number_matching_3"
)

// Valid reports whether m is one of the known matching modes.
func (m ItemMatchingMode) Valid() bool {
	switch m {
	case ItemMatchingAcceptDeny, ItemMatchingNumber2, ItemMatchingNumber3:
		return true
	}
	return false
}

// Stage is the configuration a device is enrolled against: the item matching
// mode for its challenges and the push-provider credentials used to reach it.
// A stage is read-only input to an authentication attempt.
type Stage struct {
	ID               string
	Name             string
	ItemMatchingMode ItemMatchingMode
	FCMCredentials   string // opaque service-account JSON, passed through to the notifier
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
