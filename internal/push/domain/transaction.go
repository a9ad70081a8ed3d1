package domain

import "time"

// TransactionStatus is the derived state of a push transaction. It is never
// stored: it is computed from the selected and correct items, so the stored
// record cannot disagree with the status reported for it.
type TransactionStatus string

const (
	StatusWait   TransactionStatus = "wait"
	StatusAccept TransactionStatus = "accept"
	StatusDeny   TransactionStatus = "deny"
)

// Terminal reports whether no further transitions are possible.
func (s TransactionStatus) Terminal() bool {
	return s == StatusAccept || s == StatusDeny
}

// Transaction is one challenge/response cycle for a single authentication
// attempt. It is created when the attempt starts, written to exactly once by
// the device's response, and deleted as soon as it reaches a terminal status
// or times out. There is no archival record.
type Transaction struct {
	ID            string // uuid
	DeviceID      string
	DecisionItems []string // ordered; what the app displays
	CorrectItem   string   // always a member of DecisionItems; never sent to the device
	SelectedItem  *string  // nil until the device responds; write-once
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Status derives the transaction state per the selection rules: no selection
// is wait, a selection matching the correct item is accept, anything else is
// deny. Once SelectedItem is set the result is fixed for the record's
// remaining lifetime.
func (t Transaction) Status() TransactionStatus {
	if t.SelectedItem == nil || *t.SelectedItem == "" {
		return StatusWait
	}
	if *t.SelectedItem != t.CorrectItem {
		return StatusDeny
	}
	return StatusAccept
}

// Expired reports whether the transaction is past its expiry at the given
// instant. Storage treats expiry as advisory; callers waiting on the
// transaction treat it as authoritative.
func (t Transaction) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
