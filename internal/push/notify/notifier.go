package notify

import "context"

// Message is one push challenge for a single device. It carries everything the
// mobile app needs to render the prompt. The correct item is deliberately
// absent: the device learns only the candidate items, never the answer.
type Message struct {
	TransactionID string
	DecisionItems []string
	PushToken     string // FCM registration token of the target device

	// Presentation fields for the notification body.
	BrandTitle string
	Domain     string
	Username   string
}

// Notifier delivers a challenge message to a device. Implementations return an
// error on delivery failure; callers decide whether that failure is fatal
// (the authentication coordinator treats it as soft and keeps waiting).
type Notifier interface {
	Deliver(ctx context.Context, msg Message) error
}
