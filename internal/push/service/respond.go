package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
)

// ErrInvalidSelection reports a response with no usable selected item.
var ErrInvalidSelection = errors.New("invalid selection")

// Waker is notified when a selection has been recorded so a blocked
// authentication attempt can finish immediately instead of on its next poll.
type Waker interface {
	Wake(txID string)
}

// ResponderService is the write side of a transaction: it records the device's
// selection exactly once and wakes the waiting coordinator.
type ResponderService struct {
	Store  store.Store
	Waker  Waker
	Logger *slog.Logger
}

// Pending lists the undecided transactions targeting the device the token is
// bound to. The correct item is stripped before anything leaves the service:
// the device only ever sees the candidate items.
func (s *ResponderService) Pending(ctx context.Context, boundDeviceID string) ([]domain.Transaction, error) {
	if boundDeviceID == "" {
		return nil, ErrDeviceMismatch
	}
	txs, err := s.Store.Transactions().ListPendingTransactions(ctx, boundDeviceID)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	for i := range txs {
		txs[i].CorrectItem = ""
	}
	return txs, nil
}

// Respond records the device's selection for a transaction. The first write
// wins; later writes return store.ErrAlreadyDecided. Expired or unknown
// transactions report store.ErrNotFound. The device presenting the token must
// be the one the transaction targets.
func (s *ResponderService) Respond(ctx context.Context, boundDeviceID, txID, selectedItem string) error {
	if selectedItem == "" {
		return ErrInvalidSelection
	}

	tx, err := s.Store.Transactions().GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if boundDeviceID == "" || boundDeviceID != tx.DeviceID {
		return ErrDeviceMismatch
	}
	if tx.Expired(time.Now()) {
		// The coordinator owns expiry; a late response is the same as no
		// response.
		return store.ErrNotFound
	}

	if err := s.Store.Transactions().RecordSelection(ctx, txID, selectedItem); err != nil {
		return fmt.Errorf("record selection: %w", err)
	}

	s.Logger.Info("selection recorded", "tx_id", txID, "device_id", boundDeviceID)
	if s.Waker != nil {
		s.Waker.Wake(txID)
	}
	return nil
}
