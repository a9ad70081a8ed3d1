package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/internal/push/notify"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
	"github.com/google/uuid"
)

var (
	// ErrTimeout reports that the device never produced a decision within the
	// transaction's lifetime. The transaction record is already gone when this
	// is returned.
	ErrTimeout = errors.New("authentication timed out")
)

const (
	defaultPollInterval = 1 * time.Second
	defaultMaxChecks    = 30
)

// CoordinatorService drives one authentication attempt end to end: build the
// challenge, persist the transaction, push it to the device, wait for the
// decision and clean up. Waiting is event driven: the respond path calls Wake
// with the transaction id, and a slow ticker re-reads the record as a fallback
// in case a selection was written out of band.
type CoordinatorService struct {
	Store    store.Store
	Notifier notify.Notifier
	Logger   *slog.Logger

	// PollInterval and MaxChecks bound the wait: the hard deadline is
	// PollInterval * MaxChecks from the moment the transaction is created.
	PollInterval time.Duration
	MaxChecks    int

	// Presentation fields carried into the push payload.
	BrandTitle string
	Domain     string

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

func NewCoordinatorService(st store.Store, notifier notify.Notifier, logger *slog.Logger) *CoordinatorService {
	return &CoordinatorService{
		Store:        st,
		Notifier:     notifier,
		Logger:       logger,
		PollInterval: defaultPollInterval,
		MaxChecks:    defaultMaxChecks,
		waiters:      make(map[string]chan struct{}),
	}
}

// ttl is the transaction lifetime implied by the wait bounds.
func (s *CoordinatorService) ttl() time.Duration {
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	checks := s.MaxChecks
	if checks <= 0 {
		checks = defaultMaxChecks
	}
	return interval * time.Duration(checks)
}

// Authenticate runs a full push challenge for the given device and blocks
// until the device accepts, denies, the deadline passes or ctx is cancelled.
// Whatever the outcome, the transaction record is deleted before returning;
// there is no archival state.
func (s *CoordinatorService) Authenticate(ctx context.Context, deviceID string) (domain.TransactionStatus, error) {
	device, err := s.Store.Devices().GetDeviceByID(ctx, deviceID)
	if err != nil {
		return "", fmt.Errorf("load device: %w", err)
	}
	stage, err := s.Store.Stages().GetStageByID(ctx, device.StageID)
	if err != nil {
		return "", fmt.Errorf("load stage: %w", err)
	}

	items, correct, err := GenerateChallenge(stage.ItemMatchingMode)
	if err != nil {
		return "", err
	}

	now := time.Now()
	tx := domain.Transaction{
		ID:            uuid.NewString(),
		DeviceID:      device.ID,
		DecisionItems: items,
		CorrectItem:   correct,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl()),
	}
	if err := s.Store.Transactions().CreateTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	// Register the waiter before the push goes out so a fast response cannot
	// slip between delivery and the wait loop.
	wake := s.register(tx.ID)
	defer s.unregister(tx.ID)

	// Delivery failure is soft. The device may still respond through another
	// channel (a previously received push, or a poll in the app), and the
	// deadline bounds the damage.
	if err := s.Notifier.Deliver(ctx, notify.Message{
		TransactionID: tx.ID,
		DecisionItems: items,
		PushToken:     device.PushToken,
		BrandTitle:    s.BrandTitle,
		Domain:        s.Domain,
		Username:      device.UserID,
	}); err != nil {
		s.Logger.Warn("push delivery failed, still waiting for response",
			"tx_id", tx.ID, "device_id", device.ID, "error", err)
	}

	return s.wait(ctx, tx.ID, tx.ExpiresAt, wake)
}

// Wake signals the waiter for a transaction, if any, that a selection has been
// recorded. Safe to call for unknown or already finished transactions.
func (s *CoordinatorService) Wake(txID string) {
	s.mu.Lock()
	ch, ok := s.waiters[txID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default: // a wakeup is already pending
	}
}

func (s *CoordinatorService) register(txID string) chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.waiters[txID] = ch
	s.mu.Unlock()
	return ch
}

func (s *CoordinatorService) unregister(txID string) {
	s.mu.Lock()
	delete(s.waiters, txID)
	s.mu.Unlock()
}

// wait blocks until the transaction reaches a terminal status or one of the
// exit conditions fires. Every path deletes the record.
func (s *CoordinatorService) wait(ctx context.Context, txID string, deadline time.Time, wake <-chan struct{}) (domain.TransactionStatus, error) {
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-wake:
		case <-ticker.C:
		case <-timer.C:
			s.discard(txID)
			return "", ErrTimeout
		case <-ctx.Done():
			s.discard(txID)
			return "", ctx.Err()
		}

		tx, err := s.Store.Transactions().GetTransaction(ctx, txID)
		if errors.Is(err, store.ErrNotFound) {
			// Housekeeping or another actor removed the record mid-wait.
			// Without the record there is no decision to report.
			return "", ErrTimeout
		}
		if err != nil {
			s.discard(txID)
			return "", fmt.Errorf("read transaction: %w", err)
		}

		if status := tx.Status(); status.Terminal() {
			s.discard(txID)
			return status, nil
		}
	}
}

// discard removes the transaction record, logging rather than failing: by the
// time we discard, the outcome has already been decided.
func (s *CoordinatorService) discard(txID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Store.Transactions().DeleteTransaction(ctx, txID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.Logger.Error("failed to delete finished transaction", "tx_id", txID, "error", err)
	}
}
