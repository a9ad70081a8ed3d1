package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrAlreadyDecided reports a selection write against a transaction that
	// already holds a selection. The first write wins; the stored selection is
	// never overwritten.
	ErrAlreadyDecided = errors.New("store: transaction already decided")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable. We can change having the sub-repos as methods later but we do it
// now so we can have more control and actively stop people from accidently
// doing transactions within transactions.
type Store interface {
	Stages() Stages
	Devices() Devices
	Transactions() Transactions
	DeviceTokens() DeviceTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., binding a
	// device token during registration).
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// This is the recommended way to handle transactions as it automatically
	// handles commit/rollback logic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Stages interface {
	// GetStageByID fetches a stage configuration.
	GetStageByID(ctx context.Context, id string) (domain.Stage, error)

	// GetStageByName fetches a stage by its unique name (used at bootstrap).
	GetStageByName(ctx context.Context, name string) (domain.Stage, error)

	// CreateStage inserts a new stage (id is provided by app via ULID).
	CreateStage(ctx context.Context, s domain.Stage) error

	// DeleteStage removes a stage (cascades to its devices per schema).
	DeleteStage(ctx context.Context, id string) error

	// IsEmpty returns true if there are no stages.
	IsEmpty(ctx context.Context) (bool, error)
}

type Devices interface {
	// GetDeviceByID returns a device by its opaque device id.
	GetDeviceByID(ctx context.Context, id string) (domain.Device, error)

	// ListDevicesByUser returns all devices enrolled for a user, newest first.
	ListDevicesByUser(ctx context.Context, userID string) ([]domain.Device, error)

	// CreateDevice inserts a new device. Returns ErrAlreadyExists when the
	// device id is already enrolled.
	CreateDevice(ctx context.Context, d domain.Device) error

	// Checkin updates the push token and state blob and bumps last_checkin.
	Checkin(ctx context.Context, deviceID, pushToken, state string) error

	// DeleteDevice unenrolls a device (cascades to its transactions per schema).
	DeleteDevice(ctx context.Context, deviceID string) error
}

type Transactions interface {
	// CreateTransaction persists a freshly built transaction record.
	CreateTransaction(ctx context.Context, t domain.Transaction) error

	// GetTransaction returns a transaction by id, including expired rows;
	// expiry is enforced by the caller, not the storage layer.
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)

	// ListPendingTransactions returns the undecided, unexpired transactions
	// targeting a device, oldest first. This backs the device's poll fallback
	// when a push never arrives.
	ListPendingTransactions(ctx context.Context, deviceID string) ([]domain.Transaction, error)

	// RecordSelection writes the device's selection. This is a single atomic
	// conditional update: it succeeds only when no selection is stored yet.
	// Returns ErrAlreadyDecided when a selection is already present and
	// ErrNotFound when the transaction does not exist.
	RecordSelection(ctx context.Context, id, selectedItem string) error

	// DeleteTransaction removes a transaction record.
	DeleteTransaction(ctx context.Context, id string) error

	// DeleteExpiredTransactions removes all expired transactions (housekeeping).
	DeleteExpiredTransactions(ctx context.Context) error
}

type DeviceTokens interface {
	// CreateDeviceToken stores a new device token record (secret is argon2 hashed).
	CreateDeviceToken(ctx context.Context, t domain.DeviceToken) error

	// GetDeviceToken retrieves a token by its id (only if not expired).
	GetDeviceToken(ctx context.Context, id string) (domain.DeviceToken, error)

	// BindDeviceToken attaches a registered device to the token.
	BindDeviceToken(ctx context.Context, id, deviceID string) error

	// DeleteDeviceToken removes a token by its id.
	DeleteDeviceToken(ctx context.Context, id string) error

	// DeleteExpiredDeviceTokens removes all expired tokens (housekeeping).
	DeleteExpiredDeviceTokens(ctx context.Context) error
}
