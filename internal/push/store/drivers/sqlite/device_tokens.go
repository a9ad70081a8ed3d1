package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
)

type deviceTokensRepo struct {
	q dbtx
}

const deviceTokenColumns = `id, user_id, device_id, secret_hash, expires_at, created_at`

func (r *deviceTokensRepo) scanDeviceToken(row interface{ Scan(...any) error }) (domain.DeviceToken, error) {
	var (
		t                    domain.DeviceToken
		deviceID             sql.NullString
		expiresAt, createdAt string
	)
	if err := row.Scan(&t.ID, &t.UserID, &deviceID, &t.SecretHash,
		&expiresAt, &createdAt); err != nil {
		return domain.DeviceToken{}, mapNotFound(err)
	}
	t.DeviceID = mapNullStringPtr(deviceID)
	t.ExpiresAt = parseTime(expiresAt)
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

func (r *deviceTokensRepo) CreateDeviceToken(ctx context.Context, t domain.DeviceToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO device_tokens (id, user_id, device_id, secret_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, mapOptionalString(t.DeviceID), t.SecretHash,
		mapTime(t.ExpiresAt), mapTime(t.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

// GetDeviceToken only returns live tokens. Expired rows are invisible here and
// left to the housekeeping reaper.
func (r *deviceTokensRepo) GetDeviceToken(ctx context.Context, id string) (domain.DeviceToken, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+deviceTokenColumns+` FROM device_tokens WHERE id = ? AND expires_at > ?`,
		id, mapTime(time.Now()))
	return r.scanDeviceToken(row)
}

func (r *deviceTokensRepo) BindDeviceToken(ctx context.Context, id, deviceID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE device_tokens SET device_id = ? WHERE id = ?`, deviceID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *deviceTokensRepo) DeleteDeviceToken(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM device_tokens WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *deviceTokensRepo) DeleteExpiredDeviceTokens(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE expires_at < ?`, mapTime(time.Now()))
	return err
}
