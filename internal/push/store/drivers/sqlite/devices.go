package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
)

type devicesRepo struct {
	q dbtx
}

const deviceColumns = `id, user_id, stage_id, push_token, state, last_checkin, created_at, updated_at`

func (r *devicesRepo) scanDevice(row interface{ Scan(...any) error }) (domain.Device, error) {
	var (
		d                                 domain.Device
		lastCheckin, createdAt, updatedAt string
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.StageID, &d.PushToken, &d.State,
		&lastCheckin, &createdAt, &updatedAt); err != nil {
		return domain.Device{}, mapNotFound(err)
	}
	d.LastCheckin = parseTime(lastCheckin)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return d, nil
}

func (r *devicesRepo) GetDeviceByID(ctx context.Context, id string) (domain.Device, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	return r.scanDevice(row)
}

func (r *devicesRepo) ListDevicesByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		d, err := r.scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *devicesRepo) CreateDevice(ctx context.Context, d domain.Device) error {
	now := time.Now()
	if d.LastCheckin.IsZero() {
		d.LastCheckin = now
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	if d.State == "" {
		d.State = "{}"
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO devices (id, user_id, stage_id, push_token, state, last_checkin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.StageID, d.PushToken, d.State,
		mapTime(d.LastCheckin), mapTime(d.CreatedAt), mapTime(d.UpdatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *devicesRepo) Checkin(ctx context.Context, deviceID, pushToken, state string) error {
	now := mapTime(time.Now())
	res, err := r.q.ExecContext(ctx,
		`UPDATE devices SET push_token = ?, state = ?, last_checkin = ?, updated_at = ? WHERE id = ?`,
		pushToken, state, now, now, deviceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *devicesRepo) DeleteDevice(ctx context.Context, deviceID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, deviceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
