package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
)

type stagesRepo struct {
	q dbtx
}

const stageColumns = `id, name, item_matching_mode, fcm_credentials, created_at, updated_at`

func (r *stagesRepo) scanStage(row interface{ Scan(...any) error }) (domain.Stage, error) {
	var (
		s                    domain.Stage
		mode                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&s.ID, &s.Name, &mode, &s.FCMCredentials, &createdAt, &updatedAt); err != nil {
		return domain.Stage{}, mapNotFound(err)
	}
	s.ItemMatchingMode = domain.ItemMatchingMode(mode)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return s, nil
}

func (r *stagesRepo) GetStageByID(ctx context.Context, id string) (domain.Stage, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE id = ?`, id)
	return r.scanStage(row)
}

func (r *stagesRepo) GetStageByName(ctx context.Context, name string) (domain.Stage, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stages WHERE name = ?`, name)
	return r.scanStage(row)
}

func (r *stagesRepo) CreateStage(ctx context.Context, s domain.Stage) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO stages (id, name, item_matching_mode, fcm_credentials, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, string(s.ItemMatchingMode), s.FCMCredentials,
		mapTime(s.CreatedAt), mapTime(s.UpdatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *stagesRepo) DeleteStage(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM stages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *stagesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM stages`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
