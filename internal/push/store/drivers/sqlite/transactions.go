package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
)

type transactionsRepo struct {
	q dbtx
}

const transactionColumns = `id, device_id, decision_items, correct_item, selected_item, created_at, expires_at`

func (r *transactionsRepo) scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var (
		t                    domain.Transaction
		items                string
		selected             sql.NullString
		createdAt, expiresAt string
	)
	if err := row.Scan(&t.ID, &t.DeviceID, &items, &t.CorrectItem, &selected,
		&createdAt, &expiresAt); err != nil {
		return domain.Transaction{}, mapNotFound(err)
	}
	if err := json.Unmarshal([]byte(items), &t.DecisionItems); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode decision items: %w", err)
	}
	t.SelectedItem = mapNullStringPtr(selected)
	t.CreatedAt = parseTime(createdAt)
	t.ExpiresAt = parseTime(expiresAt)
	return t, nil
}

func (r *transactionsRepo) CreateTransaction(ctx context.Context, t domain.Transaction) error {
	items, err := json.Marshal(t.DecisionItems)
	if err != nil {
		return fmt.Errorf("encode decision items: %w", err)
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO transactions (id, device_id, decision_items, correct_item, selected_item, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.DeviceID, string(items), t.CorrectItem, mapOptionalString(t.SelectedItem),
		mapTime(t.CreatedAt), mapTime(t.ExpiresAt))
	return err
}

func (r *transactionsRepo) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return r.scanTransaction(row)
}

func (r *transactionsRepo) ListPendingTransactions(ctx context.Context, deviceID string) ([]domain.Transaction, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE device_id = ? AND selected_item IS NULL AND expires_at > ?
		 ORDER BY created_at ASC`,
		deviceID, mapTime(time.Now()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// RecordSelection is the one mutation a transaction ever sees. The conditional
// UPDATE only matches rows with no stored selection, so concurrent writers
// cannot both succeed; losers are told whether the row was decided or gone.
func (r *transactionsRepo) RecordSelection(ctx context.Context, id, selectedItem string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE transactions SET selected_item = ? WHERE id = ? AND selected_item IS NULL`,
		selectedItem, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Distinguish "already decided" from "row gone".
	var exists int
	err = r.q.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrAlreadyDecided
}

func (r *transactionsRepo) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *transactionsRepo) DeleteExpiredTransactions(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM transactions WHERE expires_at < ?`, mapTime(time.Now()))
	return err
}
