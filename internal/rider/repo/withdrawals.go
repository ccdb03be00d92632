package repo

import (
	"context"
	"database/sql"
	"errors"

	"deliveryBack/internal/rider/model"
)

const withdrawalColumns = `id, rider_id, amount, status, admin_notes, payment_method, payment_reference,
        created_at, updated_at, processed_at`

func scanWithdrawal(row interface{ Scan(...any) error }) (model.WithdrawalRequest, error) {
	var (
		w         model.WithdrawalRequest
		processed sql.NullTime
	)
	err := row.Scan(&w.ID, &w.RiderID, &w.Amount, &w.Status, &w.AdminNotes, &w.PaymentMethod, &w.PaymentReference,
		&w.CreatedAt, &w.UpdatedAt, &processed)
	if err != nil {
		return model.WithdrawalRequest{}, err
	}
	w.ProcessedAt = nullTimeToPtr(processed)
	return w, nil
}

func scanWithdrawals(rows *sql.Rows) ([]model.WithdrawalRequest, error) {
	defer rows.Close()
	var out []model.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWithdrawal locks the rider row, re-derives the ledger totals and
// inserts w only when check accepts them. Concurrent requests for the same
// rider serialise on the row lock.
func (s *Store) CreateWithdrawal(ctx context.Context, w model.WithdrawalRequest, check func(model.LedgerTotals) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, s.q(`SELECT id FROM riders WHERE id = ? FOR UPDATE`), w.RiderID).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrNotFound
			}
			return err
		}

		totals, err := s.totals(ctx, tx, w.RiderID)
		if err != nil {
			return err
		}
		if err := check(totals); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO rider_withdrawals (
            id, rider_id, amount, status, admin_notes, payment_method, payment_reference, created_at, updated_at, processed_at
        ) VALUES (?,?,?,?,?,?,?,?,?,?)`),
			w.ID, w.RiderID, w.Amount, w.Status, w.AdminNotes, w.PaymentMethod, w.PaymentReference,
			w.CreatedAt, w.UpdatedAt, nullTime(w.ProcessedAt))
		return err
	})
}

// GetWithdrawal loads a withdrawal by id.
func (s *Store) GetWithdrawal(ctx context.Context, id string) (model.WithdrawalRequest, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx, s.q(`SELECT `+withdrawalColumns+` FROM rider_withdrawals WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.WithdrawalRequest{}, model.ErrNotFound
		}
		return model.WithdrawalRequest{}, err
	}
	return w, nil
}

// UpdateWithdrawalStatus applies u when the withdrawal is still in u.From.
// Empty notes, method and reference keep the stored values.
func (s *Store) UpdateWithdrawalStatus(ctx context.Context, u model.WithdrawalUpdate) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE rider_withdrawals SET
            status = ?,
            admin_notes = CASE WHEN ? = '' THEN admin_notes ELSE ? END,
            payment_method = CASE WHEN ? = '' THEN payment_method ELSE ? END,
            payment_reference = CASE WHEN ? = '' THEN payment_reference ELSE ? END,
            processed_at = ?,
            updated_at = ?
        WHERE id = ? AND status = ?`),
		u.To,
		u.AdminNotes, u.AdminNotes,
		u.PaymentMethod, u.PaymentMethod,
		u.PaymentReference, u.PaymentReference,
		u.At, u.At, u.ID, u.From)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetWithdrawal(ctx, u.ID); err != nil {
			return err
		}
		return model.ErrStateConflict
	}
	return nil
}

// ListWithdrawals returns a rider's withdrawals, newest first.
func (s *Store) ListWithdrawals(ctx context.Context, riderID string) ([]model.WithdrawalRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+withdrawalColumns+` FROM rider_withdrawals
        WHERE rider_id = ? ORDER BY created_at DESC`), riderID)
	if err != nil {
		return nil, err
	}
	return scanWithdrawals(rows)
}

// ListWithdrawalsByStatus returns withdrawals in status, oldest first.
func (s *Store) ListWithdrawalsByStatus(ctx context.Context, status string, limit int) ([]model.WithdrawalRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+withdrawalColumns+` FROM rider_withdrawals
        WHERE status = ? ORDER BY created_at LIMIT ?`), status, limit)
	if err != nil {
		return nil, err
	}
	return scanWithdrawals(rows)
}
