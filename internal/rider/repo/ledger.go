package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"deliveryBack/internal/rider/model"
)

const earningsColumns = `id, rider_id, delivery_id, distance_km, base_fee, distance_fee, bonus, penalty,
        final_amount, status, created_at, updated_at`

func scanEarnings(row interface{ Scan(...any) error }) (model.EarningsRecord, error) {
	var rec model.EarningsRecord
	err := row.Scan(&rec.ID, &rec.RiderID, &rec.DeliveryID, &rec.DistanceKM, &rec.BaseFee, &rec.DistanceFee,
		&rec.Bonus, &rec.Penalty, &rec.FinalAmount, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (s *Store) insertEarnings(ctx context.Context, q querier, rec model.EarningsRecord) error {
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO rider_earnings (
        id, rider_id, delivery_id, distance_km, base_fee, distance_fee, bonus, penalty,
        final_amount, status, created_at, updated_at
    ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`),
		rec.ID, rec.RiderID, rec.DeliveryID, rec.DistanceKM, rec.BaseFee, rec.DistanceFee, rec.Bonus, rec.Penalty,
		rec.FinalAmount, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *Store) countTrip(ctx context.Context, q querier, riderID string) error {
	_, err := q.ExecContext(ctx, s.q(`UPDATE riders SET trip_count = trip_count + 1 WHERE id = ?`), riderID)
	return err
}

func (s *Store) getEarningsByDelivery(ctx context.Context, q querier, deliveryID string) (model.EarningsRecord, error) {
	rec, err := scanEarnings(q.QueryRowContext(ctx, s.q(`SELECT `+earningsColumns+` FROM rider_earnings WHERE delivery_id = ?`), deliveryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EarningsRecord{}, model.ErrNotFound
		}
		return model.EarningsRecord{}, err
	}
	return rec, nil
}

// InsertEarnings stores rec unless the delivery already has a record, in
// which case the existing record is returned with created=false.
func (s *Store) InsertEarnings(ctx context.Context, rec model.EarningsRecord) (model.EarningsRecord, bool, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertEarnings(ctx, tx, rec); err != nil {
			return err
		}
		return s.countTrip(ctx, tx, rec.RiderID)
	})
	if err == nil {
		return rec, true, nil
	}
	if !IsUniqueViolation(err) {
		return model.EarningsRecord{}, false, err
	}
	existing, err := s.getEarningsByDelivery(ctx, s.db, rec.DeliveryID)
	if err != nil {
		return model.EarningsRecord{}, false, err
	}
	return existing, false, nil
}

// GetEarnings loads an earnings record by id.
func (s *Store) GetEarnings(ctx context.Context, id string) (model.EarningsRecord, error) {
	rec, err := scanEarnings(s.db.QueryRowContext(ctx, s.q(`SELECT `+earningsColumns+` FROM rider_earnings WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EarningsRecord{}, model.ErrNotFound
		}
		return model.EarningsRecord{}, err
	}
	return rec, nil
}

// ListEarnings returns a rider's earnings, newest first.
func (s *Store) ListEarnings(ctx context.Context, riderID string) ([]model.EarningsRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+earningsColumns+` FROM rider_earnings
        WHERE rider_id = ? ORDER BY created_at DESC`), riderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EarningsRecord
	for rows.Next() {
		rec, err := scanEarnings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEarningsStatus moves a record from one status to another.
func (s *Store) UpdateEarningsStatus(ctx context.Context, id, from, to string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE rider_earnings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		to, at, id, from)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetEarnings(ctx, id); err != nil {
			return err
		}
		return model.ErrStateConflict
	}
	return nil
}

const adjustmentColumns = `id, rider_id, type, amount, reason, status, created_by, created_at,
        settled_at, settlement_notes, closes_ids`

func scanAdjustment(row interface{ Scan(...any) error }) (model.WalletAdjustment, error) {
	var (
		a       model.WalletAdjustment
		settled sql.NullTime
		closes  string
	)
	err := row.Scan(&a.ID, &a.RiderID, &a.Type, &a.Amount, &a.Reason, &a.Status, &a.CreatedBy, &a.CreatedAt,
		&settled, &a.SettlementNotes, &closes)
	if err != nil {
		return model.WalletAdjustment{}, err
	}
	a.SettledAt = nullTimeToPtr(settled)
	if closes != "" {
		if err := json.Unmarshal([]byte(closes), &a.ClosesAdjustmentIDs); err != nil {
			return model.WalletAdjustment{}, fmt.Errorf("decode closes_ids of %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// InsertAdjustment stores a new wallet adjustment.
func (s *Store) InsertAdjustment(ctx context.Context, a model.WalletAdjustment) error {
	closes := a.ClosesAdjustmentIDs
	if closes == nil {
		closes = []string{}
	}
	encoded, err := json.Marshal(closes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO wallet_adjustments (
        id, rider_id, type, amount, reason, status, created_by, created_at, settled_at, settlement_notes, closes_ids
    ) VALUES (?,?,?,?,?,?,?,?,?,?,?)`),
		a.ID, a.RiderID, a.Type, a.Amount, a.Reason, a.Status, a.CreatedBy, a.CreatedAt,
		nullTime(a.SettledAt), a.SettlementNotes, string(encoded))
	return err
}

// GetAdjustment loads an adjustment by id.
func (s *Store) GetAdjustment(ctx context.Context, id string) (model.WalletAdjustment, error) {
	a, err := scanAdjustment(s.db.QueryRowContext(ctx, s.q(`SELECT `+adjustmentColumns+` FROM wallet_adjustments WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.WalletAdjustment{}, model.ErrNotFound
		}
		return model.WalletAdjustment{}, err
	}
	return a, nil
}

// CloseAdjustment moves an active adjustment to a terminal status.
func (s *Store) CloseAdjustment(ctx context.Context, id, to, notes string, at time.Time) error {
	var settledAt sql.NullTime
	if to == model.AdjustmentSettled {
		settledAt = sql.NullTime{Time: at, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE wallet_adjustments
        SET status = ?, settlement_notes = ?, settled_at = ?
        WHERE id = ? AND status = ?`), to, notes, settledAt, id, model.AdjustmentActive)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetAdjustment(ctx, id); err != nil {
			return err
		}
		return model.ErrNotActive
	}
	return nil
}

// ListAdjustments returns a rider's adjustments, newest first.
func (s *Store) ListAdjustments(ctx context.Context, riderID string) ([]model.WalletAdjustment, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+adjustmentColumns+` FROM wallet_adjustments
        WHERE rider_id = ? ORDER BY created_at DESC`), riderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WalletAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) totals(ctx context.Context, q querier, riderID string) (model.LedgerTotals, error) {
	var t model.LedgerTotals
	err := q.QueryRowContext(ctx, s.q(`SELECT
        (SELECT COALESCE(SUM(final_amount), 0) FROM rider_earnings
            WHERE rider_id = ? AND status IN (?, ?)),
        (SELECT COALESCE(SUM(amount), 0) FROM rider_withdrawals
            WHERE rider_id = ? AND status IN (?, ?, ?)),
        (SELECT COALESCE(SUM(amount), 0) FROM wallet_adjustments
            WHERE rider_id = ? AND status = ? AND type IN (?, ?, ?)),
        (SELECT COALESCE(SUM(amount), 0) FROM wallet_adjustments
            WHERE rider_id = ? AND status = ? AND type IN (?, ?))`),
		riderID, model.EarningsPending, model.EarningsCompleted,
		riderID, model.WithdrawalPending, model.WithdrawalApproved, model.WithdrawalPaid,
		riderID, model.AdjustmentActive, model.AdjustmentCashAdvance, model.AdjustmentBonus, model.AdjustmentCorrection,
		riderID, model.AdjustmentActive, model.AdjustmentDeduction, model.AdjustmentSettlement,
	).Scan(&t.Earnings, &t.Withdrawals, &t.Credits, &t.Debits)
	return t, err
}

// LedgerTotals sums the rider's ledger.
func (s *Store) LedgerTotals(ctx context.Context, riderID string) (model.LedgerTotals, error) {
	if _, err := s.GetRider(ctx, riderID); err != nil {
		return model.LedgerTotals{}, err
	}
	return s.totals(ctx, s.db, riderID)
}
