package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/model"
)

const requestColumns = `id, kind, pickup_address, pickup_lat, pickup_lon, dropoff_address, dropoff_lat, dropoff_lon,
        total_amount, assigned_rider, status, bonus, penalty, payload, created_at, updated_at, claimed_at, delivered_at`

func scanRequest(row interface{ Scan(...any) error }) (model.DeliveryRequest, error) {
	var (
		req                  model.DeliveryRequest
		rider                sql.NullString
		payload              string
		claimedAt, delivered sql.NullTime
	)
	err := row.Scan(&req.ID, &req.Kind,
		&req.Pickup.Address, &req.Pickup.Lat, &req.Pickup.Lon,
		&req.Dropoff.Address, &req.Dropoff.Lat, &req.Dropoff.Lon,
		&req.TotalAmount, &rider, &req.Status, &req.Bonus, &req.Penalty, &payload,
		&req.CreatedAt, &req.UpdatedAt, &claimedAt, &delivered)
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	if rider.Valid {
		req.AssignedRider = rider.String
	}
	req.ClaimedAt = nullTimeToPtr(claimedAt)
	req.DeliveredAt = nullTimeToPtr(delivered)
	if err := req.DecodePayload([]byte(payload)); err != nil {
		return model.DeliveryRequest{}, err
	}
	return req, nil
}

func scanRequests(rows *sql.Rows) ([]model.DeliveryRequest, error) {
	defer rows.Close()
	var out []model.DeliveryRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) appendHistory(ctx context.Context, q querier, e model.StatusHistoryEntry) error {
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO delivery_status_history (id, delivery_id, status, rider_id, note, created_at)
        VALUES (?,?,?,?,?,?)`), uuid.NewString(), e.DeliveryID, e.Status, nullString(e.RiderID), e.Note, e.CreatedAt)
	return err
}

// InsertRequest stores a new delivery request together with its first history row.
func (s *Store) InsertRequest(ctx context.Context, req model.DeliveryRequest) error {
	payload, err := req.EncodePayload()
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO delivery_requests (
            id, kind, pickup_address, pickup_lat, pickup_lon, dropoff_address, dropoff_lat, dropoff_lon,
            total_amount, assigned_rider, status, bonus, penalty, payload, created_at, updated_at, claimed_at, delivered_at
        ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
			req.ID, req.Kind, req.Pickup.Address, req.Pickup.Lat, req.Pickup.Lon,
			req.Dropoff.Address, req.Dropoff.Lat, req.Dropoff.Lon,
			req.TotalAmount, nullString(req.AssignedRider), req.Status, req.Bonus, req.Penalty, string(payload),
			req.CreatedAt, req.UpdatedAt, nullTime(req.ClaimedAt), nullTime(req.DeliveredAt))
		if err != nil {
			if IsUniqueViolation(err) {
				return fmt.Errorf("%w: request %s already exists", model.ErrValidation, req.ID)
			}
			return err
		}
		return s.appendHistory(ctx, tx, model.StatusHistoryEntry{DeliveryID: req.ID, Status: req.Status, CreatedAt: req.CreatedAt})
	})
}

// GetRequest loads a request by id.
func (s *Store) GetRequest(ctx context.Context, id string) (model.DeliveryRequest, error) {
	return s.getRequest(ctx, s.db, id, false)
}

func (s *Store) getRequest(ctx context.Context, q querier, id string, forUpdate bool) (model.DeliveryRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM delivery_requests WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	req, err := scanRequest(q.QueryRowContext(ctx, s.q(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DeliveryRequest{}, model.ErrNotFound
		}
		return model.DeliveryRequest{}, err
	}
	return req, nil
}

// ListPendingRequests returns unassigned placed requests, oldest first.
func (s *Store) ListPendingRequests(ctx context.Context, limit int) ([]model.DeliveryRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+requestColumns+` FROM delivery_requests
        WHERE assigned_rider IS NULL AND status = ? ORDER BY created_at LIMIT ?`), lifecycle.StatusPlaced, limit)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

// CountPendingRequests counts unassigned placed requests.
func (s *Store) CountPendingRequests(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM delivery_requests
        WHERE assigned_rider IS NULL AND status = ?`), lifecycle.StatusPlaced).Scan(&n)
	return n, err
}

// ListRiderRequests returns a rider's requests in the given statuses, newest first.
func (s *Store) ListRiderRequests(ctx context.Context, riderID string, statuses []string, limit int) ([]model.DeliveryRequest, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := append([]any{riderID}, stringArgs(statuses)...)
	query := `SELECT ` + requestColumns + ` FROM delivery_requests
        WHERE assigned_rider = ? AND status IN (` + placeholders(len(statuses)) + `)
        ORDER BY updated_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

// CountActiveDeliveries counts claimed requests that are not yet terminal.
func (s *Store) CountActiveDeliveries(ctx context.Context, riderID string) (int, error) {
	args := append([]any{riderID}, stringArgs(lifecycle.ActiveStatuses)...)
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM delivery_requests
        WHERE assigned_rider = ? AND status IN (`+placeholders(len(lifecycle.ActiveStatuses))+`)`), args...).Scan(&n)
	return n, err
}

// ClaimRequest binds the rider when the request is still unassigned and placed.
// Losing a race returns model.ErrAlreadyClaimed.
func (s *Store) ClaimRequest(ctx context.Context, id, riderID string, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE delivery_requests
            SET assigned_rider = ?, claimed_at = ?, updated_at = ?
            WHERE id = ? AND assigned_rider IS NULL AND status = ?`),
			riderID, at, at, id, lifecycle.StatusPlaced)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			if _, err := s.getRequest(ctx, tx, id, false); err != nil {
				return err
			}
			return model.ErrAlreadyClaimed
		}
		return s.appendHistory(ctx, tx, model.StatusHistoryEntry{
			DeliveryID: id, Status: lifecycle.StatusPlaced, RiderID: riderID, Note: "claimed", CreatedAt: at,
		})
	})
}

func (s *Store) applyTransition(ctx context.Context, q querier, t model.Transition) error {
	query := `UPDATE delivery_requests SET status = ?, updated_at = ?`
	args := []any{t.To, t.At}
	if t.To == lifecycle.StatusDelivered {
		query += `, delivered_at = ?`
		args = append(args, t.At)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, t.RequestID, t.From)
	if t.RiderID != "" {
		query += ` AND assigned_rider = ?`
		args = append(args, t.RiderID)
	}

	res, err := q.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.getRequest(ctx, q, t.RequestID, false); err != nil {
			return err
		}
		return model.ErrStateConflict
	}
	return nil
}

// TransitionRequest applies t when the request is still in t.From.
func (s *Store) TransitionRequest(ctx context.Context, t model.Transition) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.applyTransition(ctx, tx, t); err != nil {
			return err
		}
		req, err := s.getRequest(ctx, tx, t.RequestID, false)
		if err != nil {
			return err
		}
		return s.appendHistory(ctx, tx, model.StatusHistoryEntry{
			DeliveryID: t.RequestID, Status: t.To, RiderID: req.AssignedRider, Note: t.Note, CreatedAt: t.At,
		})
	})
}

// CompleteDelivery moves the request to delivered and inserts its earnings
// record in one transaction. Any failure, including from earn, rolls back the
// status change.
func (s *Store) CompleteDelivery(ctx context.Context, t model.Transition, earn func(model.DeliveryRequest) (model.EarningsRecord, error)) (model.EarningsRecord, error) {
	var rec model.EarningsRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getRequest(ctx, tx, t.RequestID, true); err != nil {
			return err
		}
		if err := s.applyTransition(ctx, tx, t); err != nil {
			return err
		}
		req, err := s.getRequest(ctx, tx, t.RequestID, false)
		if err != nil {
			return err
		}

		existing, err := s.getEarningsByDelivery(ctx, tx, req.ID)
		switch {
		case err == nil:
			rec = existing
		case errors.Is(err, model.ErrNotFound):
			built, err := earn(req)
			if err != nil {
				return err
			}
			if err := s.insertEarnings(ctx, tx, built); err != nil {
				return err
			}
			rec = built
			if err := s.countTrip(ctx, tx, built.RiderID); err != nil {
				return err
			}
		default:
			return err
		}

		return s.appendHistory(ctx, tx, model.StatusHistoryEntry{
			DeliveryID: t.RequestID, Status: t.To, RiderID: req.AssignedRider, Note: t.Note, CreatedAt: t.At,
		})
	})
	if err != nil {
		return model.EarningsRecord{}, err
	}
	return rec, nil
}

// ListStatusHistory returns the audit trail of a request.
func (s *Store) ListStatusHistory(ctx context.Context, id string) ([]model.StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT delivery_id, status, rider_id, note, created_at
        FROM delivery_status_history WHERE delivery_id = ? ORDER BY created_at, id`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatusHistoryEntry
	for rows.Next() {
		var (
			e     model.StatusHistoryEntry
			rider sql.NullString
		)
		if err := rows.Scan(&e.DeliveryID, &e.Status, &rider, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RiderID = rider.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDeliveredWithoutEarnings finds delivered requests with no earnings record.
func (s *Store) ListDeliveredWithoutEarnings(ctx context.Context, limit int) ([]model.DeliveryRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+requestColumns+` FROM delivery_requests d
        WHERE d.status = ? AND NOT EXISTS (SELECT 1 FROM rider_earnings e WHERE e.delivery_id = d.id)
        ORDER BY d.delivered_at LIMIT ?`), lifecycle.StatusDelivered, limit)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}
