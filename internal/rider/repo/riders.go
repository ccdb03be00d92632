package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"deliveryBack/internal/rider/model"
)

const riderColumns = `id, name, phone, vehicle_type, registration_status, online, last_lat, last_lon,
        last_seen_at, commission_rate, trip_count, rating, push_token, created_at, updated_at`

func scanRider(row interface{ Scan(...any) error }) (model.Rider, error) {
	var (
		r        model.Rider
		lastSeen sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Name, &r.Phone, &r.VehicleType, &r.RegistrationStatus, &r.Online,
		&r.LastLat, &r.LastLon, &lastSeen, &r.CommissionRate, &r.TripCount, &r.Rating, &r.PushToken,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return model.Rider{}, err
	}
	r.LastSeenAt = nullTimeToPtr(lastSeen)
	return r, nil
}

// CreateRider inserts a rider profile.
func (s *Store) CreateRider(ctx context.Context, r model.Rider) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO riders (
        id, name, phone, vehicle_type, registration_status, online, last_lat, last_lon,
        last_seen_at, commission_rate, trip_count, rating, push_token, created_at, updated_at
    ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		r.ID, r.Name, r.Phone, r.VehicleType, r.RegistrationStatus, r.Online, r.LastLat, r.LastLon,
		nullTime(r.LastSeenAt), r.CommissionRate, r.TripCount, r.Rating, r.PushToken, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: rider with phone %s already exists", model.ErrValidation, r.Phone)
		}
		return err
	}
	return nil
}

// GetRider loads a rider by id.
func (s *Store) GetRider(ctx context.Context, id string) (model.Rider, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+riderColumns+` FROM riders WHERE id = ?`), id)
	r, err := scanRider(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Rider{}, model.ErrNotFound
		}
		return model.Rider{}, err
	}
	return r, nil
}

func (s *Store) execRider(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// MySQL reports zero affected rows when the values are unchanged.
		var exists int
		err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM riders WHERE id = ?`), args[len(args)-1]).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return err
	}
	return nil
}

// SetRiderOnline persists the presence flag.
func (s *Store) SetRiderOnline(ctx context.Context, id string, online bool, at time.Time) error {
	return s.execRider(ctx, `UPDATE riders SET online = ?, updated_at = ? WHERE id = ?`, online, at, id)
}

// UpdateRiderLocation stores the last known position.
func (s *Store) UpdateRiderLocation(ctx context.Context, id string, lat, lon float64, at time.Time) error {
	return s.execRider(ctx, `UPDATE riders SET last_lat = ?, last_lon = ?, last_seen_at = ?, updated_at = ? WHERE id = ?`,
		lat, lon, at, at, id)
}

// SetRegistrationStatus changes the review status of a rider.
func (s *Store) SetRegistrationStatus(ctx context.Context, id, status string, at time.Time) error {
	return s.execRider(ctx, `UPDATE riders SET registration_status = ?, updated_at = ? WHERE id = ?`, status, at, id)
}

// SetCommissionRate changes the administrative commission rate.
func (s *Store) SetCommissionRate(ctx context.Context, id string, rate float64, at time.Time) error {
	return s.execRider(ctx, `UPDATE riders SET commission_rate = ?, updated_at = ? WHERE id = ?`, rate, at, id)
}

// SetPushToken stores the rider's device token.
func (s *Store) SetPushToken(ctx context.Context, id, token string, at time.Time) error {
	return s.execRider(ctx, `UPDATE riders SET push_token = ?, updated_at = ? WHERE id = ?`, token, at, id)
}

// ListOnlineRiders returns verified riders with the online flag set.
func (s *Store) ListOnlineRiders(ctx context.Context) ([]model.Rider, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+riderColumns+` FROM riders
        WHERE online = ? AND registration_status = ? ORDER BY created_at`), true, model.RegistrationVerified)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var riders []model.Rider
	for rows.Next() {
		r, err := scanRider(rows)
		if err != nil {
			return nil, err
		}
		riders = append(riders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return riders, nil
}
