package roster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deliveryBack/internal/rider/model"
)

// Store is the persistence contract of the roster.
type Store interface {
	CreateRider(ctx context.Context, r model.Rider) error
	GetRider(ctx context.Context, id string) (model.Rider, error)
	SetRiderOnline(ctx context.Context, id string, online bool, at time.Time) error
	SetRegistrationStatus(ctx context.Context, id, status string, at time.Time) error
	SetCommissionRate(ctx context.Context, id string, rate float64, at time.Time) error
	SetPushToken(ctx context.Context, id, token string, at time.Time) error
}

// Presence lets the roster take a suspended rider off the dispatch pool.
type Presence interface {
	SetOnline(ctx context.Context, riderID string, online bool) error
}

// Logger is the minimal logging contract of the roster.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Service manages rider profiles.
type Service struct {
	store    Store
	presence Presence
	logger   Logger
	now      func() time.Time
}

// NewService constructs the roster service. presence may be nil.
func NewService(store Store, presence Presence, logger Logger) *Service {
	return &Service{store: store, presence: presence, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates a rider awaiting review.
func (s *Service) Register(ctx context.Context, r model.Rider) (model.Rider, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	if err := r.Validate(); err != nil {
		return model.Rider{}, err
	}
	now := s.now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.RegistrationStatus = model.RegistrationPending
	r.Online = false
	r.TripCount = 0
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := s.store.CreateRider(ctx, r); err != nil {
		return model.Rider{}, err
	}
	s.logger.Infof("rider roster: registered %s (%s)", r.ID, r.VehicleType)
	return r, nil
}

// Get loads a rider profile.
func (s *Service) Get(ctx context.Context, id string) (model.Rider, error) {
	return s.store.GetRider(ctx, id)
}

// SetRegistrationStatus records a review decision. Riders that lose the
// verified status are taken offline.
func (s *Service) SetRegistrationStatus(ctx context.Context, id, status string) (model.Rider, error) {
	if !model.ValidRegistrationStatus(status) {
		return model.Rider{}, fmt.Errorf("%w: unknown registration status %q", model.ErrValidation, status)
	}
	rider, err := s.store.GetRider(ctx, id)
	if err != nil {
		return model.Rider{}, err
	}
	if err := s.store.SetRegistrationStatus(ctx, id, status, s.now()); err != nil {
		return model.Rider{}, err
	}
	s.logger.Infof("rider roster: %s registration %s -> %s", id, rider.RegistrationStatus, status)

	if status != model.RegistrationVerified && rider.Online {
		if s.presence != nil {
			err = s.presence.SetOnline(ctx, id, false)
		} else {
			err = s.store.SetRiderOnline(ctx, id, false, s.now())
		}
		if err != nil {
			return model.Rider{}, fmt.Errorf("take rider %s offline: %w", id, err)
		}
	}
	return s.store.GetRider(ctx, id)
}

// SetCommissionRate updates the rider's commission percentage.
func (s *Service) SetCommissionRate(ctx context.Context, id string, rate float64) (model.Rider, error) {
	if rate < 0 || rate > 100 {
		return model.Rider{}, fmt.Errorf("%w: commission rate must be within 0..100", model.ErrValidation)
	}
	if err := s.store.SetCommissionRate(ctx, id, rate, s.now()); err != nil {
		return model.Rider{}, err
	}
	return s.store.GetRider(ctx, id)
}

// SetPushToken stores the device token used for push notifications.
func (s *Service) SetPushToken(ctx context.Context, id, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: push token is required", model.ErrValidation)
	}
	return s.store.SetPushToken(ctx, id, token, s.now())
}
