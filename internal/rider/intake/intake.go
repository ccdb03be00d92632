package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/model"
)

const (
	defaultPendingLimit   = 50
	defaultCompletedLimit = 100
)

// Store is the persistence contract of intake.
type Store interface {
	GetRider(ctx context.Context, id string) (model.Rider, error)
	InsertRequest(ctx context.Context, req model.DeliveryRequest) error
	GetRequest(ctx context.Context, id string) (model.DeliveryRequest, error)
	ListPendingRequests(ctx context.Context, limit int) ([]model.DeliveryRequest, error)
	CountPendingRequests(ctx context.Context) (int, error)
	ListRiderRequests(ctx context.Context, riderID string, statuses []string, limit int) ([]model.DeliveryRequest, error)
	CountActiveDeliveries(ctx context.Context, riderID string) (int, error)
	ClaimRequest(ctx context.Context, id, riderID string, at time.Time) error
}

// ActivityNotifier is told about rider actions that affect presence.
type ActivityNotifier interface {
	OnActivity(ctx context.Context, riderID string)
}

// Logger is the minimal logging contract of intake.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Config bounds the list views.
type Config struct {
	PendingLimit   int
	CompletedLimit int
}

// Service exposes open requests to riders and arbitrates claims.
type Service struct {
	store    Store
	events   events.Publisher
	activity ActivityNotifier
	cfg      Config
	logger   Logger
	now      func() time.Time
}

// NewService constructs the intake service. pub and activity may be nil.
func NewService(store Store, pub events.Publisher, activity ActivityNotifier, cfg Config, logger Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = defaultPendingLimit
	}
	if cfg.CompletedLimit <= 0 {
		cfg.CompletedLimit = defaultCompletedLimit
	}
	return &Service{
		store:    store,
		events:   pub,
		activity: activity,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit registers a new placed request and announces it to riders.
func (s *Service) Submit(ctx context.Context, req model.DeliveryRequest) (model.DeliveryRequest, error) {
	if err := req.Validate(); err != nil {
		return model.DeliveryRequest{}, err
	}
	now := s.now()
	req.ID = uuid.NewString()
	req.Status = lifecycle.StatusPlaced
	req.AssignedRider = ""
	req.ClaimedAt = nil
	req.DeliveredAt = nil
	req.CreatedAt = now
	req.UpdatedAt = now

	if err := s.store.InsertRequest(ctx, req); err != nil {
		return model.DeliveryRequest{}, err
	}
	s.logger.Infof("rider intake: request %s (%s) placed", req.ID, req.Kind)
	s.events.Publish(ctx, events.Event{Topic: events.TopicNewPending, RequestID: req.ID, Status: req.Status, Request: &req, At: now})
	return req, nil
}

// ListPending returns the currently unclaimed placed requests. Each call
// re-queries the store.
func (s *Service) ListPending(ctx context.Context, riderID string) ([]model.DeliveryRequest, error) {
	if err := s.eligible(ctx, riderID); err != nil {
		return nil, err
	}
	return s.store.ListPendingRequests(ctx, s.cfg.PendingLimit)
}

// Claim binds the request to riderID. Exactly one of several concurrent
// claimers succeeds; the rest get ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, requestID, riderID string) (model.DeliveryRequest, error) {
	if err := s.eligible(ctx, riderID); err != nil {
		return model.DeliveryRequest{}, err
	}
	now := s.now()
	if err := s.store.ClaimRequest(ctx, requestID, riderID, now); err != nil {
		return model.DeliveryRequest{}, err
	}
	s.logger.Infof("rider intake: request %s claimed by %s", requestID, riderID)
	s.events.Publish(ctx, events.Event{Topic: events.TopicClaimed, RequestID: requestID, RiderID: riderID, Status: lifecycle.StatusPlaced, At: now})
	if s.activity != nil {
		s.activity.OnActivity(ctx, riderID)
	}
	return s.store.GetRequest(ctx, requestID)
}

// ListActive returns the rider's non-terminal deliveries.
func (s *Service) ListActive(ctx context.Context, riderID string) ([]model.DeliveryRequest, error) {
	if _, err := s.store.GetRider(ctx, riderID); err != nil {
		return nil, err
	}
	return s.store.ListRiderRequests(ctx, riderID, lifecycle.ActiveStatuses, 0)
}

// ListCompleted returns the rider's delivered requests, newest first.
func (s *Service) ListCompleted(ctx context.Context, riderID string) ([]model.DeliveryRequest, error) {
	if _, err := s.store.GetRider(ctx, riderID); err != nil {
		return nil, err
	}
	return s.store.ListRiderRequests(ctx, riderID, []string{lifecycle.StatusDelivered}, s.cfg.CompletedLimit)
}

// Counts is the dashboard read model of a rider.
type Counts struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending_count"`
	Active  int  `json:"active_count"`
}

// Counts returns the pending and active counters shown to a rider. Pending is
// zero for riders who cannot see the queue.
func (s *Service) Counts(ctx context.Context, riderID string) (Counts, error) {
	rider, err := s.store.GetRider(ctx, riderID)
	if err != nil {
		return Counts{}, err
	}
	out := Counts{Online: rider.Online}
	if out.Active, err = s.store.CountActiveDeliveries(ctx, riderID); err != nil {
		return Counts{}, err
	}
	if rider.Dispatchable() {
		if out.Pending, err = s.store.CountPendingRequests(ctx); err != nil {
			return Counts{}, err
		}
	}
	return out, nil
}

func (s *Service) eligible(ctx context.Context, riderID string) error {
	rider, err := s.store.GetRider(ctx, riderID)
	if err != nil {
		return err
	}
	if !rider.Dispatchable() {
		return fmt.Errorf("%w: rider %s must be verified and online", model.ErrNotEligible, riderID)
	}
	return nil
}
