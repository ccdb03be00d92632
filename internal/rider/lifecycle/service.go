package lifecycle

import (
	"context"
	"fmt"
	"time"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/model"
)

// Store is the persistence contract of the state machine. Both writes are
// conditional on the expected current status.
type Store interface {
	GetRequest(ctx context.Context, id string) (model.DeliveryRequest, error)
	TransitionRequest(ctx context.Context, t model.Transition) error
	CompleteDelivery(ctx context.Context, t model.Transition, earn func(model.DeliveryRequest) (model.EarningsRecord, error)) (model.EarningsRecord, error)
	ListStatusHistory(ctx context.Context, id string) ([]model.StatusHistoryEntry, error)
}

// EarningsCalculator prices a delivered request.
type EarningsCalculator interface {
	Calculate(req model.DeliveryRequest, at time.Time) (model.EarningsRecord, error)
}

// ActivityNotifier is told about rider actions that affect presence.
type ActivityNotifier interface {
	OnActivity(ctx context.Context, riderID string)
}

// Logger is the minimal logging contract of the service.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Service drives delivery requests through their lifecycle.
type Service struct {
	store    Store
	earnings EarningsCalculator
	events   events.Publisher
	activity ActivityNotifier
	logger   Logger
	now      func() time.Time
}

// NewService constructs the lifecycle service. activity may be nil.
func NewService(store Store, earnings EarningsCalculator, pub events.Publisher, activity ActivityNotifier, logger Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{
		store:    store,
		earnings: earnings,
		events:   pub,
		activity: activity,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Advance moves a claimed request from expected to next on behalf of its
// assigned rider. Reaching delivered records the rider's earnings in the
// same write.
func (s *Service) Advance(ctx context.Context, requestID, riderID, expected, next string) (model.DeliveryRequest, error) {
	if !CanTransition(expected, next) {
		s.logger.Errorf("rider lifecycle: rejected %s -> %s for request %s by rider %s", expected, next, requestID, riderID)
		return model.DeliveryRequest{}, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, expected, next)
	}

	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return model.DeliveryRequest{}, s.wrap("load request", requestID, err)
	}
	if req.AssignedRider == "" || req.AssignedRider != riderID {
		return model.DeliveryRequest{}, model.ErrNotAssignedRider
	}

	now := s.now()
	t := model.Transition{RequestID: requestID, RiderID: riderID, From: expected, To: next, At: now}

	if next == StatusDelivered {
		rec, err := s.store.CompleteDelivery(ctx, t, func(current model.DeliveryRequest) (model.EarningsRecord, error) {
			return s.earnings.Calculate(current, now)
		})
		if err != nil {
			return model.DeliveryRequest{}, s.wrap("complete delivery", requestID, err)
		}
		s.logger.Infof("rider lifecycle: request %s delivered by %s, earnings %d", requestID, riderID, rec.FinalAmount)
		s.events.Publish(ctx, events.Event{Topic: events.TopicLedgerChanged, RiderID: riderID, RequestID: requestID, At: now})
	} else if err := s.store.TransitionRequest(ctx, t); err != nil {
		return model.DeliveryRequest{}, s.wrap("transition", requestID, err)
	}

	return s.afterChange(ctx, requestID, riderID, next, now)
}

// Cancel moves a non-terminal request to cancelled. An empty riderID denotes
// an administrative cancel; an empty expected status means "whatever it is now".
func (s *Service) Cancel(ctx context.Context, requestID, riderID, expected, reason string) (model.DeliveryRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return model.DeliveryRequest{}, s.wrap("load request", requestID, err)
	}
	if expected == "" {
		expected = req.Status
	}
	if !CanTransition(expected, StatusCancelled) {
		s.logger.Errorf("rider lifecycle: rejected cancel of request %s from %s", requestID, expected)
		return model.DeliveryRequest{}, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, expected, StatusCancelled)
	}
	if riderID != "" && req.AssignedRider != riderID {
		return model.DeliveryRequest{}, model.ErrNotAssignedRider
	}

	now := s.now()
	t := model.Transition{RequestID: requestID, RiderID: riderID, From: expected, To: StatusCancelled, Note: reason, At: now}
	if err := s.store.TransitionRequest(ctx, t); err != nil {
		return model.DeliveryRequest{}, s.wrap("cancel", requestID, err)
	}
	return s.afterChange(ctx, requestID, req.AssignedRider, StatusCancelled, now)
}

// History returns the audit trail of a request, oldest first. A non-empty
// riderID restricts it to the rider the request is assigned to.
func (s *Service) History(ctx context.Context, requestID, riderID string) ([]model.StatusHistoryEntry, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if riderID != "" && req.AssignedRider != riderID {
		return nil, model.ErrNotAssignedRider
	}
	return s.store.ListStatusHistory(ctx, requestID)
}

func (s *Service) afterChange(ctx context.Context, requestID, riderID, status string, at time.Time) (model.DeliveryRequest, error) {
	s.events.Publish(ctx, events.Event{
		Topic:     events.TopicStatusChanged,
		RiderID:   riderID,
		RequestID: requestID,
		Status:    status,
		At:        at,
	})
	if s.activity != nil && riderID != "" {
		s.activity.OnActivity(ctx, riderID)
	}

	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return model.DeliveryRequest{}, s.wrap("reload request", requestID, err)
	}
	return req, nil
}

func (s *Service) wrap(op, requestID string, err error) error {
	if model.IsDomainError(err) {
		return err
	}
	s.logger.Errorf("rider lifecycle: %s %s: %v", op, requestID, err)
	return fmt.Errorf("%s %s: %w: %w", op, requestID, model.ErrInternal, err)
}
