package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/model"
	"deliveryBack/internal/rider/pricing"
	"deliveryBack/internal/rider/retry"
)

// Store is the persistence contract of the ledgers.
type Store interface {
	GetRider(ctx context.Context, id string) (model.Rider, error)
	InsertEarnings(ctx context.Context, rec model.EarningsRecord) (model.EarningsRecord, bool, error)
	GetEarnings(ctx context.Context, id string) (model.EarningsRecord, error)
	ListEarnings(ctx context.Context, riderID string) ([]model.EarningsRecord, error)
	UpdateEarningsStatus(ctx context.Context, id, from, to string, at time.Time) error
	ListDeliveredWithoutEarnings(ctx context.Context, limit int) ([]model.DeliveryRequest, error)

	InsertAdjustment(ctx context.Context, a model.WalletAdjustment) error
	GetAdjustment(ctx context.Context, id string) (model.WalletAdjustment, error)
	CloseAdjustment(ctx context.Context, id, to, notes string, at time.Time) error
	ListAdjustments(ctx context.Context, riderID string) ([]model.WalletAdjustment, error)

	LedgerTotals(ctx context.Context, riderID string) (model.LedgerTotals, error)
}

// Logger is the minimal logging contract of the service.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Config tunes the ledger service.
type Config struct {
	Pricing        pricing.Config
	Retry          retry.Policy
	ReconcileBatch int
}

// Service records rider earnings and administrative adjustments and derives
// the withdrawable balance from them.
type Service struct {
	store  Store
	cfg    Config
	events events.Publisher
	logger Logger
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(store Store, cfg Config, pub events.Publisher, logger Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 100
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = func(err error) bool { return !model.IsDomainError(err) }
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		events: pub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Calculate prices a delivered request without persisting anything.
func (s *Service) Calculate(req model.DeliveryRequest, at time.Time) (model.EarningsRecord, error) {
	if !req.Assigned() {
		return model.EarningsRecord{}, fmt.Errorf("%w: request %s has no rider", model.ErrValidation, req.ID)
	}
	distance := pricing.HaversineKM(req.Pickup.Lat, req.Pickup.Lon, req.Dropoff.Lat, req.Dropoff.Lon)
	b := pricing.Earnings(s.cfg.Pricing, distance, req.Bonus, req.Penalty)
	return model.EarningsRecord{
		ID:          uuid.NewString(),
		RiderID:     req.AssignedRider,
		DeliveryID:  req.ID,
		DistanceKM:  b.DistanceKM,
		BaseFee:     b.BaseFee,
		DistanceFee: b.DistanceFee,
		Bonus:       b.Bonus,
		Penalty:     b.Penalty,
		FinalAmount: b.Final,
		Status:      model.EarningsPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}, nil
}

// RecordCompletion creates the earnings record of a delivered request. It is
// idempotent: when a record already exists for the delivery it is returned
// unchanged. Transient store failures are retried.
func (s *Service) RecordCompletion(ctx context.Context, req model.DeliveryRequest) (model.EarningsRecord, error) {
	if req.Status != lifecycle.StatusDelivered {
		return model.EarningsRecord{}, fmt.Errorf("%w: request %s is %s, not delivered", model.ErrValidation, req.ID, req.Status)
	}
	rec, err := s.Calculate(req, s.now())
	if err != nil {
		return model.EarningsRecord{}, err
	}

	var (
		stored  model.EarningsRecord
		created bool
	)
	err = retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var err error
		stored, created, err = s.store.InsertEarnings(ctx, rec)
		return err
	})
	if err != nil {
		s.logger.Errorf("rider ledger: record earnings for %s failed: %v", req.ID, err)
		if model.IsDomainError(err) {
			return model.EarningsRecord{}, err
		}
		return model.EarningsRecord{}, fmt.Errorf("record earnings %s: %w: %w", req.ID, model.ErrInternal, err)
	}
	if created {
		s.logger.Infof("rider ledger: recorded %d for delivery %s rider %s", stored.FinalAmount, req.ID, stored.RiderID)
		s.events.Publish(ctx, events.Event{Topic: events.TopicLedgerChanged, RiderID: stored.RiderID, RequestID: req.ID})
	}
	return stored, nil
}

// Reconcile records earnings for delivered requests that have none and
// returns how many were recorded.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	var reqs []model.DeliveryRequest
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		reqs, err = s.store.ListDeliveredWithoutEarnings(ctx, s.cfg.ReconcileBatch)
		return err
	})
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, req := range reqs {
		if _, err := s.RecordCompletion(ctx, req); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// RunReconciler calls Reconcile every interval until ctx is cancelled.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Reconcile(ctx)
			if err != nil {
				s.logger.Errorf("rider ledger: reconcile: %v", err)
			}
			if n > 0 {
				s.logger.Infof("rider ledger: reconciled %d deliveries", n)
			}
		}
	}
}

var earningsTransitions = map[string]string{
	model.EarningsPending:   model.EarningsCompleted,
	model.EarningsCompleted: model.EarningsPaid,
}

// MarkEarnings advances an earnings record along pending -> completed -> paid.
func (s *Service) MarkEarnings(ctx context.Context, id, next string) (model.EarningsRecord, error) {
	rec, err := s.store.GetEarnings(ctx, id)
	if err != nil {
		return model.EarningsRecord{}, err
	}
	if earningsTransitions[rec.Status] != next {
		return model.EarningsRecord{}, fmt.Errorf("%w: earnings %s -> %s", model.ErrInvalidTransition, rec.Status, next)
	}
	if err := s.store.UpdateEarningsStatus(ctx, id, rec.Status, next, s.now()); err != nil {
		return model.EarningsRecord{}, err
	}
	s.events.Publish(ctx, events.Event{Topic: events.TopicLedgerChanged, RiderID: rec.RiderID, Status: next})
	return s.store.GetEarnings(ctx, id)
}

// read runs an idempotent store read under the retry policy.
func (s *Service) read(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, s.cfg.Retry, fn)
}

// ListEarnings returns a rider's earnings history.
func (s *Service) ListEarnings(ctx context.Context, riderID string) ([]model.EarningsRecord, error) {
	if _, err := s.store.GetRider(ctx, riderID); err != nil {
		return nil, err
	}
	var out []model.EarningsRecord
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListEarnings(ctx, riderID)
		return err
	})
	return out, err
}

// Balance derives the rider's withdrawable balance from the ledger.
func (s *Service) Balance(ctx context.Context, riderID string) (model.Balance, error) {
	var totals model.LedgerTotals
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		totals, err = s.store.LedgerTotals(ctx, riderID)
		return err
	})
	if err != nil {
		return model.Balance{}, err
	}
	return model.Balance{RiderID: riderID, Withdrawable: totals.Withdrawable(), Totals: totals}, nil
}
