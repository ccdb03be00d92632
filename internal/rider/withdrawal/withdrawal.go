package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/model"
)

var transitions = map[string]map[string]struct{}{
	model.WithdrawalPending: {
		model.WithdrawalApproved: {},
		model.WithdrawalRejected: {},
		model.WithdrawalPaid:     {},
	},
	model.WithdrawalApproved: {
		model.WithdrawalPaid: {},
	},
}

// CanTransition reports whether a withdrawal may move from current to next.
func CanTransition(current, next string) bool {
	allowed, ok := transitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// Store is the persistence contract of the processor.
type Store interface {
	GetRider(ctx context.Context, id string) (model.Rider, error)
	CreateWithdrawal(ctx context.Context, w model.WithdrawalRequest, check func(model.LedgerTotals) error) error
	GetWithdrawal(ctx context.Context, id string) (model.WithdrawalRequest, error)
	UpdateWithdrawalStatus(ctx context.Context, u model.WithdrawalUpdate) error
	ListWithdrawals(ctx context.Context, riderID string) ([]model.WithdrawalRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, status string, limit int) ([]model.WithdrawalRequest, error)
}

// Logger is the minimal logging contract of the processor.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Processor validates and records cash-out requests.
type Processor struct {
	store  Store
	events events.Publisher
	logger Logger
	now    func() time.Time
}

// NewProcessor constructs a withdrawal processor.
func NewProcessor(store Store, pub events.Publisher, logger Logger) *Processor {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Processor{store: store, events: pub, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Request creates a pending withdrawal when amount does not exceed the
// rider's withdrawable balance at the moment of insertion.
func (p *Processor) Request(ctx context.Context, riderID string, amount int64, method string) (model.WithdrawalRequest, error) {
	if amount <= 0 {
		return model.WithdrawalRequest{}, fmt.Errorf("%w: amount must be positive", model.ErrValidation)
	}
	if _, err := p.store.GetRider(ctx, riderID); err != nil {
		return model.WithdrawalRequest{}, err
	}

	now := p.now()
	w := model.WithdrawalRequest{
		ID:            uuid.NewString(),
		RiderID:       riderID,
		Amount:        amount,
		Status:        model.WithdrawalPending,
		PaymentMethod: strings.TrimSpace(method),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := p.store.CreateWithdrawal(ctx, w, func(t model.LedgerTotals) error {
		if available := t.Withdrawable(); amount > available {
			return fmt.Errorf("%w: requested %d, available %d", model.ErrInsufficientBalance, amount, available)
		}
		return nil
	})
	if err != nil {
		return model.WithdrawalRequest{}, err
	}

	p.logger.Infof("rider withdrawal: %s requested %d by rider %s", w.ID, amount, riderID)
	p.events.Publish(ctx, events.Event{Topic: events.TopicLedgerChanged, RiderID: riderID, Status: w.Status})
	return w, nil
}

// ProcessInput is an administrator's decision on a withdrawal.
type ProcessInput struct {
	Status           string `json:"status"`
	AdminNotes       string `json:"admin_notes"`
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference"`
}

// Process moves a withdrawal to in.Status when the edge is allowed and the
// withdrawal has not been changed concurrently.
func (p *Processor) Process(ctx context.Context, id string, in ProcessInput) (model.WithdrawalRequest, error) {
	w, err := p.store.GetWithdrawal(ctx, id)
	if err != nil {
		return model.WithdrawalRequest{}, err
	}
	if !CanTransition(w.Status, in.Status) {
		p.logger.Errorf("rider withdrawal: rejected %s -> %s for %s", w.Status, in.Status, id)
		return model.WithdrawalRequest{}, fmt.Errorf("%w: withdrawal %s -> %s", model.ErrInvalidTransition, w.Status, in.Status)
	}

	err = p.store.UpdateWithdrawalStatus(ctx, model.WithdrawalUpdate{
		ID:               id,
		From:             w.Status,
		To:               in.Status,
		AdminNotes:       strings.TrimSpace(in.AdminNotes),
		PaymentMethod:    strings.TrimSpace(in.PaymentMethod),
		PaymentReference: strings.TrimSpace(in.PaymentReference),
		At:               p.now(),
	})
	if err != nil {
		return model.WithdrawalRequest{}, err
	}

	p.logger.Infof("rider withdrawal: %s %s -> %s", id, w.Status, in.Status)
	p.events.Publish(ctx, events.Event{Topic: events.TopicLedgerChanged, RiderID: w.RiderID, Status: in.Status})
	return p.store.GetWithdrawal(ctx, id)
}

// List returns a rider's withdrawals.
func (p *Processor) List(ctx context.Context, riderID string) ([]model.WithdrawalRequest, error) {
	if _, err := p.store.GetRider(ctx, riderID); err != nil {
		return nil, err
	}
	return p.store.ListWithdrawals(ctx, riderID)
}

// ListByStatus returns the admin queue of withdrawals in status.
func (p *Processor) ListByStatus(ctx context.Context, status string, limit int) ([]model.WithdrawalRequest, error) {
	switch status {
	case model.WithdrawalPending, model.WithdrawalApproved, model.WithdrawalRejected, model.WithdrawalPaid:
	default:
		return nil, fmt.Errorf("%w: unknown withdrawal status %q", model.ErrValidation, status)
	}
	return p.store.ListWithdrawalsByStatus(ctx, status, limit)
}
