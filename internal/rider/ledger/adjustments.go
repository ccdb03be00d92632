package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/model"
)

// AdjustmentInput is an administrator's request to create an adjustment.
type AdjustmentInput struct {
	RiderID   string   `json:"rider_id"`
	Type      string   `json:"type"`
	Amount    int64    `json:"amount"`
	Reason    string   `json:"reason"`
	CreatedBy string   `json:"-"`
	Closes    []string `json:"closes_adjustment_ids,omitempty"`
}

// CreateAdjustment records an active adjustment. A settlement may name the
// cash advances it closes; the link is informational and changes no balance.
func (s *Service) CreateAdjustment(ctx context.Context, in AdjustmentInput) (model.WalletAdjustment, error) {
	if !model.ValidAdjustmentType(in.Type) {
		return model.WalletAdjustment{}, fmt.Errorf("%w: unknown adjustment type %q", model.ErrValidation, in.Type)
	}
	if in.Amount <= 0 {
		return model.WalletAdjustment{}, fmt.Errorf("%w: amount must be positive", model.ErrValidation)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return model.WalletAdjustment{}, fmt.Errorf("%w: reason is required", model.ErrValidation)
	}
	if in.CreatedBy == "" {
		return model.WalletAdjustment{}, fmt.Errorf("%w: creator is required", model.ErrValidation)
	}
	if _, err := s.store.GetRider(ctx, in.RiderID); err != nil {
		return model.WalletAdjustment{}, err
	}
	if len(in.Closes) > 0 {
		if in.Type != model.AdjustmentSettlement {
			return model.WalletAdjustment{}, fmt.Errorf("%w: only settlements may close advances", model.ErrValidation)
		}
		for _, id := range in.Closes {
			adv, err := s.store.GetAdjustment(ctx, id)
			if err != nil {
				return model.WalletAdjustment{}, fmt.Errorf("closed adjustment %s: %w", id, err)
			}
			if adv.RiderID != in.RiderID || adv.Type != model.AdjustmentCashAdvance {
				return model.WalletAdjustment{}, fmt.Errorf("%w: %s is not a cash advance of this rider", model.ErrValidation, id)
			}
		}
	}

	a := model.WalletAdjustment{
		ID:                  uuid.NewString(),
		RiderID:             in.RiderID,
		Type:                in.Type,
		Amount:              in.Amount,
		Reason:              strings.TrimSpace(in.Reason),
		Status:              model.AdjustmentActive,
		CreatedBy:           in.CreatedBy,
		CreatedAt:           s.now(),
		ClosesAdjustmentIDs: in.Closes,
	}
	if err := s.store.InsertAdjustment(ctx, a); err != nil {
		return model.WalletAdjustment{}, err
	}
	s.logger.Infof("rider ledger: %s %s of %d for rider %s by %s", a.ID, a.Type, a.Amount, a.RiderID, a.CreatedBy)
	s.events.Publish(ctx, events.Event{Topic: events.TopicLedgerChanged, RiderID: a.RiderID})
	return a, nil
}

// SettleAdjustment closes an active adjustment as settled.
func (s *Service) SettleAdjustment(ctx context.Context, id, notes string) (model.WalletAdjustment, error) {
	return s.closeAdjustment(ctx, id, model.AdjustmentSettled, notes)
}

// CancelAdjustment closes an active adjustment as cancelled.
func (s *Service) CancelAdjustment(ctx context.Context, id, notes string) (model.WalletAdjustment, error) {
	return s.closeAdjustment(ctx, id, model.AdjustmentCancelled, notes)
}

func (s *Service) closeAdjustment(ctx context.Context, id, to, notes string) (model.WalletAdjustment, error) {
	a, err := s.store.GetAdjustment(ctx, id)
	if err != nil {
		return model.WalletAdjustment{}, err
	}
	if a.Status != model.AdjustmentActive {
		return model.WalletAdjustment{}, fmt.Errorf("%w: adjustment %s is %s", model.ErrNotActive, id, a.Status)
	}
	if err := s.store.CloseAdjustment(ctx, id, to, strings.TrimSpace(notes), s.now()); err != nil {
		return model.WalletAdjustment{}, err
	}
	s.events.Publish(ctx, events.Event{Topic: events.TopicLedgerChanged, RiderID: a.RiderID, Status: to})
	return s.store.GetAdjustment(ctx, id)
}

// ListAdjustments returns a rider's adjustments.
func (s *Service) ListAdjustments(ctx context.Context, riderID string) ([]model.WalletAdjustment, error) {
	if _, err := s.store.GetRider(ctx, riderID); err != nil {
		return nil, err
	}
	var out []model.WalletAdjustment
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListAdjustments(ctx, riderID)
		return err
	})
	return out, err
}
