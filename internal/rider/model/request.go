package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Request kinds.
const (
	KindOrder  = "order"
	KindErrand = "ad_hoc_errand"
)

// Location is a pickup or drop-off point.
type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Validate checks that the point carries usable coordinates.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 || l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("%w: coordinates out of range lat=%.6f lon=%.6f", ErrValidation, l.Lat, l.Lon)
	}
	return nil
}

// OrderItem is a line of a catalogue order.
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// OrderPayload holds the fields specific to catalogue orders.
type OrderPayload struct {
	Items []OrderItem `json:"items"`
}

// ErrandPayload holds the fields specific to ad-hoc errands.
type ErrandPayload struct {
	Description   string `json:"description"`
	EstimatedCost int64  `json:"estimated_cost"`
}

// DeliveryRequest is a unit of work a rider can claim. Exactly one of Order and
// Errand is set and Kind names which.
type DeliveryRequest struct {
	ID            string         `json:"id"`
	Kind          string         `json:"kind"`
	Pickup        Location       `json:"pickup"`
	Dropoff       Location       `json:"dropoff"`
	TotalAmount   int64          `json:"total_amount"`
	AssignedRider string         `json:"assigned_rider,omitempty"`
	Status        string         `json:"status"`
	Bonus         int64          `json:"bonus"`
	Penalty       int64          `json:"penalty"`
	Order         *OrderPayload  `json:"order,omitempty"`
	Errand        *ErrandPayload `json:"errand,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ClaimedAt     *time.Time     `json:"claimed_at,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
}

// Assigned reports whether a rider has claimed the request.
func (r DeliveryRequest) Assigned() bool {
	return r.AssignedRider != ""
}

// Validate checks the request before it is offered to riders.
func (r DeliveryRequest) Validate() error {
	switch r.Kind {
	case KindOrder:
		if r.Order == nil || r.Errand != nil {
			return fmt.Errorf("%w: order request needs an order payload only", ErrValidation)
		}
		if len(r.Order.Items) == 0 {
			return fmt.Errorf("%w: order has no items", ErrValidation)
		}
	case KindErrand:
		if r.Errand == nil || r.Order != nil {
			return fmt.Errorf("%w: errand request needs an errand payload only", ErrValidation)
		}
		if strings.TrimSpace(r.Errand.Description) == "" {
			return fmt.Errorf("%w: errand description is required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown request kind %q", ErrValidation, r.Kind)
	}
	if err := r.Pickup.Validate(); err != nil {
		return err
	}
	if err := r.Dropoff.Validate(); err != nil {
		return err
	}
	if r.TotalAmount < 0 || r.Bonus < 0 || r.Penalty < 0 {
		return fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}
	return nil
}

// EncodePayload serialises the kind-specific payload for storage.
func (r DeliveryRequest) EncodePayload() ([]byte, error) {
	switch r.Kind {
	case KindOrder:
		return json.Marshal(r.Order)
	case KindErrand:
		return json.Marshal(r.Errand)
	}
	return nil, fmt.Errorf("%w: unknown request kind %q", ErrValidation, r.Kind)
}

// DecodePayload restores the kind-specific payload read from storage.
func (r *DeliveryRequest) DecodePayload(data []byte) error {
	r.Order, r.Errand = nil, nil
	switch r.Kind {
	case KindOrder:
		var p OrderPayload
		if len(data) > 0 {
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode order payload: %w", err)
			}
		}
		r.Order = &p
	case KindErrand:
		var p ErrandPayload
		if len(data) > 0 {
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode errand payload: %w", err)
			}
		}
		r.Errand = &p
	default:
		return fmt.Errorf("unknown request kind %q", r.Kind)
	}
	return nil
}

// Transition describes a requested status change of a delivery request.
// An empty RiderID skips the assigned-rider check (administrative actions).
type Transition struct {
	RequestID string
	RiderID   string
	From      string
	To        string
	Note      string
	At        time.Time
}

// StatusHistoryEntry is one row of a request's audit trail.
type StatusHistoryEntry struct {
	DeliveryID string    `json:"delivery_id"`
	Status     string    `json:"status"`
	RiderID    string    `json:"rider_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
