package model

import "time"

// Earnings statuses.
const (
	EarningsPending   = "pending"
	EarningsCompleted = "completed"
	EarningsPaid      = "paid"
)

// EarningsRecord is the fee owed to a rider for one delivered request.
type EarningsRecord struct {
	ID          string    `json:"id"`
	RiderID     string    `json:"rider_id"`
	DeliveryID  string    `json:"delivery_id"`
	DistanceKM  float64   `json:"distance_km"`
	BaseFee     int64     `json:"base_fee"`
	DistanceFee int64     `json:"distance_fee"`
	Bonus       int64     `json:"bonus"`
	Penalty     int64     `json:"penalty"`
	FinalAmount int64     `json:"final_amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Adjustment types.
const (
	AdjustmentCashAdvance = "cash_advance"
	AdjustmentBonus       = "bonus"
	AdjustmentDeduction   = "deduction"
	AdjustmentSettlement  = "settlement"
	AdjustmentCorrection  = "correction"
)

// Adjustment statuses.
const (
	AdjustmentActive    = "active"
	AdjustmentSettled   = "settled"
	AdjustmentCancelled = "cancelled"
)

// ValidAdjustmentType reports whether t is a known adjustment type.
func ValidAdjustmentType(t string) bool {
	switch t {
	case AdjustmentCashAdvance, AdjustmentBonus, AdjustmentDeduction, AdjustmentSettlement, AdjustmentCorrection:
		return true
	}
	return false
}

// IsCreditAdjustment reports whether an active adjustment of type t adds to the balance.
func IsCreditAdjustment(t string) bool {
	switch t {
	case AdjustmentCashAdvance, AdjustmentBonus, AdjustmentCorrection:
		return true
	}
	return false
}

// WalletAdjustment is an administrative entry against a rider's balance.
// Amount is always positive; the type decides the sign.
type WalletAdjustment struct {
	ID                  string     `json:"id"`
	RiderID             string     `json:"rider_id"`
	Type                string     `json:"type"`
	Amount              int64      `json:"amount"`
	Reason              string     `json:"reason"`
	Status              string     `json:"status"`
	CreatedBy           string     `json:"created_by"`
	CreatedAt           time.Time  `json:"created_at"`
	SettledAt           *time.Time `json:"settled_at,omitempty"`
	SettlementNotes     string     `json:"settlement_notes,omitempty"`
	ClosesAdjustmentIDs []string   `json:"closes_adjustment_ids,omitempty"`
}

// Withdrawal statuses.
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalRejected = "rejected"
	WithdrawalPaid     = "paid"
)

// WithdrawalRequest is a rider's request to cash out part of the balance.
type WithdrawalRequest struct {
	ID               string     `json:"id"`
	RiderID          string     `json:"rider_id"`
	Amount           int64      `json:"amount"`
	Status           string     `json:"status"`
	AdminNotes       string     `json:"admin_notes,omitempty"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// WithdrawalUpdate is a conditional status change of a withdrawal.
type WithdrawalUpdate struct {
	ID               string
	From             string
	To               string
	AdminNotes       string
	PaymentMethod    string
	PaymentReference string
	At               time.Time
}

// LedgerTotals are the four sums the withdrawable balance is derived from.
type LedgerTotals struct {
	Earnings    int64 `json:"earnings"`
	Withdrawals int64 `json:"withdrawals"`
	Credits     int64 `json:"credits"`
	Debits      int64 `json:"debits"`
}

// Withdrawable derives the balance a rider may cash out.
func (t LedgerTotals) Withdrawable() int64 {
	return t.Earnings - t.Withdrawals + t.Credits - t.Debits
}

// Balance is the rider-facing view of the ledger.
type Balance struct {
	RiderID      string       `json:"rider_id"`
	Withdrawable int64        `json:"withdrawable"`
	Totals       LedgerTotals `json:"totals"`
}
