// Package memstore is an in-process store with the same conditional-write
// semantics as the SQL repositories. It backs tests and local runs with
// database driver "memory".
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/model"
)

// Store keeps every entity in maps guarded by one mutex, so each method is a
// single atomic step just like a conditional UPDATE.
type Store struct {
	mu          sync.Mutex
	riders      map[string]model.Rider
	requests    map[string]model.DeliveryRequest
	history     map[string][]model.StatusHistoryEntry
	earnings    map[string]model.EarningsRecord
	byDelivery  map[string]string
	adjustments map[string]model.WalletAdjustment
	withdrawals map[string]model.WithdrawalRequest
	seq         int64
	order       map[string]int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		riders:      make(map[string]model.Rider),
		requests:    make(map[string]model.DeliveryRequest),
		history:     make(map[string][]model.StatusHistoryEntry),
		earnings:    make(map[string]model.EarningsRecord),
		byDelivery:  make(map[string]string),
		adjustments: make(map[string]model.WalletAdjustment),
		withdrawals: make(map[string]model.WithdrawalRequest),
		order:       make(map[string]int64),
	}
}

func (s *Store) stamp(id string) {
	s.seq++
	s.order[id] = s.seq
}

func (s *Store) less(a, b string) bool {
	return s.order[a] < s.order[b]
}

// CreateRider inserts a rider profile.
func (s *Store) CreateRider(_ context.Context, r model.Rider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.riders[r.ID]; ok {
		return fmt.Errorf("%w: rider %s already exists", model.ErrValidation, r.ID)
	}
	for _, other := range s.riders {
		if other.Phone == r.Phone {
			return fmt.Errorf("%w: phone %s is already registered", model.ErrValidation, r.Phone)
		}
	}
	s.riders[r.ID] = r
	s.stamp(r.ID)
	return nil
}

// GetRider loads a rider by id.
func (s *Store) GetRider(_ context.Context, id string) (model.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.riders[id]
	if !ok {
		return model.Rider{}, model.ErrNotFound
	}
	return r, nil
}

func (s *Store) updateRider(id string, fn func(*model.Rider)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.riders[id]
	if !ok {
		return model.ErrNotFound
	}
	fn(&r)
	s.riders[id] = r
	return nil
}

// SetRiderOnline persists the presence flag.
func (s *Store) SetRiderOnline(_ context.Context, id string, online bool, at time.Time) error {
	return s.updateRider(id, func(r *model.Rider) {
		r.Online = online
		r.UpdatedAt = at
	})
}

// UpdateRiderLocation stores the last known position.
func (s *Store) UpdateRiderLocation(_ context.Context, id string, lat, lon float64, at time.Time) error {
	return s.updateRider(id, func(r *model.Rider) {
		r.LastLat, r.LastLon = lat, lon
		seen := at
		r.LastSeenAt = &seen
		r.UpdatedAt = at
	})
}

// SetRegistrationStatus changes the review status of a rider.
func (s *Store) SetRegistrationStatus(_ context.Context, id, status string, at time.Time) error {
	return s.updateRider(id, func(r *model.Rider) {
		r.RegistrationStatus = status
		r.UpdatedAt = at
	})
}

// SetCommissionRate changes the administrative commission rate.
func (s *Store) SetCommissionRate(_ context.Context, id string, rate float64, at time.Time) error {
	return s.updateRider(id, func(r *model.Rider) {
		r.CommissionRate = rate
		r.UpdatedAt = at
	})
}

// SetPushToken stores the rider's device token.
func (s *Store) SetPushToken(_ context.Context, id, token string, at time.Time) error {
	return s.updateRider(id, func(r *model.Rider) {
		r.PushToken = token
		r.UpdatedAt = at
	})
}

// ListOnlineRiders returns verified riders with the online flag set.
func (s *Store) ListOnlineRiders(_ context.Context) ([]model.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Rider
	for _, r := range s.riders {
		if r.Dispatchable() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.less(out[i].ID, out[j].ID) })
	return out, nil
}

// InsertRequest stores a new delivery request.
func (s *Store) InsertRequest(_ context.Context, req model.DeliveryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("%w: request %s already exists", model.ErrValidation, req.ID)
	}
	s.requests[req.ID] = req
	s.history[req.ID] = append(s.history[req.ID], model.StatusHistoryEntry{
		DeliveryID: req.ID, Status: req.Status, CreatedAt: req.CreatedAt,
	})
	s.stamp(req.ID)
	return nil
}

// GetRequest loads a request by id.
func (s *Store) GetRequest(_ context.Context, id string) (model.DeliveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return model.DeliveryRequest{}, model.ErrNotFound
	}
	return req, nil
}

// ListPendingRequests returns unassigned placed requests, oldest first.
func (s *Store) ListPendingRequests(_ context.Context, limit int) ([]model.DeliveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DeliveryRequest
	for _, req := range s.requests {
		if !req.Assigned() && req.Status == lifecycle.StatusPlaced {
			out = append(out, req)
		}
	}
	return s.sortRequests(out, limit, false), nil
}

// CountPendingRequests counts unassigned placed requests.
func (s *Store) CountPendingRequests(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if !req.Assigned() && req.Status == lifecycle.StatusPlaced {
			n++
		}
	}
	return n, nil
}

// ListRiderRequests returns a rider's requests in the given statuses, newest first.
func (s *Store) ListRiderRequests(_ context.Context, riderID string, statuses []string, limit int) ([]model.DeliveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}
	var out []model.DeliveryRequest
	for _, req := range s.requests {
		if req.AssignedRider != riderID {
			continue
		}
		if _, ok := want[req.Status]; ok {
			out = append(out, req)
		}
	}
	return s.sortRequests(out, limit, true), nil
}

// CountActiveDeliveries counts claimed requests that are not yet terminal.
func (s *Store) CountActiveDeliveries(_ context.Context, riderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.AssignedRider == riderID && !lifecycle.IsTerminal(req.Status) {
			n++
		}
	}
	return n, nil
}

// ClaimRequest binds the rider when the request is still unassigned and placed.
func (s *Store) ClaimRequest(_ context.Context, id, riderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return model.ErrNotFound
	}
	if req.Assigned() || req.Status != lifecycle.StatusPlaced {
		return model.ErrAlreadyClaimed
	}
	claimed := at
	req.AssignedRider = riderID
	req.ClaimedAt = &claimed
	req.UpdatedAt = at
	s.requests[id] = req
	s.history[id] = append(s.history[id], model.StatusHistoryEntry{
		DeliveryID: id, Status: req.Status, RiderID: riderID, Note: "claimed", CreatedAt: at,
	})
	return nil
}

func (s *Store) applyTransition(t model.Transition) (model.DeliveryRequest, error) {
	req, ok := s.requests[t.RequestID]
	if !ok {
		return model.DeliveryRequest{}, model.ErrNotFound
	}
	if req.Status != t.From || (t.RiderID != "" && req.AssignedRider != t.RiderID) {
		return model.DeliveryRequest{}, model.ErrStateConflict
	}
	req.Status = t.To
	req.UpdatedAt = t.At
	if t.To == lifecycle.StatusDelivered {
		delivered := t.At
		req.DeliveredAt = &delivered
	}
	return req, nil
}

func (s *Store) commitTransition(req model.DeliveryRequest, t model.Transition) {
	s.requests[req.ID] = req
	s.history[req.ID] = append(s.history[req.ID], model.StatusHistoryEntry{
		DeliveryID: req.ID, Status: t.To, RiderID: req.AssignedRider, Note: t.Note, CreatedAt: t.At,
	})
}

// TransitionRequest applies t when the request is still in t.From.
func (s *Store) TransitionRequest(_ context.Context, t model.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.applyTransition(t)
	if err != nil {
		return err
	}
	s.commitTransition(req, t)
	return nil
}

// CompleteDelivery moves the request to delivered and records its earnings
// as one step. When earn fails nothing changes.
func (s *Store) CompleteDelivery(_ context.Context, t model.Transition, earn func(model.DeliveryRequest) (model.EarningsRecord, error)) (model.EarningsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.applyTransition(t)
	if err != nil {
		return model.EarningsRecord{}, err
	}
	if id, ok := s.byDelivery[req.ID]; ok {
		s.commitTransition(req, t)
		return s.earnings[id], nil
	}
	rec, err := earn(req)
	if err != nil {
		return model.EarningsRecord{}, err
	}
	s.commitTransition(req, t)
	s.insertEarnings(rec)
	return rec, nil
}

// ListStatusHistory returns the audit trail of a request.
func (s *Store) ListStatusHistory(_ context.Context, id string) ([]model.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StatusHistoryEntry, len(s.history[id]))
	copy(out, s.history[id])
	return out, nil
}

// ListDeliveredWithoutEarnings finds delivered requests with no earnings record.
func (s *Store) ListDeliveredWithoutEarnings(_ context.Context, limit int) ([]model.DeliveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DeliveryRequest
	for _, req := range s.requests {
		if req.Status != lifecycle.StatusDelivered {
			continue
		}
		if _, ok := s.byDelivery[req.ID]; !ok {
			out = append(out, req)
		}
	}
	return s.sortRequests(out, limit, false), nil
}

func (s *Store) sortRequests(out []model.DeliveryRequest, limit int, newestFirst bool) []model.DeliveryRequest {
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return s.less(out[j].ID, out[i].ID)
		}
		return s.less(out[i].ID, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// insertEarnings stores a new record and counts the trip for its rider.
func (s *Store) insertEarnings(rec model.EarningsRecord) {
	s.earnings[rec.ID] = rec
	s.byDelivery[rec.DeliveryID] = rec.ID
	s.stamp(rec.ID)
	if r, ok := s.riders[rec.RiderID]; ok {
		r.TripCount++
		s.riders[r.ID] = r
	}
}

// InsertEarnings stores rec unless the delivery already has a record, in
// which case the existing record is returned with created=false.
func (s *Store) InsertEarnings(_ context.Context, rec model.EarningsRecord) (model.EarningsRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byDelivery[rec.DeliveryID]; ok {
		return s.earnings[id], false, nil
	}
	s.insertEarnings(rec)
	return rec, true, nil
}

// GetEarnings loads an earnings record by id.
func (s *Store) GetEarnings(_ context.Context, id string) (model.EarningsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.earnings[id]
	if !ok {
		return model.EarningsRecord{}, model.ErrNotFound
	}
	return rec, nil
}

// ListEarnings returns a rider's earnings, newest first.
func (s *Store) ListEarnings(_ context.Context, riderID string) ([]model.EarningsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.EarningsRecord
	for _, rec := range s.earnings {
		if rec.RiderID == riderID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.less(out[j].ID, out[i].ID) })
	return out, nil
}

// UpdateEarningsStatus moves a record from one status to another.
func (s *Store) UpdateEarningsStatus(_ context.Context, id, from, to string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.earnings[id]
	if !ok {
		return model.ErrNotFound
	}
	if rec.Status != from {
		return model.ErrStateConflict
	}
	rec.Status = to
	rec.UpdatedAt = at
	s.earnings[id] = rec
	return nil
}

// InsertAdjustment stores a new wallet adjustment.
func (s *Store) InsertAdjustment(_ context.Context, a model.WalletAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.adjustments[a.ID]; ok {
		return fmt.Errorf("%w: adjustment %s already exists", model.ErrValidation, a.ID)
	}
	a.ClosesAdjustmentIDs = append([]string(nil), a.ClosesAdjustmentIDs...)
	s.adjustments[a.ID] = a
	s.stamp(a.ID)
	return nil
}

// GetAdjustment loads an adjustment by id.
func (s *Store) GetAdjustment(_ context.Context, id string) (model.WalletAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.adjustments[id]
	if !ok {
		return model.WalletAdjustment{}, model.ErrNotFound
	}
	return a, nil
}

// CloseAdjustment moves an active adjustment to a terminal status.
func (s *Store) CloseAdjustment(_ context.Context, id, to, notes string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.adjustments[id]
	if !ok {
		return model.ErrNotFound
	}
	if a.Status != model.AdjustmentActive {
		return model.ErrNotActive
	}
	a.Status = to
	a.SettlementNotes = notes
	if to == model.AdjustmentSettled {
		settled := at
		a.SettledAt = &settled
	}
	s.adjustments[id] = a
	return nil
}

// ListAdjustments returns a rider's adjustments, newest first.
func (s *Store) ListAdjustments(_ context.Context, riderID string) ([]model.WalletAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WalletAdjustment
	for _, a := range s.adjustments {
		if a.RiderID == riderID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.less(out[j].ID, out[i].ID) })
	return out, nil
}

func (s *Store) totals(riderID string) model.LedgerTotals {
	var t model.LedgerTotals
	for _, rec := range s.earnings {
		if rec.RiderID == riderID && (rec.Status == model.EarningsPending || rec.Status == model.EarningsCompleted) {
			t.Earnings += rec.FinalAmount
		}
	}
	for _, w := range s.withdrawals {
		if w.RiderID != riderID {
			continue
		}
		switch w.Status {
		case model.WithdrawalPending, model.WithdrawalApproved, model.WithdrawalPaid:
			t.Withdrawals += w.Amount
		}
	}
	for _, a := range s.adjustments {
		if a.RiderID != riderID || a.Status != model.AdjustmentActive {
			continue
		}
		if model.IsCreditAdjustment(a.Type) {
			t.Credits += a.Amount
		} else {
			t.Debits += a.Amount
		}
	}
	return t
}

// LedgerTotals sums the rider's ledger.
func (s *Store) LedgerTotals(_ context.Context, riderID string) (model.LedgerTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.riders[riderID]; !ok {
		return model.LedgerTotals{}, model.ErrNotFound
	}
	return s.totals(riderID), nil
}

// CreateWithdrawal inserts w after check accepts the rider's current totals.
// The check and the insert happen under one lock.
func (s *Store) CreateWithdrawal(_ context.Context, w model.WithdrawalRequest, check func(model.LedgerTotals) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.riders[w.RiderID]; !ok {
		return model.ErrNotFound
	}
	if err := check(s.totals(w.RiderID)); err != nil {
		return err
	}
	s.withdrawals[w.ID] = w
	s.stamp(w.ID)
	return nil
}

// GetWithdrawal loads a withdrawal by id.
func (s *Store) GetWithdrawal(_ context.Context, id string) (model.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return model.WithdrawalRequest{}, model.ErrNotFound
	}
	return w, nil
}

// UpdateWithdrawalStatus applies u when the withdrawal is still in u.From.
func (s *Store) UpdateWithdrawalStatus(_ context.Context, u model.WithdrawalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[u.ID]
	if !ok {
		return model.ErrNotFound
	}
	if w.Status != u.From {
		return model.ErrStateConflict
	}
	w.Status = u.To
	if u.AdminNotes != "" {
		w.AdminNotes = u.AdminNotes
	}
	if u.PaymentMethod != "" {
		w.PaymentMethod = u.PaymentMethod
	}
	if u.PaymentReference != "" {
		w.PaymentReference = u.PaymentReference
	}
	processed := u.At
	w.ProcessedAt = &processed
	w.UpdatedAt = u.At
	s.withdrawals[u.ID] = w
	return nil
}

// ListWithdrawals returns a rider's withdrawals, newest first.
func (s *Store) ListWithdrawals(_ context.Context, riderID string) ([]model.WithdrawalRequest, error) {
	return s.filterWithdrawals(func(w model.WithdrawalRequest) bool { return w.RiderID == riderID }, 0, true), nil
}

// ListWithdrawalsByStatus returns withdrawals in status, oldest first.
func (s *Store) ListWithdrawalsByStatus(_ context.Context, status string, limit int) ([]model.WithdrawalRequest, error) {
	return s.filterWithdrawals(func(w model.WithdrawalRequest) bool { return w.Status == status }, limit, false), nil
}

func (s *Store) filterWithdrawals(keep func(model.WithdrawalRequest) bool, limit int, newestFirst bool) []model.WithdrawalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WithdrawalRequest
	for _, w := range s.withdrawals {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return s.less(out[j].ID, out[i].ID)
		}
		return s.less(out[i].ID, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
