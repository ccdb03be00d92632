package http

import (
	"net/http"
	"strings"

	"deliveryBack/internal/rider/ledger"
	"deliveryBack/internal/rider/model"
	"deliveryBack/internal/rider/withdrawal"
)

func (s *Server) handleRegisterRider(w http.ResponseWriter, r *http.Request) {
	var body model.Rider
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	rider, err := s.svc.Roster.Register(ctx, body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rider)
}

func (s *Server) handleGetRider(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	rider, err := s.svc.Roster.Get(ctx, pathID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rider)
}

type riderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleRiderStatus(w http.ResponseWriter, r *http.Request) {
	var body riderStatusRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	rider, err := s.svc.Roster.SetRegistrationStatus(ctx, pathID(r), body.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rider)
}

type commissionRequest struct {
	Rate float64 `json:"commission_rate"`
}

func (s *Server) handleRiderCommission(w http.ResponseWriter, r *http.Request) {
	var body commissionRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	rider, err := s.svc.Roster.SetCommissionRate(ctx, pathID(r), body.Rate)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rider)
}

func (s *Server) handleRiderBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	id := pathID(r)
	if _, err := s.svc.Roster.Get(ctx, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	balance, err := s.svc.Ledger.Balance(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	if s.svc.Statements == nil {
		writeError(w, http.StatusServiceUnavailable, "statement export is not configured")
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	res, err := s.svc.Statements.Export(ctx, pathID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if s.svc.Locator == nil {
		writeError(w, http.StatusServiceUnavailable, "rider locator is not configured")
		return
	}
	lat, err := parseFloatParam(r, "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lon, err := parseFloatParam(r, "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	radius := s.cfg.NearbyRadius
	if r.URL.Query().Get("radius") != "" {
		if radius, err = parseFloatParam(r, "radius"); err != nil || radius <= 0 {
			writeError(w, http.StatusBadRequest, "invalid radius")
			return
		}
	}
	limit, err := parseLimit(r, s.cfg.NearbyLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	riders, err := s.svc.Locator.Nearby(ctx, lon, lat, radius, limit, s.cfg.City)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, riders)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body model.DeliveryRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	req, err := s.svc.Intake.Submit(ctx, body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleAdminCancel(w http.ResponseWriter, r *http.Request) {
	var body cancelRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	req, err := s.svc.Lifecycle.Cancel(ctx, pathID(r), "", body.From, strings.TrimSpace(body.Reason))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var in ledger.AdjustmentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if actor, ok := ActorFromContext(r.Context()); ok {
		in.CreatedBy = actor.ID
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	adj, err := s.svc.Ledger.CreateAdjustment(ctx, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, adj)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleSettleAdjustment(w http.ResponseWriter, r *http.Request) {
	var body notesRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	adj, err := s.svc.Ledger.SettleAdjustment(ctx, pathID(r), body.Notes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

func (s *Server) handleCancelAdjustment(w http.ResponseWriter, r *http.Request) {
	var body notesRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	adj, err := s.svc.Ledger.CancelAdjustment(ctx, pathID(r), body.Notes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

type earningsStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleEarningsStatus(w http.ResponseWriter, r *http.Request) {
	var body earningsStatusRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	rec, err := s.svc.Ledger.MarkEarnings(ctx, pathID(r), body.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleWithdrawalQueue(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = model.WithdrawalPending
	}
	limit, err := parseLimit(r, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	list, err := s.svc.Withdrawal.ListByStatus(ctx, status, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	var in withdrawal.ProcessInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	wr, err := s.svc.Withdrawal.Process(ctx, pathID(r), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	n, err := s.svc.Ledger.Reconcile(ctx)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"recorded": n})
}

func (s *Server) handleAdminHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	history, err := s.svc.Lifecycle.History(ctx, pathID(r), "")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
