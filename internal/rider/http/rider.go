package http

import (
	"net/http"
	"strings"

	"deliveryBack/internal/rider/intake"
	"deliveryBack/internal/rider/model"
)

type presenceRequest struct {
	Online bool `json:"online"`
}

func (s *Server) handleSetPresence(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	var req presenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	if err := s.svc.Presence.SetOnline(ctx, id, req.Online); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"online": req.Online})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	online, err := s.svc.Presence.IsOnline(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"online": online})
}

type locationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	if err := s.svc.Presence.ReportLocation(ctx, id, req.Lat, req.Lon); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handlePushToken(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	var req pushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	if err := s.svc.Roster.SetPushToken(ctx, id, req.Token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	rider, err := s.svc.Roster.Get(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rider)
}

type summaryResponse struct {
	intake.Counts
	Balance model.Balance `json:"balance"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	counts, err := s.svc.Intake.Counts(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	balance, err := s.svc.Ledger.Balance(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Counts: counts, Balance: balance})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	list, err := s.svc.Intake.ListPending(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	list, err := s.svc.Intake.ListActive(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	list, err := s.svc.Intake.ListCompleted(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	req, err := s.svc.Intake.Claim(ctx, pathID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type advanceRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	var body advanceRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.From == "" || body.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	req, err := s.svc.Lifecycle.Advance(ctx, pathID(r), id, body.From, body.To)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type cancelRequest struct {
	From   string `json:"from"`
	Reason string `json:"reason"`
}

func (s *Server) handleRiderCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	var body cancelRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	req, err := s.svc.Lifecycle.Cancel(ctx, pathID(r), id, body.From, strings.TrimSpace(body.Reason))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	history, err := s.svc.Lifecycle.History(ctx, pathID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	balance, err := s.svc.Ledger.Balance(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	list, err := s.svc.Ledger.ListEarnings(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	list, err := s.svc.Ledger.ListAdjustments(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleWithdrawals(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	list, err := s.svc.Withdrawal.List(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type withdrawalRequest struct {
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := s.riderID(w, r)
	if !ok {
		return
	}
	var body withdrawalRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	wr, err := s.svc.Withdrawal.Request(ctx, id, body.Amount, body.PaymentMethod)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}
