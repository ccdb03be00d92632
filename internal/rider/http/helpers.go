package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"deliveryBack/internal/rider/model"
)

const requestTimeout = 5 * time.Second

// Roles carried by authenticated actors.
const (
	RoleRider = "rider"
	RoleAdmin = "admin"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   string
	Role string
}

type ctxKey string

const ctxActorKey ctxKey = "rider_actor"

// WithActor attaches the authenticated actor to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, a)
}

// ActorFromContext returns the actor set by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxActorKey).(Actor)
	if !ok || a.ID == "" {
		return Actor{}, false
	}
	return a, true
}

// IdentifyActor resolves the websocket client id from the request context.
func IdentifyActor(r *http.Request) (string, bool) {
	a, ok := ActorFromContext(r.Context())
	return a.ID, ok
}

func parseLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	l, err := strconv.Atoi(v)
	if err != nil || l <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	return l, nil
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return f, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid json body")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

// statusFor maps a service error to its HTTP status. Internal failures are
// reported without detail.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, model.ErrAlreadyClaimed):
		return http.StatusConflict, "request already claimed"
	case errors.Is(err, model.ErrStateConflict),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrNotActive):
		return http.StatusConflict, err.Error()
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, model.ErrRiderNotEligible),
		errors.Is(err, model.ErrNotEligible),
		errors.Is(err, model.ErrNotAssignedRider):
		return http.StatusForbidden, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorf("rider http: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, msg)
}
