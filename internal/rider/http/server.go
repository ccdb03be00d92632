package http

import (
	"context"
	"net/http"
	"time"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"

	"deliveryBack/internal/rider/geo"
	"deliveryBack/internal/rider/intake"
	"deliveryBack/internal/rider/ledger"
	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/presence"
	"deliveryBack/internal/rider/roster"
	"deliveryBack/internal/rider/statement"
	"deliveryBack/internal/rider/withdrawal"
	"deliveryBack/internal/rider/ws"
)

// Config is the subset of runtime configuration required by the HTTP handlers.
type Config struct {
	City         string
	NearbyRadius float64
	NearbyLimit  int
}

// Logger captures the logging contract required by the server.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Services are the rider components the handlers call into. Statements,
// Locator and the hubs are optional.
type Services struct {
	Intake     *intake.Service
	Lifecycle  *lifecycle.Service
	Presence   *presence.Manager
	Ledger     *ledger.Service
	Withdrawal *withdrawal.Processor
	Roster     *roster.Service
	Statements *statement.Exporter
	Locator    *geo.RiderLocator
	RiderHub   *ws.RiderHub
	AdminHub   *ws.AdminHub
}

// Server provides HTTP handlers for the rider domain.
type Server struct {
	cfg    Config
	logger Logger
	svc    Services
}

// NewServer constructs a Server instance.
func NewServer(cfg Config, logger Logger, svc Services) *Server {
	if cfg.NearbyRadius <= 0 {
		cfg.NearbyRadius = 3000
	}
	if cfg.NearbyLimit <= 0 {
		cfg.NearbyLimit = 20
	}
	return &Server{cfg: cfg, logger: logger, svc: svc}
}

// Register mounts rider routes on the mux. riderChain and adminChain must
// authenticate the caller and put an Actor into the request context.
func (s *Server) Register(mux *pat.PatternServeMux, riderChain, adminChain alice.Chain) {
	rider := riderChain.Append(s.trackActivity)

	mux.Post("/api/v1/rider/presence", rider.ThenFunc(s.handleSetPresence))
	mux.Post("/api/v1/rider/activity", rider.ThenFunc(s.handleActivity))
	mux.Post("/api/v1/rider/location", rider.ThenFunc(s.handleLocation))
	mux.Post("/api/v1/rider/push_token", rider.ThenFunc(s.handlePushToken))
	mux.Get("/api/v1/rider/me", rider.ThenFunc(s.handleMe))
	mux.Get("/api/v1/rider/summary", rider.ThenFunc(s.handleSummary))

	mux.Get("/api/v1/rider/requests/pending", rider.ThenFunc(s.handlePending))
	mux.Get("/api/v1/rider/requests/active", rider.ThenFunc(s.handleActive))
	mux.Get("/api/v1/rider/requests/completed", rider.ThenFunc(s.handleCompleted))
	mux.Post("/api/v1/rider/requests/:id/claim", rider.ThenFunc(s.handleClaim))
	mux.Post("/api/v1/rider/requests/:id/advance", rider.ThenFunc(s.handleAdvance))
	mux.Post("/api/v1/rider/requests/:id/cancel", rider.ThenFunc(s.handleRiderCancel))
	mux.Get("/api/v1/rider/requests/:id/history", rider.ThenFunc(s.handleHistory))

	mux.Get("/api/v1/rider/balance", rider.ThenFunc(s.handleBalance))
	mux.Get("/api/v1/rider/earnings", rider.ThenFunc(s.handleEarnings))
	mux.Get("/api/v1/rider/adjustments", rider.ThenFunc(s.handleAdjustments))
	mux.Get("/api/v1/rider/withdrawals", rider.ThenFunc(s.handleWithdrawals))
	mux.Post("/api/v1/rider/withdrawals", rider.ThenFunc(s.handleRequestWithdrawal))

	mux.Post("/api/v1/admin/riders", adminChain.ThenFunc(s.handleRegisterRider))
	mux.Get("/api/v1/admin/riders/nearby", adminChain.ThenFunc(s.handleNearby))
	mux.Get("/api/v1/admin/riders/:id", adminChain.ThenFunc(s.handleGetRider))
	mux.Post("/api/v1/admin/riders/:id/status", adminChain.ThenFunc(s.handleRiderStatus))
	mux.Post("/api/v1/admin/riders/:id/commission", adminChain.ThenFunc(s.handleRiderCommission))
	mux.Get("/api/v1/admin/riders/:id/balance", adminChain.ThenFunc(s.handleRiderBalance))
	mux.Post("/api/v1/admin/riders/:id/statement", adminChain.ThenFunc(s.handleStatement))

	mux.Post("/api/v1/admin/requests", adminChain.ThenFunc(s.handleSubmit))
	mux.Post("/api/v1/admin/requests/:id/cancel", adminChain.ThenFunc(s.handleAdminCancel))
	mux.Get("/api/v1/admin/requests/:id/history", adminChain.ThenFunc(s.handleAdminHistory))

	mux.Post("/api/v1/admin/adjustments", adminChain.ThenFunc(s.handleCreateAdjustment))
	mux.Post("/api/v1/admin/adjustments/:id/settle", adminChain.ThenFunc(s.handleSettleAdjustment))
	mux.Post("/api/v1/admin/adjustments/:id/cancel", adminChain.ThenFunc(s.handleCancelAdjustment))
	mux.Post("/api/v1/admin/earnings/:id/status", adminChain.ThenFunc(s.handleEarningsStatus))
	mux.Get("/api/v1/admin/withdrawals", adminChain.ThenFunc(s.handleWithdrawalQueue))
	mux.Post("/api/v1/admin/withdrawals/:id/process", adminChain.ThenFunc(s.handleProcessWithdrawal))
	mux.Post("/api/v1/admin/ledger/reconcile", adminChain.ThenFunc(s.handleReconcile))

	if s.svc.RiderHub != nil {
		mux.Get("/ws/rider", riderChain.ThenFunc(s.svc.RiderHub.ServeWS))
	}
	if s.svc.AdminHub != nil {
		mux.Get("/ws/admin", adminChain.ThenFunc(s.svc.AdminHub.ServeWS))
	}
}

// trackActivity restarts the rider's inactivity countdown after every
// authenticated rider request.
func (s *Server) trackActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		actor, ok := ActorFromContext(r.Context())
		if !ok || s.svc.Presence == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()
		s.svc.Presence.OnActivity(ctx, actor.ID)
	})
}

func (s *Server) riderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return actor.ID, true
}

func pathID(r *http.Request) string {
	return r.URL.Query().Get(":id")
}
