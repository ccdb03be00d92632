package rider

import (
	"context"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
	"golang.org/x/sync/errgroup"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/geo"
	riderhttp "deliveryBack/internal/rider/http"
	"deliveryBack/internal/rider/intake"
	"deliveryBack/internal/rider/ledger"
	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/presence"
	"deliveryBack/internal/rider/push"
	"deliveryBack/internal/rider/roster"
	"deliveryBack/internal/rider/statement"
	"deliveryBack/internal/rider/withdrawal"
	"deliveryBack/internal/rider/ws"
)

// Module is a wired rider subsystem.
type Module struct {
	cfg      Config
	logger   Logger
	bus      *events.Bus
	bridge   *events.RedisBridge
	presence *presence.Manager
	ledger   *ledger.Service
	fanout   *ws.Fanout
	notifier *push.Notifier
	server   *riderhttp.Server
}

// New builds every rider component on top of deps.
func New(deps *Deps) (*Module, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	cfg, logger, store := deps.Config, deps.Logger, deps.Store

	m := &Module{cfg: cfg, logger: logger}
	m.bus = events.NewBus(cfg.EventBuffer, logger)
	if deps.Redis != nil && cfg.EventChannel != "" {
		m.bridge = events.NewRedisBridge(deps.Redis, cfg.EventChannel, m.bus, logger)
	}

	var (
		locator    *geo.RiderLocator
		presLocate presence.Locator
	)
	if deps.Redis != nil {
		locator = geo.NewRiderLocator(deps.Redis, logger)
		presLocate = locator
	}

	m.presence = presence.NewManager(store, presLocate, m.bus, deps.Clock, presence.Config{
		InactivityTimeout: cfg.InactivityTimeout,
		LocationInterval:  cfg.LocationInterval,
		City:              cfg.City,
	}, logger)

	m.ledger = ledger.NewService(store, ledger.Config{Pricing: cfg.Pricing, Retry: cfg.Retry}, m.bus, logger)

	svc := riderhttp.Services{
		Intake: intake.NewService(store, m.bus, m.presence, intake.Config{
			PendingLimit:   cfg.PendingLimit,
			CompletedLimit: cfg.CompletedLimit,
		}, logger),
		Lifecycle:  lifecycle.NewService(store, m.ledger, m.bus, m.presence, logger),
		Presence:   m.presence,
		Ledger:     m.ledger,
		Withdrawal: withdrawal.NewProcessor(store, m.bus, logger),
		Roster:     roster.NewService(store, m.presence, logger),
		Locator:    locator,
		RiderHub:   ws.NewRiderHub(riderhttp.IdentifyActor, logger),
		AdminHub:   ws.NewAdminHub(riderhttp.IdentifyActor, logger),
	}
	if deps.Uploader != nil {
		svc.Statements = statement.NewExporter(store, deps.Uploader, cfg.StatementFolder, logger)
	}
	if deps.Push != nil {
		m.notifier = push.NewNotifier(deps.Push, store, logger)
	}
	m.fanout = ws.NewFanout(svc.RiderHub, svc.AdminHub, m.presence, logger)

	m.server = riderhttp.NewServer(riderhttp.Config{
		City:         cfg.City,
		NearbyRadius: cfg.NearbyRadius,
	}, logger, svc)
	return m, nil
}

// Register mounts the rider HTTP and websocket routes.
func (m *Module) Register(mux *pat.PatternServeMux, riderChain, adminChain alice.Chain) {
	m.server.Register(mux, riderChain, adminChain)
}

// Run starts the background workers and blocks until ctx is cancelled or
// one of them fails. Presence timers are stopped on return.
func (m *Module) Run(ctx context.Context) error {
	defer m.presence.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.fanout.Run(ctx, m.bus) })
	if m.bridge != nil {
		g.Go(func() error { return m.bridge.Run(ctx) })
	}
	if m.notifier != nil {
		g.Go(func() error { return m.notifier.Run(ctx, m.bus) })
	}
	g.Go(func() error {
		m.ledger.RunReconciler(ctx, m.cfg.ReconcileInterval)
		return nil
	})

	m.logger.Infof("rider module: running (city=%s, inactivity=%s)", m.cfg.City, m.cfg.InactivityTimeout)
	return g.Wait()
}
