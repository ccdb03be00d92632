package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/model"
)

const (
	defaultInactivityTimeout = 5 * time.Minute
	defaultLocationInterval  = 15 * time.Second
	callbackTimeout          = 5 * time.Second

	// ReasonInactivity is attached to rider.offline events raised by the timer.
	ReasonInactivity = "inactivity"
)

// Config tunes the presence timers.
type Config struct {
	InactivityTimeout time.Duration
	LocationInterval  time.Duration
	City              string
}

// Store is the persistence contract of the manager.
type Store interface {
	GetRider(ctx context.Context, id string) (model.Rider, error)
	SetRiderOnline(ctx context.Context, id string, online bool, at time.Time) error
	UpdateRiderLocation(ctx context.Context, id string, lat, lon float64, at time.Time) error
	CountActiveDeliveries(ctx context.Context, riderID string) (int, error)
}

// Locator mirrors online riders into a geo index.
type Locator interface {
	UpdateRider(ctx context.Context, riderID string, lon, lat float64, city string) error
	GoOffline(ctx context.Context, riderID, city string) error
}

// Logger is the minimal logging contract of the manager.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

type session struct {
	inactivity Timer
	armed      uint64
	reporter   Timer
	lat, lon   float64
	dirty      bool
}

func (s *session) stop() {
	if s.inactivity != nil {
		s.inactivity.Stop()
		s.inactivity = nil
	}
	if s.reporter != nil {
		s.reporter.Stop()
		s.reporter = nil
	}
}

// Manager owns the presence session of every rider that went online through
// this instance.
type Manager struct {
	store   Store
	locator Locator
	events  events.Publisher
	clock   Clock
	cfg     Config
	logger  Logger

	mu       sync.Mutex
	sessions map[string]*session
	seq      uint64
}

// NewManager constructs a presence manager. locator, pub and clock may be nil.
func NewManager(store Store, locator Locator, pub events.Publisher, clock Clock, cfg Config, logger Logger) *Manager {
	if pub == nil {
		pub = events.Discard{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = defaultInactivityTimeout
	}
	if cfg.LocationInterval <= 0 {
		cfg.LocationInterval = defaultLocationInterval
	}
	return &Manager{
		store:    store,
		locator:  locator,
		events:   pub,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// SetOnline toggles availability. Only verified riders may go online.
func (m *Manager) SetOnline(ctx context.Context, riderID string, online bool) error {
	rider, err := m.store.GetRider(ctx, riderID)
	if err != nil {
		return err
	}
	if online && !rider.Verified() {
		return fmt.Errorf("%w: registration is %s", model.ErrRiderNotEligible, rider.RegistrationStatus)
	}
	if err := m.store.SetRiderOnline(ctx, riderID, online, m.clock.Now()); err != nil {
		return err
	}

	if !online {
		m.endSession(riderID)
		m.removeFromIndex(ctx, riderID)
		m.logger.Infof("rider presence: %s went offline", riderID)
		return nil
	}

	m.mu.Lock()
	m.startSessionLocked(riderID)
	m.mu.Unlock()
	m.logger.Infof("rider presence: %s went online", riderID)
	m.OnActivity(ctx, riderID)
	return nil
}

// IsOnline reads the persisted availability flag.
func (m *Manager) IsOnline(ctx context.Context, riderID string) (bool, error) {
	rider, err := m.store.GetRider(ctx, riderID)
	if err != nil {
		return false, err
	}
	return rider.Online, nil
}

// Online reports whether riderID holds a session on this instance.
func (m *Manager) Online(riderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[riderID]
	return ok
}

// OnActivity restarts the inactivity countdown. A rider with an active
// delivery has no countdown at all.
func (m *Manager) OnActivity(ctx context.Context, riderID string) {
	if _, err := m.ensureSession(ctx, riderID); err != nil {
		if !errors.Is(err, model.ErrNotEligible) {
			m.logger.Errorf("rider presence: activity for %s: %v", riderID, err)
		}
		return
	}
	active, err := m.store.CountActiveDeliveries(ctx, riderID)
	if err != nil {
		m.logger.Errorf("rider presence: count active deliveries for %s: %v", riderID, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[riderID]
	if !ok {
		return
	}
	if sess.inactivity != nil {
		sess.inactivity.Stop()
		sess.inactivity = nil
	}
	if active > 0 {
		return
	}
	m.seq++
	token := m.seq
	sess.armed = token
	sess.inactivity = m.clock.AfterFunc(m.cfg.InactivityTimeout, func() { m.expire(riderID, token) })
}

// ReportLocation records the rider's last position; the reporter flushes it
// on the next tick. Reporting counts as activity.
func (m *Manager) ReportLocation(ctx context.Context, riderID string, lat, lon float64) error {
	if err := (model.Location{Lat: lat, Lon: lon}).Validate(); err != nil {
		return err
	}
	if _, err := m.ensureSession(ctx, riderID); err != nil {
		return err
	}

	m.mu.Lock()
	if sess, ok := m.sessions[riderID]; ok {
		sess.lat, sess.lon, sess.dirty = lat, lon, true
	}
	m.mu.Unlock()

	m.OnActivity(ctx, riderID)
	return nil
}

// Close stops every timer owned by the manager.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		sess.stop()
		delete(m.sessions, id)
	}
}

// ensureSession returns the rider's session, recreating it when the stored
// flag says online but this instance has no state (after a restart).
func (m *Manager) ensureSession(ctx context.Context, riderID string) (*session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[riderID]
	m.mu.Unlock()
	if ok {
		return sess, nil
	}

	rider, err := m.store.GetRider(ctx, riderID)
	if err != nil {
		return nil, err
	}
	if !rider.Online {
		return nil, fmt.Errorf("%w: rider %s is offline", model.ErrNotEligible, riderID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startSessionLocked(riderID), nil
}

func (m *Manager) startSessionLocked(riderID string) *session {
	if sess, ok := m.sessions[riderID]; ok {
		return sess
	}
	sess := &session{}
	m.sessions[riderID] = sess
	m.scheduleReportLocked(riderID, sess)
	return sess
}

func (m *Manager) scheduleReportLocked(riderID string, sess *session) {
	sess.reporter = m.clock.AfterFunc(m.cfg.LocationInterval, func() { m.flushLocation(riderID, sess) })
}

func (m *Manager) endSession(riderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[riderID]; ok {
		sess.stop()
		delete(m.sessions, riderID)
	}
}

func (m *Manager) flushLocation(riderID string, sess *session) {
	m.mu.Lock()
	if m.sessions[riderID] != sess {
		m.mu.Unlock()
		return
	}
	lat, lon, dirty := sess.lat, sess.lon, sess.dirty
	sess.dirty = false
	m.scheduleReportLocked(riderID, sess)
	m.mu.Unlock()

	if !dirty {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	if err := m.store.UpdateRiderLocation(ctx, riderID, lat, lon, m.clock.Now()); err != nil {
		m.logger.Errorf("rider presence: store location for %s: %v", riderID, err)
	}
	if m.locator != nil {
		if err := m.locator.UpdateRider(ctx, riderID, lon, lat, m.cfg.City); err != nil {
			m.logger.Errorf("rider presence: geo update for %s: %v", riderID, err)
		}
	}
}

func (m *Manager) expire(riderID string, token uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	if active, err := m.store.CountActiveDeliveries(ctx, riderID); err == nil && active > 0 {
		return
	}

	m.mu.Lock()
	sess, ok := m.sessions[riderID]
	if !ok || sess.armed != token {
		m.mu.Unlock()
		return
	}
	sess.stop()
	delete(m.sessions, riderID)
	m.mu.Unlock()

	now := m.clock.Now()
	if err := m.store.SetRiderOnline(ctx, riderID, false, now); err != nil {
		m.logger.Errorf("rider presence: force offline %s: %v", riderID, err)
		return
	}
	m.removeFromIndex(ctx, riderID)
	m.logger.Infof("rider presence: %s forced offline after %s of inactivity", riderID, m.cfg.InactivityTimeout)
	m.events.Publish(ctx, events.Event{Topic: events.TopicRiderOffline, RiderID: riderID, Reason: ReasonInactivity, At: now})
}

func (m *Manager) removeFromIndex(ctx context.Context, riderID string) {
	if m.locator == nil {
		return
	}
	if err := m.locator.GoOffline(ctx, riderID, m.cfg.City); err != nil {
		m.logger.Errorf("rider presence: geo remove %s: %v", riderID, err)
	}
}
