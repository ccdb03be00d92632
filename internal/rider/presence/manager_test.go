package presence_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/memstore"
	"deliveryBack/internal/rider/model"
	"deliveryBack/internal/rider/presence"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) presence.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every callback that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

type locatorCall struct {
	op       string
	riderID  string
	lon, lat float64
}

type stubLocator struct {
	mu    sync.Mutex
	calls []locatorCall
}

func (l *stubLocator) UpdateRider(_ context.Context, riderID string, lon, lat float64, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, locatorCall{op: "update", riderID: riderID, lon: lon, lat: lat})
	return nil
}

func (l *stubLocator) GoOffline(_ context.Context, riderID, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, locatorCall{op: "offline", riderID: riderID})
	return nil
}

func (l *stubLocator) ops() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.op)
	}
	return out
}

type fixture struct {
	store   *memstore.Store
	clock   *fakeClock
	locator *stubLocator
	bus     *events.Bus
	mgr     *presence.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.CreateRider(ctx, model.Rider{
		ID: "r1", Name: "Dana", Phone: "+77010000001", VehicleType: model.VehicleBicycle,
		RegistrationStatus: model.RegistrationVerified,
	}))
	require.NoError(t, store.CreateRider(ctx, model.Rider{
		ID: "r2", Name: "Erlan", Phone: "+77010000002", VehicleType: model.VehicleCar,
		RegistrationStatus: model.RegistrationPending,
	}))
	clock := newFakeClock()
	locator := &stubLocator{}
	bus := events.NewBus(8, testLogger{})
	mgr := presence.NewManager(store, locator, bus, clock, presence.Config{
		InactivityTimeout: 5 * time.Minute,
		LocationInterval:  30 * time.Second,
		City:              "almaty",
	}, testLogger{})
	t.Cleanup(mgr.Close)
	return &fixture{store: store, clock: clock, locator: locator, bus: bus, mgr: mgr}
}

func (f *fixture) online(t *testing.T, id string) bool {
	t.Helper()
	online, err := f.mgr.IsOnline(context.Background(), id)
	require.NoError(t, err)
	return online
}

func TestSetOnlineRequiresVerifiedRider(t *testing.T) {
	f := newFixture(t)
	err := f.mgr.SetOnline(context.Background(), "r2", true)
	require.ErrorIs(t, err, model.ErrRiderNotEligible)
	assert.False(t, f.online(t, "r2"))

	err = f.mgr.SetOnline(context.Background(), "missing", true)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInactivityForcesOffline(t *testing.T) {
	f := newFixture(t)
	offline, cancel := f.bus.Subscribe(events.TopicRiderOffline)
	defer cancel()

	require.NoError(t, f.mgr.SetOnline(context.Background(), "r1", true))
	assert.True(t, f.online(t, "r1"))
	assert.True(t, f.mgr.Online("r1"))

	f.clock.Advance(4*time.Minute + 59*time.Second)
	assert.True(t, f.online(t, "r1"))

	f.clock.Advance(time.Second)
	assert.False(t, f.online(t, "r1"))
	assert.False(t, f.mgr.Online("r1"))

	select {
	case evt := <-offline:
		assert.Equal(t, "r1", evt.RiderID)
		assert.Equal(t, presence.ReasonInactivity, evt.Reason)
	default:
		t.Fatal("expected rider.offline event")
	}
	assert.Contains(t, f.locator.ops(), "offline")
}

func TestActivityResetsCountdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.SetOnline(ctx, "r1", true))

	f.clock.Advance(4 * time.Minute)
	f.mgr.OnActivity(ctx, "r1")
	f.clock.Advance(4 * time.Minute)
	assert.True(t, f.online(t, "r1"), "countdown restarted at minute 4")

	f.clock.Advance(time.Minute)
	assert.False(t, f.online(t, "r1"))
}

func TestActiveDeliverySuspendsCountdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.SetOnline(ctx, "r1", true))

	require.NoError(t, f.store.InsertRequest(ctx, model.DeliveryRequest{
		ID: "d1", Kind: model.KindErrand, Status: lifecycle.StatusPlaced,
		Pickup:  model.Location{Address: "Abay 1", Lat: 43.24, Lon: 76.91},
		Dropoff: model.Location{Address: "Dostyk 5", Lat: 43.25, Lon: 76.95},
		Errand:  &model.ErrandPayload{Description: "pharmacy", EstimatedCost: 3000},
	}))
	require.NoError(t, f.store.ClaimRequest(ctx, "d1", "r1", f.clock.Now()))
	f.mgr.OnActivity(ctx, "r1")

	f.clock.Advance(30 * time.Minute)
	assert.True(t, f.online(t, "r1"))

	// finishing the delivery re-arms the countdown
	require.NoError(t, f.store.TransitionRequest(ctx, model.Transition{
		RequestID: "d1", RiderID: "r1", From: lifecycle.StatusPlaced, To: lifecycle.StatusCancelled, At: f.clock.Now(),
	}))
	f.mgr.OnActivity(ctx, "r1")
	f.clock.Advance(5 * time.Minute)
	assert.False(t, f.online(t, "r1"))
}

func TestGoingOfflineStopsTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offline, cancel := f.bus.Subscribe(events.TopicRiderOffline)
	defer cancel()

	require.NoError(t, f.mgr.SetOnline(ctx, "r1", true))
	require.NoError(t, f.mgr.SetOnline(ctx, "r1", false))
	assert.False(t, f.mgr.Online("r1"))

	f.clock.Advance(10 * time.Minute)
	select {
	case evt := <-offline:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}

func TestReportLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.mgr.ReportLocation(ctx, "r1", 43.24, 76.91)
	require.ErrorIs(t, err, model.ErrNotEligible)

	require.NoError(t, f.mgr.SetOnline(ctx, "r1", true))
	err = f.mgr.ReportLocation(ctx, "r1", 91, 76.91)
	require.ErrorIs(t, err, model.ErrValidation)

	require.NoError(t, f.mgr.ReportLocation(ctx, "r1", 43.24, 76.91))
	f.clock.Advance(30 * time.Second)

	rider, err := f.store.GetRider(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, rider.LastSeenAt)
	assert.InDelta(t, 43.24, rider.LastLat, 1e-9)
	assert.InDelta(t, 76.91, rider.LastLon, 1e-9)
	assert.Equal(t, []string{"update"}, f.locator.ops())

	// nothing new to flush on the next tick
	f.clock.Advance(30 * time.Second)
	assert.Equal(t, []string{"update"}, f.locator.ops())
}

func TestSessionRestoredFromStoredFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetRiderOnline(ctx, "r1", true, f.clock.Now()))
	assert.False(t, f.mgr.Online("r1"))

	f.mgr.OnActivity(ctx, "r1")
	assert.True(t, f.mgr.Online("r1"))

	f.clock.Advance(5 * time.Minute)
	assert.False(t, f.online(t, "r1"))
}
