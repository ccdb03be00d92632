package intake_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/intake"
	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/memstore"
	"deliveryBack/internal/rider/model"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

type countingActivity struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *countingActivity) OnActivity(_ context.Context, riderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = make(map[string]int)
	}
	c.n[riderID]++
}

func newRequest() model.DeliveryRequest {
	return model.DeliveryRequest{
		Kind:        model.KindOrder,
		Pickup:      model.Location{Address: "Zhibek Zholy 50", Lat: 43.2601, Lon: 76.9457},
		Dropoff:     model.Location{Address: "Satpayev 90", Lat: 43.2367, Lon: 76.9127},
		TotalAmount: 5400,
		Order:       &model.OrderPayload{Items: []model.OrderItem{{Name: "lagman", Quantity: 1, Price: 5400}}},
	}
}

func setup(t *testing.T) (*memstore.Store, *events.Bus, *countingActivity, *intake.Service) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	for _, r := range []model.Rider{
		{ID: "r1", Name: "Aru", Phone: "+77011", VehicleType: model.VehicleFoot, RegistrationStatus: model.RegistrationVerified, Online: true},
		{ID: "r2", Name: "Bek", Phone: "+77012", VehicleType: model.VehicleCar, RegistrationStatus: model.RegistrationVerified, Online: true},
		{ID: "off", Name: "Off", Phone: "+77013", VehicleType: model.VehicleCar, RegistrationStatus: model.RegistrationVerified},
		{ID: "new", Name: "New", Phone: "+77014", VehicleType: model.VehicleCar, RegistrationStatus: model.RegistrationPending, Online: true},
	} {
		require.NoError(t, store.CreateRider(ctx, r))
	}
	bus := events.NewBus(8, testLogger{})
	activity := &countingActivity{}
	return store, bus, activity, intake.NewService(store, bus, activity, intake.Config{}, testLogger{})
}

func TestSubmitPublishesNewPending(t *testing.T) {
	_, bus, _, svc := setup(t)
	pending, cancel := bus.Subscribe(events.TopicNewPending)
	defer cancel()

	req, err := svc.Submit(context.Background(), newRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, lifecycle.StatusPlaced, req.Status)
	assert.False(t, req.Assigned())

	evt := <-pending
	assert.Equal(t, req.ID, evt.RequestID)
	require.NotNil(t, evt.Request)
	assert.Equal(t, int64(5400), evt.Request.TotalAmount)

	bad := newRequest()
	bad.Order = nil
	_, err = svc.Submit(context.Background(), bad)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestListPendingEligibility(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := setup(t)
	_, err := svc.Submit(ctx, newRequest())
	require.NoError(t, err)

	list, err := svc.ListPending(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListPending(ctx, "off")
	assert.ErrorIs(t, err, model.ErrNotEligible)
	_, err = svc.ListPending(ctx, "new")
	assert.ErrorIs(t, err, model.ErrNotEligible)
	_, err = svc.ListPending(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClaimRemovesFromPending(t *testing.T) {
	ctx := context.Background()
	_, bus, activity, svc := setup(t)
	claimed, cancel := bus.Subscribe(events.TopicClaimed)
	defer cancel()

	req, err := svc.Submit(ctx, newRequest())
	require.NoError(t, err)

	got, err := svc.Claim(ctx, req.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.AssignedRider)
	assert.NotNil(t, got.ClaimedAt)
	assert.Equal(t, 1, activity.n["r1"])

	evt := <-claimed
	assert.Equal(t, req.ID, evt.RequestID)
	assert.Equal(t, "r1", evt.RiderID)

	_, err = svc.Claim(ctx, req.ID, "r2")
	assert.ErrorIs(t, err, model.ErrAlreadyClaimed)

	list, err := svc.ListPending(ctx, "r2")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Claim(ctx, "missing", "r2")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = svc.Claim(ctx, req.ID, "off")
	assert.ErrorIs(t, err, model.ErrNotEligible)
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := setup(t)
	req, err := svc.Submit(ctx, newRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		rider := "r1"
		if i%2 == 1 {
			rider = "r2"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Claim(ctx, req.ID, rider)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, model.ErrAlreadyClaimed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestReadModels(t *testing.T) {
	ctx := context.Background()
	store, _, _, svc := setup(t)
	a, err := svc.Submit(ctx, newRequest())
	require.NoError(t, err)
	b, err := svc.Submit(ctx, newRequest())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, newRequest())
	require.NoError(t, err)

	_, err = svc.Claim(ctx, a.ID, "r1")
	require.NoError(t, err)
	_, err = svc.Claim(ctx, b.ID, "r1")
	require.NoError(t, err)
	require.NoError(t, store.TransitionRequest(ctx, model.Transition{
		RequestID: b.ID, RiderID: "r1", From: lifecycle.StatusPlaced, To: lifecycle.StatusPreparing,
	}))
	require.NoError(t, store.TransitionRequest(ctx, model.Transition{
		RequestID: b.ID, RiderID: "r1", From: lifecycle.StatusPreparing, To: lifecycle.StatusOnWay,
	}))
	_, err = store.CompleteDelivery(ctx, model.Transition{
		RequestID: b.ID, RiderID: "r1", From: lifecycle.StatusOnWay, To: lifecycle.StatusDelivered,
	}, func(req model.DeliveryRequest) (model.EarningsRecord, error) {
		return model.EarningsRecord{ID: "e1", RiderID: "r1", DeliveryID: req.ID, FinalAmount: 100, Status: model.EarningsPending}, nil
	})
	require.NoError(t, err)

	active, err := svc.ListActive(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	done, err := svc.ListCompleted(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, b.ID, done[0].ID)

	counts, err := svc.Counts(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, intake.Counts{Online: true, Pending: 1, Active: 1}, counts)

	counts, err = svc.Counts(ctx, "off")
	require.NoError(t, err)
	assert.Equal(t, intake.Counts{Online: false, Pending: 0, Active: 0}, counts)
}
