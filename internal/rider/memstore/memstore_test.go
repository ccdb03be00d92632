package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/model"
)

func seedRequest(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.InsertRequest(context.Background(), model.DeliveryRequest{
		ID: id, Kind: model.KindErrand, Status: lifecycle.StatusPlaced,
		Errand: &model.ErrandPayload{Description: "deliver"},
	}))
}

func TestConcurrentClaimsBindOneRider(t *testing.T) {
	s := New()
	seedRequest(t, s, "req-1")

	const riders = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0
	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.ClaimRequest(context.Background(), "req-1", string(rune('a'+i)), time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, model.ErrAlreadyClaimed):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, riders-1, losses)
}

func TestClaimMissingRequest(t *testing.T) {
	s := New()
	err := s.ClaimRequest(context.Background(), "nope", "r1", time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTransitionRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRequest(t, s, "req-1")
	require.NoError(t, s.ClaimRequest(ctx, "req-1", "r1", time.Now()))

	tr := model.Transition{RequestID: "req-1", RiderID: "r1", From: lifecycle.StatusPlaced, To: lifecycle.StatusPreparing, At: time.Now()}
	require.NoError(t, s.TransitionRequest(ctx, tr))
	assert.ErrorIs(t, s.TransitionRequest(ctx, tr), model.ErrStateConflict)

	other := model.Transition{RequestID: "req-1", RiderID: "r2", From: lifecycle.StatusPreparing, To: lifecycle.StatusOnWay, At: time.Now()}
	assert.ErrorIs(t, s.TransitionRequest(ctx, other), model.ErrStateConflict)
}

func TestCompleteDeliveryRollsBackOnEarningsFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRequest(t, s, "req-1")
	require.NoError(t, s.ClaimRequest(ctx, "req-1", "r1", time.Now()))
	for _, step := range [][2]string{
		{lifecycle.StatusPlaced, lifecycle.StatusPreparing},
		{lifecycle.StatusPreparing, lifecycle.StatusOnWay},
	} {
		require.NoError(t, s.TransitionRequest(ctx, model.Transition{RequestID: "req-1", RiderID: "r1", From: step[0], To: step[1], At: time.Now()}))
	}

	tr := model.Transition{RequestID: "req-1", RiderID: "r1", From: lifecycle.StatusOnWay, To: lifecycle.StatusDelivered, At: time.Now()}
	boom := errors.New("ledger down")
	_, err := s.CompleteDelivery(ctx, tr, func(model.DeliveryRequest) (model.EarningsRecord, error) {
		return model.EarningsRecord{}, boom
	})
	require.ErrorIs(t, err, boom)

	req, err := s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusOnWay, req.Status)

	rec, err := s.CompleteDelivery(ctx, tr, func(r model.DeliveryRequest) (model.EarningsRecord, error) {
		return model.EarningsRecord{ID: "e1", RiderID: "r1", DeliveryID: r.ID, FinalAmount: 206, Status: model.EarningsPending}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(206), rec.FinalAmount)

	req, err = s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusDelivered, req.Status)
	assert.NotNil(t, req.DeliveredAt)
}

func TestInsertEarningsIsIdempotentPerDelivery(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, created, err := s.InsertEarnings(ctx, model.EarningsRecord{ID: "e1", DeliveryID: "d1", FinalAmount: 100})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.InsertEarnings(ctx, model.EarningsRecord{ID: "e2", DeliveryID: "d1", FinalAmount: 999})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)
}

func TestCloseAdjustmentOnlyFromActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertAdjustment(ctx, model.WalletAdjustment{ID: "a1", RiderID: "r1", Type: model.AdjustmentBonus, Amount: 10, Status: model.AdjustmentActive}))
	require.NoError(t, s.CloseAdjustment(ctx, "a1", model.AdjustmentSettled, "paid in cash", time.Now()))
	assert.ErrorIs(t, s.CloseAdjustment(ctx, "a1", model.AdjustmentCancelled, "", time.Now()), model.ErrNotActive)
	assert.ErrorIs(t, s.CloseAdjustment(ctx, "missing", model.AdjustmentCancelled, "", time.Now()), model.ErrNotFound)
}

func TestCreateRiderRejectsDuplicatePhone(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateRider(ctx, model.Rider{ID: "r1", Name: "A", Phone: "+77010000001", VehicleType: model.VehicleCar}))

	err := s.CreateRider(ctx, model.Rider{ID: "r2", Name: "B", Phone: "+77010000001", VehicleType: model.VehicleFoot})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = s.GetRider(ctx, "r2")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInsertEarningsCountsTripOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateRider(ctx, model.Rider{ID: "r1", Name: "A", Phone: "+77010000001", VehicleType: model.VehicleCar}))

	rec := model.EarningsRecord{ID: "e1", RiderID: "r1", DeliveryID: "d1", FinalAmount: 300, Status: model.EarningsPending}
	_, created, err := s.InsertEarnings(ctx, rec)
	require.NoError(t, err)
	require.True(t, created)

	rec.ID = "e2"
	_, created, err = s.InsertEarnings(ctx, rec)
	require.NoError(t, err)
	assert.False(t, created)

	r, err := s.GetRider(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.TripCount)
}
