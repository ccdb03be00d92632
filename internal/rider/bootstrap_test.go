package rider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryBack/internal/rider"
	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/memstore"
	"deliveryBack/internal/rider/model"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

// flakyStore drops the connection on the first earnings insert.
type flakyStore struct {
	*memstore.Store
	inserts int
	failure error
}

func (s *flakyStore) InsertEarnings(ctx context.Context, rec model.EarningsRecord) (model.EarningsRecord, bool, error) {
	s.inserts++
	if s.inserts == 1 {
		return model.EarningsRecord{}, false, s.failure
	}
	return s.Store.InsertEarnings(ctx, rec)
}

func seedDelivered(t *testing.T, store *memstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateRider(ctx, model.Rider{
		ID: "r1", Name: "Aigerim", Phone: "+77015551111", VehicleType: model.VehicleCar,
		RegistrationStatus: model.RegistrationVerified,
	}))
	now := time.Now().UTC()
	require.NoError(t, store.InsertRequest(ctx, model.DeliveryRequest{
		ID: "d1", Kind: model.KindErrand, Status: lifecycle.StatusDelivered, AssignedRider: "r1",
		Pickup:  model.Location{Lat: 51.128, Lon: 71.430},
		Dropoff: model.Location{Lat: 51.160, Lon: 71.470},
		Errand:  &model.ErrandPayload{Description: "documents"},
		CreatedAt: now, UpdatedAt: now, DeliveredAt: &now,
	}))
}

func reconcile(t *testing.T, store rider.Store) *httptest.ResponseRecorder {
	t.Helper()
	cfg := rider.DefaultConfig()
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	cfg.Retry.Retryable = nil

	m, err := rider.New(&rider.Deps{Store: store, Logger: testLogger{}, Config: cfg})
	require.NoError(t, err)
	mux := pat.New()
	m.Register(mux, alice.New(), alice.New())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/ledger/reconcile", nil))
	return rec
}

func TestTransientEarningsFailureIsRetried(t *testing.T) {
	mem := memstore.New()
	seedDelivered(t, mem)
	store := &flakyStore{Store: mem, failure: errors.New("write tcp 10.0.0.2:3306: connection reset by peer")}

	rec := reconcile(t, store)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"recorded":1}`, rec.Body.String())
	assert.Equal(t, 2, store.inserts)

	earnings, err := mem.ListEarnings(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, earnings, 1)

	r, err := mem.GetRider(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.TripCount)
}

func TestPermanentEarningsFailureIsNotRetried(t *testing.T) {
	mem := memstore.New()
	seedDelivered(t, mem)
	store := &flakyStore{Store: mem, failure: errors.New("column final_amount out of range")}

	rec := reconcile(t, store)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, store.inserts)
}

func TestDepsValidate(t *testing.T) {
	var nilDeps *rider.Deps
	assert.Error(t, nilDeps.Validate())

	assert.ErrorContains(t, (&rider.Deps{Logger: testLogger{}, Config: rider.DefaultConfig()}).Validate(), "Store")
	assert.ErrorContains(t, (&rider.Deps{Store: memstore.New(), Config: rider.DefaultConfig()}).Validate(), "Logger")

	cfg := rider.DefaultConfig()
	cfg.InactivityTimeout = 0
	assert.ErrorContains(t, (&rider.Deps{Store: memstore.New(), Logger: testLogger{}, Config: cfg}).Validate(), "inactivity")

	cfg = rider.DefaultConfig()
	cfg.City = "  Almaty "
	deps := &rider.Deps{Store: memstore.New(), Logger: testLogger{}, Config: cfg}
	require.NoError(t, deps.Validate())
	assert.Equal(t, "almaty", deps.Config.City)
}

func TestModuleServesAndStops(t *testing.T) {
	m, err := rider.New(&rider.Deps{Store: memstore.New(), Logger: testLogger{}, Config: rider.DefaultConfig()})
	require.NoError(t, err)

	mux := pat.New()
	m.Register(mux, alice.New(), alice.New())

	body := `{"name":"Timur","phone":"+77015550000","vehicle_type":"bicycle"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/riders", strings.NewReader(body)))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rider/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/riders/x/statement", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("module did not stop")
	}
}
