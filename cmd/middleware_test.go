package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deliveryBack/internal/auth"
	"deliveryBack/internal/rider"
	riderhttp "deliveryBack/internal/rider/http"
	"deliveryBack/internal/rider/memstore"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T) *application {
	t.Helper()
	logger := zap.NewNop().Sugar()
	module, err := rider.New(&rider.Deps{Store: memstore.New(), Logger: logger, Config: rider.DefaultConfig()})
	require.NoError(t, err)
	tokens, err := auth.NewManager(testSecret)
	require.NoError(t, err)
	return &application{logger: logger, tokens: tokens, rider: module}
}

func signToken(t *testing.T, secret, userID, role string, ttl time.Duration) string {
	t.Helper()
	m, err := auth.NewManager(secret)
	require.NoError(t, err)
	token, err := m.NewAccessToken(userID, role, ttl)
	require.NoError(t, err)
	return token
}

func TestJWTMiddleware(t *testing.T) {
	app := newTestApp(t)

	var seen riderhttp.Actor
	h := app.JWTMiddlewareWithRole(riderhttp.RoleRider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = riderhttp.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + signToken(t, "other", "r1", riderhttp.RoleRider, time.Hour), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, "r1", riderhttp.RoleRider, -time.Minute), http.StatusUnauthorized},
		{"wrong role", "Bearer " + signToken(t, testSecret, "a1", riderhttp.RoleAdmin, time.Hour), http.StatusForbidden},
		{"valid", "Bearer " + signToken(t, testSecret, "r1", riderhttp.RoleRider, time.Hour), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/rider/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, riderhttp.Actor{ID: "r1", Role: riderhttp.RoleRider}, seen)
}

func TestBearerTokenFromWebsocketQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/rider?token=abc", nil)
	assert.Equal(t, "abc", bearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/rider/me?token=abc", nil)
	assert.Empty(t, bearerToken(req))
}

func TestRecoverPanic(t *testing.T) {
	app := newTestApp(t)
	h := app.recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestRoutesEndToEnd(t *testing.T) {
	app := newTestApp(t)
	h := app.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deny", rec.Header().Get("X-Frame-Options"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/riders",
		strings.NewReader(`{"name":"Asel","phone":"+77017770000","vehicle_type":"car"}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "admin-1", riderhttp.RoleAdmin, time.Hour))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/withdrawals", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "r1", riderhttp.RoleRider, time.Hour))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
