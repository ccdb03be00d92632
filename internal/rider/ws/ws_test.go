package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliveryBack/internal/rider/events"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

func queryIdentity(r *http.Request) (string, bool) {
	id := r.URL.Query().Get("id")
	return id, id != ""
}

type onlineSet map[string]bool

func (o onlineSet) IsOnline(_ context.Context, riderID string) (bool, error) {
	return o[riderID], nil
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt events.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected message %s", data)
	}
}

func waitConnected(t *testing.T, connected func() []string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(connected()) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsAnonymous(t *testing.T) {
	hub := NewRiderHub(queryIdentity, testLogger{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubAnswersTextPing(t *testing.T) {
	hub := NewRiderHub(queryIdentity, testLogger{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, srv, "r1")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))
}

func TestFanoutRouting(t *testing.T) {
	riders := NewRiderHub(queryIdentity, testLogger{})
	admins := NewAdminHub(queryIdentity, testLogger{})
	riderSrv := httptest.NewServer(http.HandlerFunc(riders.ServeWS))
	defer riderSrv.Close()
	adminSrv := httptest.NewServer(http.HandlerFunc(admins.ServeWS))
	defer adminSrv.Close()

	online := dial(t, riderSrv, "r1")
	offline := dial(t, riderSrv, "r2")
	admin := dial(t, adminSrv, "a1")
	waitConnected(t, riders.Connected, 2)
	waitConnected(t, admins.Connected, 1)

	fanout := NewFanout(riders, admins, onlineSet{"r1": true}, testLogger{})
	ctx := context.Background()

	fanout.route(ctx, events.Event{Topic: events.TopicStatusChanged, RequestID: "d2", RiderID: "r2", Status: "on_way"})
	evt := readEvent(t, offline)
	assert.Equal(t, "d2", evt.RequestID)
	assert.Equal(t, "on_way", evt.Status)
	assert.Equal(t, events.TopicStatusChanged, readEvent(t, admin).Topic)

	fanout.route(ctx, events.Event{Topic: events.TopicNewPending, RequestID: "d1"})
	// r1 never saw the status change of r2, so the broadcast is its first message
	evt = readEvent(t, online)
	assert.Equal(t, events.TopicNewPending, evt.Topic)
	assert.Equal(t, "d1", evt.RequestID)
	assert.Equal(t, events.TopicNewPending, readEvent(t, admin).Topic)
	expectSilence(t, offline)
}

func TestFanoutRunStopsWithContext(t *testing.T) {
	bus := events.NewBus(8, testLogger{})
	fanout := NewFanout(NewRiderHub(queryIdentity, testLogger{}), nil, onlineSet{}, testLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fanout.Run(ctx, bus) }()

	bus.Publish(ctx, events.Event{Topic: events.TopicLedgerChanged, RiderID: "r1"})
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fanout did not stop")
	}
}
