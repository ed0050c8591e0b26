package httpsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assist-server/pkg/config"
	"assist-server/pkg/session"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type fakeSnapshots struct {
	snap session.Snapshot
}

func (f *fakeSnapshots) Snapshot() session.Snapshot {
	return f.snap
}

func testHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{
		Enabled:         true,
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		EnableMetrics:   true,
		EnableWebsocket: true,
	}
}

func TestHealthHandlerDegradedWithoutHub(t *testing.T) {
	hub := NewEventHub(testLogger())
	srv := NewServer(testLogger(), testHTTPConfig(), hub)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unhealthy", health.Checks["websocket"].Status)
}

func TestHealthHandlerHealthyWithRunningHub(t *testing.T) {
	hub := NewEventHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	require.Eventually(t, hub.IsRunning, time.Second, 10*time.Millisecond)

	srv := NewServer(testLogger(), testHTTPConfig(), hub)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestSessionHandler(t *testing.T) {
	srv := NewServer(testLogger(), testHTTPConfig(), NewEventHub(testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.SetSnapshotProvider(&fakeSnapshots{snap: session.Snapshot{
		ID:     "session-1",
		Status: "active",
		Topic:  "Account Access Issue",
	}})

	rec = httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "session-1", snap.ID)
	assert.Equal(t, "Account Access Issue", snap.Topic)
}

func TestSessionHandlerRejectsPost(t *testing.T) {
	srv := NewServer(testLogger(), testHTTPConfig(), NewEventHub(testLogger()))
	srv.SetSnapshotProvider(&fakeSnapshots{})

	req := httptest.NewRequest(http.MethodPost, "/session", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpointRegistered(t *testing.T) {
	srv := NewServer(testLogger(), testHTTPConfig(), NewEventHub(testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHubBroadcastToClient(t *testing.T) {
	hub := NewEventHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration races the publish; give the hub a beat to register
	time.Sleep(50 * time.Millisecond)

	hub.Publish(session.Event{
		Type:      session.EventTopicDetected,
		SessionID: "session-1",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"topic": "Network Connectivity"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var event session.Event
	require.NoError(t, json.Unmarshal(message, &event))
	assert.Equal(t, session.EventTopicDetected, event.Type)
	assert.Equal(t, "session-1", event.SessionID)
}

func TestHubSessionFilteredSubscription(t *testing.T) {
	hub := NewEventHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "?session_id=wanted"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	hub.Publish(session.Event{Type: session.EventTopicDetected, SessionID: "other"})
	hub.Publish(session.Event{Type: session.EventSentimentUpdated, SessionID: "wanted"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var event session.Event
	require.NoError(t, json.Unmarshal(message, &event))
	assert.Equal(t, session.EventSentimentUpdated, event.Type)
	assert.Equal(t, "wanted", event.SessionID)
}

func TestPublishDoesNotBlockWithoutRunLoop(t *testing.T) {
	hub := NewEventHub(testLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(session.Event{Type: session.EventTimelineAppended})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no hub loop running")
	}
}
