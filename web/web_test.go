package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

// mockController records calls and returns canned results.
type mockController struct {
	mu        sync.Mutex
	running   bool
	countdown time.Duration
	selected  string
	active    map[string]bool
	startErr  error
	snapshots map[string]stats.Snapshot
	fault     string
}

func newMockController() *mockController {
	return &mockController{
		active: map[string]bool{"Distance Sensor 1": true, "Weather Sensor": false},
		snapshots: map[string]stats.Snapshot{
			"Distance Sensor 1": {
				Channels: 1,
				Current:  []float64{12.5},
				Min:      []float64{10},
				Max:      []float64{15},
				Avg:      []float64{12.5},
				Sum:      []float64{25},
				Count:    2,
				History:  [][]float64{{10, 15}},
			},
			"Weather Sensor": stats.New(3, 10).Snapshot(),
		},
	}
}

func (m *mockController) Start(countdown time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	m.countdown = countdown
	return nil
}

func (m *mockController) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

func (m *mockController) Select(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, ok := m.active[name]
	if !ok {
		return fmt.Errorf("%w: %s", measurement.ErrUnknownSensor, name)
	}
	if !active {
		return fmt.Errorf("%w: %s", measurement.ErrSensorInactive, name)
	}
	m.selected = name
	return nil
}

func (m *mockController) SetActive(name string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return measurement.ErrMeasurementRunning
	}
	if _, ok := m.active[name]; !ok {
		return fmt.Errorf("%w: %s", measurement.ErrUnknownSensor, name)
	}
	m.active[name] = active
	return nil
}

func (m *mockController) Snapshot(name string) (stats.Snapshot, error) {
	snap, ok := m.snapshots[name]
	if !ok {
		return stats.Snapshot{}, fmt.Errorf("%w: %s", measurement.ErrUnknownSensor, name)
	}
	return snap, nil
}

func (m *mockController) Sensors() []measurement.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return []measurement.Status{
		{
			Descriptor: sensor.Descriptor{Name: "Distance Sensor 1", Kind: sensor.KindSimulated, Channels: 1, Colors: []string{"#FF0000"}, Units: []string{"cm"}, Active: m.active["Distance Sensor 1"]},
			Selected:   m.selected == "Distance Sensor 1",
			Running:    m.running,
		},
		{
			Descriptor: sensor.Descriptor{Name: "Weather Sensor", Kind: sensor.KindBME280, Channels: 3, Units: []string{"C", "hPa", "m"}, Active: m.active["Weather Sensor"]},
			Fault:      m.fault,
		},
	}
}

func (m *mockController) Info() measurement.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return measurement.Info{Running: m.running, RunID: "run-1", Countdown: m.countdown}
}

func newTestServer(t *testing.T, ctrl Controller, hub *Hub) *Server {
	t.Helper()
	s, err := NewServer(context.Background(), ctrl, nil, hub, nil)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, 10*time.Second, config.ReadTimeout)
	assert.Equal(t, 5*time.Second, config.ShutdownTimeout)
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t, newMockController(), NewHub(nil))

	w := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	assert.Contains(t, body, "Distance Sensor 1")
	assert.Contains(t, body, "C, hPa, m")
	assert.Contains(t, body, "/measurement/start")
	assert.Contains(t, body, "new WebSocket")
}

func TestHandleRoot_UnknownPath(t *testing.T) {
	s := newTestServer(t, newMockController(), nil)
	w := do(t, s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealth(t *testing.T) {
	ctrl := newMockController()
	s := newTestServer(t, ctrl, nil)

	w := do(t, s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 2, resp.Sensors)
	assert.Equal(t, "run-1", resp.RunID)

	ctrl.fault = "channel mismatch"
	w = do(t, s, http.MethodGet, "/health")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, 1, resp.Faults)
}

func TestHandleSensor(t *testing.T) {
	s := newTestServer(t, newMockController(), nil)

	w := do(t, s, http.MethodGet, "/sensors/Distance%20Sensor%201")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SnapshotResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Distance Sensor 1", resp.Sensor)
	assert.False(t, resp.Empty)
	assert.Equal(t, []float64{12.5}, resp.Current)
	assert.Equal(t, 2, resp.Count)
}

func TestHandleSensor_EmptyIsValidJSON(t *testing.T) {
	s := newTestServer(t, newMockController(), nil)

	w := do(t, s, http.MethodGet, "/sensors/Weather%20Sensor")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SnapshotResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Empty)
	assert.Equal(t, []float64{0, 0, 0}, resp.Min)
	assert.Equal(t, []float64{0, 0, 0}, resp.Max)
}

func TestHandleSensor_Unknown(t *testing.T) {
	s := newTestServer(t, newMockController(), nil)

	w := do(t, s, http.MethodGet, "/sensors/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeError(t, w).Error, "unknown sensor")
}

func TestHandleSelect(t *testing.T) {
	ctrl := newMockController()
	s := newTestServer(t, ctrl, nil)

	w := do(t, s, http.MethodPost, "/sensors/Distance%20Sensor%201/select")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Distance Sensor 1", ctrl.selected)

	w = do(t, s, http.MethodPost, "/sensors/Weather%20Sensor/select")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleActive(t *testing.T) {
	ctrl := newMockController()
	s := newTestServer(t, ctrl, nil)

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"enable", "/sensors/Weather%20Sensor/active?state=true", http.StatusOK},
		{"bad state", "/sensors/Weather%20Sensor/active?state=maybe", http.StatusBadRequest},
		{"missing state", "/sensors/Weather%20Sensor/active", http.StatusBadRequest},
		{"unknown", "/sensors/ghost/active?state=false", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, tt.target)
			assert.Equal(t, tt.code, w.Code)
		})
	}
	assert.True(t, ctrl.active["Weather Sensor"])

	require.NoError(t, ctrl.Start(0))
	w := do(t, s, http.MethodPost, "/sensors/Weather%20Sensor/active?state=false")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, ctrl.active["Weather Sensor"], "unchanged while running")
}

func TestHandleStartStop(t *testing.T) {
	ctrl := newMockController()
	s := newTestServer(t, ctrl, nil)

	w := do(t, s, http.MethodPost, "/measurement/start?countdown=30s")
	require.Equal(t, http.StatusOK, w.Code)

	var info measurement.Info
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.True(t, info.Running)
	assert.Equal(t, 30*time.Second, info.Countdown)

	w = do(t, s, http.MethodGet, "/measurement")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.True(t, info.Running)

	w = do(t, s, http.MethodPost, "/measurement/stop")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.False(t, info.Running)
}

func TestHandleStart_Errors(t *testing.T) {
	ctrl := newMockController()
	s := newTestServer(t, ctrl, nil)

	w := do(t, s, http.MethodPost, "/measurement/start?countdown=soon")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ctrl.startErr = measurement.ErrNoActiveSensors
	w = do(t, s, http.MethodPost, "/measurement/start")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "no active sensors", decodeError(t, w).Error)

	ctrl.startErr = errors.New("boom")
	w = do(t, s, http.MethodPost, "/measurement/start")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, newMockController(), nil)

	w := do(t, s, http.MethodGet, "/measurement/start")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleLive_Unavailable(t *testing.T) {
	s := newTestServer(t, newMockController(), nil)

	w := do(t, s, http.MethodGet, "/live")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSanitize(t *testing.T) {
	snap := stats.Snapshot{
		Min:       []float64{math.Inf(1), 1},
		Max:       []float64{math.Inf(-1), 2},
		Avg:       []float64{math.NaN(), 1.5},
		History:   [][]float64{{math.Inf(1)}},
		Quantiles: []stats.Quantiles{{P50: math.NaN(), P90: 3, P99: 4}},
	}

	got := sanitize(snap)
	assert.Equal(t, []float64{0, 1}, got.Min)
	assert.Equal(t, []float64{0, 2}, got.Max)
	assert.Equal(t, []float64{0, 1.5}, got.Avg)
	assert.Equal(t, [][]float64{{0}}, got.History)
	assert.Equal(t, stats.Quantiles{P50: 0, P90: 3, P99: 4}, got.Quantiles[0])

	_, err := json.Marshal(got)
	assert.NoError(t, err)
}

func TestGetRoutes_ReturnsCopy(t *testing.T) {
	s := newTestServer(t, newMockController(), nil)

	routes := s.GetRoutes()
	routes["GET /extra"] = "x"
	assert.NotContains(t, s.GetRoutes(), "GET /extra")
}

func dialLive(t *testing.T, s *Server) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/live"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	s := newTestServer(t, newMockController(), hub)

	conn, closeAll := dialLive(t, s)
	defer closeAll()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.OnTick(measurement.Tick{Elapsed: time.Second})
	hub.OnReading("Weather Sensor", stats.New(3, 10).Snapshot())
	hub.OnFault("Weather Sensor", errors.New("channel mismatch"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventTick, ev.Type)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventReading, ev.Type)
	assert.Equal(t, "Weather Sensor", ev.Sensor)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventFault, ev.Type)
	assert.Equal(t, "channel mismatch", ev.Data)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(nil)
	s := newTestServer(t, newMockController(), hub)

	conn, closeAll := dialLive(t, s)
	defer closeAll()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)

	// Broadcasting with no clients is a no-op.
	hub.OnFinished()
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(nil)
	s := newTestServer(t, newMockController(), hub)

	conn, closeAll := dialLive(t, s)
	defer closeAll()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Clients())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server closed the stream")
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := DefaultConfig()
	config.Port = 0

	s, err := NewServer(ctx, newMockController(), config, NewHub(nil), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
