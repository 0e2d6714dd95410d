package web

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

// Controller is the part of the measurement controller the server drives.
type Controller interface {
	Start(countdown time.Duration) error
	Stop() error
	Select(name string) error
	SetActive(name string, active bool) error
	Snapshot(name string) (stats.Snapshot, error)
	Sensors() []measurement.Status
	Info() measurement.Info
}

// SnapshotResponse represents the JSON response for GET /sensors/{name}
type SnapshotResponse struct {
	Sensor string `json:"sensor"`
	Empty  bool   `json:"empty"`
	stats.Snapshot
}

// HealthResponse represents the JSON response for GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Running   bool      `json:"running"`
	RunID     string    `json:"run_id,omitempty"`
	Sensors   int       `json:"sensors"`
	Faults    int       `json:"faults"`
	Clients   int       `json:"live_clients"`
}

// ErrorResponse represents the JSON response for errors
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  int       `json:"code"`
	Time  time.Time `json:"timestamp"`
}

// TemplateData holds data passed to HTML templates
type TemplateData struct {
	SystemStartTime string
	Routes          map[string]string
	Info            measurement.Info
	Sensors         []measurement.Status
	LiveAvailable   bool
}

// loggingResponseWriter wraps http.ResponseWriter to capture status codes
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the underlying connection.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(lrw.ResponseWriter).Hijack()
	if err == nil {
		lrw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}
