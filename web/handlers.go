package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
)

// handleRoot handles GET / - returns the HTML status page
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	data := TemplateData{
		SystemStartTime: s.systemStartTime.Format("02/01/2006 15:04:05"),
		Routes:          s.GetRoutes(),
		Info:            s.ctrl.Info(),
		Sensors:         s.ctrl.Sensors(),
		LiveAvailable:   s.hub != nil,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := s.template.Execute(w, data); err != nil {
		s.logger.Error("failed to execute template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// handleHealth handles GET /health - returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.ctrl.Info()
	sensors := s.ctrl.Sensors()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.systemStartTime).Round(time.Second).String(),
		Running:   info.Running,
		RunID:     info.RunID,
		Sensors:   len(sensors),
	}
	for _, st := range sensors {
		if st.Fault != "" {
			health.Faults++
		}
	}
	if health.Faults > 0 {
		health.Status = "degraded"
	}
	if s.hub != nil {
		health.Clients = s.hub.Clients()
	}

	s.sendJSONResponse(w, health, http.StatusOK)
}

// handleSensors handles GET /sensors
func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	s.sendJSONResponse(w, s.ctrl.Sensors(), http.StatusOK)
}

// handleSensor handles GET /sensors/{name}
func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	snap, err := s.ctrl.Snapshot(name)
	if err != nil {
		s.sendControllerError(w, err)
		return
	}

	s.sendJSONResponse(w, SnapshotResponse{
		Sensor:   name,
		Empty:    snap.Empty(),
		Snapshot: sanitize(snap),
	}, http.StatusOK)
}

// handleSelect handles POST /sensors/{name}/select
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Select(r.PathValue("name")); err != nil {
		s.sendControllerError(w, err)
		return
	}
	s.sendJSONResponse(w, s.ctrl.Sensors(), http.StatusOK)
}

// handleActive handles POST /sensors/{name}/active?state=true|false
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	state, err := strconv.ParseBool(r.URL.Query().Get("state"))
	if err != nil {
		s.sendErrorResponse(w, "state must be true or false", http.StatusBadRequest)
		return
	}

	if err := s.ctrl.SetActive(r.PathValue("name"), state); err != nil {
		s.sendControllerError(w, err)
		return
	}
	s.sendJSONResponse(w, s.ctrl.Sensors(), http.StatusOK)
}

// handleMeasurement handles GET /measurement
func (s *Server) handleMeasurement(w http.ResponseWriter, r *http.Request) {
	s.sendJSONResponse(w, s.ctrl.Info(), http.StatusOK)
}

// handleStart handles POST /measurement/start?countdown=30s
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var countdown time.Duration
	if v := r.URL.Query().Get("countdown"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			s.sendErrorResponse(w, "countdown must be a non-negative duration such as 30s", http.StatusBadRequest)
			return
		}
		countdown = d
	}

	if err := s.ctrl.Start(countdown); err != nil {
		s.sendControllerError(w, err)
		return
	}
	s.sendJSONResponse(w, s.ctrl.Info(), http.StatusOK)
}

// handleStop handles POST /measurement/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		// The run still ended; persistence problems are reported as warnings.
		s.logger.Warn("measurement stopped with errors", "error", err)
	}
	s.sendJSONResponse(w, s.ctrl.Info(), http.StatusOK)
}

// handleLive handles GET /live - upgrades to a websocket event stream
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.sendErrorResponse(w, "Live stream not available", http.StatusServiceUnavailable)
		return
	}
	s.hub.ServeHTTP(w, r)
}

// sendControllerError maps controller errors to HTTP status codes.
func (s *Server) sendControllerError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, measurement.ErrUnknownSensor):
		code = http.StatusNotFound
	case errors.Is(err, measurement.ErrMeasurementRunning),
		errors.Is(err, measurement.ErrSensorInactive):
		code = http.StatusConflict
	case errors.Is(err, measurement.ErrNoActiveSensors):
		code = http.StatusUnprocessableEntity
	}
	s.sendErrorResponse(w, err.Error(), code)
}
