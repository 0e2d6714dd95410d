package web

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

// sendJSONResponse sends a JSON response with proper headers
func (s *Server) sendJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode json response", "error", err)
	}
}

// sendErrorResponse sends a JSON error response
func (s *Server) sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := ErrorResponse{
		Error: message,
		Code:  statusCode,
		Time:  time.Now(),
	}

	s.sendJSONResponse(w, response, statusCode)
}

// sanitize replaces values JSON cannot carry. An empty aggregator reports
// +Inf and -Inf as its minimum and maximum.
func sanitize(snap stats.Snapshot) stats.Snapshot {
	for _, list := range [][]float64{snap.Current, snap.Min, snap.Max, snap.Avg, snap.Sum} {
		finite(list)
	}
	for _, h := range snap.History {
		finite(h)
	}
	for i, q := range snap.Quantiles {
		snap.Quantiles[i] = stats.Quantiles{P50: finiteValue(q.P50), P90: finiteValue(q.P90), P99: finiteValue(q.P99)}
	}
	return snap
}

func finite(values []float64) {
	for i, v := range values {
		values[i] = finiteValue(v)
	}
}

func finiteValue(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

func joinStrings(list []string) string {
	return strings.Join(list, ", ")
}
