package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/plantpot-core/internal/readings"
)

// Series query bounds.
const (
	defaultSeriesHours = 24
	maxSeriesHours     = 24 * 30
	minSeriesStep      = 10 * time.Second
	defaultSeriesSteps = 120
)

// seriesFields are the telemetry fields that can be charted.
var seriesFields = map[string]bool{
	"moisture":    true,
	"temperature": true,
	"light":       true,
}

// handleCreateReading stores one reading with its classified emotion.
func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	var req readings.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	reading, err := req.Reading(s.deviceID)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	var rec *readings.Record
	if s.recorder != nil {
		rec, err = s.recorder.Save(r.Context(), reading, readings.SourceAPI)
	} else {
		rec = readings.NewRecord(reading, readings.SourceAPI, time.Now())
		err = s.readings.Create(r.Context(), rec)
	}
	if err != nil {
		s.logger.Error("failed to store reading", "device_id", reading.DeviceID, "error", err)
		writeInternalError(w, "failed to store reading")
		return
	}

	s.hub.Broadcast(ChannelReading, rec)
	writeJSON(w, http.StatusCreated, rec)
}

// handleLatestReading returns the newest stored reading.
func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	rec, err := s.readings.Latest(r.Context(), deviceFilter(r))
	if err != nil {
		if errors.Is(err, readings.ErrNotFound) {
			writeNotFound(w, "no readings stored")
			return
		}
		s.logger.Error("failed to load latest reading", "error", err)
		writeInternalError(w, "failed to load latest reading")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleReadingHistory returns stored readings, newest first, as a bare
// JSON array so firmware and dashboards built against /api/plants keep working.
func (s *Server) handleReadingHistory(w http.ResponseWriter, r *http.Request) {
	limit := readings.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.readings.History(r.Context(), deviceFilter(r), limit)
	if err != nil {
		s.logger.Error("failed to load reading history", "error", err)
		writeInternalError(w, "failed to load reading history")
		return
	}
	if recs == nil {
		recs = []readings.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleReadingSeries returns one telemetry field over time from the
// time-series database, in Prometheus query_range format.
//
// Query parameters: field (required), deviceId, hours (default 24),
// step (Go duration, defaults to hours/120 with a 10s floor).
func (s *Server) handleReadingSeries(w http.ResponseWriter, r *http.Request) {
	if s.series == nil {
		writeUnavailable(w, "time-series database not configured")
		return
	}

	q := r.URL.Query()
	field := strings.ToLower(q.Get("field"))
	if !seriesFields[field] {
		writeBadRequest(w, "field must be one of moisture, temperature, light")
		return
	}

	hours := defaultSeriesHours
	if raw := q.Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSeriesHours {
			writeBadRequest(w, "hours must be between 1 and 720")
			return
		}
		hours = n
	}

	window := time.Duration(hours) * time.Hour
	step := max(window/defaultSeriesSteps, minSeriesStep)
	if raw := q.Get("step"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < minSeriesStep {
			writeBadRequest(w, "step must be a duration of at least 10s")
			return
		}
		step = d
	}

	deviceID := deviceFilter(r)
	if deviceID == "" {
		deviceID = s.deviceID
	}

	end := time.Now()
	data, err := s.series.QueryDeviceSeries(r.Context(), deviceID, field, end.Add(-window), end, step)
	if err != nil {
		s.logger.Warn("series query failed", "device_id", deviceID, "field", field, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "time-series query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// deviceFilter returns the deviceId query parameter, or "" for all devices.
func deviceFilter(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("deviceId"))
}
