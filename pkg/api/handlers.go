package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/opscart/ng-market-monitor/pkg/cache"
	"github.com/opscart/ng-market-monitor/pkg/monitor"
)

// envelope is the common response shape for snapshot-derived data
type envelope struct {
	Dataset     string    `json:"dataset"`
	Series      string    `json:"series,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
	AgeSeconds  float64   `json:"age_seconds"`
	Stale       bool      `json:"stale"`
	Data        any       `json:"data"`
}

func wrap[T any](r monitor.Result[T]) envelope {
	return envelope{
		Dataset:     r.Dataset,
		Series:      r.Series,
		RefreshedAt: r.RefreshedAt,
		AgeSeconds:  r.Age.Seconds(),
		Stale:       r.Stale,
		Data:        r.Data,
	}
}

type datasetStatusView struct {
	Name            string     `json:"name"`
	IntervalSeconds float64    `json:"interval_seconds"`
	Loaded          bool       `json:"loaded"`
	RefreshedAt     *time.Time `json:"refreshed_at,omitempty"`
	AgeSeconds      float64    `json:"age_seconds"`
	Stale           bool       `json:"stale"`
	Refreshing      bool       `json:"refreshing"`
	SeriesCount     int        `json:"series_count"`
	LastAttempt     *time.Time `json:"last_attempt,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

func statusView(st cache.DatasetStatus) datasetStatusView {
	v := datasetStatusView{
		Name:            st.Name,
		IntervalSeconds: st.Interval.Seconds(),
		Loaded:          st.Loaded,
		Stale:           st.Stale,
		Refreshing:      st.Refreshing,
		SeriesCount:     st.SeriesCount,
		LastError:       st.LastError,
	}
	if st.Loaded {
		refreshed := st.RefreshedAt
		v.RefreshedAt = &refreshed
		v.AgeSeconds = st.Age.Seconds()
	}
	if !st.LastAttempt.IsZero() {
		attempt := st.LastAttempt
		v.LastAttempt = &attempt
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.monitor.Status()
	loaded := 0
	for _, st := range statuses {
		if st.Loaded {
			loaded++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"datasets":        len(statuses),
		"datasets_loaded": loaded,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.monitor.Status()
	views := make([]datasetStatusView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, statusView(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": views})
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	lookup, err := s.monitor.GetDataset(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Dataset:     name,
		RefreshedAt: lookup.RefreshedAt,
		AgeSeconds:  lookup.Age.Seconds(),
		Stale:       lookup.Stale,
		Data:        lookup.Dataset,
	})
}

func (s *Server) handlePercentiles(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.GetPercentiles(mux.Vars(r)["series"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wrap(result))
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.GetAnomalies(mux.Vars(r)["series"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wrap(result))
}

// handleGrowth serves both the per-series route and the default growth series
func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.GetGrowth(mux.Vars(r)["series"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wrap(result))
}

func (s *Server) handleUtilization(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.GetUtilization()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wrap(result))
}

func (s *Server) handleUtilizationAlerts(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.GetUtilizationAlerts()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wrap(result))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	alerts, err := s.monitor.Alerts(r.Context(), q.Get("series"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrUnknownSeries), errors.Is(err, cache.ErrUnknownDataset):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, cache.ErrNotLoaded), errors.Is(err, monitor.ErrSeriesUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	default:
		s.log.Error(err, "request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
