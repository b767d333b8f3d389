package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/trafficlens/metricsync/internal/domain"
	"github.com/trafficlens/metricsync/internal/engine"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEngineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func rangeFromQuery(r *http.Request) domain.DateRange {
	return domain.DateRange{
		Start: r.URL.Query().Get("start"),
		End:   r.URL.Query().Get("end"),
	}
}

// reportResponse pairs a payload with its degradation flag so consumers
// can tell a fresh success from a stale fallback without a second call.
type reportResponse struct {
	Report   *domain.Report `json:"report"`
	Degraded bool           `json:"degraded"`
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	propertyID := mux.Vars(r)["id"]
	force := r.URL.Query().Get("force") == "true"

	report, degraded, err := s.engine.GetData(r.Context(), propertyID, rangeFromQuery(r), force)
	if err != nil {
		s.logger.Warn("report fetch failed",
			zap.String("property_id", propertyID),
			zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: report, Degraded: degraded})
}

type batchRequest struct {
	PropertyIDs []string         `json:"property_ids"`
	Range       domain.DateRange `json:"range"`
	Force       bool             `json:"force"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reports, err := s.engine.BatchGetData(r.Context(), req.PropertyIDs, req.Range, req.Force)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

type optimizedRequest struct {
	Range          domain.DateRange       `json:"range"`
	Criteria       *domain.FilterCriteria `json:"criteria,omitempty"`
	PreferenceUser string                 `json:"preference_user,omitempty"`
	PreferenceName string                 `json:"preference_name,omitempty"`
	MaxProperties  int                    `json:"max_properties,omitempty"`
	Concurrency    int                    `json:"concurrency,omitempty"`
	MinTraffic     float64                `json:"min_traffic,omitempty"`
	UseCache       bool                   `json:"use_cache"`
}

func (s *Server) handleOptimized(w http.ResponseWriter, r *http.Request) {
	var req optimizedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	criteria := req.Criteria
	if criteria == nil && req.PreferenceUser != "" && req.PreferenceName != "" {
		saved, err := s.prefs.GetCriteria(req.PreferenceUser, req.PreferenceName)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		criteria = saved
	}

	result, err := s.engine.FetchOptimized(r.Context(), req.Range, engine.OptimizeOptions{
		Criteria:      criteria,
		MaxProperties: req.MaxProperties,
		Concurrency:   req.Concurrency,
		MinTraffic:    req.MinTraffic,
		UseCache:      req.UseCache,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	// Failed carries errors that do not marshal; flatten to messages.
	failed := make([]map[string]string, 0, len(result.Failed))
	for _, f := range result.Failed {
		failed = append(failed, map[string]string{
			"property_id": f.PropertyID,
			"error":       f.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful":   result.Successful,
		"failed":       failed,
		"elapsed_ms":   result.Elapsed.Milliseconds(),
		"cache_hits":   result.CacheHits,
		"cache_misses": result.CacheMisses,
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}
	writeJSON(w, http.StatusOK, s.engine.SyncStatus(ids...))
}

type syncStartRequest struct {
	PropertyIDs []string         `json:"property_ids"`
	Range       domain.DateRange `json:"range"`
	Interval    string           `json:"interval,omitempty"`
}

func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	var req syncStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PropertyIDs) == 0 {
		writeError(w, http.StatusBadRequest, "property_ids is required")
		return
	}

	var interval time.Duration
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid interval")
			return
		}
		interval = d
	}

	if err := s.engine.StartAutoSync(req.PropertyIDs, req.Range, interval); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"properties": len(req.PropertyIDs),
	})
}

func (s *Server) handleSyncStop(w http.ResponseWriter, r *http.Request) {
	s.engine.StopAutoSync()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}
	removed := s.engine.ClearCache(ids...)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.CacheStats())
}

func (s *Server) handleListPrefs(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	prefs, err := s.prefs.ListCriteria(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleGetPref(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, err := s.prefs.GetCriteria(vars["user"], vars["name"])
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSavePref(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var c domain.FilterCriteria
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.prefs.SaveCriteria(vars["user"], vars["name"], c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleDeletePref(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.prefs.DeleteCriteria(vars["user"], vars["name"]); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
