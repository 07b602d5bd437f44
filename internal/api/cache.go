package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/metasync"
)

type cacheInfoResponse struct {
	Available        bool      `json:"available"`
	GeneratedAt      time.Time `json:"generated_at,omitempty"`
	GenerationMethod string    `json:"generation_method,omitempty"`
	Degraded         bool      `json:"degraded,omitempty"`
	SchemaColumns    int       `json:"schema_columns,omitempty"`
	FewShotExamples  int       `json:"few_shot_examples,omitempty"`
	TableCount       int       `json:"table_count,omitempty"`
	TablePattern     string    `json:"table_pattern,omitempty"`
	DateRangeStart   string    `json:"date_range_start,omitempty"`
	DateRangeEnd     string    `json:"date_range_end,omitempty"`
}

func handleCacheInfo(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCacheAdmin(deps, w, r) {
		return
	}

	snapshot, err := deps.Cache.Current(r.Context())
	if err != nil {
		if errors.Is(err, metasync.ErrCacheUnavailable) {
			writeJSON(w, http.StatusOK, cacheInfoResponse{Available: false})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CACHE_READ_FAILED", "metadata cache could not be read", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, buildCacheInfo(snapshot))
}

func handleCacheRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCacheAdmin(deps, w, r) {
		return
	}

	snapshot, err := deps.Cache.Refresh(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "CACHE_REFRESH_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, buildCacheInfo(snapshot))
}

func requireCacheAdmin(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHENTICATED", "request identity is missing", false, nil)
		return false
	}
	if !identity.HasRole(auth.RoleCacheAdmin) {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "cache_admin role is required", false, nil)
		return false
	}
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CACHE_DISABLED", "metadata cache is not configured", false, nil)
		return false
	}
	return true
}

func buildCacheInfo(snapshot *metasync.Snapshot) cacheInfoResponse {
	return cacheInfoResponse{
		Available:        true,
		GeneratedAt:      snapshot.GeneratedAt,
		GenerationMethod: snapshot.GenerationMethod,
		Degraded:         snapshot.Degraded,
		SchemaColumns:    len(snapshot.Schema),
		FewShotExamples:  len(snapshot.FewShotExamples),
		TableCount:       snapshot.EventsTableInfo.Count,
		TablePattern:     snapshot.EventsTableInfo.NamePattern,
		DateRangeStart:   snapshot.EventsTableInfo.DateRange.Start,
		DateRangeEnd:     snapshot.EventsTableInfo.DateRange.End,
	}
}
