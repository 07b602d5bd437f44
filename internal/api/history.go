package api

import (
	"net/http"
	"strconv"

	"github.com/querypilot/querypilot/internal/auth"
)

const defaultHistoryLimit = 10

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHENTICATED", "request identity is missing", false, nil)
		return
	}
	if !identity.HasRole(auth.RoleAssistantUser) {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "assistant_user role is required", false, nil)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer between 1 and 100", false, nil)
			return
		}
		limit = parsed
	}

	blocks, err := deps.History.GetRecent(r.Context(), identity.UserID, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_UNAVAILABLE", "conversation history could not be loaded", true, nil)
		return
	}

	payload := make([]blockPayload, 0, len(blocks))
	for _, block := range blocks {
		payload = append(payload, buildBlockPayload(block))
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": payload})
}
