package httpapi

import (
	"net/http"
	"strconv"
)

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.deps.Inventory.ListAudit(r.Context(), r.URL.Query().Get("resource_id"), limit)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
