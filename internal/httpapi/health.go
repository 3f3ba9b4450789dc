package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleHealth is intentionally unauthenticated (spec's explicit note)
// so load balancers and orchestrators can probe it without credentials.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
