package httpapi

import (
	"net/http"
	"time"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	token, sess, err := s.deps.Authn.IssueToken(r.Context(), req.Username, req.Password)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "horcrux_session",
		Value:    sess.ID,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	if p != nil && p.Via == "session" {
		_ = s.deps.Authn.DeleteSession(r.Context(), sessionIDFromRequest(r))
	}
	http.SetCookie(w, &http.Cookie{Name: "horcrux_session", Value: "", MaxAge: -1, Path: "/"})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	if p == nil {
		writeError(w, r, KindAuthenticationFailed, "authentication required", "")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func sessionIDFromRequest(r *http.Request) string {
	if c, err := r.Cookie("horcrux_session"); err == nil {
		return c.Value
	}
	return ""
}
