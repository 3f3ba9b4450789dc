package httpapi

import (
	"net/http"
	"time"

	"github.com/horcrux-project/horcrux/internal/authn"
	"github.com/horcrux-project/horcrux/internal/authz"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Authn.ListUsers(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	hash, err := authn.HashPassword(req.Password, s.deps.Argon2.MemoryKB, s.deps.Argon2.Iterations)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	u := authn.User{
		ID:           req.Username,
		Username:     req.Username,
		PasswordHash: hash,
		RoleIDs:      req.RoleIDs,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.deps.Authn.CreateUser(r.Context(), u); err != nil {
		respondErr(w, r, err)
		return
	}
	u.PasswordHash = ""
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.deps.Authz.ListRoles(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	role := authz.Role{ID: req.ID, Name: req.Name}
	for _, rule := range req.Rules {
		role.Rules = append(role.Rules, authz.Rule{PathGlob: rule.PathGlob, Privileges: rule.Privileges})
	}
	if err := s.deps.Authz.CreateRole(r.Context(), role); err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}
