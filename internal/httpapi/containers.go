package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/horcrux-project/horcrux/internal/inventory"
)

type createContainerRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

func (s *Server) handleListContainers(w http.ResponseWriter, r *http.Request) {
	cs, err := s.deps.Inventory.ListContainers(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.deps.Inventory.GetContainer(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var req createContainerRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	c := inventory.Container{
		ID:        req.ID,
		Name:      req.Name,
		Image:     req.Image,
		Status:    inventory.ContainerCreated,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.deps.Inventory.CreateContainer(r.Context(), c); err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Inventory.DeleteContainer(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
