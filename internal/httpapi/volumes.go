package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/horcrux-project/horcrux/internal/volumes"
)

type createPoolRequest struct {
	Name   string            `json:"name"`
	Kind   string            `json:"kind"`
	Config map[string]string `json:"config"`
}

type createVolumeRequest struct {
	Name      string `json:"name"`
	PoolID    string `json:"pool_id"`
	SizeBytes int64  `json:"size_bytes"`
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.deps.Volumes.ListPools(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	pool, err := s.deps.Volumes.CreatePool(r.Context(), req.Name, volumes.PoolKind(req.Kind), req.Config)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

func (s *Server) handleDeletePool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Volumes.DeletePool(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVolumes(w http.ResponseWriter, r *http.Request) {
	vols, err := s.deps.Volumes.ListVolumes(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vols)
}

func (s *Server) handleCreateVolume(w http.ResponseWriter, r *http.Request) {
	var req createVolumeRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	vol, err := s.deps.Volumes.CreateVolume(r.Context(), volumes.CreateVolumeRequest{
		Name:      req.Name,
		PoolID:    req.PoolID,
		SizeBytes: req.SizeBytes,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vol)
}

func (s *Server) handleGetVolume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vol, err := s.deps.Volumes.GetVolume(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

func (s *Server) handleDeleteVolume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Volumes.DeleteVolume(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
