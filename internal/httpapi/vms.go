package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/lifecycle"
)

func decodeJSON(r *http.Request, dst any) bool {
	return json.NewDecoder(r.Body).Decode(dst) == nil
}

func (s *Server) handleListVMs(w http.ResponseWriter, r *http.Request) {
	vms, err := s.deps.Inventory.ListVMs(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vms)
}

func (s *Server) handleGetVM(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vm, err := s.deps.Inventory.GetVM(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) handleCreateVM(w http.ResponseWriter, r *http.Request) {
	var req createVMRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	vm, err := s.deps.Lifecycle.Create(r.Context(), lifecycle.CreateRequest{
		ID:         req.ID,
		Name:       req.Name,
		VCPUs:      req.VCPUs,
		MemoryMB:   req.MemoryMB,
		KernelPath: req.KernelPath,
		InitrdPath: req.InitrdPath,
		CmdLine:    req.CmdLine,
		VsockCID:   req.VsockCID,
		Disks:      req.Disks,
		GPUs:       req.GPUs,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vm)
}

func (s *Server) handleDeleteVM(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Lifecycle.Delete(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleVMAction returns a handler for one of the fixed start/stop/pause/
// resume power operations (§4.F).
func (s *Server) handleVMAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var err error
		switch action {
		case "start":
			err = s.deps.Lifecycle.Start(r.Context(), id)
		case "stop":
			mode := hypervisor.StopGraceful
			if r.URL.Query().Get("force") == "true" {
				mode = hypervisor.StopForce
			}
			err = s.deps.Lifecycle.Stop(r.Context(), id, mode)
		case "pause":
			err = s.deps.Lifecycle.Pause(r.Context(), id)
		case "resume":
			err = s.deps.Lifecycle.Resume(r.Context(), id)
		}
		if err != nil {
			respondErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snaps, err := s.deps.Inventory.ListSnapshots(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req snapshotRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	job, err := s.deps.Lifecycle.Snapshot(r.Context(), id, hypervisor.SnapshotOptions{
		SnapshotID: req.ID,
		WithMemory: req.WithMemory,
	}, "")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := chi.URLParam(r, "snap")
	if err := s.deps.Inventory.DeleteSnapshot(r.Context(), snap); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloneVM(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req cloneRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	mode := hypervisor.CloneLinked
	if req.Mode == string(hypervisor.CloneFull) {
		mode = hypervisor.CloneFull
	}
	job, err := s.deps.Lifecycle.Clone(r.Context(), id, hypervisor.CloneOptions{
		NewID:   req.NewID,
		NewName: req.NewName,
		Mode:    mode,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleMigrateVM(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req migrateRequest
	if !decodeJSON(r, &req) {
		writeError(w, r, KindBadRequest, "invalid request body", "")
		return
	}
	job, err := s.deps.Lifecycle.MigrateBegin(r.Context(), id, hypervisor.MigrationTarget{
		NodeAddress:  req.TargetNodeAddress,
		BandwidthBps: req.BandwidthBps,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
