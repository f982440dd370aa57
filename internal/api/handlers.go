package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"argus-master/internal/camera"
	"argus-master/internal/fleet"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logFn("api: encode response: %v", err)
	}
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, map[string]any{
		"status":    "healthy",
		"cameras":   len(h.fleet.Devices()),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handlers) listCameras(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.fleet.Snapshots())
}

func (h *Handlers) device(w http.ResponseWriter, r *http.Request) (*camera.Device, bool) {
	address := chi.URLParam(r, "address")
	d, ok := h.fleet.Device(address)
	if !ok {
		h.jsonError(w, "camera not found: "+address, http.StatusNotFound)
		return nil, false
	}
	return d, true
}

func (h *Handlers) getCamera(w http.ResponseWriter, r *http.Request) {
	if d, ok := h.device(w, r); ok {
		h.jsonOK(w, d.Snapshot())
	}
}

func (h *Handlers) cameraInfo(w http.ResponseWriter, r *http.Request) {
	if d, ok := h.device(w, r); ok {
		h.jsonOK(w, fleet.Result{Address: d.Address, Name: d.Name, Outcome: d.FetchInfo(r.Context())})
	}
}

func (h *Handlers) activateCamera(w http.ResponseWriter, r *http.Request) {
	if d, ok := h.device(w, r); ok {
		h.jsonOK(w, fleet.Result{Address: d.Address, Name: d.Name, Outcome: d.Activate()})
	}
}

func (h *Handlers) deactivateCamera(w http.ResponseWriter, r *http.Request) {
	if d, ok := h.device(w, r); ok {
		h.jsonOK(w, fleet.Result{Address: d.Address, Name: d.Name, Outcome: d.Deactivate(r.Context())})
	}
}

func (h *Handlers) captureCamera(w http.ResponseWriter, r *http.Request) {
	if d, ok := h.device(w, r); ok {
		h.jsonOK(w, h.fleet.CaptureDevice(r.Context(), d))
	}
}

func (h *Handlers) refreshFleet(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.jsonError(w, "no registry configured", http.StatusServiceUnavailable)
		return
	}
	h.fleetMu.Lock()
	defer h.fleetMu.Unlock()

	h.fleet.Refresh(r.Context(), h.registry)
	h.jsonOK(w, h.fleet.Snapshots())
}

func (h *Handlers) activateFleet(w http.ResponseWriter, r *http.Request) {
	h.fleetMu.Lock()
	defer h.fleetMu.Unlock()

	if r.URL.Query().Get("mode") == "sequential" {
		h.jsonOK(w, h.fleet.ActivateAllSequential())
		return
	}
	h.jsonOK(w, h.fleet.ActivateAllConcurrent())
}

func (h *Handlers) captureFleet(w http.ResponseWriter, r *http.Request) {
	h.fleetMu.Lock()
	defer h.fleetMu.Unlock()

	h.jsonOK(w, h.fleet.CaptureAllConcurrent(r.Context()))
}

func (h *Handlers) deactivateFleet(w http.ResponseWriter, r *http.Request) {
	h.fleetMu.Lock()
	defer h.fleetMu.Unlock()

	h.jsonOK(w, h.fleet.DeactivateAllSequential(r.Context()))
}
