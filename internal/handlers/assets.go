package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"media-variants/internal/filesystem"
	"media-variants/internal/mediatypes"
	"media-variants/internal/orchestrator"
	"media-variants/internal/variant"
)

// JobResponse acknowledges a queued reprocess.
type JobResponse struct {
	JobID   string `json:"jobId"`
	AssetID int64  `json:"assetId"`
	Force   bool   `json:"force"`
	Retry   bool   `json:"retry"`
	Status  string `json:"status"`
}

// StateResponse pairs an asset with its derivative state.
type StateResponse struct {
	Asset mediatypes.Asset `json:"asset"`
	State variant.State    `json:"state"`
}

// ReprocessAsset queues an orchestrator run for one asset and answers 202.
// The run happens on the dispatcher, so a client going away does not stop
// an encode. Query parameters: force (default false), retry (default true).
func (h *Handlers) ReprocessAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid asset id", http.StatusBadRequest)
		return
	}

	asset, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !mediatypes.IsSupportedSource(asset.Path, asset.MimeType) {
		writeJSONError(w, orchestrator.ErrUnsupported.Error(), http.StatusUnprocessableEntity)
		return
	}
	if !filesystem.Exists(asset.Path) {
		writeJSONError(w, orchestrator.ErrMissingSource.Error(), http.StatusUnprocessableEntity)
		return
	}

	opts := orchestrator.Options{
		AllowRetry: queryBool(r, "retry", true),
		Force:      queryBool(r, "force", false),
	}
	job, err := h.queue.Submit(id, opts)
	if errors.Is(err, orchestrator.ErrQueueFull) {
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", fmt.Sprintf("/api/assets/%d/state", id))
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, JobResponse{
		JobID:   job.ID,
		AssetID: id,
		Force:   opts.Force,
		Retry:   opts.AllowRetry,
		Status:  "queued",
	})
}

// GetAssetState returns the asset row and its stored state.
func (h *Handlers) GetAssetState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid asset id", http.StatusBadRequest)
		return
	}

	asset, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	state, err := h.store.GetState(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, StateResponse{Asset: asset, State: state})
}
