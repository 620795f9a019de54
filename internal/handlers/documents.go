package handlers

import (
	"net/http"
)

// PublishDocument rewrites and publishes a document.
func (h *Handlers) PublishDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid document id", http.StatusBadRequest)
		return
	}

	res, err := h.publisher.Publish(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"documentId": res.DocumentID,
		"changed":    res.Changed,
		"deleted":    res.Deleted,
		"kept":       res.Kept,
	})
}
