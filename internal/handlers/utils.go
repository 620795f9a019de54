package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"media-variants/internal/database"
	"media-variants/internal/logging"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeStoreError maps store errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	logging.Error("request failed: %v", err)
	writeJSONError(w, "internal error", http.StatusInternalServerError)
}

// pathID parses the {id} route variable.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// queryBool reads a boolean query parameter with a default.
func queryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
