package handlers

import (
	"net/http"

	"media-variants/internal/middleware"

	"github.com/gorilla/mux"
)

// NewRouter wires the API routes with logging and metrics middleware. Media
// is served under the base path of the configured base URL.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logger(middleware.DefaultLoggingConfig()))
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet).Name("health")
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead).Name("liveness")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet).Name("version")
	api.HandleFunc("/assets/{id:[0-9]+}/reprocess", h.ReprocessAsset).Methods(http.MethodPost).Name("reprocess")
	api.HandleFunc("/assets/{id:[0-9]+}/state", h.GetAssetState).Methods(http.MethodGet).Name("state")
	api.HandleFunc("/documents/{id:[0-9]+}/publish", h.PublishDocument).Methods(http.MethodPost).Name("publish")

	r.PathPrefix(h.resolver.MediaPrefix()).HandlerFunc(h.ServeMedia).Methods(http.MethodGet, http.MethodHead).Name("media")
	return r
}
