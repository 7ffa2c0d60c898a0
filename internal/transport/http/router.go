package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers the API routes on a gorilla/mux router.
func NewRouter(h *Handler) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/compose-video", h.ComposeVideo).Methods(http.MethodPost)
	api.HandleFunc("/compose-video/status/{jobId}", h.CompositionStatus).Methods(http.MethodGet)
	api.HandleFunc("/models/generate/{model}", h.GenerateModel).Methods(http.MethodPost)
	api.HandleFunc("/models/status/{jobId}", h.GenerationStatus).Methods(http.MethodGet)
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	return r
}
