package handlers

import "net/http"

// Service metadata reported by the root endpoint.
const (
	ServiceName    = "RAG-Qdrant Backend"
	ServiceVersion = "1.2"
)

// RootResponse describes the service.
//
// swagger:model RootResponse
type RootResponse struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Status    string   `json:"status"`
	Endpoints []string `json:"endpoints"`
}

// RootHandler serves GET /.
type RootHandler struct{}

// NewRootHandler creates a new RootHandler.
func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, RootResponse{
		Service: ServiceName,
		Version: ServiceVersion,
		Status:  "running",
		Endpoints: []string{
			"/ingest",
			"/ask",
			"/ask_stream",
			"/status",
			"/status/{filename}",
			"/process/{filename}",
			"/health",
		},
	})
}
