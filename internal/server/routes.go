package server

import "net/http"

// RegisterRoutes registers all API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, s *Server) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/datasets", s.handleDatasets)
	mux.HandleFunc("GET /api/v1/datasets/{key}", s.handleDataset)
	mux.HandleFunc("GET /api/v1/datasets/{key}/complexes/{idx}", s.handleComplex)
	mux.HandleFunc("GET /api/v1/datasets/{key}/complexes/{idx}/export/{format}", s.handleExport)
	mux.HandleFunc("GET /api/v1/datasets/{key}/complexes/{idx}/cells/{dim}/{id}/neighbors", s.handleNeighbors)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/process/status", s.handleProcessStatus)

	if !s.readOnly {
		mux.HandleFunc("POST /api/v1/rings", s.handleRings)
		mux.HandleFunc("POST /api/v1/process", s.handleProcess)
	}
}
