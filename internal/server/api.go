package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/YuGuangWang/cwn/internal/cellcomplex"
	"github.com/YuGuangWang/cwn/internal/dataset"
	"github.com/YuGuangWang/cwn/internal/rings"
	"github.com/YuGuangWang/cwn/internal/store"
	"github.com/YuGuangWang/cwn/pkg/models"
)

// Limits for ad-hoc ring requests. Ring counts grow exponentially with the
// bound on dense graphs.
const (
	maxRequestRingSize = 24
	maxRequestNodes    = 10000
	maxRequestRings    = 100000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	datasetCount, _ := s.store.DatasetCount(ctx)
	complexCount, _ := s.store.ComplexCount(ctx)
	infos, err := s.store.ListDatasets(ctx)
	if err != nil {
		s.logger.Error("listing datasets", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var cells [3]int
	for _, info := range infos {
		for d := range cells {
			cells[d] += info.CellCounts[d]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"datasets_total":  datasetCount,
		"complexes_total": complexCount,
		"vertices_total":  cells[models.DimVertex],
		"edges_total":     cells[models.DimEdge],
		"rings_total":     cells[models.DimRing],
	})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListDatasets(r.Context())
	if err != nil {
		s.logger.Error("listing datasets", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if infos == nil {
		infos = []store.DatasetInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	info, err := s.store.GetDataset(r.Context(), key)
	if err != nil {
		s.logger.Error("getting dataset", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// loadComplex resolves {key} and {idx}, writing an error response on failure.
func (s *Server) loadComplex(w http.ResponseWriter, r *http.Request) (*models.Complex, models.Split, bool) {
	key := r.PathValue("key")
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil || idx < 0 {
		writeError(w, http.StatusBadRequest, "complex index must be a non-negative integer")
		return nil, "", false
	}

	c, split, err := s.store.GetComplex(r.Context(), key, idx)
	if err != nil {
		s.logger.Error("getting complex", "key", key, "idx", idx, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, "", false
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "complex not found")
		return nil, "", false
	}
	return c, split, true
}

func (s *Server) handleComplex(w http.ResponseWriter, r *http.Request) {
	c, split, ok := s.loadComplex(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"split":   split,
		"complex": c,
	})
}

var exportContentTypes = map[string]string{
	store.FormatJSON:    "application/json",
	store.FormatDOT:     "text/vnd.graphviz",
	store.FormatMermaid: "text/plain; charset=utf-8",
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	contentType, ok := exportContentTypes[format]
	if !ok {
		writeError(w, http.StatusBadRequest, "format must be one of: json, dot, mermaid")
		return
	}

	c, _, ok := s.loadComplex(w, r)
	if !ok {
		return
	}
	out, err := store.Export(c, format)
	if err != nil {
		s.logger.Error("export", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	idx, err1 := strconv.Atoi(r.PathValue("idx"))
	dim, err2 := strconv.Atoi(r.PathValue("dim"))
	id, err3 := strconv.Atoi(r.PathValue("id"))
	if err := errors.Join(err1, err2, err3); err != nil {
		writeError(w, http.StatusBadRequest, "complex index, dimension and cell id must be integers")
		return
	}
	ref := store.CellRef{Dataset: r.PathValue("key"), Complex: idx, Dim: dim, ID: id}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "upper"
	}

	var ids []int
	var err error
	switch kind {
	case "upper":
		ids, err = s.engine.UpperNeighbors(r.Context(), ref)
	case "lower":
		ids, err = s.engine.LowerNeighbors(r.Context(), ref)
	case "cofaces":
		ids, err = s.engine.Cofaces(r.Context(), ref)
	default:
		writeError(w, http.StatusBadRequest, "kind must be one of: upper, lower, cofaces")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("cell neighbors", "ref", ref, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kind": kind,
		"dim":  dim,
		"id":   id,
		"ids":  ids,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleProcessStatus(w http.ResponseWriter, _ *http.Request) {
	running := s.processor != nil && s.processor.IsRunning()
	writeJSON(w, http.StatusOK, map[string]any{"running": running})
}

// ringsRequest is the JSON body for POST /api/v1/rings.
type ringsRequest struct {
	Graph        models.Graph `json:"graph"`
	MaxRingSize  int          `json:"max_ring_size,omitempty"`
	EdgeFeatures bool         `json:"edge_features,omitempty"`
}

func (s *Server) handleRings(w http.ResponseWriter, r *http.Request) {
	var req ringsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MaxRingSize == 0 {
		req.MaxRingSize = s.defaults.MaxRingSize
	}
	if req.MaxRingSize > maxRequestRingSize {
		writeError(w, http.StatusBadRequest, "max_ring_size must be at most "+strconv.Itoa(maxRequestRingSize))
		return
	}
	if req.Graph.NumNodes > maxRequestNodes {
		writeError(w, http.StatusBadRequest, "graph must have at most "+strconv.Itoa(maxRequestNodes)+" vertices")
		return
	}

	finder, err := rings.New(req.MaxRingSize, rings.WithMaxRings(maxRequestRings))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rs, err := finder.Find(req.Graph)
	if err != nil {
		writeRingError(w, err)
		return
	}
	c, err := cellcomplex.Build(req.Graph, rs, cellcomplex.WithEdgeFeatures(req.EdgeFeatures))
	if err != nil {
		writeRingError(w, err)
		return
	}
	if rs == nil {
		rs = []models.Ring{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"max_ring_size": req.MaxRingSize,
		"rings":         rs,
		"counts":        rings.CountByLength(rs),
		"complex":       c,
	})
}

func writeRingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidGraph), errors.Is(err, models.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rings.ErrRingLimit):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// processRequest is the JSON body for POST /api/v1/process.
type processRequest struct {
	Name         string `json:"name"`
	MaxRingSize  int    `json:"max_ring_size,omitempty"`
	EdgeFeatures bool   `json:"edge_features,omitempty"`
	Force        bool   `json:"force,omitempty"`
}

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "processor not configured")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !nameRegexp.MatchString(req.Name) {
		writeError(w, http.StatusBadRequest, "name must match [A-Za-z0-9][A-Za-z0-9_-]*")
		return
	}

	cfg := s.defaults
	cfg.Name = req.Name
	cfg.UseEdgeFeatures = req.EdgeFeatures
	if req.MaxRingSize != 0 {
		cfg.MaxRingSize = req.MaxRingSize
	}

	runID, err := s.processor.ProcessAsync(r.Context(), dataset.Request{Config: cfg, Force: req.Force})
	if errors.Is(err, models.ErrInvalidConfig) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("starting processing", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start processing")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": runID,
		"key":    cfg.Key(),
		"status": store.RunRunning,
	})
}
