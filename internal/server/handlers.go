package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/hada/internal/model"
	"github.com/ashita-ai/hada/internal/service/analysis"
)

// StoreStats reports the size of the ingredient store for /health.
type StoreStats interface {
	Len() int
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	analysisSvc         *analysis.Service
	store               StoreStats
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	maxBatchSize        int
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Store, OpenAPISpec.
type HandlersDeps struct {
	AnalysisSvc         *analysis.Service
	Store               StoreStats
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	MaxBatchSize        int
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		analysisSvc:         d.AnalysisSvc,
		store:               d.Store,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		maxBatchSize:        d.MaxBatchSize,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleAnalyze handles POST /v1/analyze.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req model.AnalyzeRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if h.maxBatchSize > 0 && len(req.Ingredients) > h.maxBatchSize {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("too many ingredients: %d (max %d)", len(req.Ingredients), h.maxBatchSize))
		return
	}

	results, err := h.analysisSvc.ResolveBatch(r.Context(), analysis.BatchInput{
		ProductName: req.ProductName,
		Ingredients: req.Ingredients,
		Concerns:    req.Concerns,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "request cancelled before completion")
			return
		}
		h.writeInternalError(w, r, "failed to analyze ingredients", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AnalyzeResponse{
		ProductName: req.ProductName,
		Results:     results,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	entries := 0
	if h.store != nil {
		entries = h.store.Len()
	}
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:        "ok",
		Version:       h.version,
		ResolverMode:  string(h.analysisSvc.ResolverMode()),
		StoreEntries:  entries,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeInternalError logs err and writes a generic 500. The cause is never
// echoed to the client.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}
