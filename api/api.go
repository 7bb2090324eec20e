// Package api exposes the run-control HTTP surface: create a run for a
// market, inspect its latest checkpoint, and resume a suspended or failed
// run.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/store"
	"github.com/polymind-ai/polymind/workflow"
)

// RunService drives pipeline runs. *pipeline.Manager implements it.
type RunService interface {
	StartRun(ctx context.Context, mkt market.Market, maxAnalysts int) (string, error)
	Resume(ctx context.Context, runID string) error
	Status(ctx context.Context, runID string) (*store.Checkpoint, error)
}

// Handler serves the run-control API.
type Handler struct {
	runs    RunService
	markets market.Provider
	store   store.Store
	logger  *zap.Logger
}

// NewHandler creates the API handler. markets may be nil, in which case
// runs must carry an inline market payload.
func NewHandler(runs RunService, markets market.Provider, st store.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		runs:    runs,
		markets: markets,
		store:   st,
		logger:  logger.With(zap.String("component", "api")),
	}
}

// Router mounts the API routes with the standard middleware chain.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/runs", h.createRun)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.getRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/resume", h.resumeRun)
	mux.HandleFunc("GET /api/v1/markets", h.scanMarkets)
	mux.HandleFunc("GET /healthz", h.health)
	return Chain(mux, Recovery(h.logger), RequestID(), RequestLogger(h.logger))
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body: "+err.Error())
		return
	}

	var mkt *market.Market
	switch {
	case req.Market != nil:
		mkt = req.Market
	case req.ConditionID != "":
		if h.markets == nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "no market provider configured; supply an inline market")
			return
		}
		fetched, err := h.markets.Get(r.Context(), req.ConditionID)
		if err != nil {
			writeError(w, http.StatusBadGateway, CodeUpstream, "fetch market: "+err.Error())
			return
		}
		mkt = fetched
	default:
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "either condition_id or market is required")
		return
	}

	runID, err := h.runs.StartRun(r.Context(), *mkt, req.MaxAnalysts)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	writeSuccess(w, http.StatusAccepted, CreateRunResponse{RunID: runID})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	cp, err := h.runs.Status(r.Context(), runID)
	if err != nil {
		if errors.Is(err, workflow.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "run "+runID+" not found")
			return
		}
		h.logger.Error("status lookup failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "status lookup failed")
		return
	}
	writeSuccess(w, http.StatusOK, RunStatusResponse{
		RunID:       runID,
		Status:      cp.Status,
		Stage:       cp.Stage,
		Next:        cp.Next,
		FailedStage: cp.FailedStage,
		Error:       cp.Error,
		Version:     cp.Version,
		State:       cp.State,
		UpdatedAt:   cp.CreatedAt,
	})
}

func (h *Handler) resumeRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	err := h.runs.Resume(r.Context(), runID)
	switch {
	case err == nil:
		writeSuccess(w, http.StatusAccepted, CreateRunResponse{RunID: runID})
	case errors.Is(err, workflow.ErrRunNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "run "+runID+" not found")
	case errors.Is(err, workflow.ErrRunCompleted):
		writeError(w, http.StatusConflict, CodeConflict, "run "+runID+" already completed")
	default:
		h.logger.Error("resume failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "resume failed")
	}
}

func (h *Handler) scanMarkets(w http.ResponseWriter, r *http.Request) {
	if h.markets == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "no market provider configured")
		return
	}
	markets, err := h.markets.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, CodeUpstream, "market scan: "+err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, markets)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			checks["store"] = "fail: " + err.Error()
			healthy = false
		} else {
			checks["store"] = "pass"
		}
	}
	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
}
