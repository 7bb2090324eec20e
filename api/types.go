package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/store"
)

// Response is the uniform API envelope.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorInfo describes an API failure.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in responses.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeUpstream       = "UPSTREAM_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// CreateRunRequest starts a run for a market, referenced by condition ID or
// supplied inline.
type CreateRunRequest struct {
	ConditionID string         `json:"condition_id,omitempty"`
	Market      *market.Market `json:"market,omitempty"`
	MaxAnalysts int            `json:"max_analysts,omitempty"`
}

// CreateRunResponse returns the new run's identifier.
type CreateRunResponse struct {
	RunID string `json:"run_id"`
}

// RunStatusResponse is the latest checkpointed view of a run.
type RunStatusResponse struct {
	RunID       string          `json:"run_id"`
	Status      store.Status    `json:"status"`
	Stage       string          `json:"stage,omitempty"`
	Next        string          `json:"next,omitempty"`
	FailedStage string          `json:"failed_stage,omitempty"`
	Error       string          `json:"error,omitempty"`
	Version     int             `json:"version"`
	State       json.RawMessage `json:"state,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Response{Success: true, Data: data, Timestamp: time.Now()})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}
