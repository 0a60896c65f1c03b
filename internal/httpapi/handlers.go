package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/errors"
)

// Handler serves engine views.
type Handler struct {
	engine *engine.Engine
}

type errorResponse struct {
	Error      string `json:"error"`
	Hint       string `json:"hint,omitempty"`
	Severity   string `json:"severity,omitempty"`
	Retryable  bool   `json:"retryable"`
	UserFacing bool   `json:"userFacing"`
}

type panicRequest struct {
	Reason string `json:"reason"`
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  string(h.engine.State()),
	})
}

// Status handles GET /v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Integrity handles GET /v1/integrity.
func (h *Handler) Integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.HealthCheck(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Risk handles GET /v1/risk?path=.
func (h *Handler) Risk(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required", "")
		return
	}
	score, err := h.engine.CalculateRisk(r.Context(), path)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// History handles GET /v1/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.History(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if entries == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Tasks handles GET /v1/tasks.
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Tasks())
}

// Task handles GET /v1/tasks/{id}.
func (h *Handler) Task(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.Task(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Panic handles POST /v1/panic with {"reason": "..."}.
func (h *Handler) Panic(w http.ResponseWriter, r *http.Request) {
	var req panicRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "panic requested over http"
	}
	packet, err := h.engine.Panic(r.Context(), req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, packet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, hint string) {
	writeJSON(w, status, errorResponse{Error: msg, Hint: hint})
}

// writeEngineError maps the error taxonomy onto status codes and carries
// the error's classification so clients can decide whether to retry.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		valErr      *errors.ValidationError
		notFoundErr *errors.NotFoundError
	)
	switch {
	case errors.IsPrecondition(err):
		status = http.StatusConflict
	case errors.As(err, &valErr), errors.Is(err, errors.ErrDelegationOutOfScope):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{
		Error:      err.Error(),
		Hint:       errors.Remediation(err),
		Severity:   errors.GetSeverity(err).String(),
		Retryable:  errors.IsRetryable(err),
		UserFacing: errors.IsUserFacing(err),
	})
}
