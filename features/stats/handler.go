package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"textbook-rag/apps/backend/internal/middleware"
)

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

// Capabilities describes which collaborators were configured at startup.
type Capabilities struct {
	VectorBackend         string `json:"vector_backend"`
	SynthProvider         string `json:"synth_provider"`
	EmbedderConfigured    bool   `json:"embedder_configured"`
	SynthesizerConfigured bool   `json:"synthesizer_configured"`
	IndexWorkerEnabled    bool   `json:"index_worker_enabled"`
}

type Handler struct {
	jobRepo JobRepo
	caps    Capabilities
}

func NewHandler(j JobRepo, caps Capabilities) *Handler {
	return &Handler{jobRepo: j, caps: caps}
}

type StatsResponse struct {
	Capabilities
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	slog.InfoContext(ctx, "getting stats")

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{Capabilities: h.caps, FailedJobs: jCount}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
