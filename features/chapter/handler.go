package chapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"textbook-rag/apps/backend/internal/config"
	"textbook-rag/apps/backend/internal/middleware"
	"textbook-rag/apps/backend/internal/retrieval"
	"textbook-rag/apps/backend/internal/worker"
)

type Indexer interface {
	IndexDocument(ctx context.Context, sourceID, content string) (*retrieval.IndexReport, error)
	DeleteSource(ctx context.Context, sourceID string) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type Handler struct {
	service Indexer
	pub     TaskPublisher
}

func NewHandler(s Indexer, pub TaskPublisher) *Handler {
	return &Handler{service: s, pub: pub}
}

// Index indexes the chapter synchronously, or queues it on the index topic
// when the async query flag is set.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Chapter ID is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		h.enqueue(ctx, w, id, req.Content)
		return
	}

	report, err := h.service.IndexDocument(ctx, id, req.Content)
	if err != nil {
		slog.ErrorContext(ctx, "failed to index chapter", "chapter_id", id, "error", err)
		code, status := errorStatus(err)
		h.writeError(ctx, w, code, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": report}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) enqueue(ctx context.Context, w http.ResponseWriter, id, content string) {
	if h.pub == nil {
		h.writeError(ctx, w, "NOT_CONFIGURED", "Task queue is not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := json.Marshal(worker.IndexTask{
		SourceID:      id,
		Content:       content,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.pub.Publish(config.TopicIndexTask, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish index task", "chapter_id", id, "error", err)
		h.writeError(ctx, w, "UPSTREAM_UNAVAILABLE", "Failed to queue index task", http.StatusBadGateway)
		return
	}

	slog.InfoContext(ctx, "index task queued", "chapter_id", id, "topic", config.TopicIndexTask)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"source_id": id, "status": "queued"}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Chapter ID is required", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteSource(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to delete chapter", "chapter_id", id, "error", err)
		code, status := errorStatus(err)
		h.writeError(ctx, w, code, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func errorStatus(err error) (string, int) {
	switch {
	case errors.Is(err, retrieval.ErrInvalidInput):
		return "VALIDATION_ERROR", http.StatusBadRequest
	case errors.Is(err, retrieval.ErrConfigurationMissing):
		return "NOT_CONFIGURED", http.StatusServiceUnavailable
	case errors.Is(err, retrieval.ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE", http.StatusBadGateway
	default:
		return "INTERNAL_ERROR", http.StatusInternalServerError
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
