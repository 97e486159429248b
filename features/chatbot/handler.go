package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"textbook-rag/apps/backend/internal/middleware"
	"textbook-rag/apps/backend/internal/retrieval"
)

type Answerer interface {
	AnswerQuestion(ctx context.Context, question, chapterContext string) (*retrieval.QueryResult, error)
}

type Handler struct {
	service Answerer
}

func NewHandler(s Answerer) *Handler {
	return &Handler{service: s}
}

type AskRequest struct {
	Question         string `json:"question"`
	ChapterID        string `json:"chapter_id,omitempty"`
	IncludeCitations *bool  `json:"include_citations,omitempty"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Question is required", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "answering question", "chapter_id", req.ChapterID, "question_len", len(req.Question))

	result, err := h.service.AnswerQuestion(ctx, req.Question, req.ChapterID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to answer question", "error", err)
		code, status := errorStatus(err)
		h.writeError(ctx, w, code, err.Error(), status)
		return
	}

	if req.IncludeCitations != nil && !*req.IncludeCitations {
		result.Citations = []retrieval.Citation{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": result}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
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
