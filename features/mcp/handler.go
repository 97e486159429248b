package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"textbook-rag/apps/backend/internal/middleware"
	"textbook-rag/apps/backend/internal/retrieval"
)

const ToolAnswerQuestion = "answer_question"

type Answerer interface {
	AnswerQuestion(ctx context.Context, question, chapterContext string) (*retrieval.QueryResult, error)
}

type Handler struct {
	answerer Answerer
}

func NewHandler(a Answerer) *Handler {
	return &Handler{answerer: a}
}

// JSON-RPC Request types
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type AnswerArgs struct {
	Question  string `json:"question"`
	ChapterID string `json:"chapter_id,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// JSON-RPC Response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

var answerTool = Tool{
	Name: ToolAnswerQuestion,
	Description: `Answers a question about the indexed textbook content. The answer is grounded only in retrieved passages and cites them as [SOURCE n].

USAGE EXAMPLE:
answer_question(question="What are the phases of mitosis?", chapter_id="biology-ch5")`,
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"question": map[string]string{
				"type":        "string",
				"description": "The question to answer",
			},
			"chapter_id": map[string]string{
				"type":        "string",
				"description": "Chapter the reader is currently viewing (informational)",
			},
		},
		"required": []string{"question"},
	},
}

// ProcessRequest handles one JSON-RPC request. It returns nil for notifications.
func (h *Handler) ProcessRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "textbook-rag-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  ListToolsResult{Tools: []Tool{answerTool}},
		}
	case "tools/call":
		return h.callTool(ctx, req)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func (h *Handler) callTool(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
		return &resp
	}

	if params.Name != ToolAnswerQuestion {
		slog.WarnContext(ctx, "method not found", "method", params.Name)
		resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found: "+params.Name)
		return &resp
	}

	var args AnswerArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil {
		slog.WarnContext(ctx, "invalid answer_question arguments", "error", err)
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid arguments")
		return &resp
	}
	if strings.TrimSpace(args.Question) == "" {
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Question is required")
		return &resp
	}

	result, err := h.answerer.AnswerQuestion(ctx, args.Question, args.ChapterID)
	if err != nil {
		slog.ErrorContext(ctx, "answer_question failed", "error", err)
		if errors.Is(err, retrieval.ErrInvalidInput) {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, err.Error())
			return &resp
		}
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: ToolResult{
				Content: []ToolContent{{Type: "text", Text: "Error: " + err.Error()}},
				IsError: true,
			},
		}
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", ToolAnswerQuestion, "units_considered", result.UnitsConsidered)
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: formatAnswer(result)}},
		},
	}
}

func formatAnswer(r *retrieval.QueryResult) string {
	var b strings.Builder
	b.WriteString(r.AnswerText)
	fmt.Fprintf(&b, "\n\nConfidence: %.2f\n", r.Confidence)
	if len(r.Citations) > 0 {
		b.WriteString("\nSources:\n")
		for _, c := range r.Citations {
			fmt.Fprintf(&b, "[SOURCE %d] %s (section %d, score %.3f): %s\n", c.Rank, c.SourceID, c.SectionRef, c.SimilarityScore, c.TextPreview)
		}
	}
	return b.String()
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "mcp request received", "method", r.Method, "path", r.URL.Path)

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, nil, ErrParse, "Parse error")
		return
	}
	if req.JSONRPC != "2.0" {
		h.writeError(w, req.ID, ErrInvalidRequest, "Invalid Request")
		return
	}

	resp := h.ProcessRequest(ctx, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err, "correlation_id", middleware.GetCorrelationID(ctx))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(makeErrorResponse(id, code, message)); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
