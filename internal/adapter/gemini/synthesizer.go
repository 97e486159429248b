package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"textbook-rag/apps/backend/internal/retrieval"
)

const (
	DefaultChatModel = "gemini-1.5-flash"
	temperature      = 0.3
)

type Synthesizer struct {
	client *genai.Client
	model  string
}

func NewSynthesizer(client *genai.Client, model string) *Synthesizer {
	if model == "" {
		model = DefaultChatModel
	}
	return &Synthesizer{client: client, model: model}
}

func (s *Synthesizer) Complete(ctx context.Context, system, prompt string, maxTokens int) (*retrieval.Completion, error) {
	gm := s.client.GenerativeModel(s.model)
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	gm.SetMaxOutputTokens(int32(maxTokens)) // #nosec G115 -- bounded by config
	gm.SetTemperature(temperature)

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "gemini generation failed", "model", s.model, "error", err)
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}

	c := &retrieval.Completion{Text: b.String(), Model: s.model}
	if resp.UsageMetadata != nil {
		c.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		c.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return c, nil
}
