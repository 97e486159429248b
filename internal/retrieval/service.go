package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"textbook-rag/apps/backend/internal/middleware"
	"textbook-rag/apps/backend/internal/text"
)

const (
	DefaultEmbedConcurrency = 4
	DefaultMaxTokens        = 1000
)

type Options struct {
	MaxUnitSize      int
	OverlapSize      int
	EmbedConcurrency int
	MaxTokens        int
}

type Service struct {
	embedder  Embedder
	index     SimilarityIndex
	synth     Synthesizer
	segmenter *text.Segmenter
	logger    *QueryLogger
	opts      Options
}

// NewService wires the pipeline. embedder and synth may be nil when their
// credentials are not configured; operations needing them then fail with
// ErrConfigurationMissing.
func NewService(e Embedder, idx SimilarityIndex, synth Synthesizer, l *QueryLogger, opts Options) *Service {
	if opts.MaxUnitSize <= 0 {
		opts.MaxUnitSize = text.DefaultMaxUnitSize
	}
	if opts.OverlapSize < 0 {
		opts.OverlapSize = 0
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Service{
		embedder:  e,
		index:     idx,
		synth:     synth,
		segmenter: text.NewSegmenter(opts.MaxUnitSize, opts.OverlapSize),
		logger:    l,
		opts:      opts,
	}
}

// IndexDocument segments text, embeds each unit and upserts it under a fresh
// id. The first failure cancels the remaining units; units already written
// stay in the index.
func (s *Service) IndexDocument(ctx context.Context, sourceID, content string) (*IndexReport, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider", ErrConfigurationMissing)
	}

	units := s.segmenter.Segment(sourceID, content)
	report := &IndexReport{
		SourceID:       sourceID,
		UnitsProcessed: len(units),
		TotalLength:    utf8.RuneCountInString(content),
	}
	if len(units) == 0 {
		return report, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedConcurrency)

	for _, u := range units {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, u.Text)
			if err != nil {
				return fmt.Errorf("%w: embed unit %d: %w", ErrUpstreamUnavailable, u.SequenceIndex, err)
			}
			iv := IndexedVector{
				ID:       uuid.NewString(),
				Vector:   vec,
				Text:     u.Text,
				Metadata: MetadataFromUnit(u),
			}
			if err := s.index.Upsert(gctx, iv); err != nil {
				return fmt.Errorf("%w: upsert unit %d: %w", ErrUpstreamUnavailable, u.SequenceIndex, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "indexing aborted", "source_id", sourceID, "units", len(units), "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "document indexed", "source_id", sourceID, "units", report.UnitsProcessed, "total_length", report.TotalLength)
	return report, nil
}

// AnswerQuestion embeds the question, retrieves the TopK nearest units and
// asks the synthesizer for a grounded answer. chapterContext is echoed back
// on the result and does not narrow the search.
func (s *Service) AnswerQuestion(ctx context.Context, question, chapterContext string) (*QueryResult, error) {
	start := time.Now()

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	if s.synth == nil {
		return nil, fmt.Errorf("%w: answer synthesizer", ErrConfigurationMissing)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider", ErrConfigurationMissing)
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrUpstreamUnavailable, err)
	}

	units, err := s.index.Search(ctx, vec, TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrUpstreamUnavailable, err)
	}

	result := &QueryResult{
		Question:       question,
		ChapterContext: chapterContext,
	}

	if len(units) == 0 {
		result.AnswerText = NoContextAnswer
		result.Citations = []Citation{}
		result.Confidence = confidenceNotFound
		s.logQuery(ctx, result, start)
		return result, nil
	}

	completion, err := s.synth.Complete(ctx, SystemPrompt, BuildPrompt(question, units), s.opts.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize: %w", ErrUpstreamUnavailable, err)
	}

	result.AnswerText = completion.Text
	result.Citations = DeriveCitations(units)
	result.Confidence = DeriveConfidence(completion.Text, units)
	result.UnitsConsidered = len(units)
	result.Model = completion.Model
	result.InputTokens = completion.InputTokens
	result.OutputTokens = completion.OutputTokens

	s.logQuery(ctx, result, start)
	return result, nil
}

// DeleteSource removes every indexed unit belonging to sourceID.
func (s *Service) DeleteSource(ctx context.Context, sourceID string) error {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}
	if err := s.index.DeleteBySource(ctx, sourceID); err != nil {
		return fmt.Errorf("%w: delete source %s: %w", ErrUpstreamUnavailable, sourceID, err)
	}
	slog.InfoContext(ctx, "source deleted from index", "source_id", sourceID)
	return nil
}

func (s *Service) logQuery(ctx context.Context, r *QueryResult, start time.Time) {
	if s.logger == nil {
		return
	}
	s.logger.Log(QueryLogEntry{
		Question:        r.Question,
		ChapterContext:  r.ChapterContext,
		UnitsConsidered: r.UnitsConsidered,
		Confidence:      r.Confidence,
		Model:           r.Model,
		Duration:        time.Since(start),
		CorrelationID:   middleware.GetCorrelationID(ctx),
	})
}
