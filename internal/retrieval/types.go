package retrieval

import (
	"context"

	"textbook-rag/apps/backend/internal/text"
)

// TopK is the number of nearest units fetched for every question.
const TopK = 5

type UnitMetadata struct {
	SourceID      string        `json:"source_id"`
	SequenceIndex int           `json:"sequence_index"`
	Kind          text.UnitKind `json:"kind"`
	SourceLength  int           `json:"source_length"`
	Position      int           `json:"position_in_source"`
	TotalUnits    int           `json:"total_units_in_source"`
}

func MetadataFromUnit(u text.Unit) UnitMetadata {
	return UnitMetadata{
		SourceID:      u.SourceID,
		SequenceIndex: u.SequenceIndex,
		Kind:          u.Kind,
		SourceLength:  u.SourceLength,
		Position:      u.Position,
		TotalUnits:    u.TotalUnits,
	}
}

// IndexedVector is what gets written to the similarity index.
// ID is assigned at index time and is unrelated to SequenceIndex.
type IndexedVector struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata UnitMetadata
}

type RetrievedUnit struct {
	ID       string       `json:"unit_id"`
	Text     string       `json:"text"`
	Metadata UnitMetadata `json:"metadata"`
	Score    float32      `json:"similarity_score"`
}

type Citation struct {
	Rank            int     `json:"rank"`
	SourceID        string  `json:"source_id"`
	SectionRef      int     `json:"section_ref"`
	UnitID          string  `json:"unit_id"`
	SimilarityScore float32 `json:"similarity_score"`
	TextPreview     string  `json:"text_preview"`
}

type QueryResult struct {
	Question        string     `json:"question"`
	AnswerText      string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	Confidence      float64    `json:"confidence"`
	UnitsConsidered int        `json:"units_considered"`
	ChapterContext  string     `json:"chapter_context,omitempty"`
	Model           string     `json:"model,omitempty"`
	InputTokens     int        `json:"input_tokens,omitempty"`
	OutputTokens    int        `json:"output_tokens,omitempty"`
}

type IndexReport struct {
	SourceID       string `json:"source_id"`
	UnitsProcessed int    `json:"units_processed"`
	TotalLength    int    `json:"total_length"`
}

// Completion is the synthesizer's answer plus token accounting.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type SimilarityIndex interface {
	Upsert(ctx context.Context, v IndexedVector) error
	UpsertMany(ctx context.Context, vs []IndexedVector) error
	Search(ctx context.Context, vector []float32, k int) ([]RetrievedUnit, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
	DeleteBySource(ctx context.Context, sourceID string) error
}

type Synthesizer interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (*Completion, error)
}
