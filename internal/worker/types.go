package worker

import (
	"context"

	"textbook-rag/apps/backend/features/job"
	"textbook-rag/apps/backend/internal/retrieval"
)

// IndexTask is the body published to config.TopicIndexTask.
type IndexTask struct {
	SourceID      string `json:"source_id"`
	Content       string `json:"content"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type Indexer interface {
	IndexDocument(ctx context.Context, sourceID, content string) (*retrieval.IndexReport, error)
}

type FailureRecorder interface {
	Record(ctx context.Context, j *job.Job) error
}
