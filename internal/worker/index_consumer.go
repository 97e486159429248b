package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"textbook-rag/apps/backend/features/job"
	"textbook-rag/apps/backend/internal/middleware"
)

const defaultIndexTimeout = 5 * time.Minute

// IndexConsumer indexes chapters published to the index topic. A failed index run is
// recorded in the failed-job ledger and acknowledged; replay goes through job retry.
type IndexConsumer struct {
	indexer  Indexer
	failures FailureRecorder
	timeout  time.Duration
}

func NewIndexConsumer(i Indexer, f FailureRecorder) *IndexConsumer {
	return &IndexConsumer{indexer: i, failures: f, timeout: defaultIndexTimeout}
}

func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IndexTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if task.SourceID == "" {
		slog.ErrorContext(ctx, "missing source_id, dropping")
		return nil
	}

	indexCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report, err := h.indexer.IndexDocument(indexCtx, task.SourceID, task.Content)
	if err != nil {
		slog.ErrorContext(ctx, "index task failed", "source_id", task.SourceID, "error", err)
		h.recordFailure(ctx, task, m.Body, err)
		return nil
	}

	slog.InfoContext(ctx, "index task completed",
		"source_id", report.SourceID,
		"units", report.UnitsProcessed,
		"length", report.TotalLength,
	)
	return nil
}

func (h *IndexConsumer) recordFailure(ctx context.Context, task IndexTask, body []byte, cause error) {
	if h.failures == nil {
		return
	}
	failed := &job.Job{
		SourceID: task.SourceID,
		Handler:  job.HandlerIndexWorker,
		Payload:  json.RawMessage(body),
		Error:    cause.Error(),
	}
	if err := h.failures.Record(ctx, failed); err != nil {
		// Don't return error here, the message would be redelivered and fail again
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
		return
	}
	slog.InfoContext(ctx, "saved failed job for retry", "job_id", failed.ID)
}
