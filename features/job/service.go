package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"textbook-rag/apps/backend/internal/config"
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

const defaultPublishTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger, publishTimeout: defaultPublishTimeout}
}

// WithPublishTimeout overrides how long Retry waits for the broker.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	s.publishTimeout = d
	return s
}

func (s *Service) Record(ctx context.Context, j *Job) error {
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}
	s.logger.InfoContext(ctx, "failed job recorded", "job_id", j.ID, "source_id", j.SourceID, "handler", j.Handler)
	return nil
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Retry republishes the stored payload to the index topic and removes the job
// once the broker has accepted it.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.pub == nil {
		return errors.New("no task publisher configured")
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIndexTask, j.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("republish job %s: %w", id, err)
		}
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "job republished", "job_id", id, "topic", config.TopicIndexTask)
	return s.repo.Delete(ctx, id)
}
