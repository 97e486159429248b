package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/nsqio/go-nsq"

	"textbook-rag/apps/backend/features/chapter"
	"textbook-rag/apps/backend/features/chatbot"
	"textbook-rag/apps/backend/features/job"
	"textbook-rag/apps/backend/features/mcp"
	"textbook-rag/apps/backend/features/stats"
	"textbook-rag/apps/backend/internal/config"
	"textbook-rag/apps/backend/internal/middleware"
	"textbook-rag/apps/backend/internal/retrieval"
	"textbook-rag/apps/backend/internal/worker"
)

// VectorStore is the similarity index plus the startup schema check.
type VectorStore interface {
	retrieval.SimilarityIndex
	EnsureSchema(ctx context.Context) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler       http.Handler
	Retrieval     *retrieval.Service
	IndexConsumer *worker.IndexConsumer

	cfg         *config.Config
	queryLogger *retrieval.QueryLogger
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	taskPub TaskPublisher,
	providers *Providers,
	logger *slog.Logger,
) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath, cfg.QueryLogMaxSizeMB, cfg.QueryLogMaxBackups)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	retrievalService := retrieval.NewService(providers.Embedder, vecStore, providers.Synthesizer, queryLogger, retrieval.Options{
		MaxUnitSize:      cfg.SegmentMaxUnitSize,
		OverlapSize:      cfg.SegmentOverlap,
		EmbedConcurrency: cfg.EmbedConcurrency,
		MaxTokens:        cfg.SynthMaxTokens,
	})

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub, logger)
	jobHandler := job.NewHandler(jobService)

	// Feature: Chatbot & Chapter
	chatHandler := chatbot.NewHandler(retrievalService)
	chapterHandler := chapter.NewHandler(retrievalService, taskPub)

	// Feature: Stats
	statsHandler := stats.NewHandler(jobRepo, stats.Capabilities{
		VectorBackend:         cfg.VectorBackend,
		SynthProvider:         cfg.SynthProvider,
		EmbedderConfigured:    providers.Embedder != nil,
		SynthesizerConfigured: providers.Synthesizer != nil,
		IndexWorkerEnabled:    cfg.EnableIndexWorker,
	})

	mcpHandler := mcp.NewHandler(retrievalService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID, X-Request-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /chatbot/ask", middleware.CorrelationID(enableCORS(chatHandler.Ask)))

	mux.Handle("POST /chapters/{id}/index", middleware.CorrelationID(enableCORS(chapterHandler.Index)))
	mux.Handle("DELETE /chapters/{id}", middleware.CorrelationID(enableCORS(chapterHandler.Delete)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.Handle("POST /mcp", middleware.CorrelationID(mcpHandler))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:       mux,
		Retrieval:     retrievalService,
		IndexConsumer: worker.NewIndexConsumer(retrievalService, jobService),
		cfg:           cfg,
		queryLogger:   queryLogger,
	}, nil
}

// StartIndexWorker subscribes the index consumer to the index topic through nsqlookupd.
func (a *App) StartIndexWorker() (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(config.TopicIndexTask, config.ChannelIndexWorker, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.IndexConsumer)

	if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("connect to nsqlookupd: %w", err)
	}
	slog.Info("index worker connected", "topic", config.TopicIndexTask, "channel", config.ChannelIndexWorker)
	return consumer, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Close() error {
	if a.queryLogger != nil {
		return a.queryLogger.Close()
	}
	return nil
}
