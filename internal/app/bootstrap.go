package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	qstore "textbook-rag/apps/backend/internal/adapter/qdrant"
	wstore "textbook-rag/apps/backend/internal/adapter/weaviate"
	"textbook-rag/apps/backend/internal/config"
)

type Dependencies struct {
	DB          *sql.DB
	VectorStore VectorStore
	NSQProducer *nsq.Producer
	Providers   *Providers

	closers []func() error
}

// Close releases every connection opened by Bootstrap.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	for _, c := range d.closers {
		if err := c(); err != nil {
			slog.Warn("failed to close dependency", "error", err)
		}
	}
	if d.Providers != nil {
		if err := d.Providers.Close(); err != nil {
			slog.Warn("failed to close providers", "error", err)
		}
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// qdrantIndex fixes the collection dimension so the store satisfies VectorStore.
type qdrantIndex struct {
	*qstore.Store
	dims int
}

func (q *qdrantIndex) EnsureSchema(ctx context.Context) error {
	return q.Store.EnsureSchema(ctx, q.dims)
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Retry loop
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	deps := &Dependencies{DB: db}

	// Migrations
	if err := runMigrations(db, cfg.MigrationPath); err != nil {
		deps.Close()
		return nil, err
	}

	// Similarity index
	vecStore, closeStore, err := newVectorStore(cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.VectorStore = vecStore
	if closeStore != nil {
		deps.closers = append(deps.closers, closeStore)
	}

	if err := EnsureSchemaWithRetry(ctx, vecStore, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		deps.Close()
		return nil, fmt.Errorf("%s schema error: %w", cfg.VectorBackend, err)
	}

	// Providers
	providers, err := BuildProviders(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Providers = providers

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer

	// Topic pre-creation
	if cfg.NSQDHTTP != "" {
		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

func newVectorStore(cfg *config.Config) (VectorStore, func() error, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendWeaviate:
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, nil, fmt.Errorf("weaviate client error: %w", err)
		}
		return wstore.NewStore(wClient), nil, nil
	default:
		store, err := qstore.New(cfg.QdrantAddr, cfg.QdrantCollection)
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant client error: %w", err)
		}
		return &qdrantIndex{Store: store, dims: cfg.VectorDimension}, store.Close, nil
	}
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIndexTask)
	}()
}

// EnsureSchemaWithRetry retries the index schema check until it succeeds or attempts run out.
func EnsureSchemaWithRetry(ctx context.Context, store VectorStore, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ensure index schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
