package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"textbook-rag/apps/backend/internal/config"
)

// IntegrationSuite boots the backing services in containers. Postgres, Qdrant
// and nsqd always start; Weaviate only with WithWeaviate.
type IntegrationSuite struct {
	T          *testing.T
	DB         *sql.DB
	QdrantAddr string
	NSQ        *nsq.Producer
	NSQDAddr   string
	Weaviate   *weaviate.Client

	dbHost       string
	dbPort       int
	withWeaviate bool
	containers   []testcontainers.Container
}

type Option func(*IntegrationSuite)

func WithWeaviate() Option {
	return func(s *IntegrationSuite) { s.withWeaviate = true }
}

func NewIntegrationSuite(t *testing.T, opts ...Option) *IntegrationSuite {
	s := &IntegrationSuite{T: t}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()
	s.startPostgres(ctx)
	s.startQdrant(ctx)
	s.startNSQ(ctx)
	if s.withWeaviate {
		s.startWeaviate(ctx)
	}
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	for _, c := range s.containers {
		_ = c.Terminate(ctx)
	}
}

func (s *IntegrationSuite) startPostgres(ctx context.Context) {
	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("textbook_rag_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.containers = append(s.containers, pg)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	s.dbHost, err = pg.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := pg.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.dbPort = int(mapped.Num())

	_, b, _, _ := runtime.Caller(0)
	migrationPath := fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))

	m, err := migrate.New(migrationPath, connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) startQdrant(ctx context.Context) {
	c := s.run(ctx, testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.13.0",
		ExposedPorts: []string{"6333/tcp", "6334/tcp"},
		WaitingFor:   wait.ForHTTP("/readyz").WithPort("6333/tcp").WithStartupTimeout(60 * time.Second),
	})
	s.QdrantAddr = s.endpoint(ctx, c, "6334")
}

func (s *IntegrationSuite) startNSQ(ctx context.Context) {
	c := s.run(ctx, testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	})
	s.NSQDAddr = s.endpoint(ctx, c, "4150")

	var err error
	s.NSQ, err = nsq.NewProducer(s.NSQDAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) startWeaviate(ctx context.Context) {
	c := s.run(ctx, testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.25.0",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	})

	var err error
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.endpoint(ctx, c, "8080"), Scheme: "http"})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) run(ctx context.Context, req testcontainers.ContainerRequest) testcontainers.Container {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, c)
	return c
}

func (s *IntegrationSuite) endpoint(ctx context.Context, c testcontainers.Container, port string) string {
	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(s.T, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// GetAppConfig returns a configuration pointing at the suite's containers.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	_, b, _, _ := runtime.Caller(0)
	return &config.Config{
		DBHost:                     s.dbHost,
		DBPort:                     s.dbPort,
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "textbook_rag_test",
		MigrationPath:              fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b)),
		VectorBackend:              config.VectorBackendQdrant,
		QdrantAddr:                 s.QdrantAddr,
		QdrantCollection:           "textbook_chunks_test",
		VectorDimension:            4,
		SynthProvider:              config.SynthProviderAnthropic,
		SegmentMaxUnitSize:         512,
		SegmentOverlap:             50,
		EmbedConcurrency:           2,
		EmbedRatePerSec:            10,
		NSQDHost:                   s.NSQDAddr,
		BootstrapRetryAttempts:     5,
		BootstrapRetryDelaySeconds: 1,
	}
}
