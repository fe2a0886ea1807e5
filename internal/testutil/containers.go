// Package testutil starts the Postgres and S3 containers used by integration and e2e tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloo-solutions/crmkb/internal/database"
)

const (
	pgImage    = "pgvector/pgvector:0.8.1-pg18"
	pgUser     = "kb"
	pgPassword = "kb"
	pgDatabase = "kb"

	rustfsImage = "rustfs/rustfs:latest"
	// RustFSAccessKey doubles as the secret key.
	RustFSAccessKey = "rustfsadmin"
)

// PostgresContainer is a pgvector-enabled Postgres instance.
type PostgresContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, string) {
	t.Helper()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("%s host: %v", req.Image, err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("%s port %s: %v", req.Image, port, err)
	}
	return c, host, mapped.Port()
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	t.Helper()
	c, host, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        pgImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		},
		// The entrypoint restarts postgres once after init, hence two ready lines.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(time.Minute),
	}, "5432")
	return &PostgresContainer{Container: c, Host: host, Port: port}
}

func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, pc.Host, pc.Port, pgDatabase)
}

func (pc *PostgresContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(pc.Container)
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	t.Helper()
	c, host, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSAccessKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")
	return &RustFSContainer{Container: c, Host: host, Port: port}
}

func (rc *RustFSContainer) Endpoint() string {
	return "http://" + rc.Host + ":" + rc.Port
}

func (rc *RustFSContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(rc.Container)
}

// NewTestPool migrates the container database with the production migration runner and returns
// a small pool on it.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()
	url := pc.ConnectionString()
	if err := database.RunMigrations(url, migrationsDir, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := database.NewPool(ctx, database.Config{URL: url, MaxConns: 4})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

// UnitVector returns a dims-long vector with weight 1 at position hot, handy for predictable
// cosine similarities.
func UnitVector(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot%dims] = 1
	return v
}

// BlendVector mixes two unit axes so similarity to either axis can be tuned.
func BlendVector(dims, a, b int, weightA float32) []float32 {
	v := make([]float32, dims)
	v[a%dims] = weightA
	v[b%dims] += 1 - weightA
	return v
}
