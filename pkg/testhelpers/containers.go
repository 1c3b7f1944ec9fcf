package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the stock image used for catalog-source integration tests.
const PostgresImage = "postgres:16-alpine"

// RedisImage is the image used for snapshot cache integration tests.
const RedisImage = "redis:7-alpine"

// seedSQL creates a small warehouse schema and analyzes it so pg_stats is
// populated.
const seedSQL = `
	CREATE TABLE customers (
		id     integer PRIMARY KEY,
		email  text NOT NULL UNIQUE,
		region varchar(16)
	);
	CREATE TABLE orders (
		id          integer PRIMARY KEY,
		customer_id integer NOT NULL REFERENCES customers(id),
		status      varchar(20) NOT NULL,
		note        text,
		placed_at   timestamptz NOT NULL DEFAULT now()
	);
	CREATE TABLE audit_events (
		payload jsonb
	);
	INSERT INTO customers (id, email, region)
	SELECT g, 'user' || g || '@example.com', CASE WHEN g % 4 = 0 THEN NULL ELSE 'eu' END
	FROM generate_series(1, 100) g;
	INSERT INTO orders (id, customer_id, status, note)
	SELECT g, 1 + (g % 100), CASE WHEN g % 2 = 0 THEN 'paid' ELSE 'open' END, NULL
	FROM generate_series(1, 500) g;
	ANALYZE;
`

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once, seeded with customers/orders/audit_events
// and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "warehouse",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The server logs readiness twice: once for the init run, once for real.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/warehouse?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if _, err := pool.Exec(ctx, seedSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to seed test schema: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// TestRedis holds a shared Redis container.
type TestRedis struct {
	Container testcontainers.Container
	Addr      string
}

var (
	sharedRedis     *TestRedis
	sharedRedisOnce sync.Once
	sharedRedisErr  error
)

// GetTestRedis returns a shared Redis container for integration tests.
func GetTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRedisOnce.Do(func() {
		sharedRedis, sharedRedisErr = setupTestRedis()
	})

	if sharedRedisErr != nil {
		t.Fatalf("Failed to setup test redis: %v", sharedRedisErr)
	}

	return sharedRedis
}

func setupTestRedis() (*TestRedis, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        RedisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &TestRedis{
		Container: container,
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
	}, nil
}
