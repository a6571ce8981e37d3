// Package integration runs the rate archive against a real PostgreSQL
// started with testcontainers. These tests require Docker to be running and
// are skipped with -short.
//
// Usage:
//
//	go test ./tests/integration/
//
// One container is started for the package and terminated afterwards.
package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tropicaldog17/audtracker/internal/config"
	"github.com/tropicaldog17/audtracker/internal/db"
)

// TestContainer holds the PostgreSQL container and the migrated archive.
type TestContainer struct {
	Container testcontainers.Container
	DB        *db.DB
	Config    config.DatabaseConfig
}

func setupWithContext(ctx context.Context) (*TestContainer, error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("audtracker_test"),
		postgres.WithUsername("audtracker"),
		postgres.WithPassword("audtracker_password"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp").WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}
	tc := &TestContainer{Container: pgContainer}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		tc.terminate()
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		tc.terminate()
		return nil, fmt.Errorf("container port: %w", err)
	}

	tc.Config = config.DatabaseConfig{
		Driver:   "postgres",
		Host:     host,
		Port:     port.Port(),
		User:     "audtracker",
		Password: "audtracker_password",
		Name:     "audtracker_test",
		SSLMode:  "disable",
	}

	// the port can accept connections a moment before postgres is ready
	var database *db.DB
	for attempt := 0; attempt < 10; attempt++ {
		if database, err = db.Connect(tc.Config); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		tc.terminate()
		return nil, fmt.Errorf("connect to test database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		tc.terminate()
		return nil, err
	}
	tc.DB = database
	return tc, nil
}

// truncate empties the archive between tests.
func (tc *TestContainer) truncate() error {
	return tc.DB.Exec("TRUNCATE TABLE exchange_rates RESTART IDENTITY").Error
}

func (tc *TestContainer) terminate() {
	if tc.DB != nil {
		_ = tc.DB.Close()
	}
	if tc.Container != nil {
		_ = tc.Container.Terminate(context.Background())
	}
}
