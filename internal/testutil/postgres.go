// Package testutil starts a throwaway Postgres for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"momo-checkout/internal/database"
)

const postgresImage = "postgres:16-alpine"

// Postgres is a running container with the schema applied.
type Postgres struct {
	container *postgres.PostgresContainer
	DB        *sql.DB
	DSN       string
}

// StartPostgres launches the container. Callers running under TestMain
// should treat an error as "Docker unavailable" and skip.
func StartPostgres(ctx context.Context) (pg *Postgres, err error) {
	defer func() {
		// testcontainers panics on some hosts without a Docker socket
		if r := recover(); r != nil {
			err = fmt.Errorf("start postgres: %v", r)
		}
	}()

	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("checkout"),
		postgres.WithUsername("checkout"),
		postgres.WithPassword("checkout"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, err
	}

	db, err := database.Open(ctx, dsn)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, err
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		_ = testcontainers.TerminateContainer(container)
		return nil, err
	}

	return &Postgres{container: container, DB: db, DSN: dsn}, nil
}

func (p *Postgres) Terminate() {
	if p == nil {
		return
	}
	p.DB.Close()
	if err := testcontainers.TerminateContainer(p.container); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
}

// Reset empties every table so each test starts from a clean catalog.
func (p *Postgres) Reset(t *testing.T) {
	t.Helper()
	_, err := p.DB.Exec(`TRUNCATE messages, payments, order_items, orders, products RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

// SkipIfUnavailable skips t when the shared container failed to start.
func SkipIfUnavailable(t *testing.T, p *Postgres, startErr error) {
	t.Helper()
	if p == nil {
		t.Skipf("postgres container unavailable: %v", startErr)
	}
}
