// Package db wires the receipts store (component C4) together:
// embedded schema migrations plus the SQLite-backed repositories.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/swapbroker/swapd/internal/core/domain"
	"github.com/swapbroker/swapd/internal/core/ports"
	sqlitedb "github.com/swapbroker/swapd/internal/infrastructure/db/sqlite"
)

//go:embed sqlite/migration/*
var migrations embed.FS

type ServiceConfig struct {
	DbFile string
}

type service struct {
	tradeRepo       domain.TradeRepository
	listingLockRepo domain.ListingLockRepository
}

// NewService opens (creating if absent) the SQLite receipts store at
// config.DbFile, applies any pending schema migrations, and returns a
// ports.RepoManager over it.
func NewService(config ServiceConfig) (ports.RepoManager, error) {
	if config.DbFile == "" {
		return nil, fmt.Errorf("db file path is required")
	}

	sqldb, err := sqlitedb.OpenDb(config.DbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	driver, err := sqlitemigrate.WithInstance(sqldb, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to init migration driver: %w", err)
	}

	source, err := iofs.New(migrations, "sqlite/migration")
	if err != nil {
		return nil, fmt.Errorf("failed to embed migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "swapd", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := ApplyGoMigrations(context.Background(), sqldb, tradeGoMigrations()); err != nil {
		return nil, fmt.Errorf("failed to run go migrations: %w", err)
	}

	tradeRepo, err := sqlitedb.NewTradeRepository(sqldb)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade repository: %w", err)
	}
	listingLockRepo, err := sqlitedb.NewListingLockRepository(sqldb)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing lock repository: %w", err)
	}

	return &service{tradeRepo: tradeRepo, listingLockRepo: listingLockRepo}, nil
}

func (s *service) Trades() domain.TradeRepository             { return s.tradeRepo }
func (s *service) ListingLocks() domain.ListingLockRepository { return s.listingLockRepo }

func (s *service) Close() {
	s.tradeRepo.Close()
	// listingLockRepo shares the same *sql.DB handle; tradeRepo.Close()
	// already released the underlying connection.
}
