package repository

import (
	"context"
	"fmt"

	"PriceFlow/internal/domain/models"
	"PriceFlow/internal/domain/repository"
	pkgch "PriceFlow/pkg/clickhouse"
)

// ClickHouseArchive stores unmodified provider payloads. The archive
// is append-only; rows are never updated or deleted.
type ClickHouseArchive struct {
	client *pkgch.Client
	table  string
}

// ArchiveSchema returns the statements needed before first insert.
func ArchiveSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			id String,
			symbol String,
			provider String,
			payload String,
			fetched_at DateTime64(3)
		) ENGINE = MergeTree ORDER BY (symbol, fetched_at)`, database, table),
	}
}

// NewClickHouseArchive creates a raw payload archive.
func NewClickHouseArchive(client *pkgch.Client, table string) repository.RawArchive {
	return &ClickHouseArchive{client: client, table: table}
}

func (a *ClickHouseArchive) Store(ctx context.Context, raw *models.RawMarketData) error {
	q := fmt.Sprintf("INSERT INTO %s (id, symbol, provider, payload, fetched_at) VALUES (?, ?, ?, ?, ?)", a.table)
	_, err := a.client.DB().ExecContext(ctx, q,
		raw.ID,
		raw.Symbol,
		raw.Provider,
		string(raw.Payload),
		raw.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("archive payload %s/%s: %w", raw.Provider, raw.Symbol, err)
	}
	return nil
}

func (a *ClickHouseArchive) Close() error {
	return nil // pool owned by pkg client
}

// NopArchive discards payloads when no archive backend is configured.
type NopArchive struct{}

func (NopArchive) Store(context.Context, *models.RawMarketData) error { return nil }
func (NopArchive) Close() error                                       { return nil }
