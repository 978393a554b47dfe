package comparables

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-intel/internal/db"
	"github.com/sells-group/listing-intel/internal/model"
)

const postgresMigration = `
CREATE TABLE IF NOT EXISTS market_comparables (
	location_key  TEXT NOT NULL,
	property_type TEXT NOT NULL,
	ref           TEXT NOT NULL,
	location      TEXT NOT NULL,
	price         DOUBLE PRECISION NOT NULL CHECK (price > 0),
	observed_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (location_key, property_type, ref)
);

CREATE INDEX IF NOT EXISTS idx_market_comparables_recent
	ON market_comparables(location_key, property_type, observed_at DESC);
`

const postgresSelectPrices = `SELECT price FROM market_comparables
WHERE location_key = $1 AND property_type = $2
ORDER BY observed_at DESC
LIMIT $3`

const postgresUpsertSuffix = `
ON CONFLICT (location_key, property_type, ref) DO UPDATE SET
	location = EXCLUDED.location,
	price = EXCLUDED.price,
	observed_at = EXCLUDED.observed_at`

// upsertChunk keeps each statement well under the 65535 parameter limit.
const upsertChunk = 1000

// PostgresSource reads and seeds the market_comparables table.
type PostgresSource struct {
	pool db.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool db.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Migrate creates the comparables table if it does not exist.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "comparables: postgres migrate")
}

// GetComparables implements Source.
func (s *PostgresSource) GetComparables(ctx context.Context, location, propertyType string) (*model.ComparableContext, error) {
	return lookup(ctx, location, propertyType, s.prices)
}

func (s *PostgresSource) prices(ctx context.Context, locationKey, typeKey string) ([]float64, error) {
	rows, err := s.pool.Query(ctx, postgresSelectPrices, locationKey, typeKey, maxSample)
	if err != nil {
		return nil, eris.Wrap(err, "comparables: postgres query")
	}
	prices, err := pgx.CollectRows(rows, pgx.RowTo[float64])
	if err != nil {
		return nil, eris.Wrap(err, "comparables: postgres scan")
	}
	return prices, nil
}

// Upsert inserts or updates records keyed by location, type and ref. All
// chunks are written in one transaction.
func (s *PostgresSource) Upsert(ctx context.Context, records []Record) (int64, error) {
	keyed, err := prepare(records, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if len(keyed) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "comparables: postgres begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	for start := 0; start < len(keyed); start += upsertChunk {
		end := min(start+upsertChunk, len(keyed))
		sql, args := upsertStatement(keyed[start:end])
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, eris.Wrap(err, "comparables: postgres upsert")
		}
		total += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "comparables: postgres commit")
	}
	return total, nil
}

// upsertStatement renders one multi-row INSERT for recs.
func upsertStatement(recs []keyedRecord) (string, []any) {
	const cols = 6
	var b strings.Builder
	b.WriteString("INSERT INTO market_comparables (location_key, property_type, ref, location, price, observed_at) VALUES ")

	args := make([]any, 0, len(recs)*cols)
	for i, r := range recs {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * cols
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, r.LocationKey, r.TypeKey, r.Ref, r.Location, r.Price, r.ObservedAt)
	}
	b.WriteString(postgresUpsertSuffix)
	return b.String(), args
}

// Close closes the pool.
func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}
