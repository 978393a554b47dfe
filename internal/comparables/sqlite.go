package comparables

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listing-intel/internal/model"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS market_comparables (
	location_key  TEXT NOT NULL,
	property_type TEXT NOT NULL,
	ref           TEXT NOT NULL,
	location      TEXT NOT NULL,
	price         REAL NOT NULL CHECK (price > 0),
	observed_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (location_key, property_type, ref)
);

CREATE INDEX IF NOT EXISTS idx_market_comparables_recent
	ON market_comparables(location_key, property_type, observed_at DESC);
`

const sqliteUpsert = `INSERT INTO market_comparables (location_key, property_type, ref, location, price, observed_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (location_key, property_type, ref) DO UPDATE SET
	location = excluded.location,
	price = excluded.price,
	observed_at = excluded.observed_at`

const sqliteSelectPrices = `SELECT price FROM market_comparables
WHERE location_key = ? AND property_type = ?
ORDER BY observed_at DESC
LIMIT ?`

// SQLiteSource stores comparables in a local SQLite database.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database at dsn and configures WAL mode.
func OpenSQLite(dsn string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "comparables: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "comparables: sqlite exec %s", pragma)
		}
	}
	return &SQLiteSource{db: db}, nil
}

// Migrate creates the comparables table if it does not exist.
func (s *SQLiteSource) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "comparables: sqlite migrate")
}

// GetComparables implements Source.
func (s *SQLiteSource) GetComparables(ctx context.Context, location, propertyType string) (*model.ComparableContext, error) {
	return lookup(ctx, location, propertyType, s.prices)
}

func (s *SQLiteSource) prices(ctx context.Context, locationKey, typeKey string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectPrices, locationKey, typeKey, maxSample)
	if err != nil {
		return nil, eris.Wrap(err, "comparables: sqlite query")
	}
	defer rows.Close() //nolint:errcheck

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "comparables: sqlite scan")
		}
		prices = append(prices, p)
	}
	return prices, eris.Wrap(rows.Err(), "comparables: sqlite rows")
}

// Upsert inserts or updates records in a single transaction.
func (s *SQLiteSource) Upsert(ctx context.Context, records []Record) (int64, error) {
	keyed, err := prepare(records, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if len(keyed) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "comparables: sqlite begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "comparables: sqlite prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range keyed {
		res, err := stmt.ExecContext(ctx, r.LocationKey, r.TypeKey, r.Ref, r.Location, r.Price, r.ObservedAt.UTC())
		if err != nil {
			return 0, eris.Wrapf(err, "comparables: sqlite upsert %s", r.Location)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "comparables: sqlite commit")
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
