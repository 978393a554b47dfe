package comparables

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/config"
	"github.com/sells-group/listing-intel/internal/db"
)

// Driver names accepted in comparables.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverStatic   = "static"
	DriverNone     = "none"
)

// OpenStore opens a writable store for the postgres or sqlite driver and
// runs its migration.
func OpenStore(ctx context.Context, cfg config.ComparablesConfig) (Store, error) {
	var st Store
	switch driver(cfg) {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("comparables: postgres driver requires database_url")
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "comparables: connect")
		}
		st = NewPostgres(pool)
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("comparables: sqlite driver requires database_url")
		}
		s, err := OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("comparables: driver %q is not writable", cfg.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// Open returns the Source selected by cfg and a function that releases it.
func Open(ctx context.Context, cfg config.ComparablesConfig) (Source, func(), error) {
	switch d := driver(cfg); d {
	case DriverPostgres, DriverSQLite:
		st, err := OpenStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				zap.L().Warn("comparables: close store", zap.Error(err))
			}
		}, nil
	case DriverStatic:
		if cfg.SeedFile == "" {
			return nil, nil, eris.New("comparables: static driver requires seed_file")
		}
		s, err := LoadStatic(cfg.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case DriverNone:
		return None{}, func() {}, nil
	default:
		return nil, nil, eris.Errorf("comparables: unknown driver %q", d)
	}
}

func driver(cfg config.ComparablesConfig) string {
	d := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if d == "" {
		return DriverNone
	}
	return d
}
