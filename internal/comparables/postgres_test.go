package comparables

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresSource, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgres(mock), mock
}

const selectPricesRe = `SELECT price FROM market_comparables\s+WHERE location_key = \$1 AND property_type = \$2`

func TestPostgresSource_GetComparables(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(selectPricesRe).WithArgs("alfama, lisboa", "apartment", maxSample).
		WillReturnRows(mock.NewRows([]string{"price"}))
	mock.ExpectQuery(selectPricesRe).WithArgs("alfama", "apartment", maxSample).
		WillReturnRows(mock.NewRows([]string{"price"}))
	mock.ExpectQuery(selectPricesRe).WithArgs("lisboa", "apartment", maxSample).
		WillReturnRows(mock.NewRows([]string{"price"}).AddRow(260000.0).AddRow(240000.0).AddRow(200000.0))

	got, err := s.GetComparables(context.Background(), "Alfama, Lisboa", "apartment")
	require.NoError(t, err)
	assert.Equal(t, "lisboa", got.Location)
	assert.Equal(t, 3, got.SampleSize)
	assert.InDelta(t, 240000, got.MedianPrice(), 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_GetComparables_QueryError(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(selectPricesRe).WithArgs("faro", "house", maxSample).WillReturnError(pgx.ErrTxClosed)

	_, err := s.GetComparables(context.Background(), "Faro", "house")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comparables: postgres query")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_Migrate(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS market_comparables`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_Upsert(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO market_comparables \(location_key, property_type, ref, location, price, observed_at\) VALUES \(\$1, .*\), \(\$7, .*\$12\)\s+ON CONFLICT \(location_key, property_type, ref\) DO UPDATE`).
		WithArgs("lisboa", "apartment", "a1", "Lisboa", 240000.0, pgxmock.AnyArg(),
			"porto", "house", "p1", "Porto", 390000.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.Upsert(context.Background(), []Record{
		{Location: "Lisboa", Type: "apartment", Price: 240000, Ref: "a1"},
		{Location: "Porto", Type: "house", Price: 390000, Ref: "p1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_UpsertRollsBackOnError(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO market_comparables`).WillReturnError(pgx.ErrTxClosed)
	mock.ExpectRollback()

	_, err := s.Upsert(context.Background(), []Record{{Location: "Lisboa", Type: "apartment", Price: 240000, Ref: "a1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comparables: postgres upsert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStatement_Placeholders(t *testing.T) {
	recs := make([]keyedRecord, 3)
	sql, args := upsertStatement(recs)
	assert.Len(t, args, 18)
	assert.Contains(t, sql, "($13, $14, $15, $16, $17, $18)")
	assert.NotContains(t, sql, "$19")
}

func TestPostgresSource_UpsertRejectsInvalid(t *testing.T) {
	s, mock := newMockPostgres(t)

	_, err := s.Upsert(context.Background(), []Record{{Location: "Lisboa", Price: 0}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
