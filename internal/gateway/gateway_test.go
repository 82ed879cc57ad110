package gateway

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockOpener struct {
	db      *sql.DB
	calls   int
	drivers []string
	dsns    []string
}

func (m *mockOpener) open(driverName, dsn string) (*sql.DB, error) {
	m.calls++
	m.drivers = append(m.drivers, driverName)
	m.dsns = append(m.dsns, dsn)
	return m.db, nil
}

func newMockGateway(t *testing.T, files ...string) (*Gateway, sqlmock.Sqlmock, *mockOpener) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	opener := &mockOpener{db: db}
	gw, err := New(Config{Dir: dir, ReadOnly: true, Opener: opener.open})
	require.NoError(t, err)
	return gw, mock, opener
}

func expectTables(mock sqlmock.Sqlmock, names ...string) {
	rows := sqlmock.NewRows([]string{"name"})
	for _, name := range names {
		rows.AddRow(name)
	}
	mock.ExpectQuery(regexp.QuoteMeta(SQLite{}.ListTablesQuery())).WillReturnRows(rows)
}

func expectColumns(mock sqlmock.Sqlmock, table string, names ...string) {
	rows := sqlmock.NewRows([]string{"name"})
	for _, name := range names {
		rows.AddRow(name)
	}
	mock.ExpectQuery(regexp.QuoteMeta(SQLite{}.ListColumnsQuery())).WithArgs(table).WillReturnRows(rows)
}

func TestListTablesRejectsInvalidNamesWithoutOpening(t *testing.T) {
	gw, mock, opener := newMockGateway(t, "notes.txt", "upper.DB")

	for _, name := range []string{"", "notes.txt", "upper.DB", "../escape.db", "nested/app.db", `nested\app.db`, "..", "missing.db"} {
		_, err := gw.ListTables(context.Background(), name)
		var invalid *InvalidArgumentError
		require.ErrorAs(t, err, &invalid, "name %q", name)
	}
	assert.Equal(t, 0, opener.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTablesReturnsCatalogAndReleasesConnection(t *testing.T) {
	gw, mock, opener := newMockGateway(t, "app.db")
	expectTables(mock, "orders", "users")
	mock.ExpectClose()

	tables, err := gw.ListTables(context.Background(), "app.db")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)

	require.Equal(t, []string{"sqlite"}, opener.drivers)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(gw.Dir(), "app.db"))+"?mode=ro", opener.dsns[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTablesPassesEngineMessageThrough(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "broken.sqlite")
	mock.ExpectQuery(regexp.QuoteMeta(SQLite{}.ListTablesQuery())).WillReturnError(errors.New("file is not a database"))
	mock.ExpectClose()

	_, err := gw.ListTables(context.Background(), "broken.sqlite")
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "file is not a database", storageErr.Error())
	assert.Equal(t, "list_tables", storageErr.Op)
	assert.Equal(t, "broken.sqlite", storageErr.Database)
	assert.Equal(t, "sqlite", storageErr.Engine)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListColumnsValidatesTableAgainstCatalog(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "app.db")
	expectTables(mock, "users")
	mock.ExpectClose()

	_, err := gw.ListColumns(context.Background(), "app.db", "users); DROP TABLE users; --")
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListColumnsBindsTableName(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "app.db")
	expectTables(mock, "users")
	expectColumns(mock, "users", "id", "name", "email")
	mock.ExpectClose()

	columns, err := gw.ListColumns(context.Background(), "app.db", "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email"}, columns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchDataRejectsInjectedTableBeforeQuerying(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "app.db")
	expectTables(mock, "users")
	mock.ExpectClose()

	_, err := gw.FetchData(context.Background(), DataRequest{Database: "app.db", Table: "users; DROP TABLE users"})
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchDataRejectsUnknownSearchColumn(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "app.db")
	expectTables(mock, "users")
	expectColumns(mock, "users", "id", "name")
	mock.ExpectClose()

	_, err := gw.FetchData(context.Background(), DataRequest{
		Database:     "app.db",
		Table:        "users",
		SearchColumn: "name = name OR 1",
		SearchText:   "x",
	})
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchDataBindsSearchTextAsSubstring(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "app.db")
	expectTables(mock, "users")
	expectColumns(mock, "users", "id", "name")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE instr(CAST("name" AS TEXT), ?) > 0`)).
		WithArgs("lic").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("alice")).
			AddRow(int64(2), "Alicia"))
	mock.ExpectClose()

	result, err := gw.FetchData(context.Background(), DataRequest{
		Database:     "app.db",
		Table:        "users",
		SearchColumn: "name",
		SearchText:   "lic",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "name": "alice"},
		{"id": int64(2), "name": "Alicia"},
	}, result.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchDataIgnoresHalfSpecifiedSearch(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "app.db")
	expectTables(mock, "users")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`) + "$").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectClose()

	result, err := gw.FetchData(context.Background(), DataRequest{Database: "app.db", Table: "users", SearchColumn: "name"})
	require.NoError(t, err)
	assert.NotNil(t, result.Rows)
	assert.Empty(t, result.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchDataReleasesConnectionOnQueryError(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "app.db")
	expectTables(mock, "users")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).WillReturnError(errors.New("database is locked"))
	mock.ExpectClose()

	_, err := gw.FetchData(context.Background(), DataRequest{Database: "app.db", Table: "users"})
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "database is locked", err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteIdentEscapesDoubleQuotes(t *testing.T) {
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
	assert.Equal(t, `SELECT * FROM "a b"`, selectAllStatement("a b"))
}

func TestNormalizeValueKeepsRowsEncodable(t *testing.T) {
	ts := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{[]byte("raw"), "raw"},
		{int64(7), int64(7)},
		{1.5, 1.5},
		{ts, ts},
		{math.Inf(1), "+Inf"},
		{math.Inf(-1), "-Inf"},
		{math.NaN(), "NaN"},
		{float32(math.Inf(1)), "+Inf"},
		{map[any]any{"a": 1}, "map[a:1]"},
		{[]any{"x", int64(1)}, []any{"x", int64(1)}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeValue(tc.in), "input %#v", tc.in)
	}
}

func TestMatchIdentifierPrefersExactThenFoldsASCII(t *testing.T) {
	names := []string{"Users", "users_archive", "Straße"}

	got, ok := matchIdentifier(names, "Users")
	assert.True(t, ok)
	assert.Equal(t, "Users", got)

	got, ok = matchIdentifier(names, "USERS")
	assert.True(t, ok)
	assert.Equal(t, "Users", got)

	_, ok = matchIdentifier(names, "users; DROP TABLE users")
	assert.False(t, ok)

	_, ok = matchIdentifier(names, "STRASSE")
	assert.False(t, ok)
}

func TestFetchDataInterpolatesCatalogSpelling(t *testing.T) {
	gw, mock, _ := newMockGateway(t, "app.db")
	expectTables(mock, "Users")
	expectColumns(mock, "Users", "id", "Name")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "Users" WHERE instr(CAST("Name" AS TEXT), ?) > 0`)).
		WithArgs("bo").
		WillReturnRows(sqlmock.NewRows([]string{"id", "Name"}).AddRow(int64(1), "bob"))
	mock.ExpectClose()

	result, err := gw.FetchData(context.Background(), DataRequest{
		Database:     "app.db",
		Table:        "users",
		SearchColumn: "name",
		SearchText:   "bo",
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
