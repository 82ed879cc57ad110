package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createSQLiteFixture writes a small database with two tables into dir.
func createSQLiteFixture(t *testing.T, dir, name string) {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(dir, name))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT
		);
		CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			total REAL
		);
		CREATE TABLE "we""ird" (v TEXT);

		INSERT INTO users (id, name, email) VALUES
			(1, 'alice', 'alice@example.com'),
			(2, 'Alicia', NULL),
			(3, 'bob', 'bob@example.com');
		INSERT INTO orders (id, user_id, total) VALUES (10, 1, 9.5);
		INSERT INTO "we""ird" (v) VALUES ('quoted');
	`)
	require.NoError(t, err)
}

func newSQLiteGateway(t *testing.T) *Gateway {
	t.Helper()
	dir := t.TempDir()
	createSQLiteFixture(t, dir, "shop.db")
	gw, err := New(Config{Dir: dir, ReadOnly: true})
	require.NoError(t, err)
	return gw
}

func TestListDatabasesOnEmptyDirectory(t *testing.T) {
	gw, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)

	names, err := gw.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestListDatabasesFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.sqlite", "c.duckdb", "notes.txt", "d.db-journal"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.db"), 0o755))

	gw, err := New(Config{Dir: dir})
	require.NoError(t, err)

	names, err := gw.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.db", "b.sqlite", "c.duckdb"}, names)
}

func TestSQLiteListTables(t *testing.T) {
	gw := newSQLiteGateway(t)

	tables, err := gw.ListTables(context.Background(), "shop.db")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users", "orders", `we"ird`}, tables)
}

func TestSQLiteListColumnsInTableOrder(t *testing.T) {
	gw := newSQLiteGateway(t)

	columns, err := gw.ListColumns(context.Background(), "shop.db", "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email"}, columns)
}

func TestSQLiteFetchDataWithoutSearchReturnsEveryRow(t *testing.T) {
	gw := newSQLiteGateway(t)

	result, err := gw.FetchData(context.Background(), DataRequest{Database: "shop.db", Table: "users"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email"}, result.Columns)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, map[string]any{"id": int64(1), "name": "alice", "email": "alice@example.com"}, result.Rows[0])
	assert.Nil(t, result.Rows[1]["email"])
}

func TestSQLiteFetchDataSearchMatchesSubstrings(t *testing.T) {
	gw := newSQLiteGateway(t)

	result, err := gw.FetchData(context.Background(), DataRequest{
		Database:     "shop.db",
		Table:        "users",
		SearchColumn: "name",
		SearchText:   "lic",
	})
	require.NoError(t, err)
	names := make([]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		names = append(names, row["name"])
	}
	assert.ElementsMatch(t, []any{"alice", "Alicia"}, names)
}

func TestSQLiteFetchDataSearchIsCaseSensitive(t *testing.T) {
	gw := newSQLiteGateway(t)

	result, err := gw.FetchData(context.Background(), DataRequest{
		Database:     "shop.db",
		Table:        "users",
		SearchColumn: "name",
		SearchText:   "Ali",
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Alicia", result.Rows[0]["name"])
}

func TestSQLiteFetchDataSearchesNumericColumnsAsText(t *testing.T) {
	gw := newSQLiteGateway(t)

	result, err := gw.FetchData(context.Background(), DataRequest{
		Database:     "shop.db",
		Table:        "users",
		SearchColumn: "id",
		SearchText:   "2",
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(2), result.Rows[0]["id"])
}

func TestSQLiteFetchDataQuotesIdentifiers(t *testing.T) {
	gw := newSQLiteGateway(t)

	result, err := gw.FetchData(context.Background(), DataRequest{Database: "shop.db", Table: `we"ird`})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "quoted", result.Rows[0]["v"])
}

func TestSQLiteInjectionAttemptIsRejectedAndHarmless(t *testing.T) {
	gw := newSQLiteGateway(t)
	ctx := context.Background()

	_, err := gw.FetchData(ctx, DataRequest{Database: "shop.db", Table: "users; DROP TABLE users"})
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)

	_, err = gw.ListColumns(ctx, "shop.db", "users); DROP TABLE orders; --")
	require.ErrorAs(t, err, &invalid)

	tables, err := gw.ListTables(ctx, "shop.db")
	require.NoError(t, err)
	assert.Contains(t, tables, "users")
	assert.Contains(t, tables, "orders")
}

func TestSQLiteCorruptFileIsStorageError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.sqlite"), []byte("this is not a database file at all, just text padding it out"), 0o600))
	gw, err := New(Config{Dir: dir, ReadOnly: true})
	require.NoError(t, err)

	_, err = gw.ListTables(context.Background(), "broken.sqlite")
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.NotEmpty(t, storageErr.Error())
}

func TestSQLiteReadOnlyLeavesFileUntouched(t *testing.T) {
	gw := newSQLiteGateway(t)
	path := filepath.Join(gw.Dir(), "shop.db")
	before, err := os.Stat(path)
	require.NoError(t, err)

	_, err = gw.FetchData(context.Background(), DataRequest{Database: "shop.db", Table: "orders"})
	require.NoError(t, err)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestSQLiteNonFiniteRealsAreText(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "sensors.db"))
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE readings (id INTEGER PRIMARY KEY, v REAL);
		INSERT INTO readings (id, v) VALUES (1, 9e999), (2, -9e999);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	gw, err := New(Config{Dir: dir, ReadOnly: true})
	require.NoError(t, err)
	result, err := gw.FetchData(context.Background(), DataRequest{Database: "sensors.db", Table: "readings"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "+Inf", result.Rows[0]["v"])
	assert.Equal(t, "-Inf", result.Rows[1]["v"])

	_, err = json.Marshal(result.Rows)
	require.NoError(t, err)
}

func TestSQLiteIdentifiersMatchIgnoringCase(t *testing.T) {
	gw := newSQLiteGateway(t)
	ctx := context.Background()

	columns, err := gw.ListColumns(ctx, "shop.db", "USERS")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email"}, columns)

	result, err := gw.FetchData(ctx, DataRequest{
		Database:     "shop.db",
		Table:        "Users",
		SearchColumn: "NAME",
		SearchText:   "bob",
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "bob", result.Rows[0]["name"])
}
