// Package gateway turns browse requests into introspection and data queries
// against database files kept in a single storage directory. Every call opens
// its own short-lived connection and releases it before returning.
package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Opener func(driverName, dsn string) (*sql.DB, error)

type Config struct {
	Dir      string
	ReadOnly bool
	// Dialects maps a file extension (with the leading dot) to its engine.
	// Defaults to DefaultDialects.
	Dialects map[string]Dialect
	Opener   Opener
}

type Gateway struct {
	dir      string
	readOnly bool
	dialects map[string]Dialect
	open     Opener
}

type DataRequest struct {
	Database     string
	Table        string
	SearchColumn string
	SearchText   string
}

type DataResult struct {
	Columns []string
	Rows    []map[string]any
}

func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	dialects := cfg.Dialects
	if len(dialects) == 0 {
		dialects = DefaultDialects()
	}
	opener := cfg.Opener
	if opener == nil {
		opener = sql.Open
	}
	return &Gateway{dir: dir, readOnly: cfg.ReadOnly, dialects: dialects, open: opener}, nil
}

func (g *Gateway) Dir() string {
	return g.dir
}

// Recognized reports whether name ends with a browsable database extension.
func (g *Gateway) Recognized(name string) bool {
	_, ok := g.dialects[filepath.Ext(name)]
	return ok
}

func (g *Gateway) ListDatabases(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, &StorageError{Op: "list_databases", Err: fmt.Errorf("read storage dir: %w", err)}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !g.Recognized(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (g *Gateway) ListTables(ctx context.Context, database string) ([]string, error) {
	s, err := g.connect("list_tables", database)
	if err != nil {
		return nil, err
	}
	defer s.close()

	return s.tables(ctx)
}

func (g *Gateway) ListColumns(ctx context.Context, database, table string) ([]string, error) {
	s, err := g.connect("list_columns", database)
	if err != nil {
		return nil, err
	}
	defer s.close()

	table, err = s.requireTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return s.columns(ctx, table)
}

// FetchData returns every row of the table, or only the rows whose search
// column contains SearchText when both search fields are set.
func (g *Gateway) FetchData(ctx context.Context, req DataRequest) (DataResult, error) {
	s, err := g.connect("fetch_data", req.Database)
	if err != nil {
		return DataResult{}, err
	}
	defer s.close()

	table, err := s.requireTable(ctx, req.Table)
	if err != nil {
		return DataResult{}, err
	}

	statement := selectAllStatement(table)
	var args []any
	if req.SearchColumn != "" && req.SearchText != "" {
		columns, err := s.columns(ctx, table)
		if err != nil {
			return DataResult{}, err
		}
		column, ok := matchIdentifier(columns, req.SearchColumn)
		if !ok {
			return DataResult{}, invalidArgumentf("column %q does not exist in table %q", req.SearchColumn, req.Table)
		}
		statement += " WHERE " + substringPredicate(column)
		args = append(args, req.SearchText)
	}

	return s.rows(ctx, statement, args...)
}

func (g *Gateway) connect(op, database string) (*session, error) {
	dialect, path, err := g.resolve(database)
	if err != nil {
		return nil, err
	}
	db, err := g.open(dialect.DriverName(), dialect.DSN(path, g.readOnly))
	if err != nil {
		return nil, &StorageError{Op: op, Database: database, Engine: dialect.Name(), Err: err}
	}
	db.SetMaxOpenConns(1)
	return &session{op: op, database: database, db: db, dialect: dialect}, nil
}

// resolve validates a database name without opening it. Names must be bare
// file names so the resolved path can never leave the storage directory.
func (g *Gateway) resolve(database string) (Dialect, string, error) {
	if database == "" {
		return nil, "", invalidArgumentf("database name is required")
	}
	if database == "." || database == ".." || strings.ContainsAny(database, `/\`) || filepath.Base(database) != database {
		return nil, "", invalidArgumentf("invalid database name %q: must be a file name inside the storage directory", database)
	}
	dialect, ok := g.dialects[filepath.Ext(database)]
	if !ok {
		return nil, "", invalidArgumentf("invalid database name %q: expected one of %s", database, extensionList(g.dialects))
	}

	path := filepath.Join(g.dir, database)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", invalidArgumentf("database %q does not exist", database)
		}
		return nil, "", &StorageError{Op: "resolve", Database: database, Err: err}
	}
	if info.IsDir() {
		return nil, "", invalidArgumentf("database %q is not a file", database)
	}
	return dialect, path, nil
}

type session struct {
	op       string
	database string
	db       *sql.DB
	dialect  Dialect
}

func (s *session) close() {
	_ = s.db.Close()
}

func (s *session) storageErr(err error) error {
	return &StorageError{Op: s.op, Database: s.database, Engine: s.dialect.Name(), Err: err}
}

func (s *session) tables(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, s.dialect.ListTablesQuery())
}

func (s *session) columns(ctx context.Context, table string) ([]string, error) {
	return s.queryStrings(ctx, s.dialect.ListColumnsQuery(), table)
}

// requireTable rejects any table name the catalog does not list and returns
// the catalog spelling, so only known identifiers reach statement text.
func (s *session) requireTable(ctx context.Context, table string) (string, error) {
	if table == "" {
		return "", invalidArgumentf("table name is required")
	}
	tables, err := s.tables(ctx)
	if err != nil {
		return "", err
	}
	name, ok := matchIdentifier(tables, table)
	if !ok {
		return "", invalidArgumentf("table %q does not exist in %s", table, s.database)
	}
	return name, nil
}

// matchIdentifier finds want in the catalog names. Both engines resolve
// unquoted identifiers ignoring ASCII case, so an exact match wins and a
// case-folded one falls back to the catalog's own spelling.
func matchIdentifier(names []string, want string) (string, bool) {
	if slices.Contains(names, want) {
		return want, true
	}
	for _, name := range names {
		if equalFoldASCII(name, want) {
			return name, true
		}
	}
	return "", false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (s *session) queryStrings(ctx context.Context, statement string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, s.storageErr(err)
	}
	defer func() { _ = rows.Close() }()

	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, s.storageErr(err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr(err)
	}
	return values, nil
}

func (s *session) rows(ctx context.Context, statement string, args ...any) (DataResult, error) {
	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return DataResult{}, s.storageErr(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return DataResult{}, s.storageErr(err)
	}

	result := DataResult{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return DataResult{}, s.storageErr(err)
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return DataResult{}, s.storageErr(err)
	}
	return result, nil
}

// normalizeValue maps driver values onto types encoding/json accepts.
// Non-finite floats become their text form and composite engine types
// (DuckDB MAP, STRUCT, LIST of those) fall back to fmt.Sprint text.
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, time.Time:
		return typed
	case []byte:
		return string(typed)
	case float64:
		if math.IsInf(typed, 0) || math.IsNaN(typed) {
			return strconv.FormatFloat(typed, 'g', -1, 64)
		}
		return typed
	case float32:
		if math.IsInf(float64(typed), 0) || math.IsNaN(float64(typed)) {
			return strconv.FormatFloat(float64(typed), 'g', -1, 32)
		}
		return typed
	default:
		if _, err := json.Marshal(typed); err != nil {
			return fmt.Sprint(typed)
		}
		return typed
	}
}
