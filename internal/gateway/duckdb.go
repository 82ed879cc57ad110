package gateway

import (
	_ "github.com/marcboeker/go-duckdb/v2"
)

type DuckDB struct{}

func (DuckDB) Name() string { return "duckdb" }

func (DuckDB) DriverName() string { return "duckdb" }

func (DuckDB) DSN(path string, readOnly bool) string {
	if readOnly {
		return path + "?access_mode=read_only"
	}
	return path
}

func (DuckDB) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (DuckDB) ListColumnsQuery() string {
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = 'main' AND table_name = ? ORDER BY ordinal_position`
}
