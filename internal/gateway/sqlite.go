package gateway

import (
	"net/url"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) DSN(path string, readOnly bool) string {
	u := url.URL{Scheme: "file", Path: path}
	if readOnly {
		u.RawQuery = "mode=ro"
	}
	return u.String()
}

func (SQLite) ListTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`
}

func (SQLite) ListColumnsQuery() string {
	return `SELECT name FROM pragma_table_info(?) ORDER BY cid`
}
