package gateway

import (
	"fmt"
	"sort"
	"strings"
)

// Dialect captures what differs between the engines the gateway can browse.
type Dialect interface {
	Name() string
	DriverName() string
	DSN(path string, readOnly bool) string
	// ListTablesQuery returns a statement yielding one table name per row.
	ListTablesQuery() string
	// ListColumnsQuery returns a statement taking the table name as its only
	// bind argument and yielding column names in table order.
	ListColumnsQuery() string
}

// DefaultDialects maps every recognized file extension to its engine.
func DefaultDialects() map[string]Dialect {
	return map[string]Dialect{
		".sqlite": SQLite{},
		".db":     SQLite{},
		".duckdb": DuckDB{},
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func selectAllStatement(table string) string {
	return fmt.Sprintf("SELECT * FROM %s", quoteIdent(table))
}

// substringPredicate matches rows whose column, rendered as text, contains the
// bound search text. instr is case-sensitive in both SQLite and DuckDB.
func substringPredicate(column string) string {
	return fmt.Sprintf("instr(CAST(%s AS TEXT), ?) > 0", quoteIdent(column))
}

func extensionList(dialects map[string]Dialect) string {
	exts := make([]string, 0, len(dialects))
	for ext := range dialects {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}
