package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	unsafeRunePattern    = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// BuildExportPath returns the object key for a table export taken at the
// given instant: <database stem>/<table>/export-<UTC timestamp>.parquet.
// Table names are sanitized since the catalog allows arbitrary identifiers.
func BuildExportPath(database, table string, at time.Time) (string, error) {
	stem := strings.TrimSuffix(database, filepath.Ext(database))
	if err := validatePathComponent(stem, "database name"); err != nil {
		return "", err
	}
	component := sanitizeComponent(table)
	if err := validatePathComponent(component, "table name"); err != nil {
		return "", err
	}

	ts := at.UTC()
	return path.Join(
		stem,
		component,
		fmt.Sprintf("export-%s.parquet", ts.Format("20060102T150405.000Z")),
	), nil
}

func sanitizeComponent(value string) string {
	cleaned := unsafeRunePattern.ReplaceAllString(strings.TrimSpace(value), "_")
	return strings.TrimLeft(cleaned, "._-")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
