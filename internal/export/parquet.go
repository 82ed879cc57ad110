// Package export encodes browse results as Parquet files.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
)

const ContentType = "application/vnd.apache.parquet"

type Result struct {
	Data     []byte
	RowCount int64
	Columns  []string
}

// EncodeParquet writes rows as a single row group. Every column becomes an
// optional UTF-8 string so heterogeneous engine values share one schema.
func EncodeParquet(columns []string, rows []map[string]any) (Result, error) {
	if len(columns) == 0 {
		return Result{}, fmt.Errorf("columns are required")
	}

	group := make(parquet.Group, len(columns))
	for _, column := range columns {
		if column == "" {
			return Result{}, fmt.Errorf("column names must not be empty")
		}
		if _, exists := group[column]; exists {
			return Result{}, fmt.Errorf("duplicate column %q", column)
		}
		group[column] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("row", newOrderedGroup(group, columns))

	fields := schema.Fields()
	leafIndex := make(map[string]int, len(fields))
	for i, field := range fields {
		leafIndex[field.Name()] = i
	}

	encoded := make([]parquet.Row, 0, len(rows))
	for _, record := range rows {
		row := make(parquet.Row, len(fields))
		for _, field := range fields {
			idx := leafIndex[field.Name()]
			text, ok := formatValue(record[field.Name()])
			if !ok {
				row[idx] = parquet.NullValue().Level(0, 0, idx)
				continue
			}
			row[idx] = parquet.ValueOf(text).Level(0, 1, idx)
		}
		encoded = append(encoded, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(encoded); err != nil {
		return Result{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return Result{
		Data:     buf.Bytes(),
		RowCount: int64(len(encoded)),
		Columns:  append([]string(nil), columns...),
	}, nil
}

// orderedGroup keeps the leaf columns in result order; parquet.Group alone
// sorts its fields by name.
type orderedGroup struct {
	parquet.Group
	fields []parquet.Field
}

func newOrderedGroup(group parquet.Group, columns []string) orderedGroup {
	byName := make(map[string]parquet.Field, len(group))
	for _, field := range group.Fields() {
		byName[field.Name()] = field
	}
	fields := make([]parquet.Field, 0, len(columns))
	for _, column := range columns {
		fields = append(fields, byName[column])
	}
	return orderedGroup{Group: group, fields: fields}
}

func (g orderedGroup) Fields() []parquet.Field { return g.fields }

func formatValue(value any) (string, bool) {
	switch typed := value.(type) {
	case nil:
		return "", false
	case string:
		return typed, true
	case []byte:
		return string(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case int32:
		return strconv.FormatInt(int64(typed), 10), true
	case int:
		return strconv.Itoa(typed), true
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(typed), 'g', -1, 32), true
	case bool:
		return strconv.FormatBool(typed), true
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano), true
	default:
		return fmt.Sprint(typed), true
	}
}
