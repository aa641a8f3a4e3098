package google

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"moneta/internal/cloud"
)

// Column layouts. Row 1 of every sheet is a header and is never parsed.
var (
	userColumns     = []string{"id", cloud.FieldFirstName, cloud.FieldLastName, cloud.FieldAvatar, cloud.FieldAvatarAsset, cloud.FieldIncome}
	categoryColumns = []string{"id", cloud.FieldName, cloud.FieldIcon, cloud.FieldColor, cloud.FieldIsDefault}
)

func columnsFor(rt cloud.RecordType) ([]string, error) {
	switch rt {
	case cloud.RecordUser:
		return userColumns, nil
	case cloud.RecordCategory:
		return categoryColumns, nil
	}
	return nil, fmt.Errorf("unsupported record type %q", rt)
}

// lastColumn returns the spreadsheet letter of the n-th column (1-based, n <= 26).
func lastColumn(n int) string {
	return string(rune('A' + n - 1))
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseRow turns a sheet row into a record. Cells that cannot be converted to
// their field type are kept as raw strings so the gateway rejects the record.
// Empty cells are omitted.
func parseRow(columns []string, row []any) (cloud.Record, bool) {
	cells := toStrings(row)
	id := safeGet(cells, 0)
	if id == "" {
		return cloud.Record{}, false
	}
	rec := cloud.Record{ID: id, Fields: make(map[string]any, len(columns)-1)}
	for i := 1; i < len(columns); i++ {
		raw := safeGet(cells, i)
		if raw == "" {
			continue
		}
		rec.Fields[columns[i]] = parseCell(columns[i], raw)
	}
	return rec, true
}

func parseCell(field, raw string) any {
	switch field {
	case cloud.FieldAvatar:
		if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
			return b
		}
	case cloud.FieldIncome:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case cloud.FieldIsDefault:
		if b, err := strconv.ParseBool(strings.ToLower(raw)); err == nil {
			return b
		}
	default:
		return raw
	}
	return raw
}

func formatCell(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// formatRow renders a record in column order.
func formatRow(columns []string, rec cloud.Record) []any {
	row := make([]any, len(columns))
	row[0] = rec.ID
	for i := 1; i < len(columns); i++ {
		row[i] = formatCell(rec.Fields[columns[i]])
	}
	return row
}

// parseAssets maps asset refs (column A) to their base64-decoded payload (column B).
func parseAssets(values [][]any) map[string]string {
	out := make(map[string]string, len(values))
	for _, row := range values {
		cells := toStrings(row)
		ref := safeGet(cells, 0)
		if ref == "" {
			continue
		}
		out[ref] = safeGet(cells, 1)
	}
	return out
}
