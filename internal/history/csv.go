package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/audtracker/internal/errors"
	"github.com/tropicaldog17/audtracker/internal/models"
)

// Layouts accepted for the date column. Tables written by older tooling
// sometimes carry a midnight time component.
var dateLayouts = []string{
	models.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// Layouts accepted for the timestamp column, with and without an offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	models.DateLayout,
}

// timestampLayout is what the engine writes: UTC with an explicit offset.
const timestampLayout = "2006-01-02T15:04:05.999999-07:00"

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOnly(t), true
		}
	}
	return time.Time{}, false
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		// naive timestamps are taken as UTC
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

func parseValue(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return sanitize(models.NullDecimal(d))
}

// Load reads the table at path. A missing file yields *errors.NotFoundError;
// a missing required column yields *errors.SchemaError. Bad cells degrade to
// null, rows with an unparseable date or broken CSV quoting are dropped,
// duplicate dates collapse to the most recent row.
func Load(path string, schema models.TableSchema) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &apperrors.NotFoundError{Table: schema.Name, Path: path}
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, &apperrors.SchemaError{Table: schema.Name, Missing: requiredColumns(schema)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range requiredColumns(schema) {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &apperrors.SchemaError{Table: schema.Name, Missing: missing}
	}

	cell := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		date, ok := parseDate(cell(record, models.ColumnDate))
		if !ok {
			continue
		}
		row := Row{
			Date:      date,
			Timestamp: parseTimestamp(cell(record, models.ColumnTimestamp)),
			Values:    make(map[string]decimal.NullDecimal, len(schema.DataColumns)),
		}
		for _, col := range schema.DataColumns {
			row.Values[col] = parseValue(cell(record, col))
		}
		rows = append(rows, row)
	}

	return &Table{Schema: schema, Rows: collapse(rows)}, nil
}

func requiredColumns(schema models.TableSchema) []string {
	var cols []string
	for _, c := range schema.Columns() {
		if !schema.IsOptional(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// tableMode is the permission of a newly created table file.
const tableMode os.FileMode = 0o644

// write persists the table atomically: a temp file in the target directory is
// fully written and synced, then renamed over path. An existing file keeps its
// permissions.
func write(path string, t *Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	mode := tableMode
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set mode on %s: %w", tmpName, err)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Schema.Columns()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range t.Rows {
		if err := w.Write(encodeRow(t.Schema, row)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write row %s: %w", row.Date.Format(models.DateLayout), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func encodeRow(schema models.TableSchema, row Row) []string {
	out := make([]string, 0, len(schema.DataColumns)+2)
	out = append(out, row.Date.Format(models.DateLayout))
	for _, col := range schema.DataColumns {
		if v, ok := row.Value(col); ok {
			out = append(out, v.String())
		} else {
			out = append(out, "")
		}
	}
	if row.Timestamp != nil {
		out = append(out, row.Timestamp.UTC().Format(timestampLayout))
	} else {
		out = append(out, "")
	}
	return out
}
