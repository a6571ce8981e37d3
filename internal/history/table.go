// Package history maintains the per-day CSV tables (currency, commodity,
// metals). Tables hold at most one row per calendar date and are rewritten
// atomically on every upsert.
package history

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/audtracker/internal/models"
)

// Row is one day of a history table. Values holds every data column of the
// schema; a missing or invalid value is an invalid NullDecimal.
type Row struct {
	Date      time.Time
	Timestamp *time.Time
	Values    map[string]decimal.NullDecimal
}

// Value returns the column value and whether it is present.
func (r Row) Value(col string) (decimal.Decimal, bool) {
	v, ok := r.Values[col]
	if !ok || !v.Valid {
		return decimal.Decimal{}, false
	}
	return v.Decimal, true
}

// HasData reports whether any of the given columns is non-null.
func (r Row) HasData(cols []string) bool {
	for _, c := range cols {
		if _, ok := r.Value(c); ok {
			return true
		}
	}
	return false
}

// Table is an in-memory history table, sorted by date with unique dates.
type Table struct {
	Schema models.TableSchema
	Rows   []Row
}

// Dates returns the table's dates in order.
func (t *Table) Dates() []time.Time {
	out := make([]time.Time, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Date
	}
	return out
}

// Row returns the row for date, if any.
func (t *Table) Row(date time.Time) (Row, bool) {
	date = models.DateOnly(date)
	i := sort.Search(len(t.Rows), func(i int) bool { return !t.Rows[i].Date.Before(date) })
	if i < len(t.Rows) && t.Rows[i].Date.Equal(date) {
		return t.Rows[i], true
	}
	return Row{}, false
}

// Previous returns the closest row strictly before date, looking back at
// most maxBack days, that has at least one non-null value in cols.
func (t *Table) Previous(date time.Time, maxBack int, cols []string) (Row, bool) {
	date = models.DateOnly(date)
	for d := 1; d <= maxBack; d++ {
		row, ok := t.Row(date.AddDate(0, 0, -d))
		if ok && row.HasData(cols) {
			return row, true
		}
	}
	return Row{}, false
}

// Latest returns the last row of the table.
func (t *Table) Latest() (Row, bool) {
	if len(t.Rows) == 0 {
		return Row{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// Range returns the rows with from <= date <= to. Zero bounds are open.
func (t *Table) Range(from, to time.Time) []Row {
	var out []Row
	for _, r := range t.Rows {
		if !from.IsZero() && r.Date.Before(models.DateOnly(from)) {
			continue
		}
		if !to.IsZero() && r.Date.After(models.DateOnly(to)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// collapse sorts rows by (date, timestamp) and keeps the last row of each
// date. The sort is stable and rows without a timestamp order first, so a
// timestamped row wins over an untimestamped one and, among equal
// timestamps, the later row wins.
func collapse(rows []Row) []Row {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return timestampLess(a.Timestamp, b.Timestamp)
	})

	out := make([]Row, 0, len(sorted))
	for i, r := range sorted {
		if i+1 < len(sorted) && sorted[i+1].Date.Equal(r.Date) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func timestampLess(a, b *time.Time) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}

// sanitize turns non-positive values into nulls.
func sanitize(v decimal.NullDecimal) decimal.NullDecimal {
	if !v.Valid || !v.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return v
}
