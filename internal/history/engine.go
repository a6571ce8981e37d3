package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/audtracker/internal/errors"
	"github.com/tropicaldog17/audtracker/internal/models"
)

// RoundFunc rounds one data column value before it is stored.
type RoundFunc func(column string, v decimal.Decimal) decimal.Decimal

// RoundTo rounds every column to places decimals.
func RoundTo(places int32) RoundFunc {
	return func(_ string, v decimal.Decimal) decimal.Decimal {
		return v.Round(places)
	}
}

// Issues is the outcome of Validate.
type Issues struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether validation found no errors.
func (i Issues) OK() bool {
	return len(i.Errors) == 0
}

const maxListedGaps = 10

// Validate loads the table and reports null cells and calendar gaps as
// warnings. A load failure is the only error.
func Validate(path string, schema models.TableSchema) Issues {
	issues := Issues{Errors: []string{}, Warnings: []string{}}

	t, err := Load(path, schema)
	if err != nil {
		issues.Errors = append(issues.Errors, err.Error())
		return issues
	}

	for _, col := range schema.DataColumns {
		var idx []string
		for i, row := range t.Rows {
			if _, ok := row.Value(col); !ok {
				idx = append(idx, strconv.Itoa(i))
			}
		}
		if len(idx) > 0 {
			issues.Warnings = append(issues.Warnings,
				fmt.Sprintf("%s has missing/invalid values at rows: [%s]", col, strings.Join(idx, ", ")))
		}
	}

	if gaps := missingDates(t); len(gaps) > 0 {
		listed := gaps
		if len(listed) > maxListedGaps {
			listed = listed[:maxListedGaps]
		}
		names := make([]string, len(listed))
		for i, d := range listed {
			names[i] = d.Format(models.DateLayout)
		}
		msg := fmt.Sprintf("Missing %d date(s): %s", len(gaps), strings.Join(names, ", "))
		if len(gaps) > maxListedGaps {
			msg += "..."
		}
		issues.Warnings = append(issues.Warnings, msg)
	}
	return issues
}

func missingDates(t *Table) []time.Time {
	if len(t.Rows) < 2 {
		return nil
	}
	dates := t.Dates()
	present := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		present[d] = true
	}
	var gaps []time.Time
	last := dates[len(dates)-1]
	for d := dates[0]; !d.After(last); d = d.AddDate(0, 0, 1) {
		if !present[d] {
			gaps = append(gaps, d)
		}
	}
	return gaps
}

type upsertOptions struct {
	timestamp *time.Time
	round     RoundFunc
}

// UpsertOption customizes Upsert.
type UpsertOption func(*upsertOptions)

// WithTimestamp stamps the new row with t instead of the current time.
func WithTimestamp(t time.Time) UpsertOption {
	return func(o *upsertOptions) {
		ts := t
		o.timestamp = &ts
	}
}

// WithRound applies fn to the written columns over every row.
func WithRound(fn RoundFunc) UpsertOption {
	return func(o *upsertOptions) {
		o.round = fn
	}
}

var pathLocks sync.Map

func lockPath(path string) func() {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	v, _ := pathLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Upsert writes one row for date and persists the whole table. The new row
// carries exactly the given values and nulls elsewhere; it replaces any
// existing row for the same date unless that row has a newer timestamp.
// Columns not in the schema are rejected.
func Upsert(path string, schema models.TableSchema, date time.Time, values map[string]*decimal.Decimal, opts ...UpsertOption) (*Table, error) {
	return UpsertBatch(path, schema, []Entry{{Date: date, Values: values}}, opts...)
}

// Entry is one date's values for UpsertBatch.
type Entry struct {
	Date   time.Time
	Values map[string]*decimal.Decimal
}

// UpsertBatch applies several upserts under one load and one write. Entries
// share the timestamp; for repeated dates the later entry wins.
func UpsertBatch(path string, schema models.TableSchema, entries []Entry, opts ...UpsertOption) (*Table, error) {
	o := upsertOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	written := make(map[string]bool)
	for _, e := range entries {
		for col := range e.Values {
			if !schema.IsDataColumn(col) {
				return nil, &apperrors.ErrValidation{Field: col, Message: "not a " + strings.ToLower(schema.Name) + " column"}
			}
			written[col] = true
		}
	}

	unlock := lockPath(path)
	defer unlock()

	var rows []Row
	existing, err := Load(path, schema)
	switch {
	case err == nil:
		rows = existing.Rows
	case isNotFound(err):
	default:
		return nil, err
	}

	ts := time.Now().UTC()
	if o.timestamp != nil {
		ts = *o.timestamp
	}
	for _, e := range entries {
		row := Row{
			Date:      models.DateOnly(e.Date),
			Timestamp: &ts,
			Values:    make(map[string]decimal.NullDecimal, len(schema.DataColumns)),
		}
		for _, col := range schema.DataColumns {
			if v := e.Values[col]; v != nil {
				row.Values[col] = sanitize(models.NullDecimal(*v))
			} else {
				row.Values[col] = decimal.NullDecimal{}
			}
		}
		rows = append(rows, row)
	}

	merged := collapse(rows)

	if o.round != nil {
		for i := range merged {
			for col := range written {
				if v, ok := merged[i].Value(col); ok {
					merged[i].Values[col] = sanitize(models.NullDecimal(o.round(col, v)))
				}
			}
		}
	}

	t := &Table{Schema: schema, Rows: merged}
	if err := write(path, t); err != nil {
		return nil, err
	}
	return t, nil
}

func isNotFound(err error) bool {
	var nf *apperrors.NotFoundError
	return errors.As(err, &nf)
}

// CarryForward returns values with every nil column filled from row.
// It is the read-then-write step for callers that must not drop columns
// they did not re-collect.
func CarryForward(values map[string]*decimal.Decimal, row Row, cols []string) map[string]*decimal.Decimal {
	out := make(map[string]*decimal.Decimal, len(cols))
	for _, col := range cols {
		if v := values[col]; v != nil {
			out[col] = v
			continue
		}
		if v, ok := row.Value(col); ok {
			out[col] = &v
		} else {
			out[col] = nil
		}
	}
	return out
}

// Store binds a schema, path and rounding policy.
type Store struct {
	schema models.TableSchema
	path   string
	round  RoundFunc
}

// NewStore returns a store for the table at path. round may be nil.
func NewStore(schema models.TableSchema, path string, round RoundFunc) *Store {
	return &Store{schema: schema, path: path, round: round}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Schema() models.TableSchema {
	return s.schema
}

func (s *Store) Load() (*Table, error) {
	return Load(s.path, s.schema)
}

func (s *Store) Validate() Issues {
	return Validate(s.path, s.schema)
}

// Upsert writes values for date. A zero ts means now.
func (s *Store) Upsert(ctx context.Context, date time.Time, values map[string]*decimal.Decimal, ts time.Time) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Upsert(s.path, s.schema, date, values, s.options(ts)...)
}

// UpsertBatch writes several dates in one pass. A zero ts means now.
func (s *Store) UpsertBatch(ctx context.Context, entries []Entry, ts time.Time) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return UpsertBatch(s.path, s.schema, entries, s.options(ts)...)
}

func (s *Store) options(ts time.Time) []UpsertOption {
	var opts []UpsertOption
	if !ts.IsZero() {
		opts = append(opts, WithTimestamp(ts))
	}
	if s.round != nil {
		opts = append(opts, WithRound(s.round))
	}
	return opts
}

// LoadOrEmpty loads the table, treating a missing file as an empty table.
func (s *Store) LoadOrEmpty() (*Table, error) {
	t, err := s.Load()
	if isNotFound(err) {
		return &Table{Schema: s.schema}, nil
	}
	return t, err
}
