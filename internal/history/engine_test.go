package history

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	apperrors "github.com/tropicaldog17/audtracker/internal/errors"
	"github.com/tropicaldog17/audtracker/internal/models"
)

const currencyHeader = "date,usd_rate,eur_rate,cny_rate,sgd_rate,jpy_rate,timestamp\n"

type EngineTestSuite struct {
	suite.Suite
	dir  string
	path string
}

func (s *EngineTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.path = filepath.Join(s.dir, "nested", "currency_daily.csv")
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func day(v string) time.Time {
	t, err := models.ParseDate(v)
	if err != nil {
		panic(err)
	}
	return t
}

func (s *EngineTestSuite) writeCSV(body string) {
	s.Require().NoError(os.MkdirAll(filepath.Dir(s.path), 0o755))
	s.Require().NoError(os.WriteFile(s.path, []byte(body), 0o644))
}

func (s *EngineTestSuite) requireValue(row Row, col, want string) {
	got, ok := row.Value(col)
	s.Require().True(ok, "%s should be set", col)
	s.True(got.Equal(decimal.RequireFromString(want)), "%s: got %s want %s", col, got, want)
}

func (s *EngineTestSuite) TestLoadMissingFile() {
	_, err := Load(s.path, models.CurrencySchema)

	var nf *apperrors.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal(s.path, nf.Path)
	s.True(errors.Is(err, fs.ErrNotExist))
}

func (s *EngineTestSuite) TestLoadMissingRequiredColumn() {
	s.writeCSV("date,usd_rate,timestamp\n2024-01-01,0.66,\n")

	_, err := Load(s.path, models.CurrencySchema)

	var se *apperrors.SchemaError
	s.Require().ErrorAs(err, &se)
	s.Equal([]string{"eur_rate", "cny_rate", "sgd_rate"}, se.Missing)
}

func (s *EngineTestSuite) TestLoadPadsOptionalColumn() {
	s.writeCSV("date,usd_rate,eur_rate,cny_rate,sgd_rate,timestamp\n" +
		"2024-01-01,0.66,0.61,4.7,0.88,2024-01-01T07:00:00+00:00\n" +
		"2024-01-02,0.67,0.62,4.8,0.89,2024-01-02T07:00:00+00:00\n")

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Require().Len(t.Rows, 2)
	for _, row := range t.Rows {
		_, ok := row.Value("jpy_rate")
		s.False(ok)
	}
}

func (s *EngineTestSuite) TestLoadSanitizesNonPositiveAndGarbage() {
	s.writeCSV(currencyHeader +
		"2024-01-01,0,-1.5,abc,0.88,99.1,2024-01-01T07:00:00\n")

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Require().Len(t.Rows, 1)
	row := t.Rows[0]
	for _, col := range []string{"usd_rate", "eur_rate", "cny_rate"} {
		_, ok := row.Value(col)
		s.False(ok, col)
	}
	s.requireValue(row, "sgd_rate", "0.88")
	s.requireValue(row, "jpy_rate", "99.1")
}

func (s *EngineTestSuite) TestLoadDropsUndatedRowsAndSorts() {
	s.writeCSV(currencyHeader +
		"2024-01-03,0.70,,,,,\n" +
		"not-a-date,0.50,,,,,\n" +
		"2024-01-01,0.60,,,,,\n")

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Equal([]time.Time{day("2024-01-01"), day("2024-01-03")}, t.Dates())
}

func (s *EngineTestSuite) TestLoadSurvivesStrayQuote() {
	s.writeCSV(currencyHeader +
		"2024-01-01,0.60,,,,,\n" +
		"2024-01-02,1.5\"x,0.61,,,,\n" +
		"2024-01-03,0.62,,,,,\n")

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Equal([]time.Time{day("2024-01-01"), day("2024-01-02"), day("2024-01-03")}, t.Dates())
	row, ok := t.Row(day("2024-01-02"))
	s.Require().True(ok)
	_, ok = row.Value("usd_rate")
	s.False(ok)
	s.requireValue(row, "eur_rate", "0.61")

	t, err = Upsert(s.path, models.CurrencySchema, day("2024-01-04"), map[string]*decimal.Decimal{"usd_rate": dec("0.63")})
	s.Require().NoError(err)
	s.Len(t.Rows, 4)
}

func (s *EngineTestSuite) TestUpsertFileMode() {
	_, err := Upsert(s.path, models.CurrencySchema, day("2024-01-01"), map[string]*decimal.Decimal{"usd_rate": dec("0.60")})
	s.Require().NoError(err)
	info, err := os.Stat(s.path)
	s.Require().NoError(err)
	s.Equal(os.FileMode(0o644), info.Mode().Perm())

	s.Require().NoError(os.Chmod(s.path, 0o640))
	_, err = Upsert(s.path, models.CurrencySchema, day("2024-01-02"), map[string]*decimal.Decimal{"usd_rate": dec("0.61")})
	s.Require().NoError(err)
	info, err = os.Stat(s.path)
	s.Require().NoError(err)
	s.Equal(os.FileMode(0o640), info.Mode().Perm())
}

func (s *EngineTestSuite) TestLoadKeepsMostRecentDuplicate() {
	s.writeCSV(currencyHeader +
		"2024-03-01,1.1,,,,,2024-03-01T17:00:00\n" +
		"2024-03-01,1.0,,,,,2024-03-01T09:00:00\n")

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Require().Len(t.Rows, 1)
	s.requireValue(t.Rows[0], "usd_rate", "1.1")
}

func (s *EngineTestSuite) TestLoadUnparseableTimestampLosesTie() {
	s.writeCSV(currencyHeader +
		"2024-03-01,1.0,,,,,2024-03-01 09:00:00+00:00\n" +
		"2024-03-01,2.0,,,,,yesterday\n")

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Require().Len(t.Rows, 1)
	s.requireValue(t.Rows[0], "usd_rate", "1.0")
	s.NotNil(t.Rows[0].Timestamp)
}

func (s *EngineTestSuite) TestUpsertTwiceIsIdempotent() {
	values := map[string]*decimal.Decimal{"usd_rate": dec("0.661")}

	first, err := Upsert(s.path, models.CurrencySchema, day("2024-01-01"), values)
	s.Require().NoError(err)
	second, err := Upsert(s.path, models.CurrencySchema, day("2024-01-01"), values)
	s.Require().NoError(err)

	s.Require().Len(first.Rows, 1)
	s.Require().Len(second.Rows, 1)
	s.Equal(first.Rows[0].Date, second.Rows[0].Date)
	s.requireValue(second.Rows[0], "usd_rate", "0.661")

	reloaded, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Len(reloaded.Rows, 1)
}

func (s *EngineTestSuite) TestUpsertLastWriteWins() {
	_, err := Upsert(s.path, models.CurrencySchema, day("2024-01-01"), map[string]*decimal.Decimal{"usd_rate": dec("1")})
	s.Require().NoError(err)
	_, err = Upsert(s.path, models.CurrencySchema, day("2024-01-01"), map[string]*decimal.Decimal{"usd_rate": dec("2")})
	s.Require().NoError(err)

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Require().Len(t.Rows, 1)
	s.requireValue(t.Rows[0], "usd_rate", "2")
}

func (s *EngineTestSuite) TestUpsertReplacesWholeRow() {
	_, err := Upsert(s.path, models.CurrencySchema, day("2024-01-01"), map[string]*decimal.Decimal{
		"usd_rate": dec("0.66"), "eur_rate": dec("0.61"),
	})
	s.Require().NoError(err)
	_, err = Upsert(s.path, models.CurrencySchema, day("2024-01-01"), map[string]*decimal.Decimal{"usd_rate": dec("0.67")})
	s.Require().NoError(err)

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.requireValue(t.Rows[0], "usd_rate", "0.67")
	_, ok := t.Rows[0].Value("eur_rate")
	s.False(ok, "eur_rate is dropped unless re-supplied")
}

func (s *EngineTestSuite) TestUpsertOlderTimestampDoesNotOverride() {
	_, err := Upsert(s.path, models.CurrencySchema, day("2024-01-01"),
		map[string]*decimal.Decimal{"usd_rate": dec("0.70")},
		WithTimestamp(time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC)))
	s.Require().NoError(err)

	t, err := Upsert(s.path, models.CurrencySchema, day("2024-01-01"),
		map[string]*decimal.Decimal{"usd_rate": dec("0.60")},
		WithTimestamp(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
	s.Require().NoError(err)
	s.requireValue(t.Rows[0], "usd_rate", "0.70")
}

func (s *EngineTestSuite) TestUpsertAnyOrderStaysSortedAndUnique() {
	for _, d := range []string{"2024-01-05", "2024-01-01", "2024-01-03", "2024-01-01", "2024-01-05", "2024-01-02"} {
		_, err := Upsert(s.path, models.CurrencySchema, day(d), map[string]*decimal.Decimal{"usd_rate": dec("0.66")})
		s.Require().NoError(err)
	}

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	dates := t.Dates()
	s.Len(dates, 4)
	for i := 1; i < len(dates); i++ {
		s.True(dates[i-1].Before(dates[i]))
	}
}

func (s *EngineTestSuite) TestUpsertScenarioWithRounding() {
	store := NewStore(models.CurrencySchema, s.path, RoundTo(3))
	ctx := context.Background()

	_, err := store.Upsert(ctx, day("2024-01-01"), map[string]*decimal.Decimal{"usd_rate": dec("1.5234")}, time.Time{})
	s.Require().NoError(err)
	_, err = store.Upsert(ctx, day("2024-01-02"), map[string]*decimal.Decimal{"usd_rate": dec("1.5300")}, time.Time{})
	s.Require().NoError(err)

	t, err := store.Load()
	s.Require().NoError(err)
	s.Equal([]time.Time{day("2024-01-01"), day("2024-01-02")}, t.Dates())
	s.requireValue(t.Rows[0], "usd_rate", "1.523")
	s.requireValue(t.Rows[1], "usd_rate", "1.53")
}

func (s *EngineTestSuite) TestUpsertScenarioFullPrecision() {
	store := NewStore(models.CurrencySchema, s.path, nil)
	ctx := context.Background()

	_, err := store.Upsert(ctx, day("2024-01-01"), map[string]*decimal.Decimal{"usd_rate": dec("1.5234")}, time.Time{})
	s.Require().NoError(err)
	t, err := store.Upsert(ctx, day("2024-01-02"), map[string]*decimal.Decimal{"usd_rate": dec("1.5300")}, time.Time{})
	s.Require().NoError(err)

	s.requireValue(t.Rows[0], "usd_rate", "1.5234")
	s.requireValue(t.Rows[1], "usd_rate", "1.53")
}

func (s *EngineTestSuite) TestUpsertWritesCanonicalCSV() {
	ts := time.Date(2024, 1, 1, 7, 30, 0, 0, time.UTC)
	_, err := Upsert(s.path, models.CurrencySchema, time.Date(2024, 1, 1, 15, 4, 5, 0, time.UTC),
		map[string]*decimal.Decimal{"usd_rate": dec("0.661"), "jpy_rate": dec("-3")},
		WithTimestamp(ts))
	s.Require().NoError(err)

	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	s.Require().Len(lines, 2)
	s.Equal(strings.TrimSpace(currencyHeader), lines[0])
	s.Equal("2024-01-01,0.661,,,,,2024-01-01T07:30:00+00:00", lines[1])

	entries, err := os.ReadDir(filepath.Dir(s.path))
	s.Require().NoError(err)
	s.Len(entries, 1, "temp files must not linger")
}

func (s *EngineTestSuite) TestUpsertRejectsUnknownColumn() {
	_, err := Upsert(s.path, models.CurrencySchema, day("2024-01-01"), map[string]*decimal.Decimal{"gbp_rate": dec("0.5")})

	var ve *apperrors.ErrValidation
	s.Require().ErrorAs(err, &ve)
	s.Equal("gbp_rate", ve.Field)
}

func (s *EngineTestSuite) TestUpsertSurfacesSchemaError() {
	s.writeCSV("date,usd_rate\n2024-01-01,0.66\n")

	_, err := Upsert(s.path, models.CurrencySchema, day("2024-01-02"), map[string]*decimal.Decimal{"usd_rate": dec("0.66")})

	var se *apperrors.SchemaError
	s.ErrorAs(err, &se)
}

func (s *EngineTestSuite) TestConcurrentUpsertsKeepEveryDate() {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := Upsert(s.path, models.CurrencySchema, day("2024-02-01").AddDate(0, 0, i),
				map[string]*decimal.Decimal{"usd_rate": dec("0.65")})
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)
	s.Len(t.Rows, 20)
}

func (s *EngineTestSuite) TestStoreUpsertHonoursCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore(models.CurrencySchema, s.path, nil).Upsert(ctx, day("2024-01-01"), nil, time.Time{})
	s.ErrorIs(err, context.Canceled)
	s.NoFileExists(s.path)
}

func (s *EngineTestSuite) TestValidateReportsGapsAsWarnings() {
	s.writeCSV(currencyHeader +
		"2024-01-01,0.66,0.61,4.7,0.88,99,\n" +
		"2024-01-02,0.66,0.61,4.7,0.88,99,\n" +
		"2024-01-05,0.66,0.61,4.7,0.88,99,\n")

	issues := Validate(s.path, models.CurrencySchema)
	s.True(issues.OK())
	s.Empty(issues.Errors)
	s.Equal([]string{"Missing 2 date(s): 2024-01-03, 2024-01-04"}, issues.Warnings)
}

func (s *EngineTestSuite) TestValidateListsFirstTenGaps() {
	s.writeCSV(currencyHeader +
		"2024-01-01,0.66,0.61,4.7,0.88,99,\n" +
		"2024-01-20,0.66,0.61,4.7,0.88,99,\n")

	issues := Validate(s.path, models.CurrencySchema)
	s.Require().Len(issues.Warnings, 1)
	s.True(strings.HasPrefix(issues.Warnings[0], "Missing 18 date(s): 2024-01-02, "))
	s.True(strings.HasSuffix(issues.Warnings[0], "2024-01-11..."))
}

func (s *EngineTestSuite) TestValidateReportsNullRows() {
	s.writeCSV(currencyHeader +
		"2024-01-01,0.66,0.61,4.7,0.88,,\n" +
		"2024-01-02,0,0.61,4.7,0.88,,\n")

	issues := Validate(s.path, models.CurrencySchema)
	s.Empty(issues.Errors)
	s.Equal([]string{
		"usd_rate has missing/invalid values at rows: [1]",
		"jpy_rate has missing/invalid values at rows: [0, 1]",
	}, issues.Warnings)
}

func (s *EngineTestSuite) TestValidateLoadFailureIsSingleError() {
	issues := Validate(s.path, models.CurrencySchema)
	s.False(issues.OK())
	s.Len(issues.Errors, 1)
	s.Contains(issues.Errors[0], "not found")
	s.Empty(issues.Warnings)
}

func (s *EngineTestSuite) TestPreviousSkipsEmptyRows() {
	s.writeCSV(currencyHeader +
		"2024-01-01,0.66,,,,,\n" +
		"2024-01-04,,,,,,\n" +
		"2024-01-05,0.67,,,,,\n")
	t, err := Load(s.path, models.CurrencySchema)
	s.Require().NoError(err)

	prev, ok := t.Previous(day("2024-01-05"), 7, models.CurrencySchema.DataColumns)
	s.Require().True(ok)
	s.Equal(day("2024-01-01"), prev.Date)

	_, ok = t.Previous(day("2024-01-01"), 7, models.CurrencySchema.DataColumns)
	s.False(ok)
	_, ok = t.Previous(day("2024-01-13"), 7, models.CurrencySchema.DataColumns)
	s.False(ok, "lookback is bounded")
}

func (s *EngineTestSuite) TestCarryForwardKeepsUnsuppliedColumns() {
	row := Row{Date: day("2024-01-01"), Values: map[string]decimal.NullDecimal{
		"gold_price":   models.NullDecimal(decimal.NewFromInt(3000)),
		"copper_price": models.NullDecimal(decimal.NewFromInt(13000)),
	}}
	out := CarryForward(map[string]*decimal.Decimal{"gold_price": dec("3100")}, row, models.CommoditySchema.DataColumns)

	s.True(out["gold_price"].Equal(decimal.NewFromInt(3100)))
	s.True(out["copper_price"].Equal(decimal.NewFromInt(13000)))
	s.Nil(out["nickel_price"])
}

func (s *EngineTestSuite) TestLoadOrEmpty() {
	t, err := NewStore(models.MetalsSchema, s.path, nil).LoadOrEmpty()
	s.Require().NoError(err)
	s.Empty(t.Rows)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func TestUpsertBatchSingleWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "currency_history.csv")
	_, err := Upsert(path, models.CurrencySchema, day("2024-01-02"), map[string]*decimal.Decimal{
		"usd_rate": dec("0.60"), "jpy_rate": dec("97.1"),
	})
	if err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	table, err := UpsertBatch(path, models.CurrencySchema, []Entry{
		{Date: day("2024-01-03"), Values: map[string]*decimal.Decimal{"usd_rate": dec("0.61")}},
		{Date: day("2024-01-01"), Values: map[string]*decimal.Decimal{"usd_rate": dec("0.59")}},
		{Date: day("2024-01-03"), Values: map[string]*decimal.Decimal{"usd_rate": dec("0.62")}},
	})
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	if got := len(table.Rows); got != 3 {
		t.Fatalf("expected 3 rows, got %d", got)
	}
	last, _ := table.Rows[2].Value("usd_rate")
	if !last.Equal(decimal.RequireFromString("0.62")) {
		t.Errorf("later entry for the same date should win, got %s", last)
	}
	if _, ok := table.Rows[1].Value("jpy_rate"); !ok {
		t.Errorf("untouched date keeps its values")
	}
}
