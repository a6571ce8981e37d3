package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/audtracker/internal/config"
	"github.com/tropicaldog17/audtracker/internal/db"
	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/repositories"
)

const rbaSample = "\ufeffF11.1 EXCHANGE RATES,,,,,\n" +
	"Title,A$1=USD,Trade-weighted Index May 1970 = 100,A$1=EUR,A$1=JPY,A$1=SGD\n" +
	"Description,AUD/USD Exchange Rate; see notes for further detail.,Australian Dollar Trade-weighted Index,AUD/EUR,AUD/JPY,AUD/SGD\n" +
	"Frequency,Daily,Daily,Daily,Daily,Daily\n" +
	"Type,Indicative,Indicative,Indicative,Indicative,Indicative\n" +
	"Units,USD,Index,EUR,JPY,SGD\n" +
	",,,,,\n" +
	"Source,WM/Reuters,RBA,WM/Reuters,WM/Reuters,WM/Reuters\n" +
	"Publication date,02-Jan-2024,02-Jan-2024,02-Jan-2024,02-Jan-2024,02-Jan-2024\n" +
	"Series ID,FXRUSD,FXRTWI,FXREUR,FXRJY,FXRSD\n" +
	"02-Jan-2024,0.6812,61.2,0.6190,96.41,0.9010\n" +
	"03-Jan-2024,0.6750,60.9,,95.88,0.8990\n" +
	"04-Jan-2024,CLOSED,,,,\n"

func TestCurrencyFromTitle(t *testing.T) {
	tests := []struct {
		title string
		code  string
		ok    bool
	}{
		{"A$1=USD", "USD", true},
		{"A$1 = cny ", "CNY", true},
		{"Trade-weighted Index May 1970 = 100", "", false},
		{"Special Drawing Right index", "", false},
		{"UK pound sterling", "GBP", true},
		{"New Zealand dollar", "NZD", true},
		{"Australian dollar vs HKD (RBA)", "HKD", true},
		{"RBA AUD", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		code, ok := CurrencyFromTitle(tt.title)
		assert.Equal(t, tt.ok, ok, tt.title)
		assert.Equal(t, tt.code, code, tt.title)
	}
}

func TestParseRBATable(t *testing.T) {
	rates, err := ParseRBATable(strings.NewReader(rbaSample), "RBA-f11.1-data")
	require.NoError(t, err)

	// 4 on the 2nd, 3 on the 3rd; index column and blank or text cells dropped
	require.Len(t, rates, 7)
	first := rates[0]
	assert.Equal(t, "2024-01-02", first.Date.Format(models.DateLayout))
	assert.Equal(t, "AUD", first.Base)
	assert.Equal(t, "USD", first.Quote)
	assert.Equal(t, "0.6812", first.Rate.String())
	assert.Equal(t, "RBA-f11.1-data", first.Source)

	var quotes []string
	for _, r := range rates {
		quotes = append(quotes, r.Quote)
	}
	assert.Equal(t, []string{"USD", "EUR", "JPY", "SGD", "USD", "JPY", "SGD"}, quotes)
}

func TestParseRBATableWithoutHeader(t *testing.T) {
	_, err := ParseRBATable(strings.NewReader("02-Jan-2024,0.68\n"), "x")
	require.Error(t, err)
}

func newTestImporter(t *testing.T) (*RBAImporter, repositories.ExchangeRateRepository) {
	t.Helper()
	database, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.Migrate())

	repo := repositories.NewExchangeRateRepository(database)
	imp := NewRBAImporter(repo, filepath.Join(t.TempDir(), "rba_downloads"), ClientOptions{}, nil)
	imp.spacing = 0
	return imp, repo
}

func TestRBAImporterRunAndExport(t *testing.T) {
	imp, _ := newTestImporter(t)
	ctx := context.Background()

	file := filepath.Join(t.TempDir(), "f11.1-data.csv")
	require.NoError(t, os.WriteFile(file, []byte(rbaSample), 0o644))

	res, err := imp.Run(ctx, []string{file, filepath.Join(t.TempDir(), "missing.csv")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 7, res.Parsed)
	assert.Equal(t, 7, res.Stats.Inserted)
	assert.Len(t, res.Skipped, 1)

	// re-import is all duplicates
	res, err = imp.Run(ctx, []string{file})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Inserted)
	assert.Equal(t, 7, res.Stats.Duplicates)

	summary, err := imp.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), summary.TotalRecords)
	assert.Equal(t, []string{"EUR", "JPY", "SGD", "USD"}, summary.Currencies)

	store := history.CurrencyHistorical(t.TempDir())
	n, err := imp.ExportHistory(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	table, err := store.Load()
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	usd, ok := table.Rows[0].Value("usd_rate")
	require.True(t, ok)
	assert.Equal(t, "0.6812", usd.String())
	_, ok = table.Rows[1].Value("eur_rate")
	assert.False(t, ok, "no EUR observation on the 3rd")
	_, ok = table.Rows[1].Value("cny_rate")
	assert.False(t, ok)
}

func TestRBAImporterDownloadSkipsExisting(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, rbaSample)
	}))
	defer ts.Close()

	imp, _ := newTestImporter(t)
	ctx := context.Background()

	path, err := imp.Download(ctx, ts.URL+"/tables/f11.1-data.csv")
	require.NoError(t, err)
	assert.Equal(t, "f11.1-data.csv", filepath.Base(path))

	_, err = imp.Download(ctx, ts.URL+"/tables/f11.1-data.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rbaSample, string(data))
}
