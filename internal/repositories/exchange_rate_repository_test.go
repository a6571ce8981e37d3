package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/audtracker/internal/config"
	"github.com/tropicaldog17/audtracker/internal/db"
	"github.com/tropicaldog17/audtracker/internal/models"
)

func setupRepo(t *testing.T) ExchangeRateRepository {
	t.Helper()
	database, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.Migrate())
	return NewExchangeRateRepository(database)
}

func rate(date, quote, value, source string) *models.ExchangeRate {
	d, _ := models.ParseDate(date)
	return &models.ExchangeRate{
		Date:   d,
		Base:   models.CurrencyAUD,
		Quote:  quote,
		Rate:   decimal.RequireFromString(value),
		Source: source,
	}
}

func TestInsertIgnoreDuplicates(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	stats, err := repo.InsertIgnoreDuplicates(ctx, []*models.ExchangeRate{
		rate("2024-01-02", "USD", "0.6812", "RBA-f11.1"),
		rate("2024-01-02", "EUR", "0.6190", "RBA-f11.1"),
		rate("2024-01-02", "USD", "0.6812", "RBA-f11.1"),
		rate("2024-01-03", "USD", "0", "RBA-f11.1"),
	})
	require.NoError(t, err)
	assert.Equal(t, InsertStats{Inserted: 2, Duplicates: 1, Errors: 1}, stats)

	// the same key from another source is a different observation
	stats, err = repo.InsertIgnoreDuplicates(ctx, []*models.ExchangeRate{
		rate("2024-01-02", "USD", "0.6815", "RBA-f11.1hist"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
}

func TestQueryRateAndRange(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.InsertIgnoreDuplicates(ctx, []*models.ExchangeRate{
		rate("2024-01-02", "USD", "0.6812", "RBA-a"),
		rate("2024-01-03", "USD", "0.6750", "RBA-a"),
		rate("2024-01-04", "USD", "0.6733", "RBA-a"),
		rate("2024-01-03", "EUR", "0.6170", "RBA-a"),
	})
	require.NoError(t, err)

	d, _ := models.ParseDate("2024-01-03")
	got, err := repo.QueryRate(ctx, d, "USD", "AUD")
	require.NoError(t, err)
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("0.675")), "got %s", got.Rate)

	_, err = repo.QueryRate(ctx, d, "JPY", "AUD")
	assert.ErrorIs(t, err, ErrRateNotFound)

	start, _ := models.ParseDate("2024-01-03")
	end, _ := models.ParseDate("2024-01-04")
	list, err := repo.Range(ctx, start, end, "USD", "AUD")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-01-03", list[0].Date.Format(models.DateLayout))
	assert.Equal(t, "2024-01-04", list[1].Date.Format(models.DateLayout))
}

func TestSummary(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	empty, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalRecords)
	assert.Empty(t, empty.Currencies)

	_, err = repo.InsertIgnoreDuplicates(ctx, []*models.ExchangeRate{
		rate("2023-12-29", "USD", "0.6800", "RBA-a"),
		rate("2024-01-02", "SGD", "0.9010", "RBA-a"),
		rate("2024-01-02", "USD", "0.6812", "RBA-a"),
	})
	require.NoError(t, err)

	summary, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalRecords)
	assert.Equal(t, []string{"SGD", "USD"}, summary.Currencies)
	require.NotNil(t, summary.MinDate)
	assert.Equal(t, "2023-12-29", summary.MinDate.Format(models.DateLayout))
	assert.Equal(t, "2024-01-02", summary.MaxDate.Format(models.DateLayout))
}

func TestPivotForExportKeepsFirstPerDate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.InsertIgnoreDuplicates(ctx, []*models.ExchangeRate{
		rate("2024-01-02", "USD", "0.6812", "RBA-a"),
		rate("2024-01-02", "USD", "0.6900", "RBA-b"),
		rate("2024-01-02", "EUR", "0.6190", "RBA-a"),
		rate("2024-01-03", "USD", "0.6750", "RBA-a"),
		rate("2024-01-03", "GBP", "0.5300", "RBA-a"),
	})
	require.NoError(t, err)

	rows, err := repo.PivotForExport(ctx, "AUD", []string{"USD", "EUR"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.True(t, rows[0].Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, rows[0].Rates["USD"].Equal(decimal.RequireFromString("0.6812")))
	assert.True(t, rows[0].Rates["EUR"].Equal(decimal.RequireFromString("0.619")))
	assert.Len(t, rows[1].Rates, 1)
}
