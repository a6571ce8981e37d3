package services

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
	"github.com/tropicaldog17/audtracker/internal/repositories"
)

func TestArchiveSourceFetch(t *testing.T) {
	database, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.Migrate())
	repo := repositories.NewExchangeRateRepository(database)

	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	_, err = repo.InsertIgnoreDuplicates(context.Background(), []*models.ExchangeRate{
		{Date: day, Base: "AUD", Quote: "USD", Rate: decimal.RequireFromString("0.6548"), Source: "RBA-f11.1-data"},
		{Date: day, Base: "AUD", Quote: "JPY", Rate: decimal.RequireFromString("101.20"), Source: "RBA-f11.1-data"},
	})
	require.NoError(t, err)

	src := NewArchiveSource(repo)
	set, err := src.Fetch(context.Background(), models.TrackedCurrencies, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, set.Priced())
	assert.Equal(t, []string{"EUR", "CNY", "SGD"}, set.Missing(models.TrackedCurrencies))
	assert.Equal(t, "2024-05-02", set["USD"].Date)
	assert.Equal(t, "RBA-f11.1-data", set["USD"].Source)

	set, err = src.Fetch(context.Background(), models.TrackedCurrencies, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, set.Priced())

	_, err = src.Fetch(context.Background(), models.TrackedCurrencies, time.Time{})
	assert.Error(t, err)
}
