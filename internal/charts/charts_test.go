package charts

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/audtracker/internal/history"
)

func seedCurrency(t *testing.T, dir string) *history.Store {
	t.Helper()
	store := history.CurrencyHistorical(dir)
	usd := []string{"0.60", "0.63", "0.66"}
	for i, v := range usd {
		d := decimal.RequireFromString(v)
		eur := decimal.RequireFromString("0.55")
		_, err := store.Upsert(context.Background(), time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			map[string]*decimal.Decimal{"usd_rate": &d, "eur_rate": &eur}, time.Time{})
		require.NoError(t, err)
	}
	return store
}

func TestPercentSeries(t *testing.T) {
	store := seedCurrency(t, t.TempDir())
	table, err := store.Load()
	require.NoError(t, err)

	series := PercentSeries(table, []string{"usd_rate", "eur_rate", "cny_rate"}, 0)
	require.Len(t, series, 2, "cny has no values")
	assert.Equal(t, "usd_rate", series[0].Column)
	assert.InDelta(t, 0, series[0].Points[0].Pct, 1e-9)
	assert.InDelta(t, 10, series[0].Points[2].Pct, 1e-9)
	assert.InDelta(t, 0, series[1].Points[2].Pct, 1e-9)

	// last two days: base moves to 0.63
	series = PercentSeries(table, []string{"usd_rate"}, 2)
	require.Len(t, series, 1)
	require.Len(t, series[0].Points, 2)
	assert.InDelta(t, (0.66/0.63-1)*100, series[0].Points[1].Pct, 1e-9)
}

func TestTrendSVGNeedsSeries(t *testing.T) {
	_, err := TrendSVG(nil, "empty", 100, 100)
	assert.ErrorIs(t, err, ErrNoSeries)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	store := seedCurrency(t, dir)

	files, err := Generate(store, "currency", dir, 0)
	require.NoError(t, err)

	svg, err := os.ReadFile(files.SVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<path")
	assert.Contains(t, string(svg), "usd_rate")

	data, err := os.ReadFile(files.PNG)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, img.Bounds().Dx())
	assert.Equal(t, DefaultHeight, img.Bounds().Dy())
}
