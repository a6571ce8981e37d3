package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/audtracker/internal/models"
)

func newTestMetalsDev(url string) *MetalsDevSource {
	return &MetalsDevSource{
		apiKey:  "key",
		baseURL: url,
		client:  testClient(),
		fx:      fixedFX{audPerUSD: decimal.NewFromInt(2)},
	}
}

func TestMetalsDevLatest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "AUD", r.URL.Query().Get("currency"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		fmt.Fprint(w, `{"status":"success","currency":"AUD","metals":{"gold":3500.5,"silver":40.2,"copper":14000,"aluminum":3900,"zinc":4100}}`)
	}))
	defer ts.Close()

	set, err := newTestMetalsDev(ts.URL).Latest(context.Background(), models.TrackedCommodities)
	require.NoError(t, err)

	gold := set["GOLD"]
	assert.True(t, gold.Value.Decimal.Equal(decimal.RequireFromString("3500.5")))
	assert.True(t, gold.USD.Decimal.Equal(decimal.RequireFromString("1750.25")))
	assert.Equal(t, "oz", gold.Unit)
	assert.Equal(t, models.SourceMetalsDev, gold.Source)

	assert.Equal(t, "mt", set["ALUMINIUM"].Unit)
	assert.True(t, set["ALUMINIUM"].Value.Valid)

	nickel := set["NICKEL"]
	assert.False(t, nickel.Value.Valid)
	assert.Equal(t, "Price not found in API response", nickel.Error)
	assert.Equal(t, []string{"NICKEL"}, set.Missing(models.TrackedCommodities))
}

func TestMetalsDevStatusFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"failure","error_code":1101,"error_message":"Invalid API key"}`)
	}))
	defer ts.Close()

	_, err := newTestMetalsDev(ts.URL).Latest(context.Background(), []string{"GOLD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestMetalsDevTimeseries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/timeseries", r.URL.Path)
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2024-03-03", r.URL.Query().Get("end_date"))
		fmt.Fprint(w, `{"status":"success","rates":{
			"2024-03-01":{"metals":{"gold":2000,"silver":22.5},"currencies":{"AUD":0.5}},
			"2024-03-02":{"metals":{"gold":2010}}
		}}`)
	}))
	defer ts.Close()

	src := newTestMetalsDev(ts.URL)
	src.fx = fixedFX{audPerUSD: decimal.RequireFromString("1.5")}
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)

	byDate, err := src.Timeseries(context.Background(), []string{"GOLD", "SILVER", "COPPER"}, start, end)
	require.NoError(t, err)
	require.Len(t, byDate, 3)

	// rate embedded in the day: 1 / 0.5 AUD per USD
	first := byDate["2024-03-01"]
	assert.True(t, first["GOLD"].Value.Decimal.Equal(decimal.NewFromInt(4000)))
	assert.True(t, first["GOLD"].USD.Decimal.Equal(decimal.NewFromInt(2000)))
	assert.True(t, first["SILVER"].Value.Decimal.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, "Price not found in API response", first["COPPER"].Error)

	// no embedded rate: the converter is used
	second := byDate["2024-03-02"]
	assert.True(t, second["GOLD"].Value.Decimal.Equal(decimal.NewFromInt(3015)))

	third := byDate["2024-03-03"]
	assert.Equal(t, 0, third.Priced())
	assert.Equal(t, "Date 2024-03-03 not found in API response", third["GOLD"].Error)
	assert.Equal(t, "2024-03-03", third["SILVER"].Date)
}

func TestMetalsDevFetchPastDateUsesTimeseries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/timeseries", r.URL.Path)
		fmt.Fprint(w, `{"status":"success","rates":{"2023-06-01":{"metals":{"gold":1950},"currencies":{"AUD":0.5}}}}`)
	}))
	defer ts.Close()

	set, err := newTestMetalsDev(ts.URL).Fetch(context.Background(), []string{"GOLD"}, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, set["GOLD"].Value.Decimal.Equal(decimal.NewFromInt(3900)))
	assert.Equal(t, "2023-06-01", set["GOLD"].Date)
}
