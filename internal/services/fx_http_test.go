package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// fixedFX converts at a constant rate.
type fixedFX struct {
	audPerUSD decimal.Decimal
	err       error
}

func (f fixedFX) AUDPerUSD(context.Context) decimal.Decimal {
	return f.audPerUSD
}

func (f fixedFX) USDPerAUD(context.Context) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return decimal.NewFromInt(1).Div(f.audPerUSD), nil
}

func testClient() *apiClient {
	return newAPIClient("test", ClientOptions{})
}

func newTestExchangeRateSource(url string) *ExchangeRateAPISource {
	return &ExchangeRateAPISource{baseURL: url, client: testClient()}
}

func TestExchangeRateAPISource_FetchV4(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/AUD" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"base":"AUD","date":"2024-05-01","rates":{"USD":0.6612,"EUR":0.6178,"JPY":103.5,"CNY":4.79,"SGD":0.899,"GBP":0.52}}`)
	}))
	defer ts.Close()

	source := newTestExchangeRateSource(ts.URL)
	set, err := source.Fetch(context.Background(), []string{"USD", "EUR", "JPY", "CNY", "SGD"}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if got := set.Priced(); got != 5 {
		t.Fatalf("Expected 5 rates, got %d", got)
	}
	usd := set["USD"]
	if !usd.Value.Decimal.Equal(decimal.RequireFromString("0.6612")) {
		t.Errorf("Expected USD rate 0.6612, got %s", usd.Value.Decimal)
	}
	if usd.Date != "2024-05-01" {
		t.Errorf("Expected date from response, got %s", usd.Date)
	}
	if _, ok := set["GBP"]; ok {
		t.Errorf("Untracked currency should not be returned")
	}
}

func TestExchangeRateAPISource_FetchV6(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"success","base_code":"AUD","conversion_rates":{"USD":0.66,"EUR":0}}`)
	}))
	defer ts.Close()

	source := newTestExchangeRateSource(ts.URL)
	asOf := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	set, err := source.Fetch(context.Background(), []string{"USD", "EUR"}, asOf)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if set["USD"].Date != "2024-05-02" {
		t.Errorf("Expected asOf date, got %s", set["USD"].Date)
	}
	// zero is not a rate
	if missing := set.Missing([]string{"USD", "EUR"}); len(missing) != 1 || missing[0] != "EUR" {
		t.Errorf("Expected EUR missing, got %v", missing)
	}
}

func TestExchangeRateAPISource_ResultError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"error","error-type":"invalid-key"}`)
	}))
	defer ts.Close()

	_, err := newTestExchangeRateSource(ts.URL).Fetch(context.Background(), []string{"USD"}, time.Time{})
	if err == nil {
		t.Fatal("Expected error for result=error")
	}
}

func TestExchangeRateAPISource_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := newTestExchangeRateSource(ts.URL).Fetch(context.Background(), []string{"USD"}, time.Time{})
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
}

func TestNewExchangeRateAPISource_Endpoint(t *testing.T) {
	keyless := NewExchangeRateAPISource("", DefaultClientOptions)
	if keyless.baseURL != "https://api.exchangerate-api.com/v4/latest" {
		t.Errorf("unexpected keyless URL %s", keyless.baseURL)
	}
	keyed := NewExchangeRateAPISource("abc", DefaultClientOptions)
	if keyed.baseURL != "https://v6.exchangerate-api.com/v6/abc/latest" {
		t.Errorf("unexpected keyed URL %s", keyed.baseURL)
	}
}

func TestUSDAUDProvider(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"rates":{"USD":0.5}}`)
	}))
	defer ts.Close()

	p := NewUSDAUDProvider(newTestExchangeRateSource(ts.URL), nil)
	if got := p.AUDPerUSD(context.Background()); !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected 2 AUD per USD, got %s", got)
	}
	usd, err := p.USDPerAUD(context.Background())
	if err != nil || !usd.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Expected 0.5 USD per AUD, got %s (%v)", usd, err)
	}
	if calls != 1 {
		t.Errorf("Expected the rate to be fetched once, got %d calls", calls)
	}
}

func TestUSDAUDProvider_Fallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rates":{"EUR":0.6}}`)
	}))
	defer ts.Close()

	p := NewUSDAUDProvider(newTestExchangeRateSource(ts.URL), nil)
	if got := p.AUDPerUSD(context.Background()); !got.Equal(FallbackAUDPerUSD) {
		t.Errorf("Expected fallback rate, got %s", got)
	}
	if _, err := p.USDPerAUD(context.Background()); err == nil {
		t.Error("Expected strict lookup to fail")
	}
}

func TestAPIClient_RespectsCancelledContext(t *testing.T) {
	c := newAPIClient("test", ClientOptions{RequestsPerSecond: 0.001, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.getJSON(ctx, "http://127.0.0.1:1/never")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
