package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/audtracker/internal/metrics"
	"github.com/tropicaldog17/audtracker/internal/models"
)

const historicalCacheSize = 512

// HistoricalRateSource fetches AUD rates for a past date from a
// Frankfurter-compatible endpoint (<base>/<date>?base=AUD&symbols=...).
// Answers are cached per (date, symbol).
type HistoricalRateSource struct {
	name           string
	baseURL        string
	requireSuccess bool
	client         *apiClient
	cache          *lru.Cache[string, decimal.Decimal]
}

func newHistoricalRateSource(name, baseURL string, requireSuccess bool, opts ClientOptions) *HistoricalRateSource {
	cache, _ := lru.New[string, decimal.Decimal](historicalCacheSize)
	return &HistoricalRateSource{
		name:           name,
		baseURL:        strings.TrimRight(baseURL, "/"),
		requireSuccess: requireSuccess,
		client:         newAPIClient(name, opts),
		cache:          cache,
	}
}

// NewFrankfurterSource queries api.frankfurter.app (ECB reference rates).
func NewFrankfurterSource(opts ClientOptions) *HistoricalRateSource {
	return newHistoricalRateSource(models.SourceFrankfurter, "https://api.frankfurter.app", false, opts)
}

// NewExchangeRateHostSource queries api.exchangerate.host, which flags
// failures with success=false.
func NewExchangeRateHostSource(opts ClientOptions) *HistoricalRateSource {
	return newHistoricalRateSource(models.SourceHost, "https://api.exchangerate.host", true, opts)
}

func (s *HistoricalRateSource) Name() string {
	return s.name
}

func cacheKey(date, symbol string) string {
	return date + "|" + symbol
}

// Fetch returns the rates for asOf, which must be set. Quotes carry the
// requested date even when the provider answers with the previous business
// day.
func (s *HistoricalRateSource) Fetch(ctx context.Context, assets []string, asOf time.Time) (PriceSet, error) {
	if asOf.IsZero() {
		return nil, errors.New("historical rates need a date")
	}
	date := asOf.Format(models.DateLayout)

	set := make(PriceSet, len(assets))
	var uncached []string
	for _, code := range assets {
		if v, ok := s.cache.Get(cacheKey(date, code)); ok {
			metrics.CacheHits.WithLabelValues(s.name).Inc()
			set[code] = s.quote(v, date)
			continue
		}
		uncached = append(uncached, code)
	}
	if len(uncached) == 0 {
		return set, nil
	}

	q := url.Values{}
	q.Set("base", models.CurrencyAUD)
	q.Set("symbols", strings.Join(uncached, ","))
	raw, err := s.client.getJSON(ctx, fmt.Sprintf("%s/%s?%s", s.baseURL, date, q.Encode()))
	if err != nil {
		return nil, err
	}
	if s.requireSuccess {
		if ok, _ := raw["success"].(bool); !ok {
			return nil, fmt.Errorf("%s reported failure for %s", s.name, date)
		}
	}
	rates, ok := raw["rates"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s response missing rates", s.name)
	}

	for _, code := range uncached {
		v := positive(rates[code])
		if !v.Valid {
			continue
		}
		s.cache.Add(cacheKey(date, code), v.Decimal)
		set[code] = s.quote(v.Decimal, date)
	}
	return set, nil
}

func (s *HistoricalRateSource) quote(v decimal.Decimal, date string) Quote {
	return Quote{
		Value:    models.NullDecimal(v),
		Currency: models.DefaultBase,
		Date:     date,
		Source:   s.name,
	}
}
