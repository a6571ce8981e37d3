package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/normalize"
)

// FallbackAUDPerUSD is used when no USD/AUD rate can be fetched.
var FallbackAUDPerUSD = decimal.RequireFromString("1.47")

// ExchangeRateAPISource provides latest AUD rates from exchangerate-api.com
type ExchangeRateAPISource struct {
	apiKey  string
	baseURL string
	client  *apiClient
}

// NewExchangeRateAPISource uses the keyless v4 endpoint unless an API key is
// configured, in which case the v6 endpoint is used.
func NewExchangeRateAPISource(apiKey string, opts ClientOptions) *ExchangeRateAPISource {
	baseURL := "https://api.exchangerate-api.com/v4/latest"
	if apiKey != "" {
		baseURL = "https://v6.exchangerate-api.com/v6/" + apiKey + "/latest"
	}

	return &ExchangeRateAPISource{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  newAPIClient(models.SourceExchangeRate, opts),
	}
}

func (s *ExchangeRateAPISource) Name() string {
	return models.SourceExchangeRate
}

// Fetch returns AUD->code rates for the requested currencies. The quote date
// comes from the response when present, else asOf, else today.
func (s *ExchangeRateAPISource) Fetch(ctx context.Context, assets []string, asOf time.Time) (PriceSet, error) {
	raw, rates, err := s.fetchRates(ctx, models.CurrencyAUD)
	if err != nil {
		return nil, err
	}

	date := dateOr(asOf)
	if d, ok := raw["date"].(string); ok && d != "" {
		date = d
	}

	set := make(PriceSet, len(assets))
	for _, code := range assets {
		v := positive(rates[strings.ToUpper(code)])
		if !v.Valid {
			continue
		}
		set[code] = Quote{
			Value:    v,
			Currency: models.DefaultBase,
			Date:     date,
			Source:   s.Name(),
		}
	}
	return set, nil
}

// fetchRates fetches the full rate table for base.
func (s *ExchangeRateAPISource) fetchRates(ctx context.Context, base string) (map[string]any, map[string]any, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, strings.ToUpper(base))
	raw, err := s.client.getJSON(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	// Optional result field check; treat missing as success
	if r, ok := raw["result"].(string); ok && r != "success" {
		return nil, nil, fmt.Errorf("API error: %s", r)
	}

	// v6 uses conversion_rates, v4 uses rates
	if cr, ok := raw["conversion_rates"].(map[string]any); ok {
		return raw, cr, nil
	}
	if rr, ok := raw["rates"].(map[string]any); ok {
		return raw, rr, nil
	}
	return nil, nil, fmt.Errorf("API response missing rates")
}

// USDAUDProvider answers how many AUD one USD buys, caching the result for
// the life of the provider.
type USDAUDProvider struct {
	source *ExchangeRateAPISource
	logger *zap.Logger

	mu       sync.Mutex
	usdPerAU decimal.NullDecimal
}

func NewUSDAUDProvider(source *ExchangeRateAPISource, logger *zap.Logger) *USDAUDProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &USDAUDProvider{source: source, logger: logger.Named("usd_aud")}
}

// USDPerAUD returns the AUD->USD rate, failing when it cannot be fetched.
func (p *USDAUDProvider) USDPerAUD(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.usdPerAU.Valid {
		return p.usdPerAU.Decimal, nil
	}

	_, rates, err := p.source.fetchRates(ctx, models.CurrencyAUD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch AUD/USD rate: %w", err)
	}
	v := positive(rates[models.CurrencyUSD])
	if !v.Valid {
		return decimal.Zero, fmt.Errorf("USD rate missing from %s response", p.source.Name())
	}
	p.usdPerAU = v
	return v.Decimal, nil
}

// AUDPerUSD returns 1/USDPerAUD, falling back to FallbackAUDPerUSD.
func (p *USDAUDProvider) AUDPerUSD(ctx context.Context) decimal.Decimal {
	usd, err := p.USDPerAUD(ctx)
	if err != nil {
		p.logger.Warn("using fallback USD/AUD rate", zap.String("rate", FallbackAUDPerUSD.String()), zap.Error(err))
		return FallbackAUDPerUSD
	}
	return decimal.NewFromInt(1).Div(usd)
}

// positive keeps strictly positive numbers and nulls everything else.
func positive(v any) decimal.NullDecimal {
	n := normalize.Number(v)
	if !n.Valid || !n.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return n
}

func dateOr(t time.Time) string {
	if t.IsZero() {
		return time.Now().Format(models.DateLayout)
	}
	return t.Format(models.DateLayout)
}
