package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/audtracker/internal/models"
)

// Metals.Dev spells the tracked commodities its own way.
var metalsDevSymbols = map[string]string{
	"GOLD":      "gold",
	"SILVER":    "silver",
	"COPPER":    "copper",
	"ALUMINIUM": "aluminum",
	"ZINC":      "zinc",
	"NICKEL":    "nickel",
}

const (
	errPriceNotFound = "Price not found in API response"
	errRequestFailed = "API request failed"
)

// FXConverter converts between USD and AUD for sources quoting in USD.
type FXConverter interface {
	// AUDPerUSD never fails; implementations fall back to a fixed rate.
	AUDPerUSD(ctx context.Context) decimal.Decimal
	USDPerAUD(ctx context.Context) (decimal.Decimal, error)
}

var _ FXConverter = (*USDAUDProvider)(nil)

// MetalsDevSource provides commodity prices from api.metals.dev. Latest
// prices are requested in AUD; timeseries prices come back in USD and are
// converted with the rate embedded in each day.
type MetalsDevSource struct {
	apiKey  string
	baseURL string
	client  *apiClient
	fx      FXConverter
}

func NewMetalsDevSource(apiKey string, opts ClientOptions, fx FXConverter) *MetalsDevSource {
	return &MetalsDevSource{
		apiKey:  apiKey,
		baseURL: "https://api.metals.dev/v1",
		client:  newAPIClient(models.SourceMetalsDev, opts),
		fx:      fx,
	}
}

func (s *MetalsDevSource) Name() string {
	return models.SourceMetalsDev
}

// Fetch returns latest prices for a zero or current asOf, otherwise the
// timeseries entry for that day.
func (s *MetalsDevSource) Fetch(ctx context.Context, assets []string, asOf time.Time) (PriceSet, error) {
	today := time.Now().Format(models.DateLayout)
	if asOf.IsZero() || asOf.Format(models.DateLayout) == today {
		return s.Latest(ctx, assets)
	}
	byDate, err := s.Timeseries(ctx, assets, asOf, asOf)
	if err != nil {
		return nil, err
	}
	return byDate[asOf.Format(models.DateLayout)], nil
}

// Latest fetches current AUD prices. Assets the response lacks come back as
// error quotes.
func (s *MetalsDevSource) Latest(ctx context.Context, assets []string) (PriceSet, error) {
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("currency", models.CurrencyAUD)
	raw, err := s.client.getJSON(ctx, s.baseURL+"/latest?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := checkStatus(raw); err != nil {
		return nil, err
	}

	metals, _ := raw["metals"].(map[string]any)
	date := time.Now().Format(models.DateLayout)
	audPerUSD := s.fx.AUDPerUSD(ctx)

	set := make(PriceSet, len(assets))
	for _, code := range assets {
		aud := positive(metals[metalsDevSymbols[code]])
		if !aud.Valid {
			set[code] = Quote{Unit: CommodityUnit(code), Currency: models.DefaultCurrency, Date: date, Error: errPriceNotFound}
			continue
		}
		set[code] = Quote{
			Value:    aud,
			USD:      models.NullDecimal(aud.Decimal.Div(audPerUSD)),
			Unit:     CommodityUnit(code),
			Currency: models.DefaultCurrency,
			Date:     date,
			Source:   models.SourceMetalsDev,
		}
	}
	return set, nil
}

// Timeseries fetches one PriceSet per calendar day in [start, end]. Days the
// response does not cover get error quotes for every asset.
func (s *MetalsDevSource) Timeseries(ctx context.Context, assets []string, start, end time.Time) (map[string]PriceSet, error) {
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("start_date", start.Format(models.DateLayout))
	q.Set("end_date", end.Format(models.DateLayout))
	q.Set("currency", models.CurrencyAUD)
	raw, err := s.client.getJSON(ctx, s.baseURL+"/timeseries?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := checkStatus(raw); err != nil {
		return nil, err
	}

	rates, _ := raw["rates"].(map[string]any)
	out := make(map[string]PriceSet)
	for d := models.DateOnly(start); !d.After(models.DateOnly(end)); d = d.AddDate(0, 0, 1) {
		date := d.Format(models.DateLayout)
		day, ok := rates[date].(map[string]any)
		if !ok || len(day) == 0 {
			out[date] = DegradedSet(assets, date, fmt.Sprintf("Date %s not found in API response", date))
			continue
		}
		out[date] = s.dayPrices(ctx, assets, date, day)
	}
	return out, nil
}

func (s *MetalsDevSource) dayPrices(ctx context.Context, assets []string, date string, day map[string]any) PriceSet {
	metals, _ := day["metals"].(map[string]any)
	currencies, _ := day["currencies"].(map[string]any)

	// currencies.AUD is USD per AUD
	var audPerUSD decimal.Decimal
	if usdPerAUD := positive(currencies[models.CurrencyAUD]); usdPerAUD.Valid {
		audPerUSD = decimal.NewFromInt(1).Div(usdPerAUD.Decimal)
	} else {
		audPerUSD = s.fx.AUDPerUSD(ctx)
	}

	set := make(PriceSet, len(assets))
	for _, code := range assets {
		usd := positive(metals[metalsDevSymbols[code]])
		if !usd.Valid {
			set[code] = Quote{Unit: CommodityUnit(code), Currency: models.DefaultCurrency, Date: date, Error: errPriceNotFound}
			continue
		}
		set[code] = Quote{
			Value:    models.NullDecimal(usd.Decimal.Mul(audPerUSD)),
			USD:      usd,
			Unit:     CommodityUnit(code),
			Currency: models.DefaultCurrency,
			Date:     date,
			Source:   models.SourceMetalsDev,
		}
	}
	return set
}

func checkStatus(raw map[string]any) error {
	status, _ := raw["status"].(string)
	if status == "success" {
		return nil
	}
	msg, _ := raw["error_message"].(string)
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("API returned status %q: %s", strings.TrimSpace(status), msg)
}
