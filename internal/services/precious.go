package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/models"
)

// ISO 4217 metal codes used by metals-api.
var metalCodes = map[string]string{
	"gold":      "XAU",
	"silver":    "XAG",
	"platinum":  "XPT",
	"palladium": "XPD",
}

// MetalsAPISource provides precious metal spot prices from metals-api.com.
type MetalsAPISource struct {
	apiKey  string
	baseURL string
	client  *apiClient
	fx      FXConverter
}

func NewMetalsAPISource(apiKey string, opts ClientOptions, fx FXConverter) *MetalsAPISource {
	return &MetalsAPISource{
		apiKey:  apiKey,
		baseURL: "https://metals-api.com/api",
		client:  newAPIClient(models.SourceMetalsAPI, opts),
		fx:      fx,
	}
}

func (s *MetalsAPISource) Name() string {
	return models.SourceMetalsAPI
}

// Fetch returns USD spot prices converted to AUD. With base=USD the plain
// rates are metal units per dollar, so the USD<code> entry is preferred and
// the plain rate is inverted otherwise.
func (s *MetalsAPISource) Fetch(ctx context.Context, assets []string, _ time.Time) (PriceSet, error) {
	var codes []string
	for _, a := range assets {
		if c, ok := metalCodes[a]; ok {
			codes = append(codes, c)
		}
	}
	q := url.Values{}
	q.Set("access_key", s.apiKey)
	q.Set("base", models.CurrencyUSD)
	q.Set("symbols", strings.Join(codes, ","))
	raw, err := s.client.getJSON(ctx, s.baseURL+"/latest?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if ok, present := raw["success"].(bool); present && !ok {
		return nil, fmt.Errorf("metals-api reported failure: %v", raw["error"])
	}
	rates, _ := raw["rates"].(map[string]any)

	usd := make(map[string]decimal.Decimal)
	for _, a := range assets {
		code := metalCodes[a]
		if v := positive(rates[models.CurrencyUSD+code]); v.Valid {
			usd[a] = v.Decimal
		} else if v := positive(rates[code]); v.Valid {
			usd[a] = decimal.NewFromInt(1).Div(v.Decimal)
		}
	}
	return toAUD(ctx, s.fx, usd, s.Name())
}

// MetalsLiveSource provides keyless spot prices from api.metals.live, one
// request per metal.
type MetalsLiveSource struct {
	baseURL string
	client  *apiClient
	fx      FXConverter
	logger  *zap.Logger
}

func NewMetalsLiveSource(opts ClientOptions, fx FXConverter, logger *zap.Logger) *MetalsLiveSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetalsLiveSource{
		baseURL: "https://api.metals.live/v1/spot",
		client:  newAPIClient(models.SourceMetalsLive, opts),
		fx:      fx,
		logger:  logger.Named("metals_live"),
	}
}

func (s *MetalsLiveSource) Name() string {
	return models.SourceMetalsLive
}

func (s *MetalsLiveSource) Fetch(ctx context.Context, assets []string, _ time.Time) (PriceSet, error) {
	usd := make(map[string]decimal.Decimal)
	for _, metal := range assets {
		var payload any
		if err := s.client.get(ctx, s.baseURL+"/"+url.PathEscape(metal), &payload); err != nil {
			s.logger.Warn("spot fetch failed", zap.String("metal", metal), zap.Error(err))
			continue
		}
		if v := spotPrice(payload); v.Valid {
			usd[metal] = v.Decimal
		}
	}
	return toAUD(ctx, s.fx, usd, s.Name())
}

// spotPrice reads the price out of the shapes metals.live has served:
// [[ts, price], ...], [price, ...] or {"price"|"spot"|"value": price}.
func spotPrice(payload any) decimal.NullDecimal {
	switch p := payload.(type) {
	case []any:
		if len(p) == 0 {
			return decimal.NullDecimal{}
		}
		if pair, ok := p[0].([]any); ok {
			if len(pair) > 1 {
				return positive(pair[1])
			}
			return decimal.NullDecimal{}
		}
		return positive(p[0])
	case map[string]any:
		for _, key := range []string{"price", "spot", "value"} {
			if v := positive(p[key]); v.Valid {
				return v
			}
		}
	}
	return decimal.NullDecimal{}
}

// toAUD divides USD prices by the AUD->USD rate. The rate is required;
// there is no fallback for metals.
func toAUD(ctx context.Context, fx FXConverter, usd map[string]decimal.Decimal, source string) (PriceSet, error) {
	if len(usd) == 0 {
		return PriceSet{}, nil
	}
	usdPerAUD, err := fx.USDPerAUD(ctx)
	if err != nil {
		return nil, err
	}
	date := time.Now().UTC().Format(models.DateLayout)
	set := make(PriceSet, len(usd))
	for metal, v := range usd {
		set[metal] = Quote{
			Value:    models.NullDecimal(v.Div(usdPerAUD)),
			USD:      models.NullDecimal(v),
			Unit:     "oz",
			Currency: models.DefaultCurrency,
			Date:     date,
			Source:   source,
		}
	}
	return set, nil
}

