package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/audtracker/internal/models"
)

// Pounds per metric tonne.
var poundsPerTonne = decimal.RequireFromString("2204.62")

// yahooTickers maps commodity codes to Yahoo Finance futures tickers. Only
// copper has a usable contract; aluminium and nickel trade on the LME.
var yahooTickers = map[string]string{
	"COPPER": "HG=F",
}

const yahooMaxDistanceDays = 5

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*decimal.Decimal `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooCopperSource fills base-metal gaps from Yahoo Finance futures closes.
// Futures quote USD per pound; prices are converted to AUD per tonne.
type YahooCopperSource struct {
	baseURL string
	client  *apiClient
	fx      FXConverter
}

func NewYahooCopperSource(opts ClientOptions, fx FXConverter) *YahooCopperSource {
	return &YahooCopperSource{
		baseURL: "https://query1.finance.yahoo.com/v8/finance/chart",
		client:  newAPIClient(models.SourceYahoo, opts),
		fx:      fx,
	}
}

func (s *YahooCopperSource) Name() string {
	return models.SourceYahoo
}

// Fetch returns the close nearest to asOf (within five days) for each asset
// with a known ticker. Other assets are left out.
func (s *YahooCopperSource) Fetch(ctx context.Context, assets []string, asOf time.Time) (PriceSet, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	target := models.DateOnly(asOf)
	date := target.Format(models.DateLayout)

	set := make(PriceSet)
	for _, code := range assets {
		ticker, ok := yahooTickers[code]
		if !ok {
			continue
		}
		perLb, err := s.closestClose(ctx, ticker, target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ticker, err)
		}
		if perLb == nil {
			continue
		}
		usd := perLb.Mul(poundsPerTonne)
		set[code] = Quote{
			Value:    models.NullDecimal(usd.Mul(s.fx.AUDPerUSD(ctx))),
			USD:      models.NullDecimal(usd),
			Unit:     "mt",
			Currency: models.DefaultCurrency,
			Date:     date,
			Source:   models.SourceYahoo,
		}
	}
	return set, nil
}

func (s *YahooCopperSource) closestClose(ctx context.Context, ticker string, target time.Time) (*decimal.Decimal, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprint(target.AddDate(0, 0, -yahooMaxDistanceDays).Unix()))
	q.Set("period2", fmt.Sprint(target.AddDate(0, 0, 1).Unix()))
	q.Set("interval", "1d")

	var resp yahooChartResponse
	if err := s.client.get(ctx, fmt.Sprintf("%s/%s?%s", s.baseURL, url.PathEscape(ticker), q.Encode()), &resp); err != nil {
		return nil, err
	}
	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("chart error %s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := resp.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	var (
		best    *decimal.Decimal
		minDiff = -1
	)
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil || !closes[i].IsPositive() {
			continue
		}
		day := models.DateOnly(time.Unix(ts, 0).UTC())
		diff := int(day.Sub(target).Hours() / 24)
		if diff < 0 {
			diff = -diff
		}
		if minDiff < 0 || diff < minDiff {
			minDiff = diff
			best = closes[i]
		}
	}
	if best == nil || minDiff > yahooMaxDistanceDays {
		return nil, nil
	}
	return best, nil
}
