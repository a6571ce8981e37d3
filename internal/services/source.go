package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/models"
)

// ErrNoPrices is returned when a source answered but produced no usable value.
var ErrNoPrices = errors.New("no prices returned")

// Quote is one asset observation from an upstream source. Value is the
// AUD-side figure: the exchange rate for currencies, the AUD price for
// commodities and metals.
type Quote struct {
	Value    decimal.NullDecimal
	USD      decimal.NullDecimal
	Unit     string
	Currency string
	Date     string
	Source   string
	Error    string
}

// PriceSet maps an asset code to its quote.
type PriceSet map[string]Quote

// Priced counts quotes that carry a value.
func (p PriceSet) Priced() int {
	n := 0
	for _, q := range p {
		if q.Value.Valid {
			n++
		}
	}
	return n
}

// Missing lists the assets without a value, in the given order.
func (p PriceSet) Missing(assets []string) []string {
	var out []string
	for _, a := range assets {
		if q, ok := p[a]; !ok || !q.Value.Valid {
			out = append(out, a)
		}
	}
	return out
}

// Values returns the non-null values keyed by asset.
func (p PriceSet) Values() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(p))
	for a, q := range p {
		if q.Value.Valid {
			out[a] = q.Value.Decimal
		}
	}
	return out
}

// Source is an upstream price provider. A zero asOf asks for the latest
// available values.
type Source interface {
	Name() string
	Fetch(ctx context.Context, assets []string, asOf time.Time) (PriceSet, error)
}

// Chain tries sources in order and returns the first result with at least
// one value.
type Chain struct {
	sources []Source
	logger  *zap.Logger
}

func NewChain(logger *zap.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{sources: sources, logger: logger.Named("chain")}
}

func (c *Chain) Name() string {
	return "chain"
}

func (c *Chain) Fetch(ctx context.Context, assets []string, asOf time.Time) (PriceSet, error) {
	var errs []error
	for _, src := range c.sources {
		set, err := src.Fetch(ctx, assets, asOf)
		if err != nil {
			c.logger.Warn("source failed, trying next", zap.String("source", src.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if set.Priced() == 0 {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), ErrNoPrices))
			continue
		}
		return set, nil
	}
	if len(errs) == 0 {
		return nil, ErrNoPrices
	}
	return nil, errors.Join(errs...)
}

// FillMissing asks each source in turn for the assets still missing from
// set, stopping once everything is priced. Fetch errors are logged and
// skipped. It returns the assets that were filled.
func FillMissing(ctx context.Context, logger *zap.Logger, set PriceSet, assets []string, asOf time.Time, sources ...Source) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	var filled []string
	for _, src := range sources {
		missing := set.Missing(assets)
		if len(missing) == 0 {
			break
		}
		got, err := src.Fetch(ctx, missing, asOf)
		if err != nil {
			logger.Warn("fallback source failed", zap.String("source", src.Name()), zap.Strings("assets", missing), zap.Error(err))
			continue
		}
		for _, a := range missing {
			if q, ok := got[a]; ok && q.Value.Valid {
				set[a] = q
				filled = append(filled, a)
			}
		}
	}
	return filled
}

// DegradedSet builds a null-valued quote for every asset carrying msg as its
// error, so a failed collection still yields a well-formed record.
func DegradedSet(assets []string, date string, msg string) PriceSet {
	set := make(PriceSet, len(assets))
	for _, a := range assets {
		set[a] = Quote{
			Unit:     CommodityUnit(a),
			Currency: models.DefaultCurrency,
			Date:     date,
			Error:    msg,
		}
	}
	return set
}

// CommodityUnit is the quoting unit for a tracked commodity code.
func CommodityUnit(code string) string {
	switch code {
	case "GOLD", "SILVER":
		return "oz"
	default:
		return "mt"
	}
}

const payloadTimeLayout = "2006-01-02T15:04:05.999999"

func nullable(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal
}

// CurrencyPayload lays a PriceSet out as the raw forex snapshot:
// collection_date plus the nested currencies section.
func CurrencyPayload(set PriceSet, now time.Time, fetchErr error) map[string]any {
	inner := make(map[string]any, len(set))
	for code, q := range set {
		if !q.Value.Valid {
			continue
		}
		inner[code] = map[string]any{
			"rate": q.Value.Decimal,
			"base": models.DefaultBase,
			"date": q.Date,
		}
	}
	section := map[string]any{
		"timestamp":  now.Format(payloadTimeLayout),
		"currencies": inner,
	}
	if fetchErr != nil {
		section["error"] = fetchErr.Error()
	}
	return map[string]any{
		"collection_date": now.Format(payloadTimeLayout),
		"currencies":      section,
	}
}

// CommodityPayload lays a PriceSet out as the raw commodity snapshot.
// Degraded quotes keep their null prices and error text.
func CommodityPayload(set PriceSet, now time.Time) map[string]any {
	inner := make(map[string]any, len(set))
	for code, q := range set {
		entry := map[string]any{
			"price_aud": nullable(q.Value),
			"price_usd": nullable(q.USD),
			"unit":      q.Unit,
			"currency":  q.Currency,
			"date":      q.Date,
		}
		if q.Source != "" {
			entry["source"] = q.Source
		}
		if q.Error != "" {
			entry["error"] = q.Error
		}
		inner[code] = entry
	}
	return map[string]any{
		"collection_date": now.Format(payloadTimeLayout),
		"commodities": map[string]any{
			"timestamp":   now.Format(payloadTimeLayout),
			"commodities": inner,
		},
	}
}
