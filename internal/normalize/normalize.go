package normalize

import (
	"time"

	"github.com/tropicaldog17/audtracker/internal/models"
)

const timestampLayout = "2006-01-02T15:04:05.999999"

func timestamp(raw map[string]any, now time.Time) string {
	if ts := str(raw["timestamp"]); ts != "" {
		return ts
	}
	return now.Format(timestampLayout)
}

// Currencies standardizes a currency payload. Applying it to its own
// output (via ToMap) returns an identical record.
func Currencies(raw map[string]any, now time.Time) models.CurrencyRecord {
	date := ResolveDate(raw, SectionCurrencies, now)
	rec := models.CurrencyRecord{
		Date:       date,
		Timestamp:  timestamp(raw, now),
		RunID:      str(raw["run_id"]),
		Currencies: make(map[string]models.CurrencyQuote),
	}

	assets := ParsePayload(raw, SectionCurrencies).Assets()
	for code, v := range assets {
		entry, ok := asMap(v)
		if !ok {
			rec.Currencies[code] = models.CurrencyQuote{Rate: Number(v), Base: models.DefaultBase, Date: date}
			continue
		}
		rec.Currencies[code] = models.CurrencyQuote{
			Rate: Number(entry["rate"]),
			Base: strOr(entry["base"], models.DefaultBase),
			Date: strOr(entry["date"], date),
		}
	}
	return rec
}

// Commodities standardizes a commodity payload. A scalar entry is taken as
// an AUD price with unknown unit and source.
func Commodities(raw map[string]any, now time.Time) models.CommodityRecord {
	date := ResolveDate(raw, SectionCommodities, now)
	rec := models.CommodityRecord{
		Date:        date,
		Timestamp:   timestamp(raw, now),
		RunID:       str(raw["run_id"]),
		Commodities: make(map[string]models.CommodityQuote),
	}

	assets := ParsePayload(raw, SectionCommodities).Assets()
	for code, v := range assets {
		entry, ok := asMap(v)
		if !ok {
			rec.Commodities[code] = models.CommodityQuote{
				PriceAUD: Number(v),
				Unit:     models.UnknownUnit,
				Currency: models.DefaultCurrency,
				Date:     date,
				Source:   models.UnknownSource,
			}
			continue
		}
		rec.Commodities[code] = models.CommodityQuote{
			PriceAUD: Number(entry["price_aud"]),
			PriceUSD: Number(entry["price_usd"]),
			Unit:     str(entry["unit"]),
			Currency: strOr(entry["currency"], models.DefaultCurrency),
			Date:     strOr(entry["date"], date),
			Source:   strOr(entry["source"], models.UnknownSource),
			Error:    str(entry["error"]),
		}
	}
	return rec
}
