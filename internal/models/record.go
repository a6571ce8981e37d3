package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Snapshot files carry prices as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	DefaultBase     = CurrencyAUD
	DefaultCurrency = CurrencyAUD
	UnknownSource   = "unknown"
	UnknownUnit     = "unknown"
)

// DateLayout is the calendar-date format used in records, file names and CSV tables.
const DateLayout = "2006-01-02"

// CurrencyQuote is the standardized per-currency entry: 1 Base buys Rate units.
type CurrencyQuote struct {
	Rate decimal.NullDecimal `json:"rate"`
	Base string              `json:"base"`
	Date string              `json:"date"`
}

// CurrencyRecord is the standardized currency snapshot.
type CurrencyRecord struct {
	Date       string                   `json:"date"`
	Timestamp  string                   `json:"timestamp,omitempty"`
	RunID      string                   `json:"run_id,omitempty"`
	Currencies map[string]CurrencyQuote `json:"currencies"`
}

// CommodityQuote is the standardized per-commodity entry.
type CommodityQuote struct {
	PriceAUD decimal.NullDecimal `json:"price_aud"`
	PriceUSD decimal.NullDecimal `json:"price_usd"`
	Unit     string              `json:"unit"`
	Currency string              `json:"currency"`
	Date     string              `json:"date"`
	Source   string              `json:"source"`
	Error    string              `json:"error,omitempty"`
}

// HasPrice reports whether the quote carries a usable AUD price.
func (q CommodityQuote) HasPrice() bool {
	return q.PriceAUD.Valid && q.PriceAUD.Decimal.IsPositive()
}

// CommodityRecord is the standardized commodity snapshot.
type CommodityRecord struct {
	Date        string                    `json:"date"`
	Timestamp   string                    `json:"timestamp,omitempty"`
	RunID       string                    `json:"run_id,omitempty"`
	Commodities map[string]CommodityQuote `json:"commodities"`
}

// ColumnValues maps each tracked currency to its history column.
// Currencies absent from the record are reported as missing (nil).
func (r *CurrencyRecord) ColumnValues() map[string]*decimal.Decimal {
	out := make(map[string]*decimal.Decimal, len(TrackedCurrencies))
	for _, code := range TrackedCurrencies {
		out[CurrencyColumn(code)] = nil
		if q, ok := r.Currencies[code]; ok && q.Rate.Valid {
			v := q.Rate.Decimal
			out[CurrencyColumn(code)] = &v
		}
	}
	return out
}

// ColumnValues maps each tracked commodity's AUD price to its history column.
func (r *CommodityRecord) ColumnValues() map[string]*decimal.Decimal {
	out := make(map[string]*decimal.Decimal, len(TrackedCommodities))
	for _, code := range TrackedCommodities {
		out[CommodityColumn(code)] = nil
		if q, ok := r.Commodities[code]; ok && q.PriceAUD.Valid {
			v := q.PriceAUD.Decimal
			out[CommodityColumn(code)] = &v
		}
	}
	return out
}

// PreserveMissing fills commodities that lack a price in r with the priced
// entry from previous. Entries that already carry a price are kept. It
// returns the codes that were carried over.
func (r *CommodityRecord) PreserveMissing(previous *CommodityRecord) []string {
	if previous == nil {
		return nil
	}
	if r.Commodities == nil {
		r.Commodities = make(map[string]CommodityQuote)
	}
	var carried []string
	for _, code := range TrackedCommodities {
		if q, ok := r.Commodities[code]; ok && q.HasPrice() {
			continue
		}
		prev, ok := previous.Commodities[code]
		if !ok || !prev.HasPrice() {
			continue
		}
		r.Commodities[code] = prev
		carried = append(carried, code)
	}
	return carried
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NullDecimal wraps d as a valid nullable decimal.
func NullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
