package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one official rate observation: 1 Base buys Rate units of Quote.
type ExchangeRate struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	Date      time.Time       `json:"date" gorm:"type:date;not null;uniqueIndex:idx_rate_unique,priority:1;index:idx_date;index:idx_date_pair,priority:1"`
	Base      string          `json:"base_currency" gorm:"column:base_currency;size:3;not null;uniqueIndex:idx_rate_unique,priority:2;index:idx_currency_pair,priority:1;index:idx_date_pair,priority:2"`
	Quote     string          `json:"quote_currency" gorm:"column:quote_currency;size:3;not null;uniqueIndex:idx_rate_unique,priority:3;index:idx_currency_pair,priority:2;index:idx_date_pair,priority:3"`
	Rate      decimal.Decimal `json:"rate" gorm:"column:rate;type:decimal(20,10);not null"`
	Source    string          `json:"source" gorm:"size:64;not null;default:RBA;uniqueIndex:idx_rate_unique,priority:4"`
	CreatedAt time.Time       `json:"created_at"`
}

func (ExchangeRate) TableName() string {
	return "exchange_rates"
}

// Rate sources
const (
	SourceRBA          = "RBA"
	SourceExchangeRate = "exchangerate-api"
	SourceFrankfurter  = "frankfurter"
	SourceHost         = "exchangerate.host"
	SourceMetalsDev    = "Metals.Dev"
	SourceMetalsAPI    = "metals-api"
	SourceMetalsLive   = "metals.live"
	SourceYahoo        = "yahoo-finance"
	SourceManual       = "manual"
)

// Currencies
const (
	CurrencyAUD = "AUD"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
	CurrencyJPY = "JPY"
	CurrencyCNY = "CNY"
	CurrencySGD = "SGD"
)

// Validate validates the exchange rate data
func (r *ExchangeRate) Validate() error {
	if r.Base == "" {
		return errors.New("base_currency is required")
	}
	if r.Quote == "" {
		return errors.New("quote_currency is required")
	}
	if r.Base == r.Quote {
		return errors.New("base_currency and quote_currency must be different")
	}
	if r.Rate.IsZero() || r.Rate.IsNegative() {
		return errors.New("rate must be positive")
	}
	if r.Date.IsZero() {
		return errors.New("date is required")
	}
	if r.Source == "" {
		return errors.New("source is required")
	}
	return nil
}

// InverseRate returns 1/rate, or zero when the rate is zero.
func (r *ExchangeRate) InverseRate() decimal.Decimal {
	if r.Rate.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(r.Rate)
}

// IsTrackedCurrency reports whether code is one of the report currencies.
func IsTrackedCurrency(code string) bool {
	for _, c := range TrackedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// ArchiveSummary describes the contents of the rate archive.
type ArchiveSummary struct {
	TotalRecords int64      `json:"total_records"`
	MinDate      *time.Time `json:"min_date,omitempty"`
	MaxDate      *time.Time `json:"max_date,omitempty"`
	Currencies   []string   `json:"currencies"`
}

// PivotRow holds one date's rates keyed by quote currency.
type PivotRow struct {
	Date  time.Time
	Rates map[string]decimal.Decimal
}
