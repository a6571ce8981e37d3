package history

import (
	"path/filepath"

	"github.com/tropicaldog17/audtracker/internal/models"
)

// Default table locations relative to the data directory.
var (
	CurrencyDailyPath      = filepath.Join("forex_data", "processed", "currency_daily.csv")
	CurrencyHistoricalPath = filepath.Join("forex_data", "historical", "currency_history.csv")
	CommodityDailyPath     = filepath.Join("commodities_data", "processed", "commodity_daily.csv")
	MetalsPath             = filepath.Join("processed", "metals_history.csv")
)

// CurrencyDaily is the rounded currency table the reports read.
func CurrencyDaily(dataDir string) *Store {
	return NewStore(models.CurrencySchema, filepath.Join(dataDir, CurrencyDailyPath), RoundTo(3))
}

// CurrencyHistorical keeps full-precision rates.
func CurrencyHistorical(dataDir string) *Store {
	return NewStore(models.CurrencySchema, filepath.Join(dataDir, CurrencyHistoricalPath), nil)
}

func CommodityDaily(dataDir string) *Store {
	return NewStore(models.CommoditySchema, filepath.Join(dataDir, CommodityDailyPath), nil)
}

func Metals(dataDir string) *Store {
	return NewStore(models.MetalsSchema, filepath.Join(dataDir, MetalsPath), nil)
}

// All returns every table the tracker maintains, keyed by a short name.
func All(dataDir string) map[string]*Store {
	return map[string]*Store{
		"currency_daily":      CurrencyDaily(dataDir),
		"currency_historical": CurrencyHistorical(dataDir),
		"commodity":           CommodityDaily(dataDir),
		"metals":              Metals(dataDir),
	}
}
