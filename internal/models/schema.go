package models

// TableSchema fixes the columns of one history table family.
// The canonical column order is date, DataColumns..., timestamp.
type TableSchema struct {
	Name        string
	DataColumns []string
	Optional    []string
}

const (
	ColumnDate      = "date"
	ColumnTimestamp = "timestamp"
)

// Columns returns the canonical header order.
func (s TableSchema) Columns() []string {
	cols := make([]string, 0, len(s.DataColumns)+2)
	cols = append(cols, ColumnDate)
	cols = append(cols, s.DataColumns...)
	return append(cols, ColumnTimestamp)
}

func (s TableSchema) IsOptional(col string) bool {
	for _, c := range s.Optional {
		if c == col {
			return true
		}
	}
	return false
}

func (s TableSchema) IsDataColumn(col string) bool {
	for _, c := range s.DataColumns {
		if c == col {
			return true
		}
	}
	return false
}

// Tracked currencies, in report order.
var TrackedCurrencies = []string{CurrencyUSD, CurrencyEUR, CurrencyJPY, CurrencyCNY, CurrencySGD}

// Tracked commodities, in report order.
var TrackedCommodities = []string{"GOLD", "SILVER", "COPPER", "ALUMINIUM", "ZINC", "NICKEL"}

// Precious metals kept in the metals table.
var TrackedMetals = []string{"gold", "silver", "platinum", "palladium"}

var CurrencySchema = TableSchema{
	Name:        "Currency",
	DataColumns: []string{"usd_rate", "eur_rate", "cny_rate", "sgd_rate", "jpy_rate"},
	// jpy_rate arrived after the first tables were written
	Optional: []string{"jpy_rate"},
}

var CommoditySchema = TableSchema{
	Name:        "Commodity",
	DataColumns: []string{"gold_price", "silver_price", "copper_price", "aluminium_price", "zinc_price", "nickel_price"},
	Optional:    []string{"zinc_price"},
}

var MetalsSchema = TableSchema{
	Name:        "Metals",
	DataColumns: []string{"gold_aud", "silver_aud", "platinum_aud", "palladium_aud"},
}

// CurrencyColumn maps a currency code to its history column, e.g. USD -> usd_rate.
func CurrencyColumn(code string) string {
	return lower(code) + "_rate"
}

// CommodityColumn maps a commodity code to its history column, e.g. GOLD -> gold_price.
func CommodityColumn(code string) string {
	return lower(code) + "_price"
}

// MetalColumn maps a metal name to its history column, e.g. gold -> gold_aud.
func MetalColumn(name string) string {
	return lower(name) + "_aud"
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
