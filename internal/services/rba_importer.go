package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/metrics"
	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/repositories"
)

// DefaultRBASources lists the RBA F11.1 daily exchange rate table.
var DefaultRBASources = []string{
	"https://www.rba.gov.au/statistics/tables/csv/f11.1-data.csv",
}

// Date layouts seen in RBA tables.
var rbaDateLayouts = []string{"02-Jan-2006", "2-Jan-2006", "2006-01-02", "02/01/2006", "2/1/2006"}

// Column titles naming a currency in words, checked in order.
var currencyNames = []struct{ name, code string }{
	{"united states", "USD"}, {"us dollar", "USD"},
	{"euro", "EUR"},
	{"sterling", "GBP"}, {"pound", "GBP"},
	{"yen", "JPY"}, {"japan", "JPY"},
	{"renminbi", "CNY"}, {"yuan", "CNY"}, {"china", "CNY"},
	{"canad", "CAD"},
	{"swiss", "CHF"},
	{"new zealand", "NZD"},
	{"singapore", "SGD"},
	{"hong kong", "HKD"},
	{"korea", "KRW"},
	{"rupee", "INR"}, {"india", "INR"},
	{"baht", "THB"}, {"thailand", "THB"},
	{"ringgit", "MYR"}, {"malaysia", "MYR"},
	{"rupiah", "IDR"}, {"indonesia", "IDR"},
	{"taiwan", "TWD"},
	{"swed", "SEK"},
	{"norw", "NOK"},
	{"denmark", "DKK"}, {"danish", "DKK"},
	{"south africa", "ZAR"}, {"rand", "ZAR"},
	{"philippine", "PHP"},
	{"vietnam", "VND"}, {"dong", "VND"},
	{"arab emirates", "AED"}, {"uae", "AED"},
	{"papua new guinea", "PGK"}, {"kina", "PGK"},
	{"special drawing", "SDR"},
}

var (
	isoCode         = regexp.MustCompile(`\b[A-Z]{3}\b`)
	notCurrencyCode = map[string]bool{"RBA": true, "AUD": true, "IMF": true, "FXR": true, "TWI": true}
)

// CurrencyFromTitle extracts the quote currency from an RBA column title
// such as "A$1=USD". Index columns yield false.
func CurrencyFromTitle(title string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" || strings.Contains(lower, "trade-weighted") || strings.Contains(lower, "index") {
		return "", false
	}

	if i := strings.LastIndex(title, "="); i >= 0 {
		code := strings.ToUpper(strings.TrimSpace(title[i+1:]))
		if len(code) == 3 && isAlpha(code) {
			return code, true
		}
	}

	for _, n := range currencyNames {
		if strings.Contains(lower, n.name) {
			return n.code, true
		}
	}

	for _, m := range isoCode.FindAllString(strings.ToUpper(title), -1) {
		if !notCurrencyCode[m] {
			return m, true
		}
	}
	return "", false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func parseRBADate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range rbaDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseRBATable reads an RBA statistical table in CSV form. The header is the
// row whose first cell is "Title"; metadata rows after it are skipped until
// the first cell parses as a date. Every positive cell under a currency
// column becomes an AUD-based rate tagged with source.
func ParseRBATable(r io.Reader, source string) ([]*models.ExchangeRate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	type column struct {
		index int
		code  string
	}
	var (
		columns []column
		header  bool
		rates   []*models.ExchangeRate
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read RBA table: %w", err)
		}
		if len(rec) == 0 {
			continue
		}
		first := strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff"))

		if !header {
			if strings.EqualFold(first, "Title") {
				header = true
				for i, title := range rec[1:] {
					if code, ok := CurrencyFromTitle(title); ok {
						columns = append(columns, column{index: i + 1, code: code})
					}
				}
			}
			continue
		}

		date, ok := parseRBADate(first)
		if !ok {
			continue
		}
		for _, col := range columns {
			if col.index >= len(rec) {
				continue
			}
			v, err := decimal.NewFromString(strings.TrimSpace(rec[col.index]))
			if err != nil || !v.IsPositive() {
				continue
			}
			rates = append(rates, &models.ExchangeRate{
				Date:   date,
				Base:   models.CurrencyAUD,
				Quote:  col.code,
				Rate:   v,
				Source: source,
			})
		}
	}
	if !header {
		return nil, errors.New("RBA table has no Title header row")
	}
	return rates, nil
}

// ImportResult totals one importer run.
type ImportResult struct {
	Files   int
	Parsed  int
	Stats   repositories.InsertStats
	Skipped []string
}

// RBAImporter loads RBA exchange rate tables into the rate archive.
type RBAImporter struct {
	repo        repositories.ExchangeRateRepository
	client      *apiClient
	downloadDir string
	spacing     time.Duration
	logger      *zap.Logger
}

func NewRBAImporter(repo repositories.ExchangeRateRepository, downloadDir string, opts ClientOptions, logger *zap.Logger) *RBAImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	// downloads are spaced explicitly, not through the limiter
	opts.RequestsPerSecond = 0
	if opts.Timeout < time.Minute {
		opts.Timeout = time.Minute
	}
	return &RBAImporter{
		repo:        repo,
		client:      newAPIClient(models.SourceRBA, opts),
		downloadDir: downloadDir,
		spacing:     time.Second,
		logger:      logger.Named("rba"),
	}
}

// Download saves url into the download directory unless a file with the same
// name is already there, and returns the local path.
func (i *RBAImporter) Download(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(i.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}
	dest := filepath.Join(i.downloadDir, path.Base(url))
	if _, err := os.Stat(dest); err == nil {
		i.logger.Info("already downloaded", zap.String("file", dest))
		return dest, nil
	}

	tmp, err := os.CreateTemp(i.downloadDir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	i.logger.Info("downloading", zap.String("url", url))
	if err := i.client.download(ctx, url, tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}

	// be polite to the RBA site
	select {
	case <-ctx.Done():
		return dest, ctx.Err()
	case <-time.After(i.spacing):
	}
	return dest, nil
}

// ImportFile parses one local table and inserts its rates.
func (i *RBAImporter) ImportFile(ctx context.Context, file string) (int, repositories.InsertStats, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, repositories.InsertStats{}, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	rates, err := ParseRBATable(f, models.SourceRBA+"-"+name)
	if err != nil {
		return 0, repositories.InsertStats{}, fmt.Errorf("%s: %w", file, err)
	}
	stats, err := i.repo.InsertIgnoreDuplicates(ctx, rates)
	if err != nil {
		return len(rates), stats, err
	}
	metrics.RBARecordsImported.Add(float64(stats.Inserted))
	i.logger.Info("imported table",
		zap.String("file", file),
		zap.Int("parsed", len(rates)),
		zap.Int("inserted", stats.Inserted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("errors", stats.Errors),
	)
	return len(rates), stats, nil
}

// Run imports every source, downloading URLs first. A failing source is
// logged and skipped.
func (i *RBAImporter) Run(ctx context.Context, sources []string) (ImportResult, error) {
	var res ImportResult
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		file := src
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			var err error
			if file, err = i.Download(ctx, src); err != nil {
				i.logger.Error("download failed", zap.String("url", src), zap.Error(err))
				res.Skipped = append(res.Skipped, src)
				continue
			}
		}
		parsed, stats, err := i.ImportFile(ctx, file)
		if err != nil {
			i.logger.Error("import failed", zap.String("file", file), zap.Error(err))
			res.Skipped = append(res.Skipped, src)
			continue
		}
		res.Files++
		res.Parsed += parsed
		res.Stats.Inserted += stats.Inserted
		res.Stats.Duplicates += stats.Duplicates
		res.Stats.Errors += stats.Errors
	}
	return res, nil
}

func (i *RBAImporter) Summary(ctx context.Context) (*models.ArchiveSummary, error) {
	return i.repo.Summary(ctx)
}

// ExportHistory writes the archived AUD rates for the tracked currencies
// into the historical currency table, one full row per archived date. It
// returns the number of dates written.
func (i *RBAImporter) ExportHistory(ctx context.Context, store *history.Store) (int, error) {
	rows, err := i.repo.PivotForExport(ctx, models.CurrencyAUD, models.TrackedCurrencies)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	entries := make([]history.Entry, 0, len(rows))
	for _, row := range rows {
		values := make(map[string]*decimal.Decimal, len(row.Rates))
		for code, v := range row.Rates {
			v := v
			values[models.CurrencyColumn(code)] = &v
		}
		entries = append(entries, history.Entry{Date: row.Date, Values: values})
	}
	if _, err := store.UpsertBatch(ctx, entries, time.Time{}); err != nil {
		return 0, err
	}
	return len(entries), nil
}
