// Package render fills the report templates and rasterizes them to JPEG.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/models"
)

// ErrTemplateNotFound means the report template is absent. Callers treat it
// as a warning.
var ErrTemplateNotFound = errors.New("template not found")

// PreviousLookbackDays bounds the search for the comparison row.
const PreviousLookbackDays = 7

// Kind describes one report family.
type Kind struct {
	Name       string
	Template   string
	OutputDir  string
	Assets     []string
	Column     func(code string) string
	Places     int32
	Thousands  bool
	ArrowClass string
}

var Forex = Kind{
	Name:       "forex",
	Template:   "forex_template.html",
	OutputDir:  "forex_data",
	Assets:     models.TrackedCurrencies,
	Column:     models.CurrencyColumn,
	Places:     3,
	ArrowClass: "currency-arrow",
}

var Commodity = Kind{
	Name:       "commodity",
	Template:   "commodity_template.html",
	OutputDir:  "commodities_data",
	Assets:     models.TrackedCommodities,
	Column:     models.CommodityColumn,
	Places:     2,
	Thousands:  true,
	ArrowClass: "commodity-arrow",
}

// Rasterizer turns a rendered HTML file into a JPEG.
type Rasterizer interface {
	Rasterize(ctx context.Context, htmlPath, jpegPath string, opts ImageOptions) error
}

type ImageOptions struct {
	Width   int
	Height  int
	Quality int
}

// Result lists the files one Render call produced.
type Result struct {
	HTMLPath string
	JPEGPath string
}

type Renderer struct {
	templatesDir string
	dataDir      string
	raster       Rasterizer
	image        ImageOptions
	logger       *zap.Logger
}

// NewRenderer returns a renderer. raster may be nil to skip JPEG output.
func NewRenderer(templatesDir, dataDir string, raster Rasterizer, image ImageOptions, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		templatesDir: templatesDir,
		dataDir:      dataDir,
		raster:       raster,
		image:        image,
		logger:       logger.Named("render"),
	}
}

// Tokens builds the replacement table for date and values. Arrow tokens are
// included only when withArrows is set; previous supplies the comparison row.
func Tokens(kind Kind, date string, values map[string]*decimal.Decimal, previous map[string]*decimal.Decimal, withArrows bool) (map[string]string, error) {
	d, err := models.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("invalid report date %q: %w", date, err)
	}
	tokens := map[string]string{"FULL_DATE": d.Format("January 02, 2006")}
	for _, code := range kind.Assets {
		tokens[code+"_RATE"] = FormatValue(values[code], kind.Places, kind.Thousands)
		if withArrows {
			tokens[code+"_ARROW"] = Arrow(values[code], previous[code], kind.ArrowClass)
		}
	}
	return tokens, nil
}

// HasArrows reports whether tmpl references any arrow token of kind.
func HasArrows(kind Kind, tmpl string) bool {
	for _, code := range kind.Assets {
		if strings.Contains(tmpl, "{"+code+"_ARROW}") {
			return true
		}
	}
	return false
}

// PreviousValues reads the comparison values for date from table.
func PreviousValues(kind Kind, table *history.Table, date string) map[string]*decimal.Decimal {
	if table == nil {
		return nil
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return nil
	}
	cols := make([]string, len(kind.Assets))
	for i, code := range kind.Assets {
		cols[i] = kind.Column(code)
	}
	row, ok := table.Previous(d, PreviousLookbackDays, cols)
	if !ok {
		return nil
	}
	out := make(map[string]*decimal.Decimal, len(kind.Assets))
	for _, code := range kind.Assets {
		if v, ok := row.Value(kind.Column(code)); ok {
			out[code] = &v
		}
	}
	return out
}

// Render writes <dataDir>/<kind dir>/HTML/<kind>_<date>.html and, when a
// rasterizer is set, the matching JPEG. JPEG failures are logged and leave
// JPEGPath empty.
func (r *Renderer) Render(ctx context.Context, kind Kind, date string, values map[string]*decimal.Decimal, table *history.Table) (Result, error) {
	tmplPath := filepath.Join(r.templatesDir, kind.Template)
	raw, err := os.ReadFile(tmplPath)
	if os.IsNotExist(err) {
		return Result{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, tmplPath)
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to read template: %w", err)
	}
	tmpl := string(raw)

	withArrows := HasArrows(kind, tmpl)
	var previous map[string]*decimal.Decimal
	if withArrows {
		previous = PreviousValues(kind, table, date)
		if previous == nil {
			r.logger.Warn("No previous values found, arrows will be empty", zap.String("kind", kind.Name), zap.String("date", date))
		}
	}

	tokens, err := Tokens(kind, date, values, previous, withArrows)
	if err != nil {
		return Result{}, err
	}

	base := filepath.Join(r.dataDir, kind.OutputDir)
	res := Result{HTMLPath: filepath.Join(base, "HTML", fmt.Sprintf("%s_%s.html", kind.Name, date))}
	if err := os.MkdirAll(filepath.Dir(res.HTMLPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create HTML dir: %w", err)
	}
	if err := os.WriteFile(res.HTMLPath, []byte(Replace(tmpl, tokens)), 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write HTML: %w", err)
	}
	r.logger.Info("HTML generated", zap.String("path", res.HTMLPath))

	if r.raster == nil {
		return res, nil
	}
	jpegPath := filepath.Join(base, "JPEG", fmt.Sprintf("%s_%s.jpg", kind.Name, date))
	if err := os.MkdirAll(filepath.Dir(jpegPath), 0o755); err != nil {
		r.logger.Warn("Failed to create JPEG dir", zap.Error(err))
		return res, nil
	}
	start := time.Now()
	if err := r.raster.Rasterize(ctx, res.HTMLPath, jpegPath, r.image); err != nil {
		r.logger.Warn("JPEG conversion failed", zap.String("html", res.HTMLPath), zap.Error(err))
		return res, nil
	}
	res.JPEGPath = jpegPath
	r.logger.Info("JPEG generated", zap.String("path", jpegPath), zap.Duration("took", time.Since(start)))
	return res, nil
}

// CurrencyValues extracts the report values from a currency record.
func CurrencyValues(rec models.CurrencyRecord) map[string]*decimal.Decimal {
	out := make(map[string]*decimal.Decimal)
	for code, q := range rec.Currencies {
		if q.Rate.Valid {
			v := q.Rate.Decimal
			out[code] = &v
		}
	}
	return out
}

// CommodityValues extracts the AUD prices from a commodity record.
func CommodityValues(rec models.CommodityRecord) map[string]*decimal.Decimal {
	out := make(map[string]*decimal.Decimal)
	for code, q := range rec.Commodities {
		if q.PriceAUD.Valid {
			v := q.PriceAUD.Decimal
			out[code] = &v
		}
	}
	return out
}

// RowValues maps a history row back to asset codes.
func RowValues(kind Kind, row history.Row) map[string]*decimal.Decimal {
	out := make(map[string]*decimal.Decimal)
	for _, code := range kind.Assets {
		if v, ok := row.Value(kind.Column(code)); ok {
			out[code] = &v
		}
	}
	return out
}
