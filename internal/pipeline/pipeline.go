// Package pipeline runs the collect, normalize, persist and render steps
// behind each command.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/config"
	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/metrics"
	"github.com/tropicaldog17/audtracker/internal/render"
	"github.com/tropicaldog17/audtracker/internal/repositories"
	"github.com/tropicaldog17/audtracker/internal/services"
	"github.com/tropicaldog17/audtracker/internal/snapshot"
)

// ErrNoData means every source failed to produce a value.
var ErrNoData = errors.New("no data collected")

// RawFilesPerDate is how many raw snapshots cleanup keeps for each date.
const RawFilesPerDate = 2

// CommoditySource serves latest and ranged commodity prices.
type CommoditySource interface {
	services.Source
	Timeseries(ctx context.Context, assets []string, start, end time.Time) (map[string]services.PriceSet, error)
}

// Sources holds the upstream providers. Commodities is nil when no
// Metals.Dev key is configured.
type Sources struct {
	ForexLatest     services.Source
	ForexHistorical []services.Source
	Commodities     CommoditySource
	BaseMetals      []services.Source
	Metals          []services.Source
}

// WithArchive puts the RBA archive ahead of the historical forex APIs.
func (s Sources) WithArchive(repo repositories.ExchangeRateRepository) Sources {
	s.ForexHistorical = append([]services.Source{services.NewArchiveSource(repo)}, s.ForexHistorical...)
	return s
}

// NewSources builds the production providers from configuration.
func NewSources(cfg *config.Config, logger *zap.Logger) Sources {
	opts := services.ClientOptions{
		Timeout:           cfg.HTTP.Timeout,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	}

	var rateKey string
	if cfg.IsConfigured("exchange_rate") {
		rateKey = cfg.APIKeys.ExchangeRate
	}
	latest := services.NewExchangeRateAPISource(rateKey, opts)
	// conversion always uses the keyless endpoint, as the USD rate is public
	fx := services.NewUSDAUDProvider(services.NewExchangeRateAPISource("", opts), logger)

	src := Sources{
		ForexLatest: latest,
		ForexHistorical: []services.Source{
			services.NewFrankfurterSource(opts),
			services.NewExchangeRateHostSource(opts),
		},
		BaseMetals: []services.Source{services.NewYahooCopperSource(opts, fx)},
	}
	if cfg.IsConfigured("metals_dev") {
		src.Commodities = services.NewMetalsDevSource(cfg.APIKeys.MetalsDev, opts, fx)
	} else {
		logger.Warn("METALS_DEV_API_KEY not configured; commodity prices will be degraded")
	}

	if cfg.IsConfigured("metals_api") {
		src.Metals = append(src.Metals, services.NewMetalsAPISource(cfg.APIKeys.MetalsAPI, opts, fx))
	}
	src.Metals = append(src.Metals, services.NewMetalsLiveSource(opts, fx, logger))
	return src
}

// Pipeline wires sources to the snapshot stores, history tables and
// renderer rooted at one data directory.
type Pipeline struct {
	sources  Sources
	renderer *render.Renderer
	logger   *zap.Logger
	now      func() time.Time

	forexRaw       *snapshot.Store
	forexDaily     *snapshot.Store
	commodityRaw   *snapshot.Store
	commodityDaily *snapshot.Store

	currencyDaily      *history.Store
	currencyHistorical *history.Store
	commodityTable     *history.Store
	metalsTable        *history.Store
}

// New returns a pipeline over dataDir. renderer may be nil to skip reports.
func New(dataDir string, sources Sources, renderer *render.Renderer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		sources:            sources,
		renderer:           renderer,
		logger:             logger.Named("pipeline"),
		now:                time.Now,
		forexRaw:           snapshot.ForexRaw(dataDir),
		forexDaily:         snapshot.ForexDaily(dataDir),
		commodityRaw:       snapshot.CommodityRaw(dataDir),
		commodityDaily:     snapshot.CommodityDaily(dataDir),
		currencyDaily:      history.CurrencyDaily(dataDir),
		currencyHistorical: history.CurrencyHistorical(dataDir),
		commodityTable:     history.CommodityDaily(dataDir),
		metalsTable:        history.Metals(dataDir),
	}
}

// Result reports what one dated run produced.
type Result struct {
	Date      string
	RunID     string
	RawPath   string
	DailyPath string
	Priced    int
	Carried   []string
	Report    render.Result
	// Summary is the plain-text value table for the CLIs.
	Summary string
}

func newRunID() string {
	return uuid.NewString()
}

// upsert writes one row and records table metrics.
func (p *Pipeline) upsert(ctx context.Context, name string, store *history.Store, date time.Time, values map[string]*decimal.Decimal) error {
	table, err := store.Upsert(ctx, date, values, time.Time{})
	if err != nil {
		metrics.UpsertsTotal.WithLabelValues(name, metrics.OutcomeError).Inc()
		return err
	}
	metrics.UpsertsTotal.WithLabelValues(name, metrics.OutcomeSuccess).Inc()
	metrics.TableRows.WithLabelValues(name).Set(float64(len(table.Rows)))
	p.logger.Info("history table updated", zap.String("table", name), zap.String("path", store.Path()), zap.Int("rows", len(table.Rows)))
	return nil
}

// render produces a report, logging instead of failing.
func (p *Pipeline) render(ctx context.Context, kind render.Kind, date string, values map[string]*decimal.Decimal, store *history.Store) render.Result {
	if p.renderer == nil {
		return render.Result{}
	}
	table, err := store.LoadOrEmpty()
	if err != nil {
		p.logger.Warn("could not load history for arrows", zap.String("path", store.Path()), zap.Error(err))
		table = &history.Table{Schema: store.Schema()}
	}
	res, err := p.renderer.Render(ctx, kind, date, values, table)
	if err != nil {
		metrics.RendersTotal.WithLabelValues(kind.Name, "html", metrics.OutcomeError).Inc()
		p.logger.Warn("report generation failed", zap.String("kind", kind.Name), zap.String("date", date), zap.Error(err))
		return render.Result{}
	}
	metrics.RendersTotal.WithLabelValues(kind.Name, "html", metrics.OutcomeSuccess).Inc()
	if res.JPEGPath != "" {
		metrics.RendersTotal.WithLabelValues(kind.Name, "jpeg", metrics.OutcomeSuccess).Inc()
	}
	return res
}

// cleanupRaw trims a raw directory after a save; failures are warnings.
func (p *Pipeline) cleanupRaw(store *snapshot.Store) {
	stats, err := snapshot.Cleanup(store.Dir(), RawFilesPerDate, false)
	if err != nil {
		p.logger.Warn("raw cleanup failed", zap.String("dir", store.Dir()), zap.Error(err))
		return
	}
	if stats.FilesDeleted > 0 {
		p.logger.Info("raw files cleaned", zap.String("dir", store.Dir()), zap.Int("deleted", stats.FilesDeleted))
	}
}

func markSuccess(pipeline string, now time.Time) {
	metrics.LastSuccess.WithLabelValues(pipeline).Set(float64(now.Unix()))
}
