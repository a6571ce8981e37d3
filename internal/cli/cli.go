// Package cli holds the setup shared by the cmd/ entry points: config and
// logger construction, date arguments, and the exit path.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/config"
	"github.com/tropicaldog17/audtracker/internal/db"
	"github.com/tropicaldog17/audtracker/internal/logger"
	"github.com/tropicaldog17/audtracker/internal/metrics"
	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/pipeline"
	"github.com/tropicaldog17/audtracker/internal/render"
	"github.com/tropicaldog17/audtracker/internal/repositories"
)

const defaultConfigFile = "config.yaml"

// App is the configuration and logger every command starts from.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	closers []func()
}

// Setup loads the config named by CONFIG_FILE (default config.yaml) and
// builds the logger.
func Setup(name string) (*App, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = defaultConfigFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, err := logger.New()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &App{Config: cfg, Logger: log.Named(name)}, nil
}

// Renderer returns the report renderer, with Chrome JPEG output when enabled.
func (a *App) Renderer() *render.Renderer {
	var raster render.Rasterizer
	if a.Config.Render.JPEG {
		raster = render.NewChromeRasterizer(a.Config.Render.ChromePath)
	}
	opts := render.ImageOptions{
		Width:   a.Config.Render.Width,
		Height:  a.Config.Render.Height,
		Quality: a.Config.Render.JPEGQuality,
	}
	return render.NewRenderer(a.Config.TemplatesDir, a.Config.DataDir, raster, opts, a.Logger)
}

// Archive opens and migrates the RBA rate archive. It is closed by Close.
func (a *App) Archive() (repositories.ExchangeRateRepository, error) {
	database, err := db.Connect(a.Config.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = database.Close() })
	return repositories.NewExchangeRateRepository(database), nil
}

// Pipeline builds the collection pipeline. With withArchive set the RBA
// archive is consulted first for historical forex; an archive that cannot be
// opened is logged and skipped.
func (a *App) Pipeline(withArchive bool) *pipeline.Pipeline {
	sources := pipeline.NewSources(a.Config, a.Logger)
	if withArchive {
		repo, err := a.Archive()
		if err != nil {
			a.Logger.Warn("rate archive unavailable, using APIs only", zap.Error(err))
		} else {
			sources = sources.WithArchive(repo)
		}
	}
	return pipeline.New(a.Config.DataDir, sources, a.Renderer(), a.Logger)
}

// Close releases anything the app opened.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Finish logs the outcome, flushes the metrics textfile and returns the
// process exit code.
func (a *App) Finish(err error) int {
	if path := a.Config.Metrics.Textfile; path != "" {
		if werr := metrics.WriteTextfile(path); werr != nil {
			a.Logger.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(werr))
		}
	}
	_ = a.Logger.Sync()
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		a.Logger.Warn("interrupted")
	} else {
		a.Logger.Error("command failed", zap.Error(err))
	}
	return 1
}

// Main runs fn with a context cancelled on SIGINT or SIGTERM and exits with
// its status.
func Main(name string, fn func(ctx context.Context, app *App) error) {
	app, err := Setup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = fn(ctx, app)
	stop()
	app.Close()
	os.Exit(app.Finish(err))
}

// DateRange reads up to two YYYY-MM-DD arguments. None means today only,
// one means that day only, two mean an inclusive range.
func DateRange(args []string, today time.Time) (time.Time, time.Time, error) {
	today = models.DateOnly(today)
	switch len(args) {
	case 0:
		return today, today, nil
	case 1:
		d, err := parseDate(args[0])
		return d, d, err
	case 2:
		start, err := parseDate(args[0])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := parseDate(args[1])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if start.After(end) {
			return time.Time{}, time.Time{}, fmt.Errorf("start date %s is after end date %s", args[0], args[1])
		}
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("expected at most two dates, got %d", len(args))
	}
}

func parseDate(s string) (time.Time, error) {
	d, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// PrintResult writes a short human summary of one dated run to stdout.
func PrintResult(res pipeline.Result) {
	if res.Summary != "" {
		fmt.Println(res.Summary)
	}
	fmt.Printf("%s: %d priced", res.Date, res.Priced)
	if len(res.Carried) > 0 {
		fmt.Printf(", carried forward %v", res.Carried)
	}
	fmt.Println()
	for _, p := range []string{res.RawPath, res.DailyPath, res.Report.HTMLPath, res.Report.JPEGPath} {
		if p != "" {
			fmt.Printf("  %s\n", p)
		}
	}
}

// PrintResults prints each result and returns err unchanged.
func PrintResults(results []pipeline.Result, err error) error {
	for _, res := range results {
		PrintResult(res)
	}
	return err
}
