package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/normalize"
	"github.com/tropicaldog17/audtracker/internal/render"
	"github.com/tropicaldog17/audtracker/internal/services"
)

// ForexDaily collects the latest AUD rates and writes every artifact for
// the day: raw and daily snapshots, both currency tables and the report.
func (p *Pipeline) ForexDaily(ctx context.Context) (Result, error) {
	now := p.now()
	runID := newRunID()

	set, fetchErr := p.sources.ForexLatest.Fetch(ctx, models.TrackedCurrencies, time.Time{})
	if fetchErr != nil {
		p.logger.Error("forex collection failed", zap.String("source", p.sources.ForexLatest.Name()), zap.Error(fetchErr))
	}
	payload := services.CurrencyPayload(set, now, fetchErr)
	payload["run_id"] = runID

	rawPath, err := p.forexRaw.SaveRaw(payload, now)
	if err != nil {
		return Result{}, err
	}
	p.cleanupRaw(p.forexRaw)

	res := Result{RunID: runID, RawPath: rawPath, Priced: set.Priced()}
	if res.Priced == 0 {
		return res, noData(fetchErr)
	}

	raw, err := normalize.ToMap(payload)
	if err != nil {
		return res, err
	}
	rec := normalize.Currencies(raw, now)
	if err := p.storeForex(ctx, rec, &res); err != nil {
		return res, err
	}
	markSuccess("forex", now)
	return res, nil
}

// ForexForDate backfills one past date from the historical sources and
// writes its daily snapshot, table rows and report.
func (p *Pipeline) ForexForDate(ctx context.Context, date time.Time) (Result, error) {
	return p.forexForDate(ctx, date, false)
}

// ForexRange runs ForexForDate for every day from start to end inclusive.
// A failed day is logged and the range continues.
func (p *Pipeline) ForexRange(ctx context.Context, start, end time.Time) ([]Result, error) {
	days, err := Days(start, end)
	if err != nil {
		return nil, err
	}
	var (
		results []Result
		errs    []error
	)
	for _, d := range days {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.forexForDate(ctx, d, false)
		if err != nil {
			p.logger.Warn("forex backfill failed", zap.Time("date", d), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", d.Format(models.DateLayout), err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// MissedCheck selects which snapshot directories count as coverage.
type MissedCheck struct {
	Raw   bool
	Daily bool
}

// MissedDates lists the days between start and end that have no raw or
// daily forex snapshot, as selected by check.
func (p *Pipeline) MissedDates(start, end time.Time, check MissedCheck) ([]time.Time, error) {
	days, err := Days(start, end)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool)
	if check.Raw {
		raw, err := p.forexRaw.ExistingDates()
		if err != nil {
			return nil, err
		}
		for d := range raw {
			existing[d] = true
		}
	}
	if check.Daily {
		daily, err := p.forexDaily.ExistingDates()
		if err != nil {
			return nil, err
		}
		for d := range daily {
			existing[d] = true
		}
	}

	var missed []time.Time
	for _, d := range days {
		if !existing[d.Format(models.DateLayout)] {
			missed = append(missed, d)
		}
	}
	return missed, nil
}

// ForexMissed collects every missed date, saving a raw snapshot for each.
func (p *Pipeline) ForexMissed(ctx context.Context, start, end time.Time, check MissedCheck) ([]Result, error) {
	missed, err := p.MissedDates(start, end, check)
	if err != nil {
		return nil, err
	}
	p.logger.Info("missed forex dates", zap.Int("count", len(missed)))

	var (
		results []Result
		errs    []error
	)
	for _, d := range missed {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.forexForDate(ctx, d, true)
		if err != nil {
			p.logger.Warn("missed date collection failed", zap.Time("date", d), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", d.Format(models.DateLayout), err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (p *Pipeline) forexForDate(ctx context.Context, date time.Time, saveRaw bool) (Result, error) {
	if len(p.sources.ForexHistorical) == 0 {
		return Result{}, errors.New("no historical forex sources configured")
	}
	now := p.now()
	date = models.DateOnly(date)
	dateStr := date.Format(models.DateLayout)

	chain := services.NewChain(p.logger, p.sources.ForexHistorical...)
	set, err := chain.Fetch(ctx, models.TrackedCurrencies, date)
	if err != nil {
		return Result{Date: dateStr}, noData(err)
	}
	if filled := services.FillMissing(ctx, p.logger, set, models.TrackedCurrencies, date, p.sources.ForexHistorical...); len(filled) > 0 {
		p.logger.Info("filled currencies from fallback sources", zap.String("date", dateStr), zap.Strings("currencies", filled))
	}
	for code, q := range set {
		q.Date = dateStr
		set[code] = q
	}

	runID := newRunID()
	payload := services.CurrencyPayload(set, now, nil)
	payload["run_id"] = runID
	res := Result{Date: dateStr, RunID: runID, Priced: set.Priced()}
	if saveRaw {
		if res.RawPath, err = p.forexRaw.SaveRaw(payload, now); err != nil {
			return res, err
		}
	}

	raw, err := normalize.ToMap(payload)
	if err != nil {
		return res, err
	}
	rec := normalize.Currencies(raw, now)
	rec.Date = dateStr
	if err := p.storeForex(ctx, rec, &res); err != nil {
		return res, err
	}
	return res, nil
}

// storeForex writes the daily snapshot, both tables and the report for rec.
func (p *Pipeline) storeForex(ctx context.Context, rec models.CurrencyRecord, res *Result) error {
	date, err := models.ParseDate(rec.Date)
	if err != nil {
		return fmt.Errorf("invalid record date %q: %w", rec.Date, err)
	}
	res.Date = rec.Date

	if res.DailyPath, err = p.forexDaily.SaveDaily(rec.Date, rec); err != nil {
		return err
	}
	values := rec.ColumnValues()
	if err := p.upsert(ctx, "currency_daily", p.currencyDaily, date, values); err != nil {
		return err
	}
	if err := p.upsert(ctx, "currency_historical", p.currencyHistorical, date, values); err != nil {
		return err
	}
	values = render.CurrencyValues(rec)
	res.Summary = render.Summary(render.Forex, rec.Date, values)
	res.Report = p.render(ctx, render.Forex, rec.Date, values, p.currencyDaily)
	return nil
}

// Days lists the calendar days from start to end inclusive.
func Days(start, end time.Time) ([]time.Time, error) {
	start, end = models.DateOnly(start), models.DateOnly(end)
	if start.After(end) {
		return nil, fmt.Errorf("start date %s is after end date %s",
			start.Format(models.DateLayout), end.Format(models.DateLayout))
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

func noData(cause error) error {
	if cause == nil {
		return ErrNoData
	}
	return fmt.Errorf("%w: %w", ErrNoData, cause)
}

func sortedDates(m map[string]services.PriceSet) []string {
	dates := make([]string, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
