package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/normalize"
	"github.com/tropicaldog17/audtracker/internal/render"
	"github.com/tropicaldog17/audtracker/internal/services"
	"github.com/tropicaldog17/audtracker/internal/snapshot"
)

const (
	errNoMetalsDevKey = "METALS_DEV_API_KEY not configured"
	payloadTimeLayout = "2006-01-02T15:04:05.999999"
)

// ErrNoHistory is returned when a date has no stored commodity data.
var ErrNoHistory = errors.New("no stored data for date")

// CommodityDaily collects today's commodity prices. The raw snapshot is
// always written; the daily snapshot, table row and report only when at
// least one price survives the merge with the stored daily snapshot.
func (p *Pipeline) CommodityDaily(ctx context.Context) (Result, error) {
	now := p.now()
	date := models.DateOnly(now)

	set := p.latestCommodities(ctx, date, time.Time{})
	p.fillBaseMetals(ctx, set, time.Time{})

	runID := newRunID()
	payload := services.CommodityPayload(set, now)
	payload["run_id"] = runID
	rawPath, err := p.commodityRaw.SaveRaw(payload, now)
	if err != nil {
		return Result{}, err
	}
	p.cleanupRaw(p.commodityRaw)

	raw, err := normalize.ToMap(payload)
	if err != nil {
		return Result{}, err
	}
	rec := normalize.Commodities(raw, now)
	res := Result{RunID: runID, RawPath: rawPath}
	if err := p.storeCommodity(ctx, rec, &res); err != nil {
		return res, err
	}
	markSuccess("commodity", now)
	return res, nil
}

// CommodityForDates backfills commodity prices. A single date uses one
// lookup for that day; a range uses one timeseries request. A failed day is
// logged and the range continues.
func (p *Pipeline) CommodityForDates(ctx context.Context, start, end time.Time) ([]Result, error) {
	days, err := Days(start, end)
	if err != nil {
		return nil, err
	}
	now := p.now()

	if len(days) == 1 {
		set := p.latestCommodities(ctx, days[0], days[0])
		payload := services.CommodityPayload(set, now)
		res, err := p.commodityForDate(ctx, days[0], set, now)
		if err == nil {
			if res.RawPath, err = p.commodityRaw.SaveRaw(payload, now); err != nil {
				return nil, err
			}
		}
		p.cleanupRaw(p.commodityRaw)
		if err != nil {
			return nil, err
		}
		return []Result{res}, nil
	}

	if p.sources.Commodities == nil {
		return nil, errors.New(errNoMetalsDevKey)
	}
	series, err := p.sources.Commodities.Timeseries(ctx, models.TrackedCommodities, days[0], days[len(days)-1])
	if err != nil {
		return nil, fmt.Errorf("timeseries request failed: %w", err)
	}

	dates := sortedDates(series)
	byDate := make(map[string]any, len(series))
	for _, d := range dates {
		byDate[d] = services.CommodityPayload(series[d], now)["commodities"]
	}
	rawPath, err := p.commodityRaw.SaveRaw(map[string]any{
		"collection_date": now.Format(payloadTimeLayout),
		"timeseries":      byDate,
		"date_range": map[string]string{
			"start": days[0].Format(models.DateLayout),
			"end":   days[len(days)-1].Format(models.DateLayout),
		},
	}, now)
	if err != nil {
		return nil, err
	}

	var (
		results []Result
		errs    []error
	)
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		day, err := models.ParseDate(d)
		if err != nil {
			continue
		}
		res, err := p.commodityForDate(ctx, day, series[d], now)
		if err != nil {
			p.logger.Warn("commodity backfill failed", zap.String("date", d), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
			continue
		}
		res.RawPath = rawPath
		results = append(results, res)
	}
	p.cleanupRaw(p.commodityRaw)
	return results, errors.Join(errs...)
}

// RegenerateCommodity re-renders the report for date from the commodity
// table, falling back to the stored daily snapshot.
func (p *Pipeline) RegenerateCommodity(ctx context.Context, date time.Time) (render.Result, error) {
	if p.renderer == nil {
		return render.Result{}, errors.New("report renderer not configured")
	}
	date = models.DateOnly(date)
	dateStr := date.Format(models.DateLayout)

	table, err := p.commodityTable.LoadOrEmpty()
	if err != nil {
		return render.Result{}, err
	}

	var values map[string]*decimal.Decimal
	if row, ok := table.Row(date); ok && row.HasData(models.CommoditySchema.DataColumns) {
		values = render.RowValues(render.Commodity, row)
	} else {
		raw, err := p.commodityDaily.LoadDaily(dateStr)
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			return render.Result{}, fmt.Errorf("%w: %s", ErrNoHistory, dateStr)
		}
		if err != nil {
			return render.Result{}, err
		}
		values = render.CommodityValues(normalize.Commodities(raw, p.now()))
	}
	if len(values) == 0 {
		return render.Result{}, fmt.Errorf("%w: %s", ErrNoHistory, dateStr)
	}
	return p.renderer.Render(ctx, render.Commodity, dateStr, values, table)
}

// latestCommodities asks Metals.Dev for asOf, degrading every commodity to
// a null quote when the source is missing or fails.
func (p *Pipeline) latestCommodities(ctx context.Context, date, asOf time.Time) services.PriceSet {
	dateStr := date.Format(models.DateLayout)
	if p.sources.Commodities == nil {
		return services.DegradedSet(models.TrackedCommodities, dateStr, errNoMetalsDevKey)
	}
	set, err := p.sources.Commodities.Fetch(ctx, models.TrackedCommodities, asOf)
	if err != nil {
		p.logger.Error("commodity collection failed", zap.String("source", p.sources.Commodities.Name()), zap.Error(err))
		return services.DegradedSet(models.TrackedCommodities, dateStr, err.Error())
	}
	return set
}

func (p *Pipeline) fillBaseMetals(ctx context.Context, set services.PriceSet, asOf time.Time) {
	if filled := services.FillMissing(ctx, p.logger, set, models.TrackedCommodities, asOf, p.sources.BaseMetals...); len(filled) > 0 {
		p.logger.Info("filled base metals", zap.Strings("commodities", filled))
	}
}

// commodityForDate standardizes set under date and stores it.
func (p *Pipeline) commodityForDate(ctx context.Context, date time.Time, set services.PriceSet, now time.Time) (Result, error) {
	dateStr := date.Format(models.DateLayout)
	p.fillBaseMetals(ctx, set, date)
	for code, q := range set {
		q.Date = dateStr
		set[code] = q
	}

	runID := newRunID()
	payload := services.CommodityPayload(set, now)
	payload["run_id"] = runID
	raw, err := normalize.ToMap(payload)
	if err != nil {
		return Result{Date: dateStr}, err
	}
	rec := normalize.Commodities(raw, now)
	rec.Date = dateStr

	res := Result{Date: dateStr, RunID: runID}
	if err := p.storeCommodity(ctx, rec, &res); err != nil {
		return res, err
	}
	return res, nil
}

// storeCommodity merges rec with the stored daily snapshot for its date,
// then writes the snapshot, the table row and the report.
func (p *Pipeline) storeCommodity(ctx context.Context, rec models.CommodityRecord, res *Result) error {
	date, err := models.ParseDate(rec.Date)
	if err != nil {
		return fmt.Errorf("invalid record date %q: %w", rec.Date, err)
	}
	res.Date = rec.Date

	prevRaw, err := p.commodityDaily.LoadDaily(rec.Date)
	switch {
	case err == nil:
		prev := normalize.Commodities(prevRaw, p.now())
		res.Carried = rec.PreserveMissing(&prev)
		if len(res.Carried) > 0 {
			p.logger.Info("preserved stored prices", zap.String("date", rec.Date), zap.Strings("commodities", res.Carried))
		}
	case !errors.Is(err, snapshot.ErrNoSnapshot):
		p.logger.Warn("could not load stored daily snapshot", zap.String("date", rec.Date), zap.Error(err))
	}

	for _, q := range rec.Commodities {
		if q.HasPrice() {
			res.Priced++
		}
	}
	if res.Priced == 0 {
		return ErrNoData
	}

	if res.DailyPath, err = p.commodityDaily.SaveDaily(rec.Date, rec); err != nil {
		return err
	}
	if err := p.upsert(ctx, "commodity", p.commodityTable, date, rec.ColumnValues()); err != nil {
		return err
	}
	values := render.CommodityValues(rec)
	res.Summary = render.Summary(render.Commodity, rec.Date, values)
	res.Report = p.render(ctx, render.Commodity, rec.Date, values, p.commodityTable)
	return nil
}
