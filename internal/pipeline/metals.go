package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/services"
)

// MetalsUpdate writes today's precious metal spot prices to the metals
// table. The first source is asked for everything; later sources only for
// the metals still missing.
func (p *Pipeline) MetalsUpdate(ctx context.Context) (Result, error) {
	if len(p.sources.Metals) == 0 {
		return Result{}, errors.New("no metals sources configured")
	}
	now := p.now()
	date := models.DateOnly(now)

	first := p.sources.Metals[0]
	set, err := first.Fetch(ctx, models.TrackedMetals, time.Time{})
	if err != nil {
		p.logger.Warn("metals source failed", zap.String("source", first.Name()), zap.Error(err))
		set = services.PriceSet{}
	}
	services.FillMissing(ctx, p.logger, set, models.TrackedMetals, time.Time{}, p.sources.Metals[1:]...)

	res := Result{Date: date.Format(models.DateLayout), Priced: set.Priced()}
	if res.Priced == 0 {
		return res, noData(err)
	}

	values := make(map[string]*decimal.Decimal, len(models.TrackedMetals))
	for _, name := range models.TrackedMetals {
		values[models.MetalColumn(name)] = nil
		if q, ok := set[name]; ok && q.Value.Valid {
			v := q.Value.Decimal
			values[models.MetalColumn(name)] = &v
		}
	}

	// a second run on the same day keeps prices it could not refetch
	table, err := p.metalsTable.LoadOrEmpty()
	if err != nil {
		return res, err
	}
	if row, ok := table.Row(date); ok {
		for _, name := range models.TrackedMetals {
			col := models.MetalColumn(name)
			if _, had := row.Value(col); had && values[col] == nil {
				res.Carried = append(res.Carried, name)
			}
		}
		values = history.CarryForward(values, row, p.metalsTable.Schema().DataColumns)
	}
	if err := p.upsert(ctx, "metals", p.metalsTable, date, values); err != nil {
		return res, err
	}
	markSuccess("metals", now)
	return res, nil
}
