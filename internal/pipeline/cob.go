package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Cairns runs on AEST all year; Brisbane shares the zone.
var cairns = loadCairns()

func loadCairns() *time.Location {
	loc, err := time.LoadLocation("Australia/Brisbane")
	if err != nil {
		return time.FixedZone("AEST", 10*60*60)
	}
	return loc
}

// CairnsNow returns the current time in Cairns.
func CairnsNow() time.Time {
	return time.Now().In(cairns)
}

// IsCOBTime reports whether t falls in the close-of-business window around
// 5pm Cairns time.
func IsCOBTime(t time.Time) bool {
	h := t.In(cairns).Hour()
	return h >= 16 && h <= 18
}

// UpdateStatus is the outcome of one collection inside UpdateAll.
type UpdateStatus struct {
	Name   string
	Result Result
	Err    error
}

// UpdateAll runs the forex and commodity daily collections in turn. The
// commodity run goes ahead even when forex fails.
func (p *Pipeline) UpdateAll(ctx context.Context) ([]UpdateStatus, error) {
	if t := p.now(); !IsCOBTime(t) {
		p.logger.Info("running outside the COB window", zap.Time("cairns_time", t.In(cairns)))
	}

	var statuses []UpdateStatus
	forex, err := p.ForexDaily(ctx)
	statuses = append(statuses, UpdateStatus{Name: "forex", Result: forex, Err: err})
	commodity, err := p.CommodityDaily(ctx)
	statuses = append(statuses, UpdateStatus{Name: "commodities", Result: commodity, Err: err})

	failed := 0
	for _, s := range statuses {
		if s.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return statuses, fmt.Errorf("%d of %d collections failed", failed, len(statuses))
	}
	return statuses, nil
}
