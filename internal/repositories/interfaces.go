package repositories

import (
	"context"
	"time"

	"github.com/tropicaldog17/audtracker/internal/models"
)

// InsertStats counts the outcome of a bulk insert.
type InsertStats struct {
	Inserted   int
	Duplicates int
	Errors     int
}

// ExchangeRateRepository defines the rate archive operations
type ExchangeRateRepository interface {
	InsertIgnoreDuplicates(ctx context.Context, rates []*models.ExchangeRate) (InsertStats, error)
	QueryRate(ctx context.Context, date time.Time, quote, base string) (*models.ExchangeRate, error)
	Range(ctx context.Context, start, end time.Time, quote, base string) ([]*models.ExchangeRate, error)
	DateRange(ctx context.Context) (min, max time.Time, err error)
	Summary(ctx context.Context) (*models.ArchiveSummary, error)
	PivotForExport(ctx context.Context, base string, quotes []string) ([]models.PivotRow, error)
}
