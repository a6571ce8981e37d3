package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tropicaldog17/audtracker/internal/db"
	"github.com/tropicaldog17/audtracker/internal/models"
)

// ErrRateNotFound is returned when no archived rate matches a lookup.
var ErrRateNotFound = errors.New("exchange rate not found")

type exchangeRateRepository struct {
	db *db.DB
}

// NewExchangeRateRepository creates a new rate archive repository
func NewExchangeRateRepository(database *db.DB) ExchangeRateRepository {
	return &exchangeRateRepository{db: database}
}

// InsertIgnoreDuplicates inserts rates one by one inside a transaction.
// Rows colliding with the (date, base, quote, source) key are counted as
// duplicates; rows failing validation are counted as errors and skipped.
func (r *exchangeRateRepository) InsertIgnoreDuplicates(ctx context.Context, rates []*models.ExchangeRate) (InsertStats, error) {
	var stats InsertStats
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rate := range rates {
			if err := rate.Validate(); err != nil {
				stats.Errors++
				continue
			}
			rate.Date = models.DateOnly(rate.Date)
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rate)
			if res.Error != nil {
				return fmt.Errorf("failed to insert %s/%s on %s: %w", rate.Base, rate.Quote, rate.Date.Format(models.DateLayout), res.Error)
			}
			if res.RowsAffected == 0 {
				stats.Duplicates++
				continue
			}
			stats.Inserted++
		}
		return nil
	})
	return stats, err
}

// QueryRate returns the most recently imported rate for the pair on date.
func (r *exchangeRateRepository) QueryRate(ctx context.Context, date time.Time, quote, base string) (*models.ExchangeRate, error) {
	var rate models.ExchangeRate
	err := r.db.WithContext(ctx).
		Where("date = ? AND base_currency = ? AND quote_currency = ?", models.DateOnly(date), base, quote).
		Order("created_at DESC").
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// Range lists the pair's rates between start and end inclusive, by date.
func (r *exchangeRateRepository) Range(ctx context.Context, start, end time.Time, quote, base string) ([]*models.ExchangeRate, error) {
	var list []*models.ExchangeRate
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ? AND base_currency = ? AND quote_currency = ?",
			models.DateOnly(start), models.DateOnly(end), base, quote).
		Order("date ASC, created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// DateRange returns the first and last archived dates.
func (r *exchangeRateRepository) DateRange(ctx context.Context) (time.Time, time.Time, error) {
	var first, last models.ExchangeRate
	q := r.db.WithContext(ctx).Model(&models.ExchangeRate{})
	if err := q.Order("date ASC").Limit(1).Take(&first).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, time.Time{}, ErrRateNotFound
		}
		return time.Time{}, time.Time{}, err
	}
	if err := r.db.WithContext(ctx).Order("date DESC").Limit(1).Take(&last).Error; err != nil {
		return time.Time{}, time.Time{}, err
	}
	return first.Date, last.Date, nil
}

func (r *exchangeRateRepository) Summary(ctx context.Context) (*models.ArchiveSummary, error) {
	summary := &models.ArchiveSummary{}
	if err := r.db.WithContext(ctx).Model(&models.ExchangeRate{}).Count(&summary.TotalRecords).Error; err != nil {
		return nil, err
	}
	if summary.TotalRecords == 0 {
		summary.Currencies = []string{}
		return summary, nil
	}

	first, last, err := r.DateRange(ctx)
	if err != nil {
		return nil, err
	}
	summary.MinDate, summary.MaxDate = &first, &last

	if err := r.db.WithContext(ctx).Model(&models.ExchangeRate{}).
		Distinct("quote_currency").
		Order("quote_currency").
		Pluck("quote_currency", &summary.Currencies).Error; err != nil {
		return nil, err
	}
	return summary, nil
}

// PivotForExport returns one row per date holding the first archived rate
// for each requested quote currency.
func (r *exchangeRateRepository) PivotForExport(ctx context.Context, base string, quotes []string) ([]models.PivotRow, error) {
	var list []*models.ExchangeRate
	err := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency IN ?", base, quotes).
		Order("date ASC, id ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}

	var rows []models.PivotRow
	for _, rate := range list {
		d := models.DateOnly(rate.Date)
		if len(rows) == 0 || !rows[len(rows)-1].Date.Equal(d) {
			rows = append(rows, models.PivotRow{Date: d, Rates: make(map[string]decimal.Decimal)})
		}
		cur := rows[len(rows)-1].Rates
		if _, seen := cur[rate.Quote]; !seen {
			cur[rate.Quote] = rate.Rate
		}
	}
	return rows, nil
}
