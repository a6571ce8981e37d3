package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/repositories"
)

// ArchiveSource serves historical AUD rates from the RBA archive database.
type ArchiveSource struct {
	repo repositories.ExchangeRateRepository
}

var _ Source = (*ArchiveSource)(nil)

func NewArchiveSource(repo repositories.ExchangeRateRepository) *ArchiveSource {
	return &ArchiveSource{repo: repo}
}

func (s *ArchiveSource) Name() string {
	return models.SourceRBA
}

// Fetch looks each currency up for asOf. Currencies without an archived
// rate are left out of the set.
func (s *ArchiveSource) Fetch(ctx context.Context, assets []string, asOf time.Time) (PriceSet, error) {
	if asOf.IsZero() {
		return nil, fmt.Errorf("%s: a date is required", s.Name())
	}
	date := models.DateOnly(asOf).Format(models.DateLayout)
	set := make(PriceSet, len(assets))
	for _, code := range assets {
		rate, err := s.repo.QueryRate(ctx, asOf, code, models.DefaultBase)
		if errors.Is(err, repositories.ErrRateNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("archive lookup %s: %w", code, err)
		}
		set[code] = Quote{
			Value:    models.NullDecimal(rate.Rate),
			Currency: models.DefaultBase,
			Date:     date,
			Source:   rate.Source,
		}
	}
	return set, nil
}
