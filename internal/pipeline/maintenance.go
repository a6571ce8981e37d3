package pipeline

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/snapshot"
)

// TableReport is the validation outcome of one history table.
type TableReport struct {
	Name   string
	Path   string
	Issues history.Issues
}

// ValidateAll checks every history table under dataDir, in name order.
func ValidateAll(dataDir string, logger *zap.Logger) []TableReport {
	if logger == nil {
		logger = zap.NewNop()
	}
	stores := history.All(dataDir)
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)

	reports := make([]TableReport, 0, len(names))
	for _, name := range names {
		s := stores[name]
		issues := s.Validate()
		if !issues.OK() {
			logger.Warn("history table has issues", zap.String("table", name), zap.String("path", s.Path()))
		}
		reports = append(reports, TableReport{Name: name, Path: s.Path(), Issues: issues})
	}
	return reports
}

// CleanupRaw trims the forex and commodity raw directories to
// maxPerDate files per collection date.
func CleanupRaw(dataDir string, maxPerDate int, dryRun bool) ([]snapshot.CleanupStats, error) {
	var out []snapshot.CleanupStats
	for _, store := range []*snapshot.Store{snapshot.ForexRaw(dataDir), snapshot.CommodityRaw(dataDir)} {
		stats, err := snapshot.Cleanup(store.Dir(), maxPerDate, dryRun)
		if err != nil {
			return out, err
		}
		out = append(out, stats)
	}
	return out, nil
}
