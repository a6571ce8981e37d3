// Package snapshot keeps the JSON snapshots written by each collection run:
// timestamped raw payloads and one standardized file per date.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/normalize"
)

// ErrNoSnapshot is returned when no snapshot file matches.
var ErrNoSnapshot = errors.New("no snapshot found")

const rawStampLayout = "20060102_150405"

// Store reads and writes "<prefix>_*.json" files in one directory.
type Store struct {
	dir    string
	prefix string
}

func New(dir, prefix string) *Store {
	return &Store{dir: dir, prefix: prefix}
}

func ForexRaw(dataDir string) *Store {
	return New(filepath.Join(dataDir, "forex_data", "raw"), "aud_data")
}

func ForexDaily(dataDir string) *Store {
	return New(filepath.Join(dataDir, "forex_data", "processed"), "aud_daily")
}

func CommodityRaw(dataDir string) *Store {
	return New(filepath.Join(dataDir, "commodities_data", "raw"), "commodity_data")
}

func CommodityDaily(dataDir string) *Store {
	return New(filepath.Join(dataDir, "commodities_data", "processed"), "commodity_daily")
}

func (s *Store) Dir() string {
	return s.dir
}

// SaveRaw writes payload to <prefix>_YYYYMMDD_HHMMSS.json and returns the path.
func (s *Store) SaveRaw(payload any, now time.Time) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", s.prefix, now.Format(rawStampLayout)))
	return path, writeJSON(path, payload)
}

// DailyPath is the location of the standardized file for date.
func (s *Store) DailyPath(date string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", s.prefix, date))
}

// SaveDaily writes record to <prefix>_<date>.json, replacing any earlier run.
func (s *Store) SaveDaily(date string, record any) (string, error) {
	if _, err := models.ParseDate(date); err != nil {
		return "", fmt.Errorf("invalid snapshot date %q: %w", date, err)
	}
	path := s.DailyPath(date)
	return path, writeJSON(path, record)
}

// Load decodes the JSON file at path.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return normalize.Decode(data)
}

// LoadDaily returns the standardized snapshot for date.
func (s *Store) LoadDaily(date string) (map[string]any, error) {
	path := s.DailyPath(date)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	return Load(path)
}

// LoadLatest returns the most recently modified snapshot and its path.
func (s *Store) LoadLatest() (map[string]any, string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, s.prefix+"_*.json"))
	if err != nil {
		return nil, "", err
	}
	var (
		latest  string
		latestT time.Time
	)
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestT) {
			latest, latestT = f, info.ModTime()
		}
	}
	if latest == "" {
		return nil, "", ErrNoSnapshot
	}
	data, err := Load(latest)
	return data, latest, err
}

// ExistingDates returns the YYYY-MM-DD dates that have a file in this store.
// Raw files contribute their collection date, daily files their record date.
func (s *Store) ExistingDates() (map[string]bool, error) {
	dates := make(map[string]bool)
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return dates, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.prefix+"_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		stem := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix+"_"), ".json")
		if t, err := time.Parse(rawStampLayout, stem); err == nil {
			dates[t.Format(models.DateLayout)] = true
			continue
		}
		if t, err := models.ParseDate(stem); err == nil {
			dates[t.Format(models.DateLayout)] = true
		}
	}
	return dates, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

var rawName = regexp.MustCompile(`^(.+)_(\d{8})_(\d{6})\.json$`)

// CleanupStats summarizes one Cleanup call.
type CleanupStats struct {
	Directory      string `json:"directory"`
	TotalFiles     int    `json:"total_files"`
	FilesKept      int    `json:"files_kept"`
	FilesDeleted   int    `json:"files_deleted"`
	DatesProcessed int    `json:"dates_processed"`
}

// Cleanup keeps the newest maxPerDate raw files per collection date in dir
// and deletes the rest. Files not named <prefix>_YYYYMMDD_HHMMSS.json are
// left alone. With dryRun nothing is removed but the stats are the same.
func Cleanup(dir string, maxPerDate int, dryRun bool) (CleanupStats, error) {
	stats := CleanupStats{Directory: dir}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}

	type rawFile struct {
		name  string
		stamp string
	}
	byDate := make(map[string][]rawFile)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		stats.TotalFiles++
		m := rawName.FindStringSubmatch(e.Name())
		if m == nil {
			stats.FilesKept++
			continue
		}
		byDate[m[2]] = append(byDate[m[2]], rawFile{name: e.Name(), stamp: m[2] + m[3]})
	}

	var errs []error
	for _, files := range byDate {
		stats.DatesProcessed++
		sort.Slice(files, func(i, j int) bool { return files[i].stamp > files[j].stamp })
		for i, f := range files {
			if i < maxPerDate {
				stats.FilesKept++
				continue
			}
			if !dryRun {
				if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
					errs = append(errs, err)
					stats.FilesKept++
					continue
				}
			}
			stats.FilesDeleted++
		}
	}
	return stats, errors.Join(errs...)
}
