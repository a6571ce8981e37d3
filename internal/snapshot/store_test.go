package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"`+name+`"}`), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestSaveRawAndDaily(t *testing.T) {
	dataDir := t.TempDir()
	raw := ForexRaw(dataDir)
	daily := ForexDaily(dataDir)

	path, err := raw.SaveRaw(map[string]any{"collection_date": "2024-01-02T06:00:00Z"}, time.Date(2024, 1, 2, 16, 5, 9, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "forex_data", "raw", "aud_data_20240102_160509.json"), path)

	_, err = daily.SaveDaily("2024-01-02", map[string]any{"date": "2024-01-02", "v": 1})
	require.NoError(t, err)
	_, err = daily.SaveDaily("2024-01-02", map[string]any{"date": "2024-01-02", "v": 2})
	require.NoError(t, err)

	got, err := daily.LoadDaily("2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, json.Number("2"), got["v"])

	_, err = daily.LoadDaily("2024-01-03")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = daily.SaveDaily("02/01/2024", map[string]any{})
	assert.Error(t, err)
}

func TestLoadLatestUsesModTime(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	touch(t, dir, "commodity_daily_2024-01-05.json", base)
	touch(t, dir, "commodity_daily_2024-01-01.json", base.Add(10*time.Minute))
	touch(t, dir, "other_2024-01-09.json", base.Add(20*time.Minute))

	data, path, err := New(dir, "commodity_daily").LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "commodity_daily_2024-01-01.json"), path)
	assert.Equal(t, "commodity_daily_2024-01-01.json", data["name"])

	_, _, err = New(t.TempDir(), "commodity_daily").LoadLatest()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestExistingDates(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	touch(t, dir, "aud_data_20240102_101010.json", now)
	touch(t, dir, "aud_data_2024-01-04.json", now)
	touch(t, dir, "aud_data_garbage.json", now)
	touch(t, dir, "aud_daily_2024-01-09.json", now)

	dates, err := New(dir, "aud_data").ExistingDates()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2024-01-02": true, "2024-01-04": true}, dates)

	dates, err = New(filepath.Join(dir, "missing"), "aud_data").ExistingDates()
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestCleanupKeepsNewestPerDate(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	for _, name := range []string{
		"aud_data_20240101_080000.json",
		"aud_data_20240101_120000.json",
		"aud_data_20240101_170000.json",
		"aud_data_20240102_090000.json",
		"notes.json",
	} {
		touch(t, dir, name, now)
	}

	stats, err := Cleanup(dir, 2, true)
	require.NoError(t, err)
	assert.Equal(t, CleanupStats{Directory: dir, TotalFiles: 5, FilesKept: 4, FilesDeleted: 1, DatesProcessed: 2}, stats)
	assert.FileExists(t, filepath.Join(dir, "aud_data_20240101_080000.json"), "dry run deletes nothing")

	stats, err = Cleanup(dir, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesDeleted)
	assert.NoFileExists(t, filepath.Join(dir, "aud_data_20240101_080000.json"))
	assert.FileExists(t, filepath.Join(dir, "aud_data_20240101_170000.json"))
	assert.FileExists(t, filepath.Join(dir, "notes.json"))
}

func TestCleanupMissingDir(t *testing.T) {
	stats, err := Cleanup(filepath.Join(t.TempDir(), "nope"), 2, false)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalFiles)
}
