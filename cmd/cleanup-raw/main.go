// cleanup-raw keeps the newest raw snapshots per collection date and deletes
// the rest.
//
// Usage: cleanup-raw [-max N] [-dry-run]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/pipeline"
)

func main() {
	maxPerDate := flag.Int("max", pipeline.RawFilesPerDate, "Raw files to keep per date")
	dryRun := flag.Bool("dry-run", false, "Report what would be deleted without deleting")
	flag.Parse()

	cli.Main("cleanup-raw", func(ctx context.Context, app *cli.App) error {
		if *maxPerDate < 1 {
			return errors.New("-max must be at least 1")
		}
		stats, err := pipeline.CleanupRaw(app.Config.DataDir, *maxPerDate, *dryRun)
		verb := "deleted"
		if *dryRun {
			verb = "would delete"
		}
		for _, s := range stats {
			fmt.Printf("%s: %d files over %d dates, kept %d, %s %d\n",
				s.Directory, s.TotalFiles, s.DatesProcessed, s.FilesKept, verb, s.FilesDeleted)
		}
		return err
	})
}
