// migrate creates or updates the rate archive schema on the configured
// database and reports what the archive holds.
//
// Usage: migrate
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/models"
)

func main() {
	flag.Parse()

	cli.Main("migrate", func(ctx context.Context, app *cli.App) error {
		repo, err := app.Archive()
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Printf("Archive schema is up to date (%s)\n", app.Config.Database.Driver)

		summary, err := repo.Summary(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d archived rates", summary.TotalRecords)
		if summary.MinDate != nil && summary.MaxDate != nil {
			fmt.Printf(" from %s to %s", summary.MinDate.Format(models.DateLayout), summary.MaxDate.Format(models.DateLayout))
		}
		fmt.Println()
		return nil
	})
}
