// rba-import downloads RBA exchange rate tables into the rate archive and
// optionally exports the archive into the historical currency table.
//
// Usage: rba-import [-export] [-summary] [source ...]
//
// Sources are URLs or local CSV files; the F11.1 table is used when none
// are given.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/services"
)

func main() {
	exportHistory := flag.Bool("export", false, "Write archived rates into the historical currency table")
	summaryOnly := flag.Bool("summary", false, "Print the archive summary without importing")
	flag.Parse()

	cli.Main("rba-import", func(ctx context.Context, app *cli.App) error {
		repo, err := app.Archive()
		if err != nil {
			return err
		}
		opts := services.ClientOptions{Timeout: app.Config.HTTP.Timeout}
		importer := services.NewRBAImporter(repo, app.Config.Path("historical", "rba_downloads"), opts, app.Logger)

		if !*summaryOnly {
			sources := flag.Args()
			if len(sources) == 0 {
				sources = services.DefaultRBASources
			}
			res, err := importer.Run(ctx, sources)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d files: %d parsed, %d inserted, %d duplicates, %d errors\n",
				res.Files, res.Parsed, res.Stats.Inserted, res.Stats.Duplicates, res.Stats.Errors)
			for _, s := range res.Skipped {
				fmt.Printf("  skipped %s\n", s)
			}
		}

		summary, err := importer.Summary(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}

		if *exportHistory {
			store := history.CurrencyHistorical(app.Config.DataDir)
			n, err := importer.ExportHistory(ctx, store)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d dates to %s\n", n, store.Path())
		}
		return nil
	})
}
