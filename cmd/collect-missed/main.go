// collect-missed backfills forex dates that have no raw or daily snapshot.
// Without arguments the last 30 days are checked.
//
// Usage: collect-missed [-raw-only | -daily-only] [-days N] [YYYY-MM-DD [YYYY-MM-DD]]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/pipeline"
)

func main() {
	rawOnly := flag.Bool("raw-only", false, "Only look for missing raw snapshots")
	dailyOnly := flag.Bool("daily-only", false, "Only look for missing daily snapshots")
	days := flag.Int("days", 30, "Days to check back from today when no dates are given")
	dryRun := flag.Bool("dry-run", false, "List missing dates without collecting")
	flag.Parse()

	cli.Main("collect-missed", func(ctx context.Context, app *cli.App) error {
		if *rawOnly && *dailyOnly {
			return errors.New("-raw-only and -daily-only are mutually exclusive")
		}
		check := pipeline.MissedCheck{Raw: !*dailyOnly, Daily: !*rawOnly}

		start, end, err := cli.DateRange(flag.Args(), time.Now())
		if err != nil {
			return err
		}
		if flag.NArg() == 0 {
			start = end.AddDate(0, 0, -(*days - 1))
		}

		p := app.Pipeline(true)
		if *dryRun {
			missed, err := p.MissedDates(start, end, check)
			if err != nil {
				return err
			}
			fmt.Printf("%d missing dates between %s and %s\n", len(missed), start.Format(models.DateLayout), end.Format(models.DateLayout))
			for _, d := range missed {
				fmt.Printf("  %s\n", d.Format(models.DateLayout))
			}
			return nil
		}
		return cli.PrintResults(p.ForexMissed(ctx, start, end, check))
	})
}
