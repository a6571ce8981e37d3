// forex-for-date collects AUD exchange rates for a past date or date range.
// The RBA archive is checked first, then the historical rate APIs.
//
// Usage: forex-for-date [-no-archive] [YYYY-MM-DD [YYYY-MM-DD]]
package main

import (
	"context"
	"flag"
	"time"

	"github.com/tropicaldog17/audtracker/internal/cli"
)

func main() {
	noArchive := flag.Bool("no-archive", false, "Skip the RBA archive and use the rate APIs only")
	flag.Parse()

	cli.Main("forex-for-date", func(ctx context.Context, app *cli.App) error {
		start, end, err := cli.DateRange(flag.Args(), time.Now())
		if err != nil {
			return err
		}
		p := app.Pipeline(!*noArchive)
		if start.Equal(end) {
			res, err := p.ForexForDate(ctx, start)
			if err != nil {
				return err
			}
			cli.PrintResult(res)
			return nil
		}
		return cli.PrintResults(p.ForexRange(ctx, start, end))
	})
}
