// commodity-for-date collects commodity prices for a past date or range.
//
// Usage: commodity-for-date YYYY-MM-DD [YYYY-MM-DD]
package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/tropicaldog17/audtracker/internal/cli"
)

func main() {
	flag.Parse()

	cli.Main("commodity-for-date", func(ctx context.Context, app *cli.App) error {
		if flag.NArg() == 0 {
			return errors.New("usage: commodity-for-date YYYY-MM-DD [YYYY-MM-DD]")
		}
		start, end, err := cli.DateRange(flag.Args(), time.Now())
		if err != nil {
			return err
		}
		return cli.PrintResults(app.Pipeline(false).CommodityForDates(ctx, start, end))
	})
}
