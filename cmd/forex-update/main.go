// forex-update collects today's AUD exchange rates, stores them and renders
// the daily forex report.
//
// Usage: forex-update
package main

import (
	"context"
	"flag"

	"github.com/tropicaldog17/audtracker/internal/cli"
)

func main() {
	flag.Parse()

	cli.Main("forex-update", func(ctx context.Context, app *cli.App) error {
		res, err := app.Pipeline(false).ForexDaily(ctx)
		if err != nil {
			return err
		}
		cli.PrintResult(res)
		return nil
	})
}
