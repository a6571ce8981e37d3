// commodity-update collects today's commodity prices in AUD, stores them
// and renders the commodity report.
//
// Usage: commodity-update
package main

import (
	"context"
	"flag"

	"github.com/tropicaldog17/audtracker/internal/cli"
)

func main() {
	flag.Parse()

	cli.Main("commodity-update", func(ctx context.Context, app *cli.App) error {
		res, err := app.Pipeline(false).CommodityDaily(ctx)
		if err != nil {
			return err
		}
		cli.PrintResult(res)
		return nil
	})
}
