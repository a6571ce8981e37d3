// metals-update records today's precious metal spot prices in AUD.
//
// Usage: metals-update
package main

import (
	"context"
	"flag"

	"github.com/tropicaldog17/audtracker/internal/cli"
)

func main() {
	flag.Parse()

	cli.Main("metals-update", func(ctx context.Context, app *cli.App) error {
		res, err := app.Pipeline(false).MetalsUpdate(ctx)
		if err != nil {
			return err
		}
		cli.PrintResult(res)
		return nil
	})
}
