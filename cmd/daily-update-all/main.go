// daily-update-all runs the forex and commodity collections back to back,
// meant for the close-of-business schedule.
//
// Usage: daily-update-all
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/pipeline"
)

func main() {
	flag.Parse()

	cli.Main("daily-update-all", func(ctx context.Context, app *cli.App) error {
		now := pipeline.CairnsNow()
		fmt.Printf("Daily update at %s Cairns time\n", now.Format("2006-01-02 15:04 MST"))

		statuses, err := app.Pipeline(false).UpdateAll(ctx)
		for _, s := range statuses {
			if s.Err != nil {
				fmt.Printf("%-12s FAILED: %v\n", s.Name, s.Err)
				continue
			}
			fmt.Printf("%-12s ok\n", s.Name)
			cli.PrintResult(s.Result)
		}
		return err
	})
}
