// regenerate-commodity re-renders the commodity report for stored dates
// without fetching anything.
//
// Usage: regenerate-commodity YYYY-MM-DD [YYYY-MM-DD]
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
	flag.Parse()

	cli.Main("regenerate-commodity", func(ctx context.Context, app *cli.App) error {
		if flag.NArg() == 0 {
			return errors.New("usage: regenerate-commodity YYYY-MM-DD [YYYY-MM-DD]")
		}
		start, end, err := cli.DateRange(flag.Args(), time.Now())
		if err != nil {
			return err
		}
		dates, err := pipeline.Days(start, end)
		if err != nil {
			return err
		}

		p := app.Pipeline(false)
		var errs []error
		for _, d := range dates {
			res, err := p.RegenerateCommodity(ctx, d)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.Format(models.DateLayout), err))
				continue
			}
			fmt.Printf("%s: %s\n", d.Format(models.DateLayout), res.HTMLPath)
			if res.JPEGPath != "" {
				fmt.Printf("  %s\n", res.JPEGPath)
			}
		}
		return errors.Join(errs...)
	})
}
