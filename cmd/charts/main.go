// charts draws percent-change trend charts for the history tables.
//
// Usage: charts [-days N] [-out DIR] [table ...]
//
// Without table names every table that exists is drawn.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/tropicaldog17/audtracker/internal/charts"
	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/history"
)

func main() {
	days := flag.Int("days", 90, "Days of history to plot, 0 for all")
	outDir := flag.String("out", "", "Output directory (default <data_dir>/charts)")
	flag.Parse()

	cli.Main("charts", func(ctx context.Context, app *cli.App) error {
		dir := *outDir
		if dir == "" {
			dir = app.Config.Path("charts")
		}
		stores := history.All(app.Config.DataDir)

		names := flag.Args()
		if len(names) == 0 {
			for name, store := range stores {
				if _, err := os.Stat(store.Path()); err == nil {
					names = append(names, name)
				}
			}
			sort.Strings(names)
		}

		var errs []error
		for _, name := range names {
			store, ok := stores[name]
			if !ok {
				errs = append(errs, fmt.Errorf("unknown table %q", name))
				continue
			}
			files, err := charts.Generate(store, name, dir, *days)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Printf("%-20s %s\n%-20s %s\n", name, files.SVG, "", files.PNG)
		}
		return errors.Join(errs...)
	})
}
