// validate-history checks every history table for load errors, null cells
// and calendar gaps.
//
// Usage: validate-history [-json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/pipeline"
)

func main() {
	asJSON := flag.Bool("json", false, "Print the reports as JSON")
	flag.Parse()

	cli.Main("validate-history", func(ctx context.Context, app *cli.App) error {
		reports := pipeline.ValidateAll(app.Config.DataDir, app.Logger)

		failed := 0
		for _, r := range reports {
			if !r.Issues.OK() {
				failed++
			}
		}

		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return err
			}
		} else {
			for _, r := range reports {
				status := "OK"
				if !r.Issues.OK() {
					status = "FAILED"
				}
				fmt.Printf("%-20s %-6s %s\n", r.Name, status, r.Path)
				for _, e := range r.Issues.Errors {
					fmt.Printf("    error: %s\n", e)
				}
				for _, w := range r.Issues.Warnings {
					fmt.Printf("    warning: %s\n", w)
				}
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d tables failed validation", failed, len(reports))
		}
		return nil
	})
}
