// export writes every history table as Parquet and, when S3 storage is
// configured, uploads the files.
//
// Usage: export [-out DIR] [-no-upload]
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/tropicaldog17/audtracker/internal/cli"
	"github.com/tropicaldog17/audtracker/internal/export"
	"github.com/tropicaldog17/audtracker/internal/history"
)

func main() {
	outDir := flag.String("out", "", "Output directory (default <data_dir>/exports)")
	noUpload := flag.Bool("no-upload", false, "Skip the S3 upload even when configured")
	flag.Parse()

	cli.Main("export", func(ctx context.Context, app *cli.App) error {
		dir := *outDir
		if dir == "" {
			dir = app.Config.Path(export.DefaultDir)
		}

		results, err := export.NewParquetExporter(dir, app.Logger).ExportAll(ctx, history.All(app.Config.DataDir))
		if err != nil {
			return err
		}
		files := make([]string, 0, len(results))
		for _, r := range results {
			fmt.Printf("%-20s %6d rows  %s\n", r.Table, r.Rows, r.Path)
			files = append(files, r.Path)
		}

		if *noUpload || !app.Config.Storage.S3.Enabled || len(files) == 0 {
			return nil
		}
		uploader, err := export.NewS3Uploader(ctx, app.Config.Storage.S3, app.Logger)
		if err != nil {
			return err
		}
		keys, err := uploader.Upload(ctx, time.Now().UTC(), files...)
		for _, k := range keys {
			fmt.Printf("uploaded s3://%s/%s\n", app.Config.Storage.S3.Bucket, k)
		}
		return err
	})
}
