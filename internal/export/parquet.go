// Package export writes the history tables to Parquet and ships export
// artifacts to object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/models"
)

// DefaultDir is the exports directory relative to the data directory.
const DefaultDir = "exports"

// Result describes one exported table.
type Result struct {
	Table string
	Path  string
	Rows  int
}

// ParquetExporter writes one Parquet file per history table.
type ParquetExporter struct {
	outDir string
	logger *zap.Logger
}

func NewParquetExporter(outDir string, logger *zap.Logger) *ParquetExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParquetExporter{outDir: outDir, logger: logger.Named("export")}
}

// ExportAll exports every table in stores, in name order. Tables that do
// not exist yet are skipped.
func (e *ParquetExporter) ExportAll(ctx context.Context, stores map[string]*history.Store) ([]Result, error) {
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []Result
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if _, err := os.Stat(stores[name].Path()); os.IsNotExist(err) {
			e.logger.Info("table not found, skipping", zap.String("table", name))
			continue
		}
		res, err := e.Export(name, stores[name])
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Export writes store's table to <outDir>/<name>.parquet.
func (e *ParquetExporter) Export(name string, store *history.Store) (Result, error) {
	table, err := store.Load()
	if err != nil {
		return Result{}, err
	}
	path := filepath.Join(e.outDir, name+".parquet")
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create export dir: %w", err)
	}
	if err := WriteParquet(path, table); err != nil {
		return Result{}, err
	}
	e.logger.Info("table exported", zap.String("table", name), zap.String("path", path), zap.Int("rows", len(table.Rows)))
	return Result{Table: name, Path: path, Rows: len(table.Rows)}, nil
}

type schemaField struct {
	Tag string `json:"Tag"`
}

type schemaRoot struct {
	Tag    string        `json:"Tag"`
	Fields []schemaField `json:"Fields"`
}

// ParquetSchema returns the JSON schema of a table: date and timestamp as
// UTF8 strings, then one optional double per data column.
func ParquetSchema(schema models.TableSchema) (string, error) {
	root := schemaRoot{
		Tag: "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: []schemaField{
			{Tag: "name=date, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
			{Tag: "name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"},
		},
	}
	for _, col := range schema.DataColumns {
		root.Fields = append(root.Fields, schemaField{Tag: fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", col)})
	}
	b, err := json.Marshal(root)
	return string(b), err
}

// rowJSON encodes row as the JSON record the Parquet JSON writer expects.
func rowJSON(schema models.TableSchema, row history.Row) (string, error) {
	rec := map[string]any{
		"date":      row.Date.Format(models.DateLayout),
		"timestamp": nil,
	}
	if row.Timestamp != nil {
		rec["timestamp"] = row.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	for _, col := range schema.DataColumns {
		rec[col] = nil
		if v, ok := row.Value(col); ok {
			f, _ := v.Float64()
			rec[col] = f
		}
	}
	b, err := json.Marshal(rec)
	return string(b), err
}

// WriteParquet writes t to path with snappy compression.
func WriteParquet(path string, t *history.Table) error {
	md, err := ParquetSchema(t.Schema)
	if err != nil {
		return err
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	pw, err := writer.NewJSONWriter(md, fw, 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range t.Rows {
		rec, err := rowJSON(t.Schema, row)
		if err != nil {
			fw.Close()
			return err
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write %s row: %w", strings.ToLower(t.Schema.Name), err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	return fw.Close()
}
