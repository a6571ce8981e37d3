// Package charts draws trend charts of the history tables as SVG and PNG.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/models"
)

// ErrNoSeries is returned when no column has two or more values to plot.
var ErrNoSeries = errors.New("no data to chart")

const (
	DefaultWidth  = 960
	DefaultHeight = 540
	margin        = 48.0
)

var palette = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd", "#8c564b", "#e377c2"}

type Point struct {
	Date time.Time
	Pct  float64
}

// Series is one column's percent change from its first value in range.
type Series struct {
	Column string
	Points []Point
}

// PercentSeries builds a series per column over the last days days of t,
// counted back from the newest row. days <= 0 keeps every row. Columns with
// fewer than two values are dropped.
func PercentSeries(t *history.Table, columns []string, days int) []Series {
	rows := t.Rows
	if days > 0 && len(rows) > 0 {
		from := rows[len(rows)-1].Date.AddDate(0, 0, -(days - 1))
		rows = t.Range(from, rows[len(rows)-1].Date)
	}

	var out []Series
	for _, col := range columns {
		var (
			base float64
			s    = Series{Column: col}
		)
		for _, row := range rows {
			v, ok := row.Value(col)
			if !ok {
				continue
			}
			f, _ := v.Float64()
			if len(s.Points) == 0 {
				base = f
			}
			s.Points = append(s.Points, Point{Date: row.Date, Pct: (f/base - 1) * 100})
		}
		if len(s.Points) >= 2 {
			out = append(out, s)
		}
	}
	return out
}

// TrendSVG draws series as lines on a shared percent axis.
func TrendSVG(series []Series, title string, width, height int) ([]byte, error) {
	if len(series) == 0 {
		return nil, ErrNoSeries
	}
	first, last := series[0].Points[0].Date, series[0].Points[0].Date
	lo, hi := 0.0, 0.0
	for _, s := range series {
		for _, p := range s.Points {
			if p.Date.Before(first) {
				first = p.Date
			}
			if p.Date.After(last) {
				last = p.Date
			}
			lo, hi = math.Min(lo, p.Pct), math.Max(hi, p.Pct)
		}
	}
	if hi-lo < 1e-9 {
		lo, hi = lo-1, hi+1
	}
	span := last.Sub(first).Hours()
	if span <= 0 {
		span = 24
	}

	w, h := float64(width), float64(height)
	plotW, plotH := w-2*margin, h-2*margin
	x := func(d time.Time) float64 { return margin + d.Sub(first).Hours()/span*plotW }
	y := func(v float64) float64 { return margin + (hi-v)/(hi-lo)*plotH }

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n", width, height, width, height)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="#ffffff"/>`+"\n", width, height)
	fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="none" stroke="#cccccc" stroke-width="1"/>`+"\n", margin, margin, plotW, plotH)
	fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#888888" stroke-width="1"/>`+"\n", margin, y(0), margin+plotW, y(0))

	for i, s := range series {
		c := palette[i%len(palette)]
		var d strings.Builder
		for j, p := range s.Points {
			cmd := "L"
			if j == 0 {
				cmd = "M"
			}
			fmt.Fprintf(&d, "%s%.2f %.2f ", cmd, x(p.Date), y(p.Pct))
		}
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="2"/>`+"\n", strings.TrimSpace(d.String()), c)
		// legend swatch and label
		fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="12" height="12" fill="%s"/>`+"\n", margin+float64(i)*120, h-margin+18, c)
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="12" font-family="sans-serif">%s</text>`+"\n", margin+float64(i)*120+16, h-margin+28, s.Column)
	}

	fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="16" font-family="sans-serif">%s</text>`+"\n", margin, margin-18, title)
	fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="11" font-family="sans-serif">%s to %s, %% change (%.1f%% to %.1f%%)</text>`+"\n",
		margin, margin-4, first.Format(models.DateLayout), last.Format(models.DateLayout), lo, hi)
	b.WriteString("</svg>\n")
	return []byte(b.String()), nil
}

// RasterizePNG renders svg onto a white width x height canvas. Text is not
// rasterized.
func RasterizePNG(svg []byte, width, height int) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, err
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Files lists the chart files Generate wrote.
type Files struct {
	SVG string
	PNG string
}

// Generate writes <outDir>/<name>_trends.svg and .png for store's data columns.
func Generate(store *history.Store, name, outDir string, days int) (Files, error) {
	t, err := store.Load()
	if err != nil {
		return Files{}, err
	}
	svg, err := TrendSVG(PercentSeries(t, t.Schema.DataColumns, days), t.Schema.Name+" trends", DefaultWidth, DefaultHeight)
	if err != nil {
		return Files{}, fmt.Errorf("%s: %w", name, err)
	}
	pngData, err := RasterizePNG(svg, DefaultWidth, DefaultHeight)
	if err != nil {
		return Files{}, fmt.Errorf("rasterize %s chart: %w", name, err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Files{}, err
	}
	files := Files{
		SVG: filepath.Join(outDir, name+"_trends.svg"),
		PNG: filepath.Join(outDir, name+"_trends.png"),
	}
	if err := os.WriteFile(files.SVG, svg, 0o644); err != nil {
		return Files{}, err
	}
	if err := os.WriteFile(files.PNG, pngData, 0o644); err != nil {
		return Files{}, err
	}
	return files, nil
}
