package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/formulize/internal/formula"
)

// Pixel hints are scaled down to terminal cells.
const (
	pixelsPerColumn = 5
	pixelsPerRow    = 25

	defaultColumns = 80
	defaultRows    = 15
)

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.DodgerBlue,
	asciigraph.Orange,
	asciigraph.LimeGreen,
	asciigraph.HotPink,
}

// PlotSize converts a visualization's pixel hints to terminal columns and rows.
func PlotSize(spec formula.VisualizationSpec) (cols, rows int) {
	cols, rows = defaultColumns, defaultRows
	if spec.Width > 0 {
		cols = clamp(spec.Width/pixelsPerColumn, 20, 160)
	}
	if spec.Height > 0 {
		rows = clamp(spec.Height/pixelsPerRow, 5, 40)
	}
	return cols, rows
}

// Plot renders series as an asciigraph chart sized from the spec's hints.
func Plot(series []Series, spec formula.VisualizationSpec) string {
	cols, rows := PlotSize(spec)
	return PlotSized(series, spec, cols, rows)
}

func PlotSized(series []Series, spec formula.VisualizationSpec, cols, rows int) string {
	data := make([][]float64, 0, len(series))
	colors := make([]asciigraph.AnsiColor, 0, len(series))
	for i, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		ys := make([]float64, len(s.Points))
		for j, p := range s.Points {
			ys[j] = p.Y
		}
		data = append(data, ys)
		colors = append(colors, seriesColors[i%len(seriesColors)])
	}
	if len(data) == 0 {
		return "(no data)"
	}

	return asciigraph.PlotMany(data,
		asciigraph.Height(rows),
		asciigraph.Width(cols),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(caption(series, spec)),
	)
}

func caption(series []Series, spec formula.VisualizationSpec) string {
	names := make([]string, 0, len(series))
	for _, s := range series {
		names = append(names, s.Name)
	}
	c := fmt.Sprintf("%s vs %s", strings.Join(names, ", "), spec.XAxisVar)
	if len(series) > 0 && len(series[0].Points) > 0 {
		pts := series[0].Points
		c += fmt.Sprintf(" [%g .. %g]", pts[0].X, pts[len(pts)-1].X)
	}
	return c
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
