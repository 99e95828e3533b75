package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/formulize/internal/formula"
	"github.com/san-kum/formulize/internal/viz"
)

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	SVG  Format = "svg"
)

const (
	defaultSVGWidth  = 800
	defaultSVGHeight = 400
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case CSV, JSON, SVG:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, json or svg)", s)
}

// Document is the JSON form of a sampled visualization.
type Document struct {
	Visualization formula.VisualizationSpec `json:"visualization"`
	Series        []viz.Series              `json:"series"`
}

// Write encodes sampled series in the given format.
func Write(w io.Writer, f Format, spec formula.VisualizationSpec, series []viz.Series) error {
	switch f {
	case CSV:
		return WriteCSV(w, spec, series)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Document{Visualization: spec, Series: series})
	case SVG:
		width, height := spec.Width, spec.Height
		if width <= 0 {
			width = defaultSVGWidth
		}
		if height <= 0 {
			height = defaultSVGHeight
		}
		_, err := io.WriteString(w, SeriesToSVG(series, width, height)+"\n")
		return err
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteCSV writes one row per x sample with a column per series. Every
// series of a visualization shares the same x domain.
func WriteCSV(w io.Writer, spec formula.VisualizationSpec, series []viz.Series) error {
	cw := csv.NewWriter(w)

	header := []string{spec.XAxisVar}
	rows := 0
	for _, s := range series {
		header = append(header, s.Name)
		rows = max(rows, len(s.Points))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range rows {
		row := make([]string, 0, len(header))
		x := ""
		for _, s := range series {
			if i < len(s.Points) {
				x = formatFloat(s.Points[i].X)
				break
			}
		}
		row = append(row, x)
		for _, s := range series {
			y := ""
			if i < len(s.Points) {
				y = formatFloat(s.Points[i].Y)
			}
			row = append(row, y)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
