package viz

import (
	"fmt"
	"iter"

	"github.com/san-kum/formulize/internal/compute"
	"github.com/san-kum/formulize/internal/formula"
	"github.com/san-kum/formulize/internal/graph"
	"github.com/san-kum/formulize/internal/metrics"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Series is one sampled line of a visualization.
type Series struct {
	Name   string  `json:"name"`
	XVar   string  `json:"x"`
	YVar   string  `json:"y"`
	Points []Point `json:"points"`
}

// Generator samples visualizations against the current variable state.
type Generator struct {
	graph    *graph.Graph
	engine   *compute.Engine
	snapshot func() formula.Snapshot
	metrics  *metrics.Metrics
}

// NewGenerator returns a generator that reads the live state through
// snapshot. m may be nil.
func NewGenerator(g *graph.Graph, eng *compute.Engine, snapshot func() formula.Snapshot, m *metrics.Metrics) *Generator {
	return &Generator{graph: g, engine: eng, snapshot: snapshot, metrics: m}
}

// Points yields the samples of line i of spec. Each iteration takes a fresh
// snapshot, so the sequence can be ranged over again after inputs change.
// The first error ends the sequence.
func (gen *Generator) Points(spec formula.VisualizationSpec, line int) iter.Seq2[Point, error] {
	return func(yield func(Point, error) bool) {
		base := gen.snapshot()
		xv, ok := base.Get(spec.XAxisVar)
		if !ok {
			yield(Point{}, fmt.Errorf("%w %q", formula.ErrUnknownVariable, spec.XAxisVar))
			return
		}
		xs, err := Domain(xv)
		if err != nil {
			yield(Point{}, err)
			return
		}

		yVar := spec.LineVar(line)
		affected := gen.graph.Affected(spec.XAxisVar)
		for x := range xs {
			y, err := gen.at(base, spec.XAxisVar, x, yVar, affected)
			if !yield(Point{X: x, Y: y}, err) || err != nil {
				return
			}
		}
	}
}

func (gen *Generator) at(base formula.Snapshot, xVar string, x float64, yVar string, affected []string) (float64, error) {
	snap := base.With(xVar, x)
	for _, id := range affected {
		node, _ := gen.graph.Node(id)
		v, err := gen.engine.Evaluate(id, snap)
		if err != nil {
			return 0, fmt.Errorf("%s=%g: %w", xVar, x, err)
		}
		snap = snap.With(node.Writes, v)
	}

	y, ok := snap.Value(yVar)
	if !ok {
		return 0, fmt.Errorf("%s=%g: %q has no value", xVar, x, yVar)
	}
	return y, nil
}

// Sample collects every line of spec. A failure at any sample fails the
// whole visualization.
func (gen *Generator) Sample(id string, spec formula.VisualizationSpec) ([]Series, error) {
	lines := max(len(spec.Lines), 1)
	out := make([]Series, 0, lines)
	total := 0

	for i := range lines {
		s := Series{Name: lineName(spec, i), XVar: spec.XAxisVar, YVar: spec.LineVar(i)}
		for p, err := range gen.Points(spec, i) {
			if err != nil {
				return nil, fmt.Errorf("visualization %s: %w", id, err)
			}
			s.Points = append(s.Points, p)
		}
		total += len(s.Points)
		out = append(out, s)
	}

	gen.metrics.ObserveSweep(id, total)
	return out, nil
}

func lineName(spec formula.VisualizationSpec, i int) string {
	if i < len(spec.Lines) && spec.Lines[i].Name != "" {
		return spec.Lines[i].Name
	}
	return spec.LineVar(i)
}
