package viz

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/san-kum/formulize/internal/compute"
	"github.com/san-kum/formulize/internal/formula"
	"github.com/san-kum/formulize/internal/graph"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		name      string
		lo, hi    float64
		step      float64
		wantLen   int
		wantFirst float64
	}{
		{"kinetic velocity", 0.1, 100, 0.1, 1000, 0.1},
		{"unit step", 0, 10, 1, 11, 0},
		{"uneven tail", 0, 1, 0.3, 4, 0},
		{"single point", 5, 5, 1, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := formula.NewVariable("x", formula.VariableSpec{
				Type:  formula.Input,
				Range: []float64{tt.lo, tt.hi},
				Step:  tt.step,
			})
			seq, err := Domain(v)
			if err != nil {
				t.Fatalf("Domain: %v", err)
			}
			xs := slices.Collect(seq)
			if n, _ := DomainSize(v); n != len(xs) {
				t.Errorf("DomainSize = %d, Domain produced %d", n, len(xs))
			}
			if len(xs) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(xs), tt.wantLen)
			}
			if xs[0] != tt.wantFirst {
				t.Errorf("first = %g, want %g", xs[0], tt.wantFirst)
			}
			if xs[len(xs)-1] != tt.hi {
				t.Errorf("last = %g, want exactly %g", xs[len(xs)-1], tt.hi)
			}
		})
	}
}

func TestDomainNeedsRange(t *testing.T) {
	for _, spec := range []formula.VariableSpec{
		{Type: formula.Input, Step: 1},
		{Type: formula.Input, Range: []float64{0, 1}},
		{Type: formula.Input, Range: []float64{1, 0}, Step: 0.1},
		{Type: formula.Input, Range: []float64{0, 1e300}, Step: 1},
		{Type: formula.Input, Range: []float64{0, 1}, Step: 1e-12},
		{Type: formula.Input, Range: []float64{-math.MaxFloat64, math.MaxFloat64}, Step: 1},
		{Type: formula.Input, Range: []float64{0, math.NaN()}, Step: 1},
	} {
		_, err := Domain(formula.NewVariable("x", spec))
		if !errors.Is(err, formula.ErrConfiguration) {
			t.Errorf("Domain(%+v) error = %v, want ErrConfiguration", spec, err)
		}
	}
}

type fixture struct {
	gen  *Generator
	vars map[string]formula.Variable
}

func newFixture(t *testing.T, manual formula.ManualFunc) *fixture {
	t.Helper()
	vars := map[string]formula.Variable{
		"K": formula.NewVariable("K", formula.VariableSpec{Type: formula.Dependent, Units: "J"}),
		"m": formula.NewVariable("m", formula.VariableSpec{Type: formula.Input, Value: formula.Float(1), Range: []float64{0.1, 10}, Step: 0.1}),
		"v": formula.NewVariable("v", formula.VariableSpec{Type: formula.Input, Value: formula.Float(2), Range: []float64{0.1, 100}, Step: 0.1}),
	}
	known := func(k string) bool { _, ok := vars[k]; return ok }

	eng := compute.NewEngine()
	spec := formula.FormulaSpec{ID: "kinetic-energy", Expression: "{K} = 0.5 * {m} * {v}^2"}
	mode := formula.ModeExpression
	if manual != nil {
		spec = formula.FormulaSpec{ID: "kinetic-energy", Target: "K", Reads: []string{"m", "v"}, Func: manual}
		mode = formula.ModeManual
	}
	if err := eng.Register(spec, mode, known); err != nil {
		t.Fatalf("Register: %v", err)
	}
	g, err := graph.New(eng.Nodes())
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}

	f := &fixture{vars: vars}
	f.gen = NewGenerator(g, eng, func() formula.Snapshot { return formula.NewSnapshot(f.vars) }, nil)
	return f
}

var kineticPlot = formula.VisualizationSpec{
	ID: "plot2d-0", Type: formula.Plot2D, XAxisVar: "v", YAxisVar: "K", Width: 400, Height: 400,
}

func TestSample(t *testing.T) {
	f := newFixture(t, nil)

	series, err := f.gen.Sample("plot2d-0", kineticPlot)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("len(series) = %d, want 1", len(series))
	}
	pts := series[0].Points
	if len(pts) != 1000 {
		t.Fatalf("len(points) = %d, want 1000", len(pts))
	}
	if pts[len(pts)-1].X != 100 {
		t.Errorf("last x = %g, want 100", pts[len(pts)-1].X)
	}
	for _, p := range pts {
		want := 0.5 * 1 * p.X * p.X
		if math.Abs(p.Y-want) > 1e-9*math.Max(1, want) {
			t.Fatalf("K(%g) = %g, want %g", p.X, p.Y, want)
		}
	}

	if f.vars["v"].Current != 2 {
		t.Errorf("sweep leaked into live state: v = %g", f.vars["v"].Current)
	}
}

func TestPointsRestartable(t *testing.T) {
	f := newFixture(t, nil)
	seq := f.gen.Points(kineticPlot, 0)

	first := 0.0
	for p, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		first = p.Y
		break
	}

	m := f.vars["m"]
	m.Current = 4
	f.vars["m"] = m

	for p, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		if p.Y != 4*first {
			t.Errorf("second pass y = %g, want %g", p.Y, 4*first)
		}
		break
	}
}

func TestSampleEvaluationError(t *testing.T) {
	calls := 0
	f := newFixture(t, func(vars formula.Snapshot) (float64, error) {
		calls++
		if v := vars.ValueOr("v", 0); v > 50 {
			return 0, errors.New("too fast")
		}
		return 1, nil
	})

	_, err := f.gen.Sample("plot2d-0", kineticPlot)
	if !errors.Is(err, formula.ErrEvaluation) {
		t.Fatalf("Sample error = %v, want ErrEvaluation", err)
	}
	if calls > 501 {
		t.Errorf("sweep continued after failure: %d calls", calls)
	}
}

func TestPlot(t *testing.T) {
	f := newFixture(t, nil)
	series, err := f.gen.Sample("plot2d-0", kineticPlot)
	if err != nil {
		t.Fatal(err)
	}

	out := Plot(series, kineticPlot)
	if !strings.Contains(out, "K vs v") {
		t.Errorf("plot caption missing:\n%s", out)
	}
	if cols, rows := PlotSize(kineticPlot); cols != 80 || rows != 16 {
		t.Errorf("PlotSize = %d x %d, want 80 x 16", cols, rows)
	}
	if Plot(nil, kineticPlot) != "(no data)" {
		t.Error("empty plot should say so")
	}
}

func TestFormatVariable(t *testing.T) {
	s := NewStyles(ThemeMinimal)
	v := formula.NewVariable("K", formula.VariableSpec{Type: formula.Dependent, Units: "J", Name: "Kinetic Energy", Precision: formula.Int(2)})
	v.Current, v.HasValue = 9, true

	row := s.FormatVariable(v, RowNormal)
	for _, want := range []string{"Kinetic Energy", "9.00", "J"} {
		if !strings.Contains(row, want) {
			t.Errorf("row %q missing %q", row, want)
		}
	}
}
