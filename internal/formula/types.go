package formula

import (
	"fmt"
	"math"
	"strconv"
)

type Kind string

const (
	Input     Kind = "input"
	Dependent Kind = "dependent"
)

// Mode selects how a formula is computed.
type Mode string

const (
	ModeExpression Mode = "expression"
	ModeManual     Mode = "manual"
)

func (m Mode) Valid() bool {
	return m == ModeExpression || m == ModeManual
}

const Plot2D = "plot2d"

type VariableSpec struct {
	Type      Kind      `yaml:"type" json:"type" mapstructure:"type"`
	Value     *float64  `yaml:"value,omitempty" json:"value,omitempty" mapstructure:"value"`
	Range     []float64 `yaml:"range,omitempty,flow" json:"range,omitempty" mapstructure:"range"`
	Step      float64   `yaml:"step,omitempty" json:"step,omitempty" mapstructure:"step"`
	Units     string    `yaml:"units,omitempty" json:"units,omitempty" mapstructure:"units"`
	Name      string    `yaml:"name,omitempty" json:"name,omitempty" mapstructure:"name"`
	Precision *int      `yaml:"precision,omitempty" json:"precision,omitempty" mapstructure:"precision"`
}

// ManualFunc computes a formula from the full variable snapshot. Variables
// without a value are reported as absent; the function picks its own default.
type ManualFunc func(vars Snapshot) (float64, error)

type FormulaSpec struct {
	ID         string `yaml:"id" json:"id" mapstructure:"id"`
	Latex      string `yaml:"latex,omitempty" json:"latex,omitempty" mapstructure:"latex"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty" mapstructure:"expression"`
	// Manual names a closure in the manual catalog.
	Manual string `yaml:"manual,omitempty" json:"manual,omitempty" mapstructure:"manual"`
	// Engine overrides Config.Computation.Engine for this formula.
	Engine Mode `yaml:"engine,omitempty" json:"engine,omitempty" mapstructure:"engine"`
	// Target and Reads declare the write/read sets of a manual formula that
	// has no expression to derive them from.
	Target string   `yaml:"target,omitempty" json:"target,omitempty" mapstructure:"target"`
	Reads  []string `yaml:"reads,omitempty,flow" json:"reads,omitempty" mapstructure:"reads"`

	Func ManualFunc `yaml:"-" json:"-" mapstructure:"-"`
}

type LineSpec struct {
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Var is the plotted variable; empty means the visualization's y axis.
	Var string `yaml:"var,omitempty" json:"var,omitempty" mapstructure:"var"`
}

type VisualizationSpec struct {
	ID       string     `yaml:"id,omitempty" json:"id,omitempty" mapstructure:"id"`
	Type     string     `yaml:"type" json:"type" mapstructure:"type"`
	XAxisVar string     `yaml:"x_axis_var" json:"xAxisVar" mapstructure:"x_axis_var"`
	YAxisVar string     `yaml:"y_axis_var" json:"yAxisVar" mapstructure:"y_axis_var"`
	Height   int        `yaml:"height,omitempty" json:"height,omitempty" mapstructure:"height"`
	Width    int        `yaml:"width,omitempty" json:"width,omitempty" mapstructure:"width"`
	Lines    []LineSpec `yaml:"lines,omitempty" json:"lines,omitempty" mapstructure:"lines"`
}

// LineVar returns the variable plotted by line i.
func (v VisualizationSpec) LineVar(i int) string {
	if i < len(v.Lines) && v.Lines[i].Var != "" {
		return v.Lines[i].Var
	}
	return v.YAxisVar
}

type Computation struct {
	Engine Mode `yaml:"engine" json:"engine" mapstructure:"engine"`
}

type Config struct {
	Name           string                  `yaml:"name,omitempty" json:"name,omitempty" mapstructure:"name"`
	Description    string                  `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`
	Variables      map[string]VariableSpec `yaml:"variables" json:"variables" mapstructure:"variables"`
	Formulas       []FormulaSpec           `yaml:"formulas" json:"formulas" mapstructure:"formulas"`
	Visualizations []VisualizationSpec     `yaml:"visualizations,omitempty" json:"visualizations,omitempty" mapstructure:"visualizations"`
	Computation    Computation             `yaml:"computation" json:"computation" mapstructure:"computation"`
	FontSize       float64                 `yaml:"font_size,omitempty" json:"fontSize,omitempty" mapstructure:"font_size"`
}

// VisualizationID returns the identifier of the i-th visualization, falling
// back to "<type>-<index>" when none is configured.
func (c *Config) VisualizationID(i int) string {
	v := c.Visualizations[i]
	if v.ID != "" {
		return v.ID
	}
	typ := v.Type
	if typ == "" {
		typ = Plot2D
	}
	return fmt.Sprintf("%s-%d", typ, i)
}

// Variable is the runtime view of a registered variable.
type Variable struct {
	Key string
	VariableSpec
	Current  float64
	HasValue bool
}

func NewVariable(key string, spec VariableSpec) Variable {
	v := Variable{Key: key, VariableSpec: spec}
	if spec.Value != nil {
		v.Current = *spec.Value
		v.HasValue = true
	}
	return v
}

func (v Variable) IsInput() bool { return v.Type == Input }

// Bounds reports the declared range of an input variable.
func (v Variable) Bounds() (lo, hi float64, ok bool) {
	if len(v.Range) != 2 {
		return 0, 0, false
	}
	return v.Range[0], v.Range[1], true
}

func (v Variable) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.Key
}

// Rounded returns the current value rounded to the declared precision.
// Rounding is a presentation concern; propagation uses Current.
func (v Variable) Rounded() float64 {
	if v.Precision == nil {
		return v.Current
	}
	return Round(v.Current, *v.Precision)
}

func (v Variable) Format() string {
	if !v.HasValue {
		return "—"
	}
	if v.Precision == nil {
		return strconv.FormatFloat(v.Current, 'g', -1, 64)
	}
	return strconv.FormatFloat(v.Rounded(), 'f', *v.Precision, 64)
}

// Round rounds x half away from zero to the given number of decimal places.
func Round(x float64, places int) float64 {
	if places < 0 {
		return x
	}
	p := math.Pow(10, float64(places))
	r := math.Round(x*p) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return x
	}
	return r
}

// Float returns a pointer to f, for optional spec fields.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to i, for optional spec fields.
func Int(i int) *int { return &i }
