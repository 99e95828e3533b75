package config

import (
	"slices"

	"github.com/san-kum/formulize/internal/formula"
)

const DefaultPreset = "kinetic-energy"

// Presets builds a fresh configuration on each call, so callers may modify
// the result freely.
var Presets = map[string]func() formula.Config{
	"kinetic-energy":   kineticEnergy,
	"potential-energy": potentialEnergy,
	"momentum":         momentumChain,
}

func kineticEnergy() formula.Config {
	return formula.Config{
		Name: "kinetic-energy",
		Description: "Kinetic energy is the energy possessed by an object due to its motion. " +
			"It is directly proportional to the mass of the object and the square of its velocity, " +
			"so doubling the velocity quadruples the kinetic energy. Speed is a much more significant " +
			"factor than mass in determining how much energy a moving object has.",
		Variables: map[string]formula.VariableSpec{
			"K": {Type: formula.Dependent, Units: "J", Name: "Kinetic Energy", Precision: formula.Int(2)},
			"m": {Type: formula.Input, Value: formula.Float(1), Range: []float64{0.1, 10}, Step: 1, Units: "kg", Name: "Mass"},
			"v": {Type: formula.Input, Value: formula.Float(2), Range: []float64{0.1, 100}, Step: 1, Units: "m/s", Name: "Velocity"},
		},
		Formulas: []formula.FormulaSpec{{
			ID:         "kinetic-energy",
			Latex:      `K = \frac{1}{2}mv^2`,
			Expression: "{K} = 0.5 * {m} * {v} * {v}",
			Manual:     "kinetic-energy",
		}},
		Visualizations: []formula.VisualizationSpec{{
			Type:     formula.Plot2D,
			XAxisVar: "v",
			YAxisVar: "K",
			Height:   400,
			Width:    400,
			Lines:    []formula.LineSpec{{Name: "Kinetic Energy Formula"}},
		}},
		Computation: formula.Computation{Engine: formula.ModeManual},
		FontSize:    1,
	}
}

func potentialEnergy() formula.Config {
	return formula.Config{
		Name: "potential-energy",
		Description: "Gravitational potential energy is the energy an object stores by being lifted " +
			"against gravity. It grows linearly with mass, with the strength of the gravitational " +
			"field and with height.",
		Variables: map[string]formula.VariableSpec{
			"U": {Type: formula.Dependent, Units: "J", Name: "Potential Energy", Precision: formula.Int(2)},
			"m": {Type: formula.Input, Value: formula.Float(1), Range: []float64{0.1, 10}, Step: 0.1, Units: "kg", Name: "Mass"},
			"g": {Type: formula.Input, Value: formula.Float(StandardGravity), Range: []float64{1, 25}, Step: 0.01, Units: "m/s²", Name: "Gravity", Precision: formula.Int(2)},
			"h": {Type: formula.Input, Value: formula.Float(10), Range: []float64{0, 100}, Step: 1, Units: "m", Name: "Height"},
		},
		Formulas: []formula.FormulaSpec{{
			ID:         "potential-energy",
			Latex:      `U = mgh`,
			Expression: "{U} = {m} * {g} * {h}",
			Manual:     "potential-energy",
		}},
		Visualizations: []formula.VisualizationSpec{{
			ID:       "height",
			Type:     formula.Plot2D,
			XAxisVar: "h",
			YAxisVar: "U",
			Height:   300,
			Width:    400,
		}},
		Computation: formula.Computation{Engine: formula.ModeExpression},
	}
}

func momentumChain() formula.Config {
	return formula.Config{
		Name: "momentum",
		Description: "Kinetic energy expressed through momentum. The momentum p = mv feeds " +
			"K = p²/2m, so a change in velocity propagates through both formulas in order.",
		Variables: map[string]formula.VariableSpec{
			"m": {Type: formula.Input, Value: formula.Float(2), Range: []float64{0.1, 10}, Step: 0.1, Units: "kg", Name: "Mass"},
			"v": {Type: formula.Input, Value: formula.Float(3), Range: []float64{0, 50}, Step: 0.5, Units: "m/s", Name: "Velocity"},
			"p": {Type: formula.Dependent, Units: "kg·m/s", Name: "Momentum", Precision: formula.Int(2)},
			"K": {Type: formula.Dependent, Units: "J", Name: "Kinetic Energy", Precision: formula.Int(2)},
		},
		Formulas: []formula.FormulaSpec{
			{
				ID:         "kinetic-from-momentum",
				Latex:      `K = \frac{p^2}{2m}`,
				Expression: "{K} = {p}^2 / (2 * {m})",
				Manual:     "kinetic-from-momentum",
			},
			{
				ID:         "momentum",
				Latex:      `p = mv`,
				Expression: "{p} = {m} * {v}",
				Manual:     "momentum",
			},
		},
		Visualizations: []formula.VisualizationSpec{{
			ID:       "velocity",
			Type:     formula.Plot2D,
			XAxisVar: "v",
			YAxisVar: "K",
			Height:   400,
			Width:    600,
			Lines: []formula.LineSpec{
				{Name: "Momentum", Var: "p"},
				{Name: "Kinetic Energy", Var: "K"},
			},
		}},
		Computation: formula.Computation{Engine: formula.ModeExpression},
	}
}

// GetPreset returns a copy of the named preset.
func GetPreset(name string) (formula.Config, bool) {
	build, ok := Presets[name]
	if !ok {
		return formula.Config{}, false
	}
	return build(), true
}

// ListPresets returns the preset names in sorted order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
