package config

import (
	"math"

	"github.com/san-kum/formulize/internal/formula"
)

// StandardGravity is the default g of the potential-energy preset, in m/s².
const StandardGravity = 9.81

// Manuals is the catalog of closures that formulas reference by name through
// their "manual" field. Missing values default to 0, as the closure owns its
// defaults.
var Manuals = map[string]formula.ManualFunc{
	"kinetic-energy": func(vars formula.Snapshot) (float64, error) {
		m := vars.ValueOr("m", 0)
		v := vars.ValueOr("v", 0)
		return 0.5 * m * math.Pow(v, 2), nil
	},
	"potential-energy": func(vars formula.Snapshot) (float64, error) {
		return vars.ValueOr("m", 0) * vars.ValueOr("g", StandardGravity) * vars.ValueOr("h", 0), nil
	},
	"momentum": func(vars formula.Snapshot) (float64, error) {
		return vars.ValueOr("m", 0) * vars.ValueOr("v", 0), nil
	},
	"kinetic-from-momentum": func(vars formula.Snapshot) (float64, error) {
		p := vars.ValueOr("p", 0)
		return math.Pow(p, 2) / (2 * vars.ValueOr("m", 0)), nil
	},
}
