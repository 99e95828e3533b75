// Package formula provides the shared vocabulary of the formula engine.
//
// The package defines the configuration schema and the runtime views that
// every other engine package exchanges:
//
//   - [Config]: variables, formulas and visualizations of one session
//   - [Variable]: a registered variable and its current value
//   - [Snapshot]: an immutable view of every variable at one point in time
//   - [ManualFunc]: a user-supplied computation closure
//
// # Example
//
//	cfg := formula.Config{
//		Variables: map[string]formula.VariableSpec{
//			"m": {Type: formula.Input, Value: formula.Float(1), Range: []float64{0.1, 10}, Step: 1},
//			"v": {Type: formula.Input, Value: formula.Float(2), Range: []float64{0.1, 100}, Step: 1},
//			"K": {Type: formula.Dependent, Precision: formula.Int(2)},
//		},
//		Formulas: []formula.FormulaSpec{
//			{ID: "kinetic-energy", Expression: "{K} = 0.5 * {m} * {v} * {v}"},
//		},
//	}
//
// Errors returned by the engine packages are defined in this package so that
// callers can test them with [errors.Is] and [errors.As] without importing
// the package that produced them.
package formula
