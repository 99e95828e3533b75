// Package compute evaluates formulas.
//
// Each formula is bound to one [Strategy] when it is registered:
//
//   - [ExpressionStrategy]: a "{target} = expression" string parsed once
//   - [ManualStrategy]: a user-supplied closure over the variable snapshot
//
// The strategy is chosen per formula: a formula's own engine setting wins
// over the configuration-wide default. Both strategies return the raw,
// unrounded result; rounding to a variable's precision happens only when a
// value is displayed.
//
//	eng := compute.NewEngine(compute.WithMetrics(m))
//	err := eng.Register(spec, formula.ModeExpression, reg.Has)
//	k, err := eng.Evaluate("kinetic-energy", reg.Snapshot())
package compute
