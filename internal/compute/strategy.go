package compute

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/formulize/internal/expr"
	"github.com/san-kum/formulize/internal/formula"
)

// Strategy computes one dependent variable from a snapshot.
type Strategy interface {
	Mode() formula.Mode
	Target() string
	Reads() []string
	Evaluate(vars formula.Snapshot) (float64, error)
}

type ExpressionStrategy struct {
	f      *expr.Formula
	target string
	reads  []string
}

// NewExpressionStrategy wraps a parsed formula. extra adds declared reads
// on top of the references found in the expression.
func NewExpressionStrategy(f *expr.Formula, target string, extra ...string) *ExpressionStrategy {
	reads := append(f.Reads(), extra...)
	slices.Sort(reads)
	return &ExpressionStrategy{f: f, target: target, reads: slices.Compact(reads)}
}

func (s *ExpressionStrategy) Mode() formula.Mode { return formula.ModeExpression }
func (s *ExpressionStrategy) Target() string     { return s.target }
func (s *ExpressionStrategy) Reads() []string    { return slices.Clone(s.reads) }

func (s *ExpressionStrategy) Evaluate(vars formula.Snapshot) (float64, error) {
	return s.f.Eval(vars.Value)
}

type ManualStrategy struct {
	fn     formula.ManualFunc
	target string
	reads  []string
}

func NewManualStrategy(fn formula.ManualFunc, target string, reads []string) *ManualStrategy {
	return &ManualStrategy{fn: fn, target: target, reads: slices.Clone(reads)}
}

func (s *ManualStrategy) Mode() formula.Mode { return formula.ModeManual }
func (s *ManualStrategy) Target() string     { return s.target }
func (s *ManualStrategy) Reads() []string    { return slices.Clone(s.reads) }

// Evaluate calls the closure. A panic inside the closure is reported as an
// error rather than unwinding through the engine.
func (s *ManualStrategy) Evaluate(vars formula.Snapshot) (result float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = 0, fmt.Errorf("manual function panicked: %v", r)
		}
	}()

	result, err = s.fn(vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: manual result %g is not finite", expr.ErrDomain, result)
	}
	return result, nil
}
