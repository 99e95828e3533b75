package compute

import (
	"errors"
	"fmt"
	"slices"

	"github.com/san-kum/formulize/internal/expr"
	"github.com/san-kum/formulize/internal/formula"
	"github.com/san-kum/formulize/internal/graph"
	"github.com/san-kum/formulize/internal/metrics"
)

var ErrUnknownFormula = errors.New("compute: unknown formula")

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine owns the strategy bound to each registered formula.
type Engine struct {
	strategies map[string]Strategy
	specs      map[string]formula.FormulaSpec
	ids        []string
	metrics    *metrics.Metrics
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		strategies: make(map[string]Strategy),
		specs:      make(map[string]formula.FormulaSpec),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register binds spec to a strategy. The formula's own engine setting wins
// over defaultMode. known reports whether a variable key is registered;
// every variable the formula reads or writes must be known.
func (e *Engine) Register(spec formula.FormulaSpec, defaultMode formula.Mode, known func(string) bool) error {
	if spec.ID == "" {
		return fmt.Errorf("%w: formula without id", formula.ErrConfiguration)
	}
	if _, dup := e.strategies[spec.ID]; dup {
		return fmt.Errorf("%w: duplicate formula %q", formula.ErrConfiguration, spec.ID)
	}

	mode := spec.Engine
	if mode == "" {
		mode = defaultMode
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: formula %q: unknown engine %q", formula.ErrConfiguration, spec.ID, mode)
	}

	target := spec.Target
	var (
		parsed *expr.Formula
		reads  = slices.Clone(spec.Reads)
	)
	if spec.Expression != "" {
		f, err := expr.ParseFormula(spec.Expression)
		if err != nil {
			return fmt.Errorf("formula %q: %w", spec.ID, err)
		}
		if f.Target != "" {
			if target != "" && target != f.Target {
				return fmt.Errorf("%w: formula %q: target %q conflicts with expression target %q",
					formula.ErrConfiguration, spec.ID, target, f.Target)
			}
			target = f.Target
		}
		for _, name := range f.Reads() {
			if !known(name) {
				return fmt.Errorf("formula %q: %w", spec.ID, &formula.ParseError{
					Input: spec.Expression,
					Msg:   fmt.Sprintf("reference to unknown variable %q", name),
					Err:   formula.ErrUnknownVariable,
				})
			}
		}
		reads = append(reads, f.Reads()...)
		parsed = f
	} else if mode == formula.ModeExpression {
		return fmt.Errorf("%w: formula %q: expression engine needs an expression", formula.ErrConfiguration, spec.ID)
	}

	if target == "" {
		return fmt.Errorf("%w: formula %q: no target variable", formula.ErrConfiguration, spec.ID)
	}
	slices.Sort(reads)
	reads = slices.Compact(reads)
	for _, key := range append([]string{target}, reads...) {
		if !known(key) {
			return fmt.Errorf("formula %q: %w %q", spec.ID, formula.ErrUnknownVariable, key)
		}
	}

	var s Strategy
	switch mode {
	case formula.ModeExpression:
		s = NewExpressionStrategy(parsed, target, reads...)
	case formula.ModeManual:
		if spec.Func == nil {
			return fmt.Errorf("%w: formula %q: manual engine without a function", formula.ErrConfiguration, spec.ID)
		}
		s = NewManualStrategy(spec.Func, target, reads)
	}

	e.strategies[spec.ID] = s
	e.specs[spec.ID] = spec
	e.ids = append(e.ids, spec.ID)
	return nil
}

// Evaluate runs the formula's strategy against vars. Failures are returned
// as *formula.EvaluationError.
func (e *Engine) Evaluate(id string, vars formula.Snapshot) (float64, error) {
	s, ok := e.strategies[id]
	if !ok {
		return 0, &formula.EvaluationError{FormulaID: id, Err: ErrUnknownFormula}
	}

	v, err := s.Evaluate(vars)
	e.metrics.ObserveEvaluation(id, string(s.Mode()), err)
	if err != nil {
		return 0, &formula.EvaluationError{FormulaID: id, Err: err}
	}
	return v, nil
}

func (e *Engine) Strategy(id string) (Strategy, bool) {
	s, ok := e.strategies[id]
	return s, ok
}

func (e *Engine) Spec(id string) (formula.FormulaSpec, bool) {
	s, ok := e.specs[id]
	return s, ok
}

// IDs returns formula ids in registration order.
func (e *Engine) IDs() []string { return slices.Clone(e.ids) }

// Nodes describes every registered formula for dependency analysis.
func (e *Engine) Nodes() []graph.Node {
	nodes := make([]graph.Node, 0, len(e.ids))
	for _, id := range e.ids {
		s := e.strategies[id]
		nodes = append(nodes, graph.Node{ID: id, Reads: s.Reads(), Writes: s.Target()})
	}
	return nodes
}
