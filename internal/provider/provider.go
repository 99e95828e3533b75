package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/san-kum/formulize/internal/compute"
	"github.com/san-kum/formulize/internal/formula"
	"github.com/san-kum/formulize/internal/graph"
	"github.com/san-kum/formulize/internal/logging"
	"github.com/san-kum/formulize/internal/metrics"
	"github.com/san-kum/formulize/internal/registry"
	"github.com/san-kum/formulize/internal/viz"
)

var ErrUnknownVisualization = errors.New("provider: unknown visualization")

// Change lists the variables whose values changed in one update.
type Change struct {
	Keys []string
}

// UpdateResult reports the outcome of UpdateInput. Applied differs from the
// requested value when it was snapped to the input's step; Affected is empty
// when nothing changed.
type UpdateResult struct {
	Applied  float64
	Adjusted bool
	Affected []string
}

type Option func(*Provider)

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithManuals supplies the closures that formulas reference by name.
func WithManuals(m map[string]formula.ManualFunc) Option {
	return func(p *Provider) { p.manuals = m }
}

// Provider holds the state of one session: the variables, the bound formulas
// and the subscribers waiting for changes. It is not safe for concurrent use.
type Provider struct {
	cfg     formula.Config
	reg     *registry.Registry
	engine  *compute.Engine
	graph   *graph.Graph
	gen     *viz.Generator
	vizIDs  []string
	vizByID map[string]formula.VisualizationSpec

	subs    map[int]func(Change)
	subIDs  []int
	nextSub int
	closed  bool

	log     *slog.Logger
	metrics *metrics.Metrics
	manuals map[string]formula.ManualFunc
}

// New validates cfg and settles every dependent variable. All configuration
// problems are reported together in a *formula.ConfigurationError.
func New(cfg formula.Config, opts ...Option) (*Provider, error) {
	p := &Provider{
		cfg:     cfg,
		reg:     registry.New(),
		vizByID: make(map[string]formula.VisualizationSpec),
		subs:    make(map[int]func(Change)),
		log:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.engine = compute.NewEngine(compute.WithMetrics(p.metrics))

	ce := &formula.ConfigurationError{}
	p.registerVariables(ce)
	p.registerFormulas(ce)
	p.buildGraph(ce)
	p.registerVisualizations(ce)
	if err := ce.Err(); err != nil {
		return nil, err
	}

	p.gen = viz.NewGenerator(p.graph, p.engine, p.reg.Snapshot, p.metrics)
	p.settle()
	return p, nil
}

func (p *Provider) registerVariables(ce *formula.ConfigurationError) {
	if len(p.cfg.Variables) == 0 {
		ce.Add(nil, "no variables declared")
	}
	for _, key := range slices.Sorted(maps.Keys(p.cfg.Variables)) {
		spec := p.cfg.Variables[key]
		if key == "" {
			ce.Add(nil, "variable with empty key")
			continue
		}

		switch spec.Type {
		case formula.Input:
			if spec.Range != nil && len(spec.Range) != 2 {
				ce.Add(nil, "variable %q: range needs exactly [min, max]", key)
				continue
			}
			if len(spec.Range) == 2 && spec.Range[0] > spec.Range[1] {
				ce.Add(nil, "variable %q: min %g above max %g", key, spec.Range[0], spec.Range[1])
				continue
			}
			if spec.Step < 0 {
				ce.Add(nil, "variable %q: step %g is negative", key, spec.Step)
				continue
			}
		case formula.Dependent:
		default:
			ce.Add(nil, "variable %q: unknown type %q", key, spec.Type)
			continue
		}
		if spec.Precision != nil && *spec.Precision < 0 {
			ce.Add(nil, "variable %q: precision %d is negative", key, *spec.Precision)
			continue
		}

		if err := p.reg.Register(key, spec); err != nil {
			ce.Add(err, "variable %q", key)
			continue
		}
		if spec.Type == formula.Input && spec.Value != nil {
			applied, adjusted, err := p.reg.SetInput(key, *spec.Value)
			switch {
			case err != nil:
				ce.Add(err, "variable %q: initial value", key)
			case adjusted:
				p.log.Debug("initial value aligned to step", "var", key, "requested", *spec.Value, "applied", applied)
			}
		}
	}
}

func (p *Provider) registerFormulas(ce *formula.ConfigurationError) {
	mode := p.cfg.Computation.Engine
	if mode == "" {
		mode = formula.ModeExpression
	}
	if !mode.Valid() {
		ce.Add(nil, "computation engine %q is not %q or %q", mode, formula.ModeExpression, formula.ModeManual)
		return
	}

	for i, spec := range p.cfg.Formulas {
		if spec.Func == nil && spec.Manual != "" {
			fn, ok := p.manuals[spec.Manual]
			switch {
			case ok:
				spec.Func = fn
			case spec.Engine == formula.ModeManual || (spec.Engine == "" && mode == formula.ModeManual):
				ce.Add(nil, "formula %q: manual function %q is not registered", spec.ID, spec.Manual)
				continue
			}
		}

		if err := p.engine.Register(spec, mode, p.reg.Has); err != nil {
			ce.Add(err, "formulas[%d]", i)
			continue
		}

		s, _ := p.engine.Strategy(spec.ID)
		if v, err := p.reg.Get(s.Target()); err == nil && v.IsInput() {
			ce.Add(fmt.Errorf("%w: %s", formula.ErrNotAnInput, s.Target()), "formula %q writes an input", spec.ID)
		}
	}
}

func (p *Provider) buildGraph(ce *formula.ConfigurationError) {
	g, err := graph.New(p.engine.Nodes())
	if err != nil {
		ce.Add(err, "formulas")
		return
	}
	if _, err := g.Order(); err != nil {
		ce.Add(err, "formulas")
		return
	}
	p.graph = g

	for _, v := range p.reg.Variables() {
		if _, ok := g.Writer(v.Key); !ok && !v.IsInput() {
			p.log.Warn("dependent variable has no formula", "var", v.Key)
		}
	}
}

func (p *Provider) registerVisualizations(ce *formula.ConfigurationError) {
	for i, spec := range p.cfg.Visualizations {
		id := p.cfg.VisualizationID(i)
		if _, dup := p.vizByID[id]; dup {
			ce.Add(nil, "visualization %q declared twice", id)
			continue
		}
		if spec.Type == "" {
			spec.Type = formula.Plot2D
		}
		if spec.Type != formula.Plot2D {
			ce.Add(nil, "visualization %q: unsupported type %q", id, spec.Type)
			continue
		}

		ok := true
		for _, key := range p.vizVars(spec) {
			if !p.reg.Has(key) {
				ce.Add(fmt.Errorf("%w: %s", formula.ErrUnknownVariable, key), "visualization %q", id)
				ok = false
			}
		}
		if !ok {
			continue
		}

		x, _ := p.reg.Get(spec.XAxisVar)
		if !x.IsInput() {
			ce.Add(nil, "visualization %q: x-axis variable %q is not an input", id, x.Key)
			continue
		}
		if _, err := viz.DomainSize(x); err != nil {
			ce.Add(err, "visualization %q", id)
			continue
		}

		spec.ID = id
		p.vizByID[id] = spec
		p.vizIDs = append(p.vizIDs, id)
	}
}

func (p *Provider) vizVars(spec formula.VisualizationSpec) []string {
	keys := []string{spec.XAxisVar, spec.YAxisVar}
	for i := range spec.Lines {
		keys = append(keys, spec.LineVar(i))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// settle evaluates every formula once in dependency order. A formula that
// cannot be evaluated yet leaves its target without a value.
func (p *Provider) settle() {
	order, _ := p.graph.Order()
	snap := p.reg.Snapshot()
	var targets []string
	for _, id := range order {
		node, _ := p.graph.Node(id)
		v, err := p.engine.Evaluate(id, snap)
		if err != nil {
			p.log.Warn("initial evaluation failed", "formula", id, "error", err)
			continue
		}
		snap = snap.With(node.Writes, v)
		targets = append(targets, node.Writes)
	}
	_ = p.reg.Commit(snap, targets)
	p.log.Debug("provider initialized",
		"name", p.cfg.Name,
		"variables", len(p.cfg.Variables),
		"formulas", len(order),
		"visualizations", len(p.vizIDs))
}

func (p *Provider) GetVariable(key string) (formula.Variable, error) {
	if p.closed {
		return formula.Variable{}, formula.ErrClosed
	}
	return p.reg.Get(key)
}

// Variables returns every variable sorted by key, or nothing after Teardown.
func (p *Provider) Variables() []formula.Variable {
	if p.closed {
		return nil
	}
	vars := p.reg.Variables()
	slices.SortFunc(vars, func(a, b formula.Variable) int { return strings.Compare(a.Key, b.Key) })
	return vars
}

// Snapshot returns a copy of the current variable state. After Teardown the
// snapshot is empty.
func (p *Provider) Snapshot() formula.Snapshot {
	if p.closed {
		return formula.Snapshot{}
	}
	return p.reg.Snapshot()
}

// Inputs returns the keys of the input variables sorted by key, or nothing
// after Teardown.
func (p *Provider) Inputs() []string {
	if p.closed {
		return nil
	}
	return slices.Sorted(slices.Values(p.reg.Inputs()))
}

// UpdateInput validates value, recomputes the formulas downstream of key and
// commits the result. Nothing is written when validation or any evaluation
// fails. Subscribers are notified after the commit.
func (p *Provider) UpdateInput(key string, value float64) (UpdateResult, error) {
	if p.closed {
		return UpdateResult{}, formula.ErrClosed
	}
	start := time.Now()

	applied, adjusted, err := p.reg.Validate(key, value)
	if err != nil {
		p.metrics.ObserveUpdate(metrics.ResultRejected, 0)
		return UpdateResult{}, err
	}
	res := UpdateResult{Applied: applied, Adjusted: adjusted}
	if adjusted {
		p.log.Debug("input aligned to step", "var", key, "requested", value, "applied", applied)
	}

	prev := p.reg.Snapshot()
	if cur, ok := prev.Value(key); ok && cur == applied {
		p.metrics.ObserveUpdate(metrics.ResultUnchanged, 0)
		return res, nil
	}

	next := prev.With(key, applied)
	keys := []string{key}
	for _, id := range p.graph.Affected(key) {
		node, _ := p.graph.Node(id)
		v, err := p.engine.Evaluate(id, next)
		if err != nil {
			p.metrics.ObserveUpdate(metrics.ResultFailed, time.Since(start))
			p.log.Warn("recompute failed", "var", key, "value", applied, "formula", id, "error", err)
			return UpdateResult{}, err
		}
		next = next.With(node.Writes, v)
		keys = append(keys, node.Writes)
	}

	changed := next.Diff(prev, keys)
	if err := p.reg.Commit(next, changed); err != nil {
		return UpdateResult{}, err
	}
	res.Affected = changed
	p.metrics.ObserveUpdate(metrics.ResultChanged, time.Since(start))
	p.log.Debug("input updated", "var", key, "value", applied, "changed", changed)

	p.notify(Change{Keys: slices.Clone(changed)})
	return res, nil
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. Subscribing after Teardown returns a no-op.
func (p *Provider) Subscribe(fn func(Change)) (unsubscribe func()) {
	if p.closed || fn == nil {
		return func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subIDs = append(p.subIDs, id)

	return func() {
		if _, ok := p.subs[id]; !ok {
			return
		}
		delete(p.subs, id)
		p.subIDs = slices.DeleteFunc(p.subIDs, func(s int) bool { return s == id })
	}
}

// notify walks a copy of the subscriber list so callbacks may subscribe,
// unsubscribe or update inputs themselves.
func (p *Provider) notify(c Change) {
	for _, id := range slices.Clone(p.subIDs) {
		fn, ok := p.subs[id]
		if !ok {
			continue
		}
		fn(c)
	}
}

// Sample sweeps the visualization with the given id.
func (p *Provider) Sample(id string) ([]viz.Series, error) {
	if p.closed {
		return nil, formula.ErrClosed
	}
	spec, ok := p.vizByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVisualization, id)
	}
	return p.gen.Sample(id, spec)
}

// Visualization returns the spec with the given id, its ID filled in.
func (p *Provider) Visualization(id string) (formula.VisualizationSpec, bool) {
	if p.closed {
		return formula.VisualizationSpec{}, false
	}
	spec, ok := p.vizByID[id]
	return spec, ok
}

// Visualizations returns every visualization in declaration order, or
// nothing after Teardown.
func (p *Provider) Visualizations() []formula.VisualizationSpec {
	if p.closed {
		return nil
	}
	out := make([]formula.VisualizationSpec, 0, len(p.vizIDs))
	for _, id := range p.vizIDs {
		out = append(out, p.vizByID[id])
	}
	return out
}

// Formulas returns the formula specs in declaration order, or nothing after
// Teardown.
func (p *Provider) Formulas() []formula.FormulaSpec {
	if p.closed {
		return nil
	}
	out := make([]formula.FormulaSpec, 0, len(p.cfg.Formulas))
	for _, id := range p.engine.IDs() {
		spec, _ := p.engine.Spec(id)
		out = append(out, spec)
	}
	return out
}

// Strategy returns the computation strategy bound to a formula.
func (p *Provider) Strategy(id string) (compute.Strategy, bool) {
	if p.closed {
		return nil, false
	}
	return p.engine.Strategy(id)
}

func (p *Provider) Graph() *graph.Graph { return p.graph }

func (p *Provider) Config() formula.Config { return p.cfg }

// Teardown drops every subscriber. Later calls fail with formula.ErrClosed.
func (p *Provider) Teardown() {
	if p.closed {
		return
	}
	p.closed = true
	clear(p.subs)
	p.subIDs = nil
	p.log.Debug("provider torn down", "name", p.cfg.Name)
}
