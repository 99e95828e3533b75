package provider_test

import (
	"bytes"
	"errors"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/formulize/internal/formula"
	"github.com/san-kum/formulize/internal/logging"
	"github.com/san-kum/formulize/internal/metrics"
	"github.com/san-kum/formulize/internal/provider"
	"github.com/san-kum/formulize/internal/viz"
)

func kineticManual(vars formula.Snapshot) (float64, error) {
	m := vars.ValueOr("m", 0)
	v := vars.ValueOr("v", 0)
	return 0.5 * m * math.Pow(v, 2), nil
}

func kineticConfig(mode formula.Mode) formula.Config {
	return formula.Config{
		Name: "kinetic-energy",
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
			Type: formula.Plot2D, XAxisVar: "v", YAxisVar: "K", Height: 400, Width: 400,
			Lines: []formula.LineSpec{{Name: "Kinetic Energy Formula"}},
		}},
		Computation: formula.Computation{Engine: mode},
		FontSize:    1,
	}
}

var manuals = map[string]formula.ManualFunc{"kinetic-energy": kineticManual}

func value(p *provider.Provider, key string) float64 {
	v, err := p.GetVariable(key)
	Expect(err).NotTo(HaveOccurred())
	Expect(v.HasValue).To(BeTrue(), "variable %s has no value", key)
	return v.Current
}

var _ = Describe("Provider", func() {
	var (
		p   *provider.Provider
		m   *metrics.Metrics
		err error
	)

	for _, mode := range []formula.Mode{formula.ModeExpression, formula.ModeManual} {
		Context("with the "+string(mode)+" engine", func() {
			BeforeEach(func() {
				m = metrics.New(nil)
				p, err = provider.New(kineticConfig(mode), provider.WithManuals(manuals), provider.WithMetrics(m))
				Expect(err).NotTo(HaveOccurred())
			})

			AfterEach(func() {
				p.Teardown()
			})

			It("settles dependents at init", func() {
				Expect(value(p, "K")).To(BeNumerically("~", 2.0, 1e-12))
			})

			It("binds the configured strategy", func() {
				s, ok := p.Strategy("kinetic-energy")
				Expect(ok).To(BeTrue())
				Expect(s.Mode()).To(Equal(mode))
				Expect(s.Target()).To(Equal("K"))
			})

			It("computes K = 9.00 after m=2 and v=3", func() {
				_, err := p.UpdateInput("m", 2)
				Expect(err).NotTo(HaveOccurred())
				res, err := p.UpdateInput("v", 3)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Affected).To(Equal([]string{"v", "K"}))

				k, err := p.GetVariable("K")
				Expect(err).NotTo(HaveOccurred())
				Expect(k.Current).To(BeNumerically("~", 9.0, 1e-12))
				Expect(k.Format()).To(Equal("9.00"))
			})

			It("reports an empty change set for a repeated update", func() {
				first, err := p.UpdateInput("m", 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(first.Affected).To(ConsistOf("m", "K"))
				before := p.Snapshot()

				second, err := p.UpdateInput("m", 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(second.Affected).To(BeEmpty())
				Expect(p.Snapshot().Diff(before, before.Keys())).To(BeEmpty())
			})

			It("rejects out-of-range input and keeps prior values", func() {
				_, err := p.UpdateInput("m", 15)
				Expect(err).To(MatchError(formula.ErrOutOfRange))

				var rangeErr *formula.OutOfRangeError
				Expect(errors.As(err, &rangeErr)).To(BeTrue())
				Expect(rangeErr.Min).To(Equal(0.1))
				Expect(rangeErr.Max).To(Equal(10.0))

				Expect(value(p, "m")).To(Equal(1.0))
				Expect(value(p, "K")).To(BeNumerically("~", 2.0, 1e-12))
				Expect(testutil.ToFloat64(m.Updates.WithLabelValues(metrics.ResultRejected))).To(Equal(1.0))
			})

			It("snaps to the input step and says so", func() {
				res, err := p.UpdateInput("m", 2.4)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Applied).To(Equal(2.0))
				Expect(res.Adjusted).To(BeTrue())
				Expect(value(p, "m")).To(Equal(2.0))
			})

			It("refuses direct writes to dependents and unknown keys", func() {
				_, err := p.UpdateInput("K", 1)
				Expect(err).To(MatchError(formula.ErrNotAnInput))
				_, err = p.UpdateInput("q", 1)
				Expect(err).To(MatchError(formula.ErrUnknownVariable))
				_, err = p.GetVariable("q")
				Expect(err).To(MatchError(formula.ErrUnknownVariable))
			})

			It("samples the full x domain ending exactly at max", func() {
				vizs := p.Visualizations()
				Expect(vizs).To(HaveLen(1))
				Expect(vizs[0].ID).To(Equal("plot2d-0"))

				series, err := p.Sample("plot2d-0")
				Expect(err).NotTo(HaveOccurred())
				Expect(series).To(HaveLen(1))
				Expect(series[0].Name).To(Equal("Kinetic Energy Formula"))

				pts := series[0].Points
				Expect(pts).To(HaveLen(int(math.Floor((100-0.1)/1)) + 1))
				Expect(pts[0].X).To(Equal(0.1))
				Expect(pts[len(pts)-1].X).To(Equal(100.0))
				Expect(pts[len(pts)-1].Y).To(BeNumerically("~", 0.5*1*100*100, 1e-9))

				Expect(value(p, "v")).To(Equal(2.0))
				Expect(value(p, "K")).To(BeNumerically("~", 2.0, 1e-12))
			})

			It("resamples against the current inputs", func() {
				before, err := p.Sample("plot2d-0")
				Expect(err).NotTo(HaveOccurred())
				again, err := p.Sample("plot2d-0")
				Expect(err).NotTo(HaveOccurred())
				Expect(again).To(Equal(before))

				_, err = p.UpdateInput("m", 2)
				Expect(err).NotTo(HaveOccurred())
				after, err := p.Sample("plot2d-0")
				Expect(err).NotTo(HaveOccurred())
				Expect(after[0].Points[10].Y).To(BeNumerically("~", 2*before[0].Points[10].Y, 1e-9))
			})

			It("fails for unknown visualizations", func() {
				_, err := p.Sample("plot3d-7")
				Expect(err).To(MatchError(provider.ErrUnknownVisualization))
			})
		})
	}

	Describe("subscribers", func() {
		BeforeEach(func() {
			p, err = provider.New(kineticConfig(formula.ModeExpression))
			Expect(err).NotTo(HaveOccurred())
		})

		It("are notified after the commit with the changed keys", func() {
			var seen []provider.Change
			var kAtNotify float64
			p.Subscribe(func(c provider.Change) {
				seen = append(seen, c)
				kAtNotify = value(p, "K")
			})

			_, err := p.UpdateInput("v", 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(HaveLen(1))
			Expect(seen[0].Keys).To(Equal([]string{"v", "K"}))
			Expect(kAtNotify).To(BeNumerically("~", 8.0, 1e-12))
		})

		It("are not notified when nothing changed or the update failed", func() {
			calls := 0
			p.Subscribe(func(provider.Change) { calls++ })

			_, _ = p.UpdateInput("v", 2)
			_, _ = p.UpdateInput("v", 1000)
			Expect(calls).To(BeZero())
		})

		It("may call back into the provider", func() {
			var order []string
			p.Subscribe(func(c provider.Change) {
				order = append(order, c.Keys[0])
				if c.Keys[0] == "v" {
					_, err := p.UpdateInput("m", 3)
					Expect(err).NotTo(HaveOccurred())
				}
			})

			_, err := p.UpdateInput("v", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(order).To(Equal([]string{"v", "m"}))
			Expect(value(p, "K")).To(BeNumerically("~", 0.5*3*9, 1e-12))
		})

		It("stop receiving after unsubscribe, even mid-notification", func() {
			var second int
			var unsubSecond func()
			p.Subscribe(func(provider.Change) { unsubSecond() })
			unsubSecond = p.Subscribe(func(provider.Change) { second++ })

			_, err := p.UpdateInput("v", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeZero())

			unsubSecond()
		})

		It("are dropped by teardown", func() {
			calls := 0
			p.Subscribe(func(provider.Change) { calls++ })
			p.Teardown()

			_, err := p.UpdateInput("v", 5)
			Expect(err).To(MatchError(formula.ErrClosed))
			_, err = p.Sample("plot2d-0")
			Expect(err).To(MatchError(formula.ErrClosed))
			_, err = p.GetVariable("v")
			Expect(err).To(MatchError(formula.ErrClosed))
			Expect(calls).To(BeZero())

			p.Subscribe(func(provider.Change) { calls++ })()
			p.Teardown()
		})

		It("empty every listing after teardown", func() {
			Expect(p.Variables()).NotTo(BeEmpty())
			p.Teardown()

			Expect(p.Variables()).To(BeEmpty())
			Expect(p.Inputs()).To(BeEmpty())
			Expect(p.Formulas()).To(BeEmpty())
			Expect(p.Visualizations()).To(BeEmpty())
			Expect(p.Snapshot().Len()).To(BeZero())
			_, ok := p.Visualization("plot2d-0")
			Expect(ok).To(BeFalse())
			_, ok = p.Strategy("kinetic-energy")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("initial values", func() {
		It("logs an initial value aligned to the step grid", func() {
			var buf bytes.Buffer
			cfg := kineticConfig(formula.ModeExpression)
			v := cfg.Variables["v"]
			v.Value = formula.Float(2.6)
			cfg.Variables["v"] = v

			p, err := provider.New(cfg, provider.WithLogger(logging.NewWriter(&buf, slog.LevelDebug)))
			Expect(err).NotTo(HaveOccurred())
			Expect(value(p, "v")).To(Equal(3.0))
			Expect(buf.String()).To(ContainSubstring("initial value aligned to step"))
			Expect(buf.String()).To(ContainSubstring("var=v"))
		})
	})

	Describe("evaluation failures", func() {
		BeforeEach(func() {
			p, err = provider.New(formula.Config{
				Variables: map[string]formula.VariableSpec{
					"a": {Type: formula.Input, Value: formula.Float(6), Range: []float64{0, 10}, Step: 1},
					"b": {Type: formula.Input, Value: formula.Float(2), Range: []float64{0, 10}, Step: 1},
					"r": {Type: formula.Dependent},
					"s": {Type: formula.Dependent},
				},
				Formulas: []formula.FormulaSpec{
					{ID: "ratio", Expression: "{r} = {a} / {b}"},
					{ID: "scaled", Expression: "{s} = {r} * 10"},
				},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("leave the input and every dependent at their last good values", func() {
			calls := 0
			p.Subscribe(func(provider.Change) { calls++ })

			_, err := p.UpdateInput("b", 0)
			Expect(err).To(MatchError(formula.ErrEvaluation))

			var evalErr *formula.EvaluationError
			Expect(errors.As(err, &evalErr)).To(BeTrue())
			Expect(evalErr.FormulaID).To(Equal("ratio"))

			Expect(value(p, "b")).To(Equal(2.0))
			Expect(value(p, "r")).To(Equal(3.0))
			Expect(value(p, "s")).To(Equal(30.0))
			Expect(calls).To(BeZero())
		})
	})

	Describe("recomputation scope", func() {
		It("evaluates only formulas downstream of the changed input", func() {
			calls := map[string]int{}
			counting := func(id string, f func(formula.Snapshot) float64) formula.ManualFunc {
				return func(vars formula.Snapshot) (float64, error) {
					calls[id]++
					return f(vars), nil
				}
			}

			p, err = provider.New(formula.Config{
				Variables: map[string]formula.VariableSpec{
					"m": {Type: formula.Input, Value: formula.Float(2), Range: []float64{0, 10}, Step: 1},
					"v": {Type: formula.Input, Value: formula.Float(3), Range: []float64{0, 10}, Step: 1},
					"h": {Type: formula.Input, Value: formula.Float(1), Range: []float64{0, 10}, Step: 1},
					"p": {Type: formula.Dependent},
					"K": {Type: formula.Dependent},
					"U": {Type: formula.Dependent},
				},
				Formulas: []formula.FormulaSpec{
					{ID: "kinetic", Target: "K", Reads: []string{"p", "m"}, Func: counting("kinetic", func(s formula.Snapshot) float64 {
						return s.ValueOr("p", 0) * s.ValueOr("p", 0) / (2 * s.ValueOr("m", 1))
					})},
					{ID: "momentum", Target: "p", Reads: []string{"m", "v"}, Func: counting("momentum", func(s formula.Snapshot) float64 {
						return s.ValueOr("m", 0) * s.ValueOr("v", 0)
					})},
					{ID: "potential", Target: "U", Reads: []string{"m", "h"}, Func: counting("potential", func(s formula.Snapshot) float64 {
						return s.ValueOr("m", 0) * 9.81 * s.ValueOr("h", 0)
					})},
				},
				Computation: formula.Computation{Engine: formula.ModeManual},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(value(p, "K")).To(BeNumerically("~", 9.0, 1e-12))
			Expect(calls).To(Equal(map[string]int{"kinetic": 1, "momentum": 1, "potential": 1}))

			res, err := p.UpdateInput("v", 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Affected).To(Equal([]string{"v", "p", "K"}))
			Expect(calls).To(Equal(map[string]int{"kinetic": 2, "momentum": 2, "potential": 1}))

			_, err = p.UpdateInput("h", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(Equal(map[string]int{"kinetic": 2, "momentum": 2, "potential": 2}))
		})
	})

	Describe("sweep bounds", func() {
		doubling := func(hi, step float64) formula.Config {
			return formula.Config{
				Variables: map[string]formula.VariableSpec{
					"x": {Type: formula.Input, Value: formula.Float(0), Range: []float64{0, hi}, Step: step},
					"y": {Type: formula.Dependent},
				},
				Formulas:       []formula.FormulaSpec{{ID: "double", Expression: "{y} = 2 * {x}"}},
				Visualizations: []formula.VisualizationSpec{{XAxisVar: "x", YAxisVar: "y"}},
			}
		}

		It("rejects a domain too large to sample at init", func() {
			p, err := provider.New(doubling(1e300, 1))
			Expect(p).To(BeNil())
			Expect(err).To(MatchError(formula.ErrConfiguration))
			Expect(err.Error()).To(ContainSubstring("exceeds"))
		})

		It("samples a domain at the cap", func() {
			p, err := provider.New(doubling(viz.MaxSamples-1, 1))
			Expect(err).NotTo(HaveOccurred())

			series, err := p.Sample("plot2d-0")
			Expect(err).NotTo(HaveOccurred())
			Expect(series[0].Points).To(HaveLen(viz.MaxSamples))
			last := series[0].Points[viz.MaxSamples-1]
			Expect(last.Y).To(Equal(2 * float64(viz.MaxSamples-1)))
		})
	})

	Describe("configuration errors", func() {
		base := func() formula.Config { return kineticConfig(formula.ModeExpression) }

		DescribeTable("fail init",
			func(mutate func(*formula.Config), target error) {
				cfg := base()
				mutate(&cfg)
				p, err := provider.New(cfg, provider.WithManuals(manuals))
				Expect(p).To(BeNil())
				Expect(err).To(MatchError(formula.ErrConfiguration))
				Expect(err).To(MatchError(target))

				var ce *formula.ConfigurationError
				Expect(errors.As(err, &ce)).To(BeTrue())
				Expect(ce.Problems).NotTo(BeEmpty())
			},
			Entry("direct cycle", func(c *formula.Config) {
				c.Formulas = append(c.Formulas, formula.FormulaSpec{ID: "grow", Expression: "{K} = {K} + 1"})
				c.Formulas = c.Formulas[1:]
			}, formula.ErrCyclicDependency),
			Entry("transitive cycle", func(c *formula.Config) {
				c.Variables["E"] = formula.VariableSpec{Type: formula.Dependent}
				c.Formulas = []formula.FormulaSpec{
					{ID: "a", Expression: "{K} = {E} * {m}"},
					{ID: "b", Expression: "{E} = {K} / {v}"},
				}
			}, formula.ErrCyclicDependency),
			Entry("x axis without range", func(c *formula.Config) {
				v := c.Variables["v"]
				v.Range = nil
				c.Variables["v"] = v
			}, formula.ErrConfiguration),
			Entry("x axis without step", func(c *formula.Config) {
				v := c.Variables["v"]
				v.Step = 0
				c.Variables["v"] = v
			}, formula.ErrConfiguration),
			Entry("x axis too wide to sweep", func(c *formula.Config) {
				v := c.Variables["v"]
				v.Range = []float64{0.1, 1e300}
				c.Variables["v"] = v
			}, formula.ErrConfiguration),
			Entry("x axis step too fine to sweep", func(c *formula.Config) {
				v := c.Variables["v"]
				v.Step = 1e-9
				c.Variables["v"] = v
			}, formula.ErrConfiguration),
			Entry("dangling expression reference", func(c *formula.Config) {
				c.Formulas[0].Expression = "{K} = 0.5 * {mass} * {v}^2"
			}, formula.ErrUnknownVariable),
			Entry("malformed expression", func(c *formula.Config) {
				c.Formulas[0].Expression = "{K} = 0.5 * ({m} * {v}"
			}, formula.ErrParse),
			Entry("unrecognized token", func(c *formula.Config) {
				c.Formulas[0].Expression = "{K} = 0.5 # {m}"
			}, formula.ErrParse),
			Entry("dangling visualization variable", func(c *formula.Config) {
				c.Visualizations[0].YAxisVar = "E"
			}, formula.ErrUnknownVariable),
			Entry("duplicate formula id", func(c *formula.Config) {
				c.Formulas = append(c.Formulas, c.Formulas[0])
			}, formula.ErrConfiguration),
			Entry("two formulas writing one variable", func(c *formula.Config) {
				c.Formulas = append(c.Formulas, formula.FormulaSpec{ID: "other", Expression: "{K} = {m}"})
			}, formula.ErrConfiguration),
			Entry("formula writing an input", func(c *formula.Config) {
				c.Formulas = append(c.Formulas, formula.FormulaSpec{ID: "speed", Expression: "{v} = {m} * 2"})
			}, formula.ErrNotAnInput),
			Entry("initial value out of range", func(c *formula.Config) {
				m := c.Variables["m"]
				m.Value = formula.Float(50)
				c.Variables["m"] = m
			}, formula.ErrOutOfRange),
			Entry("unknown engine", func(c *formula.Config) {
				c.Computation.Engine = "symbolic"
			}, formula.ErrConfiguration),
			Entry("unregistered manual function", func(c *formula.Config) {
				c.Computation.Engine = formula.ModeManual
				c.Formulas[0].Manual = "nope"
			}, formula.ErrConfiguration),
		)

		It("reports every problem at once", func() {
			cfg := base()
			cfg.Visualizations[0].XAxisVar = "t"
			cfg.Formulas[0].Expression = "{K} = {x}"

			_, err := provider.New(cfg)
			var ce *formula.ConfigurationError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(len(ce.Problems)).To(BeNumerically(">=", 2))
			Expect(err.Error()).To(ContainSubstring("problems"))
		})

		It("names the cycle", func() {
			cfg := base()
			cfg.Formulas[0].Expression = "{K} = {K} * {m}"

			_, err := provider.New(cfg)
			var cyc *formula.CyclicDependencyError
			Expect(errors.As(err, &cyc)).To(BeTrue())
			Expect(cyc.Cycle).To(Equal([]string{"kinetic-energy", "kinetic-energy"}))
		})
	})

	It("overrides the configured mode per formula", func() {
		cfg := kineticConfig(formula.ModeManual)
		cfg.Formulas[0].Engine = formula.ModeExpression
		p, err := provider.New(cfg)
		Expect(err).NotTo(HaveOccurred())

		s, _ := p.Strategy("kinetic-energy")
		Expect(s.Mode()).To(Equal(formula.ModeExpression))
	})

	It("exposes the formula graph", func() {
		p, err := provider.New(kineticConfig(formula.ModeExpression))
		Expect(err).NotTo(HaveOccurred())

		order, err := p.Graph().Order()
		Expect(err).NotTo(HaveOccurred())
		Expect(order).To(Equal([]string{"kinetic-energy"}))
		Expect(p.Formulas()).To(HaveLen(1))
		Expect(p.Inputs()).To(Equal([]string{"m", "v"}))
	})
})
