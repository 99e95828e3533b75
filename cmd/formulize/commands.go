package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/san-kum/formulize/internal/config"
	"github.com/san-kum/formulize/internal/export"
	"github.com/san-kum/formulize/internal/formula"
	gr "github.com/san-kum/formulize/internal/graph"
	"github.com/san-kum/formulize/internal/provider"
	"github.com/san-kum/formulize/internal/tui"
	"github.com/san-kum/formulize/internal/viz"
)

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFORMULAS\tENGINE\tVISUALIZATIONS")
	for _, name := range config.ListPresets() {
		cfg, _ := config.GetPreset(name)
		ids := make([]string, len(cfg.Formulas))
		for i, f := range cfg.Formulas {
			ids[i] = f.ID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", name, strings.Join(ids, ","), cfg.Computation.Engine, len(cfg.Visualizations))
	}
	return w.Flush()
}

func validate(cmd *cobra.Command, args []string) error {
	p, err := openProvider()
	if err != nil {
		return err
	}
	defer p.Teardown()

	order, err := p.Graph().Order()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ok: %d variables, %d formulas, %d visualizations\n",
		len(p.Variables()), len(p.Formulas()), len(p.Visualizations()))
	fmt.Fprintf(out, "evaluation order: %s\n", strings.Join(order, " -> "))
	return nil
}

func describe(cmd *cobra.Command, args []string) error {
	p, err := openProvider()
	if err != nil {
		return err
	}
	defer p.Teardown()

	md := describeMarkdown(p)
	if rawMD {
		_, err := io.WriteString(cmd.OutOrStdout(), md)
		return err
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return err
	}
	rendered, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), rendered)
	return err
}

func describeMarkdown(p *provider.Provider) string {
	cfg := p.Config()
	var b strings.Builder

	name := cfg.Name
	if name == "" {
		name = "formulize"
	}
	fmt.Fprintf(&b, "# %s\n\n", name)
	if cfg.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", cfg.Description)
	}

	b.WriteString("## Formulas\n\n")
	for _, f := range p.Formulas() {
		s, _ := p.Strategy(f.ID)
		fmt.Fprintf(&b, "- **%s** (%s): `%s`", f.ID, s.Mode(), s.Target())
		if f.Latex != "" {
			fmt.Fprintf(&b, " $%s$", f.Latex)
		}
		if f.Expression != "" {
			fmt.Fprintf(&b, "\n  `%s`", f.Expression)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Variables\n\n| key | name | type | value | units | range | step |\n|---|---|---|---|---|---|---|\n")
	for _, v := range p.Variables() {
		rng := ""
		if lo, hi, ok := v.Bounds(); ok {
			rng = fmt.Sprintf("[%g, %g]", lo, hi)
		}
		step := ""
		if v.Step > 0 {
			step = fmt.Sprintf("%g", v.Step)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			v.Key, v.DisplayName(), v.Type, v.Format(), v.Units, rng, step)
	}

	if vizs := p.Visualizations(); len(vizs) > 0 {
		b.WriteString("\n## Visualizations\n\n")
		for _, spec := range vizs {
			fmt.Fprintf(&b, "- **%s**: %s against %s\n", spec.ID, lineVars(spec), spec.XAxisVar)
		}
	}
	return b.String()
}

func lineVars(spec formula.VisualizationSpec) string {
	n := max(len(spec.Lines), 1)
	vars := make([]string, n)
	for i := range n {
		vars[i] = spec.LineVar(i)
	}
	return strings.Join(vars, ", ")
}

func eval(cmd *cobra.Command, args []string) error {
	p, err := openProvider()
	if err != nil {
		return err
	}
	defer p.Teardown()

	if _, err := applySets(cmd, p); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tTYPE\tVALUE\tUNITS")
	for _, v := range p.Variables() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.Key, v.DisplayName(), v.Type, v.Format(), v.Units)
	}
	return w.Flush()
}

// pickVisualization returns the visualization named by args, or the first
// one when args is empty.
func pickVisualization(p *provider.Provider, args []string) (formula.VisualizationSpec, error) {
	vizs := p.Visualizations()
	if len(vizs) == 0 {
		return formula.VisualizationSpec{}, fmt.Errorf("configuration has no visualizations")
	}
	if len(args) == 0 {
		return vizs[0], nil
	}
	spec, ok := p.Visualization(args[0])
	if !ok {
		ids := make([]string, len(vizs))
		for i, v := range vizs {
			ids[i] = v.ID
		}
		return formula.VisualizationSpec{}, fmt.Errorf("unknown visualization: %s (available: %v)", args[0], ids)
	}
	return spec, nil
}

func plot(cmd *cobra.Command, args []string) error {
	p, err := openProvider()
	if err != nil {
		return err
	}
	defer p.Teardown()

	if _, err := applySets(cmd, p); err != nil {
		return err
	}
	spec, err := pickVisualization(p, args)
	if err != nil {
		return err
	}
	series, err := p.Sample(spec.ID)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), viz.Plot(series, spec))
	return nil
}

func sample(cmd *cobra.Command, args []string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	p, err := openProvider()
	if err != nil {
		return err
	}
	defer p.Teardown()

	if _, err := applySets(cmd, p); err != nil {
		return err
	}
	spec, err := pickVisualization(p, args)
	if err != nil {
		return err
	}
	series, err := p.Sample(spec.ID)
	if err != nil {
		return err
	}

	if outFile == "" {
		return export.Write(cmd.OutOrStdout(), f, spec, series)
	}
	out, err := os.Create(outFile)
	if err != nil {
		return err
	}
	if err := export.Write(out, f, spec, series); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d series to %s\n", len(series), outFile)
	return nil
}

func graph(cmd *cobra.Command, args []string) error {
	p, err := openProvider()
	if err != nil {
		return err
	}
	defer p.Teardown()

	changed, err := applySets(cmd, p)
	if err != nil {
		return err
	}
	var overlay *gr.Overlay
	if len(changed) > 0 {
		overlay = &gr.Overlay{Changed: changed}
	}
	fmt.Fprint(cmd.OutOrStdout(), p.Graph().Mermaid(p.Variables(), overlay))
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	p, err := openProvider()
	if err != nil {
		return err
	}
	defer p.Teardown()

	if _, err := applySets(cmd, p); err != nil {
		return err
	}
	return tui.Run(p)
}

// dumpMetrics prints every gathered series as name{labels} value.
func dumpMetrics(out io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(w, "%s%s\t%s\n", mf.GetName(), labels(m), metricValue(mf.GetType(), m))
		}
	}
	return w.Flush()
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		pairs = append(pairs, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func metricValue(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return fmt.Sprintf("%g", m.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%.6fs", h.GetSampleCount(), h.GetSampleSum())
	}
	return "-"
}
