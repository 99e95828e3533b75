package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/san-kum/formulize/internal/config"
	"github.com/san-kum/formulize/internal/formula"
	"github.com/san-kum/formulize/internal/logging"
	"github.com/san-kum/formulize/internal/metrics"
	"github.com/san-kum/formulize/internal/provider"
)

var (
	configFile  string
	preset      string
	logLevel    string
	showMetrics bool

	sets []string

	format  string
	outFile string
	rawMD   bool

	promReg = prometheus.NewRegistry()
	engineM = metrics.New(promReg)
)

// main registers the formulize commands and runs the interactive session
// when no subcommand is given. It exits with status 1 on any command error.
func main() {
	rootCmd := &cobra.Command{
		Use:          "formulize",
		Short:        "reactive formula evaluation and plotting",
		SilenceUsage: true,
		RunE:         runTUI,
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if showMetrics {
			return dumpMetrics(cmd.ErrOrStderr(), promReg)
		}
		return nil
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVarP(&preset, "preset", "p", config.DefaultPreset, "built-in configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "print engine metrics to stderr after the command")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in configurations",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "check a configuration and print its evaluation order",
		Args:  cobra.NoArgs,
		RunE:  validate,
	}

	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "render the configuration as a document",
		Args:  cobra.NoArgs,
		RunE:  describe,
	}
	describeCmd.Flags().BoolVar(&rawMD, "raw", false, "print markdown without rendering")

	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "set inputs and print every variable",
		Args:  cobra.NoArgs,
		RunE:  eval,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [visualization]",
		Short: "plot a visualization in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  plot,
	}

	sampleCmd := &cobra.Command{
		Use:   "sample [visualization]",
		Short: "export the sampled series of a visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sample,
	}
	sampleCmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv, json, svg)")
	sampleCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "print the dependency graph as mermaid",
		Args:  cobra.NoArgs,
		RunE:  graph,
	}

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "adjust inputs interactively",
		Args:  cobra.NoArgs,
		RunE:  runTUI,
	}

	for _, c := range []*cobra.Command{evalCmd, plotCmd, sampleCmd, graphCmd, tuiCmd} {
		c.Flags().StringArrayVarP(&sets, "set", "s", nil, "set an input before running, as key=value (repeatable)")
	}

	rootCmd.AddCommand(presetsCmd, validateCmd, describeCmd, evalCmd, plotCmd, sampleCmd, graphCmd, tuiCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (formula.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	cfg, ok := config.GetPreset(preset)
	if !ok {
		return formula.Config{}, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}
	return cfg, nil
}

func openProvider() (*provider.Provider, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return provider.New(cfg,
		provider.WithLogger(logging.New(level)),
		provider.WithMetrics(engineM),
		provider.WithManuals(config.Manuals),
	)
}

// applySets feeds every --set flag through UpdateInput and returns the union
// of the changed keys. Step alignments are reported on the command's stderr.
func applySets(cmd *cobra.Command, p *provider.Provider) ([]string, error) {
	var changed []string
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: want key=value", s)
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("--set %q: %w", s, err)
		}
		key = strings.TrimSpace(key)
		res, err := p.UpdateInput(key, val)
		if err != nil {
			return nil, fmt.Errorf("--set %q: %w", s, err)
		}
		if res.Adjusted {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %g aligned to %g\n", key, val, res.Applied)
		}
		for _, k := range res.Affected {
			if !slices.Contains(changed, k) {
				changed = append(changed, k)
			}
		}
	}
	return changed, nil
}
