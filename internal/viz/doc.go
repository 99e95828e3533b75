// Package viz turns visualization specs into data and terminal output.
//
// A [Generator] sweeps the x-axis variable of a 2-D plot across its declared
// range and records the plotted variables at each sample. The sweep never
// touches the live variable store: each x is placed in a private copy of the
// current snapshot and only the formulas downstream of the x variable are
// re-evaluated.
//
// [Plot] renders sampled series with asciigraph; the styles in this package
// are shared with the interactive session in internal/tui.
package viz
