package graph

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/san-kum/formulize/internal/formula"
)

// Overlay marks variables whose values changed in the last update.
type Overlay struct {
	Changed []string
}

// Mermaid renders the variable/formula graph as a Mermaid flowchart:
// inputs are parallelograms, dependents rectangles, formulas subroutines.
func (g *Graph) Mermaid(vars []formula.Variable, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, v := range vars {
		opener, closer := "[", "]"
		if v.IsInput() {
			opener, closer = "[/", "/]"
		}
		label := v.Key
		if v.Units != "" {
			label = fmt.Sprintf("%s (%s)", v.Key, v.Units)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", varID(v.Key), opener, mermaidLabel(label), closer)
	}

	for _, i := range g.orderOrDeclared() {
		n := g.nodes[i]
		fid := formulaID(n.ID)
		fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", fid, mermaidLabel(n.ID))
		reads := slices.Clone(n.Reads)
		slices.Sort(reads)
		for _, r := range reads {
			fmt.Fprintf(&sb, "    %s --> %s\n", varID(r), fid)
		}
		if n.Writes != "" {
			fmt.Fprintf(&sb, "    %s --> %s\n", fid, varID(n.Writes))
		}
	}

	if overlay != nil && len(overlay.Changed) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef changed fill:#ffeb3b,stroke:#fbc02d,stroke-width:2px,color:#000;\n")
		for _, k := range overlay.Changed {
			fmt.Fprintf(&sb, "    class %s changed;\n", varID(k))
		}
	}

	return sb.String()
}

func (g *Graph) orderOrDeclared() []int {
	if g.order != nil {
		return g.order
	}
	idx := make([]int, len(g.nodes))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func varID(key string) string    { return "var_" + sanitizeMermaidID(key) }
func formulaID(id string) string { return "f_" + sanitizeMermaidID(id) }

// sanitizeMermaidID keeps letters, digits and underscores; anything else
// would end the node id or open a shape.
func sanitizeMermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, id)
}

// mermaidLabel makes s safe inside a quoted node label.
func mermaidLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
