package graph

import (
	"fmt"
	"strings"
)

// Overlay marks nodes of a run on a rendered graph.
type Overlay struct {
	Visited []string
	Current string
}

// Mermaid renders the graph as a Mermaid flowchart. Start and Init nodes
// are circles, nodes that request input are parallelograms and connectors
// with a custom condition carry its label.
func (g *Graph) Mermaid(overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, n := range g.Nodes() {
		opener, closer := "[", "]"
		switch {
		case n.Type() == TypeStart || n.Type() == TypeInit:
			opener, closer = "((", "))"
		case isPreparer(n):
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", mermaidID(n.UID), opener, mermaidText(n.Label), closer)
	}
	for _, c := range g.Connectors() {
		arrow := "-->"
		if label := c.ConditionLabel(); label != nil {
			arrow = fmt.Sprintf("-- \"%s\" -->", mermaidText(*label))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", mermaidID(c.Prev.UID), arrow, mermaidID(c.Next.UID))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		seen := make(map[string]bool)
		for _, uid := range overlay.Visited {
			if _, ok := g.Node(uid); !ok || seen[uid] {
				continue
			}
			seen[uid] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", mermaidID(uid))
		}
		if _, ok := g.Node(overlay.Current); ok {
			fmt.Fprintf(&sb, "    class %s current;\n", mermaidID(overlay.Current))
		}
	}
	return sb.String()
}

func isPreparer(n *Node) bool {
	_, ok := n.Behavior().(Preparer)
	return ok
}

// mermaidID prefixes the uid so ids never start with a digit.
func mermaidID(uid string) string {
	return "n_" + strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '/', '\\', ' ':
			return '_'
		}
		return r
	}, uid)
}

func mermaidText(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
