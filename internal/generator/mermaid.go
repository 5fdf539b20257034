package generator

import (
	"fmt"
	"regexp"
	"strings"

	"repograph/internal/graph"
)

// MermaidGenerator draws repository graphs as Mermaid flowcharts.
type MermaidGenerator struct {
	// MaxNodes caps the diagram size; 0 draws everything.
	MaxNodes int
}

// GraphDiagram renders g as a left-to-right flowchart. Node shapes follow
// the node type so that services and dependencies are told apart at a glance.
func (m *MermaidGenerator) GraphDiagram(g *graph.Graph) string {
	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("graph LR\n")
	if g == nil {
		sb.WriteString("```\n")
		return sb.String()
	}

	ids := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		if m.MaxNodes > 0 && i >= m.MaxNodes {
			break
		}
		id := fmt.Sprintf("n%d", i)
		ids[n.ID] = id
		sb.WriteString("    " + nodeShape(id, n) + "\n")
	}
	for _, e := range g.Edges {
		src, ok1 := ids[e.Source]
		dst, ok2 := ids[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		fmt.Fprintf(&sb, "    %s -->|%s| %s\n", src, e.Type, dst)
	}
	sb.WriteString("```\n")
	return sb.String()
}

func nodeShape(id string, n *graph.Node) string {
	label := escapeLabel(n.Name)
	switch n.Type {
	case graph.NodeRepository:
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	case graph.NodeService:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case graph.NodeServiceProvider:
		return fmt.Sprintf("%s{{\"%s\"}}", id, label)
	case graph.NodePackageManager:
		return fmt.Sprintf("%s[/\"%s\"/]", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

var unsafeLabel = regexp.MustCompile(`["<>\x60]`)

func escapeLabel(s string) string {
	return unsafeLabel.ReplaceAllString(s, "'")
}
