// Package graph assembles the repository knowledge graph from detected
// dependencies and services, and answers queries over it.
package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// Graph holds nodes and directed edges in insertion order.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`

	// Index for lookup: ID -> node
	byID map[string]*Node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{byID: make(map[string]*Node)}
}

// FromParts rebuilds a graph from stored nodes and edges, validating every edge.
func FromParts(nodes []*Node, edges []*Edge) (*Graph, error) {
	g := NewGraph()
	for _, n := range nodes {
		if err := g.insertNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := g.insertEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

func (g *Graph) addNode(typ NodeType, name, repoID string, props map[string]any) *Node {
	n := &Node{
		ID:           uuid.NewString(),
		Type:         typ,
		Name:         name,
		Properties:   props,
		RepositoryID: repoID,
	}
	g.Nodes = append(g.Nodes, n)
	g.byID[n.ID] = n
	return n
}

func (g *Graph) insertNode(n *Node) error {
	if _, dup := g.byID[n.ID]; dup {
		return fmt.Errorf("duplicate node id %s", n.ID)
	}
	g.Nodes = append(g.Nodes, n)
	g.byID[n.ID] = n
	return nil
}

// addEdge links two existing nodes.
func (g *Graph) addEdge(from, to string, typ EdgeType, props map[string]any) (*Edge, error) {
	e := &Edge{ID: uuid.NewString(), Source: from, Target: to, Type: typ, Properties: props}
	if err := g.insertEdge(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (g *Graph) insertEdge(e *Edge) error {
	if _, ok := g.byID[e.Source]; !ok {
		return fmt.Errorf("%w: edge %s source %s", ErrUnknownNode, e.Type, e.Source)
	}
	if _, ok := g.byID[e.Target]; !ok {
		return fmt.Errorf("%w: edge %s target %s", ErrUnknownNode, e.Type, e.Target)
	}
	if e.Source == e.Target {
		return fmt.Errorf("%w: %s on %s", ErrSelfLoop, e.Type, e.Source)
	}
	g.Edges = append(g.Edges, e)
	return nil
}

// NodesByType returns the nodes of one type in insertion order.
func (g *Graph) NodesByType(typ NodeType) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// FindNode returns the first node of the given type and name.
func (g *Graph) FindNode(typ NodeType, name string) (*Node, bool) {
	for _, n := range g.Nodes {
		if n.Type == typ && n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// EdgesForNode returns the edges touching id, in either direction.
func (g *Graph) EdgesForNode(id string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Source == id || e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// Successors returns the nodes id points to.
func (g *Graph) Successors(id string) []*Node {
	var out []*Node
	for _, e := range g.Edges {
		if e.Source == id {
			if n, ok := g.byID[e.Target]; ok {
				out = append(out, n)
			}
		}
	}
	return out
}

// Predecessors returns the nodes pointing to id.
func (g *Graph) Predecessors(id string) []*Node {
	var out []*Node
	for _, e := range g.Edges {
		if e.Target == id {
			if n, ok := g.byID[e.Source]; ok {
				out = append(out, n)
			}
		}
	}
	return out
}

// Neighbors returns the nodes adjacent to id in either direction, each once.
func (g *Graph) Neighbors(id string) ([]*Node, error) {
	if _, ok := g.byID[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	seen := make(map[string]struct{})
	var out []*Node
	for _, n := range append(g.Successors(id), g.Predecessors(id)...) {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
