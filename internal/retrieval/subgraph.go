package retrieval

import (
	"sort"

	"repograph/internal/graph"
)

// Config controls how neighbourhood subgraphs are extracted.
type Config struct {
	MaxHops      int
	AllowedTypes map[graph.EdgeType]bool
}

func DefaultConfig() Config {
	return Config{
		MaxHops:      2,
		AllowedTypes: nil,
	}
}

// Subgraph is the part of a repository graph reachable from a set of seeds.
type Subgraph struct {
	MaxHops int
	SeedIDs []string
	Nodes   []*graph.Node
	Depth   map[string]int
	Edges   []*graph.Edge
}

// SeedsByName returns the ids of nodes whose name is one of names, in graph
// order. Names that match no node are ignored.
func SeedsByName(g *graph.Graph, names ...string) []string {
	if g == nil {
		return nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []string
	for _, n := range g.Nodes {
		if want[n.Name] {
			out = append(out, n.ID)
		}
	}
	return out
}

// Extract walks edges in both directions from seeds, up to cfg.MaxHops.
func Extract(g *graph.Graph, seeds []string, cfg Config) *Subgraph {
	if cfg.MaxHops < 0 {
		cfg.MaxHops = 0
	}
	sg := &Subgraph{MaxHops: cfg.MaxHops, Depth: map[string]int{}}
	if g == nil {
		return sg
	}

	queue := make([]queueItem, 0, len(seeds))
	for _, id := range seeds {
		if _, ok := g.Node(id); !ok {
			continue
		}
		if _, seen := sg.Depth[id]; seen {
			continue
		}
		sg.Depth[id] = 0
		sg.SeedIDs = append(sg.SeedIDs, id)
		queue = append(queue, queueItem{id: id, depth: 0})
	}
	if len(queue) == 0 {
		return sg
	}

	adj := make(map[string][]edgeHop)
	for _, e := range g.Edges {
		if !edgeAllowed(e, cfg) {
			continue
		}
		adj[e.Source] = append(adj[e.Source], edgeHop{to: e.Target, edge: e})
		adj[e.Target] = append(adj[e.Target], edgeHop{to: e.Source, edge: e})
	}

	edgeSeen := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= cfg.MaxHops {
			continue
		}

		for _, next := range adj[cur.id] {
			if !edgeSeen[next.edge.ID] {
				edgeSeen[next.edge.ID] = true
				sg.Edges = append(sg.Edges, next.edge)
			}
			nextDepth := cur.depth + 1
			prevDepth, seen := sg.Depth[next.to]
			if !seen || nextDepth < prevDepth {
				sg.Depth[next.to] = nextDepth
				queue = append(queue, queueItem{id: next.to, depth: nextDepth})
			}
		}
	}

	// Graph order keeps output stable across runs with fresh ids.
	for _, n := range g.Nodes {
		if _, ok := sg.Depth[n.ID]; ok {
			sg.Nodes = append(sg.Nodes, n)
		}
	}
	order := make(map[string]int, len(g.Edges))
	for i, e := range g.Edges {
		order[e.ID] = i
	}
	sort.Slice(sg.Edges, func(i, j int) bool { return order[sg.Edges[i].ID] < order[sg.Edges[j].ID] })
	return sg
}

type queueItem struct {
	id    string
	depth int
}

type edgeHop struct {
	to   string
	edge *graph.Edge
}

func edgeAllowed(e *graph.Edge, cfg Config) bool {
	if len(cfg.AllowedTypes) == 0 {
		return true
	}
	return cfg.AllowedTypes[e.Type]
}
