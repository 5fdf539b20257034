package graph

import "sort"

// mostConnectedLimit caps Statistics.MostConnected.
const mostConnectedLimit = 10

// NodeDegree pairs a node with the number of edges touching it.
type NodeDegree struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   NodeType `json:"node_type"`
	Degree int      `json:"degree"`
}

// Statistics summarizes a graph.
type Statistics struct {
	TotalNodes    int              `json:"total_nodes"`
	TotalEdges    int              `json:"total_edges"`
	NodesByType   map[NodeType]int `json:"nodes_by_type"`
	EdgesByType   map[EdgeType]int `json:"edges_by_type"`
	MostConnected []NodeDegree     `json:"most_connected"`
}

// Statistics counts nodes and edges by type and ranks the most connected
// nodes, ties broken by insertion order.
func (g *Graph) Statistics() Statistics {
	st := Statistics{
		NodesByType: make(map[NodeType]int),
		EdgesByType: make(map[EdgeType]int),
	}
	if g == nil {
		return st
	}
	st.TotalNodes = len(g.Nodes)
	st.TotalEdges = len(g.Edges)

	degree := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		st.EdgesByType[e.Type]++
		degree[e.Source]++
		degree[e.Target]++
	}

	ranked := make([]NodeDegree, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		st.NodesByType[n.Type]++
		if d := degree[n.ID]; d > 0 {
			ranked = append(ranked, NodeDegree{ID: n.ID, Name: n.Name, Type: n.Type, Degree: d})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Degree > ranked[j].Degree })
	if len(ranked) > mostConnectedLimit {
		ranked = ranked[:mostConnectedLimit]
	}
	st.MostConnected = ranked
	return st
}
