package graph

import "fmt"

// AssemblyContext resolves (type, name) pairs to node ids for one Assemble
// call. It is created by Assemble and dropped when the call returns.
type AssemblyContext struct {
	graph  *Graph
	repoID string
	ids    map[NodeType]map[string]string
}

func newAssemblyContext(g *Graph, repoID string) *AssemblyContext {
	return &AssemblyContext{graph: g, repoID: repoID, ids: make(map[NodeType]map[string]string)}
}

// Resolve returns the id of the node for (typ, name), creating the node with
// props on first request. Later requests return the same id and ignore props.
func (c *AssemblyContext) Resolve(typ NodeType, name string, props map[string]any) string {
	byName := c.ids[typ]
	if byName == nil {
		byName = make(map[string]string)
		c.ids[typ] = byName
	}
	if id, ok := byName[name]; ok {
		return id
	}
	n := c.graph.addNode(typ, name, c.repoID, props)
	byName[name] = n.ID
	return n.ID
}

// Lookup returns the id already assigned to (typ, name).
func (c *AssemblyContext) Lookup(typ NodeType, name string) (string, bool) {
	id, ok := c.ids[typ][name]
	return id, ok
}

// Assemble builds the knowledge graph of one repository. Dependencies are
// keyed by name; every service record gets its own node. Assembly is all or
// nothing: on error no graph is returned.
func Assemble(repo Repository, deps []DependencyRecord, svcs []ServiceRecord) (*Graph, error) {
	if repo.Name == "" {
		return nil, fmt.Errorf("%w: repository has no name", ErrInvalidRecord)
	}
	for i, d := range deps {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: dependency %d has no name", ErrInvalidRecord, i)
		}
	}
	for i, s := range svcs {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: service %d has no name", ErrInvalidRecord, i)
		}
	}

	g := NewGraph()
	ctx := newAssemblyContext(g, repo.ID)

	repoProps := map[string]any{}
	if repo.URL != "" {
		repoProps["url"] = repo.URL
	}
	if repo.Branch != "" {
		repoProps["branch"] = repo.Branch
	}
	repoNode := ctx.Resolve(NodeRepository, repo.Name, repoProps)

	for _, pm := range distinct(deps, func(d DependencyRecord) string { return orUnknown(d.PackageManager) }) {
		pmNode := ctx.Resolve(NodePackageManager, pm, map[string]any{"type": "package_manager"})
		if _, err := g.addEdge(repoNode, pmNode, EdgeUsesPackageManager, nil); err != nil {
			return nil, err
		}
	}

	for _, d := range deps {
		pm := orUnknown(d.PackageManager)
		_, seen := ctx.Lookup(NodeDependency, d.Name)
		depNode := ctx.Resolve(NodeDependency, d.Name, map[string]any{
			"version":         d.Version,
			"package_manager": pm,
			"is_dev":          d.IsDev,
			"is_optional":     d.IsOptional,
		})
		if seen {
			continue
		}
		if _, err := g.addEdge(repoNode, depNode, EdgeHasDependency, nil); err != nil {
			return nil, err
		}
		pmNode, _ := ctx.Lookup(NodePackageManager, pm)
		if _, err := g.addEdge(depNode, pmNode, EdgeUsesPackageManager, nil); err != nil {
			return nil, err
		}
	}

	for _, p := range distinct(svcs, func(s ServiceRecord) string { return orUnknown(s.Provider) }) {
		ctx.Resolve(NodeServiceProvider, p, map[string]any{"type": "service_provider"})
	}

	for _, s := range svcs {
		svcNode := g.addNode(NodeService, s.Name, repo.ID, serviceProps(s)).ID
		if _, err := g.addEdge(repoNode, svcNode, EdgeUsesService, nil); err != nil {
			return nil, err
		}
		providerNode, _ := ctx.Lookup(NodeServiceProvider, orUnknown(s.Provider))
		if _, err := g.addEdge(svcNode, providerNode, EdgeProvidedBy, nil); err != nil {
			return nil, err
		}
		for _, dep := range s.RelatedTo {
			depNode, ok := ctx.Lookup(NodeDependency, dep)
			if !ok {
				continue
			}
			if _, err := g.addEdge(svcNode, depNode, EdgeRelatedTo, map[string]any{"via": "package"}); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

func serviceProps(s ServiceRecord) map[string]any {
	props := map[string]any{
		"provider":     orUnknown(s.Provider),
		"service_type": s.ServiceType,
		"confidence":   s.Confidence,
		"file_path":    s.FilePath,
	}
	if s.LineNumber > 0 {
		props["line_number"] = s.LineNumber
	}
	for k, v := range s.Configuration {
		props["config_"+k] = v
	}
	return props
}

// distinct returns the keys of items in first-seen order.
func distinct[T any](items []T, key func(T) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownProvider
	}
	return s
}
