package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repograph/internal/detect/dependencies"
	"repograph/internal/detect/services"
)

var testRepo = Repository{ID: "repo-1", Name: "shop", URL: "https://example.com/shop.git", Branch: "main"}

func edgeSet(g *Graph) map[string]bool {
	out := make(map[string]bool)
	for _, e := range g.Edges {
		src, _ := g.Node(e.Source)
		dst, _ := g.Node(e.Target)
		out[src.Name+" -"+string(e.Type)+"-> "+dst.Name] = true
	}
	return out
}

func TestAssemble_LodashStripe(t *testing.T) {
	deps := []DependencyRecord{{Name: "lodash", Version: "4.17.21", PackageManager: "npm"}}
	svcs := []ServiceRecord{{Name: "Stripe SDK", Provider: "stripe", ServiceType: "Payment", Confidence: 0.8}}

	g, err := Assemble(testRepo, deps, svcs)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 5)
	require.Len(t, g.Edges, 5)

	assert.Equal(t, map[string]bool{
		"shop -UsesPackageManager-> npm":   true,
		"shop -HasDependency-> lodash":     true,
		"lodash -UsesPackageManager-> npm": true,
		"shop -UsesService-> Stripe SDK":   true,
		"Stripe SDK -ProvidedBy-> stripe":  true,
	}, edgeSet(g))

	lodash, ok := g.FindNode(NodeDependency, "lodash")
	require.True(t, ok)
	assert.Equal(t, "4.17.21", lodash.Properties["version"])
	assert.Equal(t, "repo-1", lodash.RepositoryID)

	svc, ok := g.FindNode(NodeService, "Stripe SDK")
	require.True(t, ok)
	assert.Equal(t, 0.8, svc.Properties["confidence"])

	for _, e := range g.Edges {
		assert.NotEqual(t, e.Source, e.Target)
	}
}

func TestAssemble_Empty(t *testing.T) {
	g, err := Assemble(testRepo, nil, nil)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, NodeRepository, g.Nodes[0].Type)
	assert.Equal(t, "main", g.Nodes[0].Properties["branch"])
	assert.Empty(t, g.Edges)
}

func TestAssemble_Identity(t *testing.T) {
	deps := []DependencyRecord{
		{Name: "react", Version: "18.2.0", PackageManager: "npm"},
		{Name: "react", Version: "18.3.0", PackageManager: "npm"},
		{Name: "npm", Version: "10.0.0", PackageManager: "npm"},
	}
	svcs := []ServiceRecord{
		{Name: "PostgreSQL", Provider: "postgresql", FilePath: "a.ts"},
		{Name: "PostgreSQL", Provider: "postgresql", FilePath: "b.ts"},
		{Name: "Internal API"},
	}
	g, err := Assemble(testRepo, deps, svcs)
	require.NoError(t, err)

	t.Run("Dependencies are keyed by name", func(t *testing.T) {
		react := g.NodesByType(NodeDependency)
		require.Len(t, react, 2)
		assert.Equal(t, "18.2.0", react[0].Properties["version"], "first record wins")
		assert.Len(t, g.EdgesForNode(react[0].ID), 2)
	})

	t.Run("Same name under different types stays distinct", func(t *testing.T) {
		pm, ok := g.FindNode(NodePackageManager, "npm")
		require.True(t, ok)
		dep, ok := g.FindNode(NodeDependency, "npm")
		require.True(t, ok)
		assert.NotEqual(t, pm.ID, dep.ID)
	})

	t.Run("Services are not deduplicated", func(t *testing.T) {
		assert.Len(t, g.NodesByType(NodeService), 3)
		providers := g.NodesByType(NodeServiceProvider)
		require.Len(t, providers, 2)
		assert.Equal(t, UnknownProvider, providers[1].Name)
	})
}

func TestAssemblyContext_Resolve(t *testing.T) {
	g := NewGraph()
	ctx := newAssemblyContext(g, "r")
	a := ctx.Resolve(NodeDependency, "lodash", nil)
	b := ctx.Resolve(NodeDependency, "lodash", map[string]any{"ignored": true})
	c := ctx.Resolve(NodeDependency, "express", nil)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, g.Nodes, 2)
}

func TestAssemble_RelatedTo(t *testing.T) {
	deps := []DependencyRecord{{Name: "stripe", Version: "14.0.0", PackageManager: "npm"}}
	svcs := []ServiceRecord{{Name: "Stripe", Provider: "stripe", RelatedTo: []string{"stripe", "missing"}}}
	g, err := Assemble(testRepo, deps, svcs)
	require.NoError(t, err)
	assert.True(t, edgeSet(g)["Stripe -RelatedTo-> stripe"])
	assert.Len(t, g.Edges, 6)
}

func TestAssemble_AllOrNothing(t *testing.T) {
	deps := []DependencyRecord{{Name: "lodash", PackageManager: "npm"}, {Name: ""}}
	g, err := Assemble(testRepo, deps, nil)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Nil(t, g)

	_, err = Assemble(Repository{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestGraph_Queries(t *testing.T) {
	deps := []DependencyRecord{
		{Name: "lodash", PackageManager: "npm"},
		{Name: "express", PackageManager: "npm"},
		{Name: "requests", PackageManager: "pip"},
	}
	g, err := Assemble(testRepo, deps, nil)
	require.NoError(t, err)
	npm, _ := g.FindNode(NodePackageManager, "npm")

	t.Run("Neighbors", func(t *testing.T) {
		ns, err := g.Neighbors(npm.ID)
		require.NoError(t, err)
		names := make([]string, 0, len(ns))
		for _, n := range ns {
			names = append(names, n.Name)
		}
		assert.ElementsMatch(t, []string{"shop", "lodash", "express"}, names)

		_, err = g.Neighbors("missing")
		assert.ErrorIs(t, err, ErrUnknownNode)
	})

	t.Run("Statistics", func(t *testing.T) {
		st := g.Statistics()
		assert.Equal(t, 6, st.TotalNodes)
		assert.Equal(t, 8, st.TotalEdges)
		assert.Equal(t, 3, st.NodesByType[NodeDependency])
		assert.Equal(t, 3, st.EdgesByType[EdgeHasDependency])
		require.NotEmpty(t, st.MostConnected)
		assert.Equal(t, "shop", st.MostConnected[0].Name)
		assert.Equal(t, 5, st.MostConnected[0].Degree)
	})

	t.Run("FromParts validates edges", func(t *testing.T) {
		rebuilt, err := FromParts(g.Nodes, g.Edges)
		require.NoError(t, err)
		assert.Len(t, rebuilt.Edges, len(g.Edges))

		_, err = FromParts(g.Nodes[:1], g.Edges)
		assert.ErrorIs(t, err, ErrUnknownNode)
	})
}

func TestFromFindings(t *testing.T) {
	d := &dependencies.Dependency{Name: "stripe", Version: "14.0.0", PackageManager: dependencies.Npm, IsDev: true}
	s := &services.Service{Name: "Stripe", Provider: "stripe", Type: services.Payment, RelatedDependencies: []string{"stripe"}}
	s.OriginFile = "src/pay.ts"
	s.OriginLine = 3
	s.Confidence = 0.9

	deps := FromDependencies([]*dependencies.Dependency{d, nil})
	require.Len(t, deps, 1)
	assert.Equal(t, DependencyRecord{Name: "stripe", Version: "14.0.0", PackageManager: "npm", IsDev: true}, deps[0])

	svcs := FromServices([]*services.Service{s})
	require.Len(t, svcs, 1)
	assert.Equal(t, "Payment", svcs[0].ServiceType)
	assert.Equal(t, 3, svcs[0].LineNumber)
	assert.Equal(t, []string{"stripe"}, svcs[0].RelatedTo)
}
