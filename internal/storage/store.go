package storage

import (
	"context"
	"errors"

	"repograph/internal/graph"
)

// ErrNotFound is returned when a repository has nothing stored.
var ErrNotFound = errors.New("not found")

// Store combines graph and finding persistence.
type Store interface {
	GraphStore
	FindingStore
	Close() error
}

// GraphStore persists one knowledge graph per repository.
type GraphStore interface {
	// SaveGraph replaces the stored graph of repoID.
	SaveGraph(ctx context.Context, repoID string, g *graph.Graph) error

	// LoadGraph returns the stored graph of repoID, or ErrNotFound.
	LoadGraph(ctx context.Context, repoID string) (*graph.Graph, error)
}

// FindingStore persists merged findings per repository and domain.
type FindingStore interface {
	// SaveFindings replaces the findings of one domain for repoID.
	SaveFindings(ctx context.Context, repoID, domain string, v any) error

	// LoadFindings decodes the stored findings of one domain into out.
	LoadFindings(ctx context.Context, repoID, domain string, out any) error
}

// Snapshot is everything one analysis run produced for a repository.
type Snapshot struct {
	Repository graph.Repository
	Graph      *graph.Graph
	// Findings maps a domain name to its merged findings.
	Findings map[string]any
}
