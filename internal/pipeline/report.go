package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"repograph/internal/crawler"
	"repograph/internal/detect/apikeys"
	"repograph/internal/detect/dependencies"
	"repograph/internal/detect/iac"
	"repograph/internal/detect/relationships"
	"repograph/internal/detect/services"
	"repograph/internal/graph"
	"repograph/internal/storage"
)

// Finding domains, used as metric labels and storage keys.
const (
	DomainDependencies          = "dependencies"
	DomainServices              = "services"
	DomainRelationships         = "relationships"
	DomainAPIKeys               = "api_keys"
	DomainSecurityEntities      = "security_entities"
	DomainVulnerabilities       = "vulnerabilities"
	DomainSecurityRelationships = "security_relationships"
)

// Report is the merged outcome of one analysis run.
type Report struct {
	Repository            graph.Repository              `json:"repository"`
	Dependencies          []*dependencies.Dependency    `json:"dependencies"`
	Services              []*services.Service           `json:"services"`
	Relationships         []*relationships.Relationship `json:"relationships"`
	APIKeys               []*apikeys.APIKey             `json:"api_keys"`
	SecurityEntities      []*iac.Entity                 `json:"security_entities"`
	Vulnerabilities       []*iac.Vulnerability          `json:"vulnerabilities"`
	SecurityRelationships []*iac.Relationship           `json:"security_relationships"`
	Graph                 *graph.Graph                  `json:"graph"`
	Crawl                 crawler.Stats                 `json:"crawl"`
	Duration              time.Duration                 `json:"duration"`
}

// Counts returns the number of merged findings per domain.
func (r *Report) Counts() map[string]int {
	return map[string]int{
		DomainDependencies:          len(r.Dependencies),
		DomainServices:              len(r.Services),
		DomainRelationships:         len(r.Relationships),
		DomainAPIKeys:               len(r.APIKeys),
		DomainSecurityEntities:      len(r.SecurityEntities),
		DomainVulnerabilities:       len(r.Vulnerabilities),
		DomainSecurityRelationships: len(r.SecurityRelationships),
	}
}

// Snapshot packages the report for the store.
func (r *Report) Snapshot() storage.Snapshot {
	return storage.Snapshot{
		Repository: r.Repository,
		Graph:      r.Graph,
		Findings: map[string]any{
			DomainDependencies:          r.Dependencies,
			DomainServices:              r.Services,
			DomainRelationships:         r.Relationships,
			DomainAPIKeys:               r.APIKeys,
			DomainSecurityEntities:      r.SecurityEntities,
			DomainVulnerabilities:       r.Vulnerabilities,
			DomainSecurityRelationships: r.SecurityRelationships,
		},
	}
}

// VulnerabilitiesBySeverity returns the vulnerabilities ordered from
// Critical to Info, keeping discovery order within a severity.
func (r *Report) VulnerabilitiesBySeverity() []*iac.Vulnerability {
	out := append([]*iac.Vulnerability(nil), r.Vulnerabilities...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity.Rank() < out[j].Severity.Rank() })
	return out
}

// SeverityCounts counts vulnerabilities per severity.
func (r *Report) SeverityCounts() map[iac.Severity]int {
	out := make(map[iac.Severity]int)
	for _, v := range r.Vulnerabilities {
		out[v.Severity]++
	}
	return out
}

// LoadReport rebuilds the report of repoID from a store. Domains that were
// never saved load as empty. Crawl statistics and duration are not stored.
func LoadReport(ctx context.Context, s storage.Store, repoID string) (*Report, error) {
	g, err := s.LoadGraph(ctx, repoID)
	if err != nil {
		return nil, err
	}
	r := &Report{Repository: graph.Repository{ID: repoID}, Graph: g}
	if nodes := g.NodesByType(graph.NodeRepository); len(nodes) > 0 {
		r.Repository.Name = nodes[0].Name
		r.Repository.URL, _ = nodes[0].Properties["url"].(string)
		r.Repository.Branch, _ = nodes[0].Properties["branch"].(string)
	}

	targets := map[string]any{
		DomainDependencies:          &r.Dependencies,
		DomainServices:              &r.Services,
		DomainRelationships:         &r.Relationships,
		DomainAPIKeys:               &r.APIKeys,
		DomainSecurityEntities:      &r.SecurityEntities,
		DomainVulnerabilities:       &r.Vulnerabilities,
		DomainSecurityRelationships: &r.SecurityRelationships,
	}
	for domain, out := range targets {
		err := s.LoadFindings(ctx, repoID, domain, out)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", domain, err)
		}
	}
	return r, nil
}
