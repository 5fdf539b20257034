// Package generator renders stored analyses as Markdown reports.
package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"repograph/internal/detect/apikeys"
	"repograph/internal/pipeline"
)

// MarkdownGenerator produces a security and inventory report in Markdown.
type MarkdownGenerator struct {
	mermaid *MermaidGenerator
}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{mermaid: &MermaidGenerator{MaxNodes: 200}}
}

// Render builds the whole report document.
func (g *MarkdownGenerator) Render(r *pipeline.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", r.Repository.Name)
	if r.Repository.URL != "" {
		fmt.Fprintf(&sb, "- Repository: %s\n", r.Repository.URL)
	}
	if r.Repository.Branch != "" {
		fmt.Fprintf(&sb, "- Branch: `%s`\n", r.Repository.Branch)
	}
	sb.WriteString("\n")

	sb.WriteString("## Summary\n\n")
	sb.WriteString(g.summaryTable(r))
	sb.WriteString("\n## Vulnerabilities\n\n")
	sb.WriteString(g.vulnerabilityTable(r))
	sb.WriteString("\n## API Keys\n\n")
	sb.WriteString(g.apiKeyTable(r.APIKeys))
	sb.WriteString("\n## Services\n\n")
	sb.WriteString(g.serviceTable(r))
	sb.WriteString("\n## Dependencies\n\n")
	sb.WriteString(g.dependencyTable(r))
	sb.WriteString("\n## Graph\n\n")
	sb.WriteString(g.mermaid.GraphDiagram(r.Graph))
	return sb.String()
}

// WriteFile renders r into outputDir/<repository id>.md and returns the path.
func (g *MarkdownGenerator) WriteFile(outputDir string, r *pipeline.Report) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, fileName(r.Repository.ID)+".md")
	if err := os.WriteFile(path, []byte(g.Render(r)), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (g *MarkdownGenerator) summaryTable(r *pipeline.Report) string {
	counts := r.Counts()
	domains := make([]string, 0, len(counts))
	for d := range counts {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	var sb strings.Builder
	sb.WriteString("| Domain | Count |\n")
	sb.WriteString("| :--- | ---: |\n")
	for _, d := range domains {
		fmt.Fprintf(&sb, "| %s | %d |\n", d, counts[d])
	}
	if r.Graph != nil {
		fmt.Fprintf(&sb, "| graph nodes | %d |\n", len(r.Graph.Nodes))
		fmt.Fprintf(&sb, "| graph edges | %d |\n", len(r.Graph.Edges))
	}
	return sb.String()
}

func (g *MarkdownGenerator) vulnerabilityTable(r *pipeline.Report) string {
	if len(r.Vulnerabilities) == 0 {
		return "No vulnerabilities were detected.\n"
	}
	var sb strings.Builder
	sb.WriteString("| Severity | Type | Location | Description | Recommendation |\n")
	sb.WriteString("| :--- | :--- | :--- | :--- | :--- |\n")
	for _, v := range r.VulnerabilitiesBySeverity() {
		fmt.Fprintf(&sb, "| %s | %s | `%s:%d` | %s | %s |\n",
			v.Severity, v.Type, v.OriginFile, v.OriginLine, cell(v.Description), cell(v.Recommendation))
	}
	return sb.String()
}

func (g *MarkdownGenerator) apiKeyTable(keys []*apikeys.APIKey) string {
	if len(keys) == 0 {
		return "No API keys were detected.\n"
	}
	var sb strings.Builder
	sb.WriteString("| Name | Kind | Provider | Location | Used by |\n")
	sb.WriteString("| :--- | :--- | :--- | :--- | :--- |\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "| `%s` | %s | %s | `%s:%d` | %s |\n",
			k.Name, k.KeyType, k.Provider, k.OriginFile, k.OriginLine, dashIfEmpty(strings.Join(k.UsedBy, ", ")))
	}
	return sb.String()
}

func (g *MarkdownGenerator) serviceTable(r *pipeline.Report) string {
	if len(r.Services) == 0 {
		return "No external services were detected.\n"
	}
	var sb strings.Builder
	sb.WriteString("| Service | Provider | Type | Confidence | Evidence |\n")
	sb.WriteString("| :--- | :--- | :--- | ---: | :--- |\n")
	for _, s := range r.Services {
		fmt.Fprintf(&sb, "| %s | %s | %s | %.2f | %s |\n",
			cell(s.Name), s.Provider, s.Type, s.Confidence, cell(truncate(s.Trail(), 120)))
	}
	return sb.String()
}

func (g *MarkdownGenerator) dependencyTable(r *pipeline.Report) string {
	if len(r.Dependencies) == 0 {
		return "No dependency manifests were found.\n"
	}
	var sb strings.Builder
	sb.WriteString("| Name | Version | Manager | Scope |\n")
	sb.WriteString("| :--- | :--- | :--- | :--- |\n")
	for _, d := range r.Dependencies {
		scope := "runtime"
		switch {
		case d.IsDev:
			scope = "dev"
		case d.IsOptional:
			scope = "optional"
		}
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", d.Name, dashIfEmpty(d.Version), d.PackageManager, scope)
	}
	return sb.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func fileName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, id)
}
