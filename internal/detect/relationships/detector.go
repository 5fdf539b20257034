package relationships

import (
	"fmt"
	"strings"

	"repograph/internal/config"
	"repograph/internal/detect/dependencies"
	"repograph/internal/detect/services"
	"repograph/internal/extractor"
	"repograph/internal/rules"
	"repograph/internal/scanner"
)

// Options tune evidence weights, acceptance and the context window.
type Options struct {
	Weights      config.Weights
	Threshold    float64
	WindowBefore int
	WindowAfter  int
}

// OptionsFrom reads the detection section of cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Weights:      cfg.Detection.Weights,
		Threshold:    cfg.Detection.Threshold,
		WindowBefore: cfg.Detection.WindowBefore,
		WindowAfter:  cfg.Detection.WindowAfter,
	}
}

// Detector scores element windows against known services and dependencies.
type Detector struct {
	rules *rules.RuleSet
	opts  Options
}

func NewDetector(rs *rules.RuleSet, opts Options) *Detector {
	return &Detector{rules: rs, opts: opts}
}

var endpointKeys = []string{"endpoint", "api_url", "url", "base_url"}

// DetectFile relates each element of one file to the services and
// dependencies whose evidence appears in the element's context window.
// Import statements are searched in the whole file.
func (d *Detector) DetectFile(path, content string, elements []*extractor.CodeElement, svcs []*services.Service, deps []*dependencies.Dependency) []*Relationship {
	if len(elements) == 0 {
		return nil
	}
	lines := scanner.Lines(content)

	imported := make(map[string]string, len(deps))
	for _, dep := range deps {
		if stmt, ok := d.importStatement(content, dep.Name); ok {
			imported[dep.Name] = stmt
		}
	}

	var out []*Relationship
	for _, el := range elements {
		window := scanner.Window(lines, el.StartLine, d.opts.WindowBefore, d.opts.WindowAfter)
		if window == "" {
			continue
		}
		for _, svc := range svcs {
			if r := d.serviceRelationship(path, el, window, svc); r != nil {
				out = append(out, r)
			}
		}
		for _, dep := range deps {
			if r := d.dependencyRelationship(path, el, window, dep, imported[dep.Name]); r != nil {
				out = append(out, r)
			}
		}
	}
	return out
}

func newRelationship(path string, el *extractor.CodeElement, kind TargetKind, target string) *Relationship {
	verb, err := kind.RelationshipType()
	if err != nil {
		return nil
	}
	r := &Relationship{
		ElementID:        el.ID,
		ElementName:      el.QualifiedName(),
		TargetKind:       kind,
		TargetName:       target,
		RelationshipType: verb,
	}
	r.Subject = el.ID
	r.Target = target
	r.Kind = string(kind)
	r.OriginFile = path
	r.OriginLine = el.StartLine
	return r
}

func (d *Detector) serviceRelationship(path string, el *extractor.CodeElement, window string, svc *services.Service) *Relationship {
	w := d.opts.Weights
	r := newRelationship(path, el, TargetService, svc.Name)
	if r == nil {
		return nil
	}

	if scanner.MatchWord(window, svc.Name) {
		r.Add(fmt.Sprintf("Service name '%s' found in code", svc.Name), w.ServiceName)
	}
	if svc.Provider != services.UnknownProvider && scanner.MatchWord(window, svc.Provider) {
		r.Add(fmt.Sprintf("Provider '%s' found in code", svc.Provider), w.ServiceProvider)
	}
	for _, p := range d.sdkPatterns(svc) {
		if scanner.MatchWord(window, p) {
			r.Add(fmt.Sprintf("SDK pattern '%s' detected", p), w.SDKPattern)
		}
	}
	for _, k := range endpointKeys {
		if ep := svc.Configuration[k]; ep != "" {
			if scanner.ContainsFold(window, ep) {
				r.Add(fmt.Sprintf("API endpoint '%s' detected", ep), w.Endpoint)
			}
			break
		}
	}
	if env := svc.Configuration["env_var"]; env != "" && strings.Contains(window, env) {
		r.Add(fmt.Sprintf("Environment variable '%s' used", env), w.EnvVar)
	}

	if !r.Accepted(d.opts.Threshold) {
		return nil
	}
	return r
}

// sdkPatterns lists the provider's SDK rules, falling back to the lowercased service name.
func (d *Detector) sdkPatterns(svc *services.Service) []string {
	var out []string
	for _, r := range d.rules.Rules(rules.ProviderSDKPatterns) {
		if strings.EqualFold(r.Provider, svc.Provider) {
			out = append(out, r.Pattern)
		}
	}
	if len(out) == 0 {
		out = append(out, strings.ToLower(svc.Name))
	}
	return out
}

func (d *Detector) importStatement(content, name string) (string, bool) {
	lowered := strings.ToLower(name)
	for _, r := range d.rules.Rules(rules.ImportPatterns) {
		stmt := strings.ReplaceAll(r.Pattern, "{name}", lowered)
		if scanner.ContainsFold(content, stmt) {
			return stmt, true
		}
	}
	return "", false
}

func (d *Detector) dependencyRelationship(path string, el *extractor.CodeElement, window string, dep *dependencies.Dependency, importStmt string) *Relationship {
	w := d.opts.Weights
	r := newRelationship(path, el, TargetDependency, dep.Name)
	if r == nil {
		return nil
	}

	if importStmt != "" {
		r.Add(fmt.Sprintf("Import statement found: %s", importStmt), w.Import)
	}
	if scanner.MatchWord(window, dep.Name) {
		r.Add(fmt.Sprintf("Package '%s' used in code", dep.Name), w.PackageName)
	}
	if strings.Contains(dep.Name, "/") {
		for _, part := range strings.Split(dep.Name, "/") {
			if part != "" && scanner.MatchWord(window, part) {
				r.Add(fmt.Sprintf("Scoped package part '%s' found", part), w.ScopedPart)
			}
		}
	}

	if !r.Accepted(d.opts.Threshold) {
		return nil
	}
	return r
}
