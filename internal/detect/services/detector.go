package services

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"repograph/internal/crawler"
	"repograph/internal/detect/dependencies"
	"repograph/internal/finding"
	"repograph/internal/rules"
	"repograph/internal/scanner"
)

const (
	awsV3Weight      = 0.9
	awsV2Generic     = 0.7
	platformWeight   = 0.9
	awsV3ClientRegex = `(?i)@aws-sdk/client-([a-z0-9-]+)`
)

var awsV2Import = regexp.MustCompile(`(?:require\(\s*['"]aws-sdk['"]\s*\)|from\s+['"]aws-sdk['"]|import\s+['"]aws-sdk['"])`)

// Detector finds services in repository files using a rule set.
type Detector struct {
	rules     *rules.RuleSet
	threshold float64
	logger    zerolog.Logger
}

func NewDetector(rs *rules.RuleSet, threshold float64, logger zerolog.Logger) *Detector {
	return &Detector{
		rules:     rs,
		threshold: threshold,
		logger:    logger.With().Str("component", "service_detector").Logger(),
	}
}

// DetectFile returns the accepted services evidenced by one file. Evidence is
// accumulated per service within the file before the threshold is applied.
func (d *Detector) DetectFile(f crawler.File) []*Service {
	acc := newAccumulator(f.Path)
	text := f.Text()
	name := f.Name()
	lang := scanner.Language(f.Path)

	live := &liveFilter{lines: scanner.Lines(text), index: scanner.NewLineIndex(text)}
	if lang != "" {
		live.comments = scanner.NewCommentIndex(text, lang)
	}

	switch {
	case name == "vercel.json":
		d.vercel(acc, f)
	case name == "netlify.toml":
		d.netlify(acc, f)
	}

	if isEnvFile(name) {
		d.envVars(acc, text)
	}
	if lang != "" || isConfigFile(name) {
		d.ruleMatches(acc, text, live, rules.DatabasePatterns, "%s Database", "connection string ")
		d.ruleMatches(acc, text, live, rules.APIEndpoints, "%s API", "endpoint ")
	}
	if lang != "" {
		d.ruleMatches(acc, text, live, rules.SDKPatterns, "%s SDK", "sdk ")
		d.awsV3(acc, text, live)
		d.awsV2(acc, text, live)
	}

	return acc.accepted(d.threshold)
}

func isEnvFile(name string) bool {
	return name == ".env" || strings.HasPrefix(name, ".env.") || strings.HasSuffix(name, ".env")
}

func isConfigFile(name string) bool {
	if isEnvFile(name) || strings.Contains(name, "config") {
		return true
	}
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml", ".toml", ".ini", ".properties", ".tf":
		return true
	}
	return false
}

// envVars matches env-var names whose start is a rule pattern followed by
// "_" or the end of the name. One rule matches per line.
func (d *Detector) envVars(acc *accumulator, text string) {
	for i, line := range scanner.Lines(text) {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		t = strings.TrimPrefix(t, "export ")
		eq := strings.Index(t, "=")
		if eq <= 0 {
			continue
		}
		varName := strings.ToUpper(strings.TrimSpace(t[:eq]))

		for _, r := range d.rules.Rules(rules.EnvironmentVariables) {
			p := strings.ToUpper(r.Pattern)
			if varName != p && !strings.HasPrefix(varName, p+"_") {
				continue
			}
			s := acc.add(r.Name("%s Service"), r.Provider, ParseType(r.Kind), "env var "+varName, r.EffectiveWeight(), i+1)
			s.configure("env_var", varName)
			break
		}
	}
}

// ruleMatches adds one evidence fragment per rule whose first live match is
// found in text.
func (d *Detector) ruleMatches(acc *accumulator, text string, live *liveFilter, domain rules.Domain, nameFmt, reason string) {
	for _, r := range d.rules.Rules(domain) {
		m, ok := live.first(scanner.FindRule(text, r))
		if !ok {
			continue
		}
		s := acc.add(r.Name(nameFmt), r.Provider, ParseType(r.Kind), reason+r.Pattern, r.EffectiveWeight(), m.Line)
		if domain == rules.SDKPatterns && looksLikePackage(r.Pattern) {
			s.relate(r.Pattern)
		}
		if domain == rules.APIEndpoints {
			s.configure("endpoint", r.Pattern)
		}
		if domain == rules.DatabasePatterns {
			s.configure("scheme", strings.TrimSuffix(r.Pattern, "://"))
		}
	}
}

func (d *Detector) awsV3(acc *accumulator, text string, live *liveFilter) {
	re, err := rules.Compile(awsV3ClientRegex)
	if err != nil {
		return
	}
	seen := make(map[string]struct{})
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		if !live.at(loc[0]) {
			continue
		}
		client := strings.ToLower(text[loc[2]:loc[3]])
		if _, dup := seen[client]; dup {
			continue
		}
		seen[client] = struct{}{}

		display, typ := titleWords(client), CloudProvider
		if r, ok := d.rules.Lookup(rules.AWSSDKv3Services, client); ok {
			display = r.Name("")
			typ = ParseType(r.Kind)
		}
		pkg := "@aws-sdk/client-" + client
		s := acc.add("AWS "+display, "aws", typ, "sdk client "+pkg, awsV3Weight, live.index.LineOf(loc[0]))
		s.configure("sdk_client", pkg)
		s.relate(pkg)
	}
}

func (d *Detector) awsV2(acc *accumulator, text string, live *liveFilter) {
	imp := awsV2Import.FindStringIndex(text)
	if imp == nil || !live.at(imp[0]) {
		return
	}

	found := false
	for _, r := range d.rules.Rules(rules.AWSSDKv2Services) {
		re, err := rules.Compile(`(?i)\baws\s*(?:\.\s*|\[\s*['"])` + regexp.QuoteMeta(r.Pattern) + `\b`)
		if err != nil {
			continue
		}
		var line int
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if live.at(loc[0]) {
				line = live.index.LineOf(loc[0])
				break
			}
		}
		if line == 0 {
			continue
		}
		found = true
		s := acc.add("AWS "+r.Name(""), r.Provider, ParseType(r.Kind), "sdk v2 AWS."+r.Pattern, r.EffectiveWeight(), line)
		s.configure("sdk_version", "v2")
		s.configure("service", r.Pattern)
		s.relate("aws-sdk")
	}

	if !found {
		s := acc.add("AWS SDK (v2)", "aws", CloudProvider, "aws-sdk import", awsV2Generic, live.index.LineOf(imp[0]))
		s.configure("sdk_version", "v2")
		s.relate("aws-sdk")
	}
}

func (d *Detector) vercel(acc *accumulator, f crawler.File) {
	var doc map[string]any
	if err := json.Unmarshal(f.Content, &doc); err != nil {
		d.logger.Debug().Err(err).Str("file", f.Path).Msg("skipping malformed vercel config")
		return
	}
	s := acc.add("Vercel", "vercel", Hosting, "vercel.json present", platformWeight, 0)
	if id, ok := doc["projectId"].(string); ok {
		s.configure("projectId", id)
	}
}

type netlifyConfig struct {
	Build struct {
		Command string `toml:"command"`
		Publish string `toml:"publish"`
	} `toml:"build"`
}

func (d *Detector) netlify(acc *accumulator, f crawler.File) {
	var cfg netlifyConfig
	if err := toml.Unmarshal(f.Content, &cfg); err != nil {
		d.logger.Debug().Err(err).Str("file", f.Path).Msg("skipping malformed netlify config")
		return
	}
	s := acc.add("Netlify", "netlify", Hosting, "netlify.toml present", platformWeight, 0)
	s.configure("build_command", cfg.Build.Command)
	s.configure("publish", cfg.Build.Publish)
}

// FromDependencies derives services from package names. The first matching
// package signal rule names the service for each dependency; several packages
// of one service add up their evidence.
func (d *Detector) FromDependencies(deps []*dependencies.Dependency) []*Service {
	acc := newAccumulator("")
	for _, dep := range deps {
		for _, r := range d.rules.Rules(rules.PackageSignals) {
			if !scanner.MatchesRule(dep.Name, r) {
				continue
			}
			s := acc.add(r.Name(""), r.Provider, ParseType(r.Kind), "package "+dep.Name, r.EffectiveWeight(), 0)
			if s.OriginFile == "" {
				s.OriginFile = dep.OriginFile
			}
			s.FilePaths = finding.UnionStrings(s.FilePaths, dep.OriginFile)
			s.configure("detection_method", "package")
			s.relate(dep.Name)
			break
		}
	}
	return acc.accepted(d.threshold)
}

// liveFilter rejects matches inside comments and on type or interface
// declaration lines.
type liveFilter struct {
	comments *scanner.CommentIndex
	lines    []string
	index    *scanner.LineIndex
}

func (l *liveFilter) at(offset int) bool {
	if l.comments != nil && l.comments.Contains(offset) {
		return false
	}
	line := l.index.LineOf(offset)
	if line >= 1 && line <= len(l.lines) && scanner.IsTypeDeclaration(l.lines[line-1]) {
		return false
	}
	return true
}

func (l *liveFilter) first(ms []scanner.Match) (scanner.Match, bool) {
	for _, m := range ms {
		if l.at(m.Start) {
			return m, true
		}
	}
	return scanner.Match{}, false
}

func looksLikePackage(p string) bool {
	return !strings.HasSuffix(p, "/") && !strings.ContainsAny(p, " :")
}

func titleWords(s string) string {
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
