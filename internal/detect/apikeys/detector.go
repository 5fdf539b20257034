package apikeys

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"repograph/internal/detect/iac"
	"repograph/internal/detect/services"
	"repograph/internal/extractor"
	"repograph/internal/rules"
	"repograph/internal/scanner"
)

const (
	previewLength  = 20
	contextLines   = 2
	usedByDistance = 50
	relatedLimit   = 10
)

var tokenNoise = []string{"jsonwebtoken", "jwt", "csrf", "refresh", "session"}

var docMarkers = []string{"example", "sample", "placeholder"}

var keyVariableMarkers = []string{"secret", "token", "auth", "credential", "password", "access"}

// Result holds the keys of one file and the vulnerabilities raised for
// hardcoded ones.
type Result struct {
	Keys            []*APIKey
	Vulnerabilities []*iac.Vulnerability
}

// Detector scans files for API keys with the key rules of a rule set.
type Detector struct {
	rules     *rules.RuleSet
	threshold float64
	logger    zerolog.Logger
}

func NewDetector(rs *rules.RuleSet, threshold float64, logger zerolog.Logger) *Detector {
	return &Detector{
		rules:     rs,
		threshold: threshold,
		logger:    logger.With().Str("component", "api_key_detector").Logger(),
	}
}

// Scannable reports the files worth scanning for keys: code, environment and
// configuration files.
func Scannable(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if scanner.IsCode(path) || strings.Contains(name, "config") {
		return true
	}
	if name == ".env" || strings.HasPrefix(name, ".env.") || strings.HasSuffix(name, ".env") {
		return true
	}
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml", ".toml", ".ini", ".properties":
		return true
	}
	return false
}

type reason struct {
	text   string
	weight float64
}

// candidate gathers the matches of one key on one line.
type candidate struct {
	name     string
	value    string
	kind     string
	provider string
	reasons  []reason
	key      *APIKey
}

// DetectFile scans one file. elements are the file's code elements, used to
// fill UsedBy; svcs are the repository's services, used to fill
// RelatedServices.
func (d *Detector) DetectFile(path, content string, elements []*extractor.CodeElement, svcs []*services.Service) Result {
	lines := scanner.Lines(content)
	var out Result

	for i, line := range lines {
		if scanner.IsCommentLine(line) || scanner.IsTypeDeclaration(line) {
			continue
		}
		lineNo := i + 1

		hard := d.hardcoded(path, line, lineNo)
		names := make(map[string]struct{}, len(hard))
		for _, c := range hard {
			names[c.key.Name] = struct{}{}
		}
		refs := d.references(path, line, lineNo, names)

		for _, c := range append(hard, refs...) {
			k := c.key
			k.Context = strings.Join(scanner.Around(lines, lineNo, contextLines), "\n")
			k.UsedBy = usedBy(elements, lineNo)
			k.RelatedServices = relatedServices(k, svcs)
			if !k.Accepted(d.threshold) {
				continue
			}
			out.Keys = append(out.Keys, k)
			if k.KeyType == Hardcoded {
				out.Vulnerabilities = append(out.Vulnerabilities, vulnerability(k))
			}
		}
	}

	if len(out.Keys) > 0 {
		d.logger.Debug().Str("file", path).Int("keys", len(out.Keys)).Msg("api keys found")
	}
	return out
}

// hardcoded returns the literal keys on a line. Matches of several rules for
// the same value are folded into one key with their evidence summed.
func (d *Detector) hardcoded(path, line string, lineNo int) []*candidate {
	lower := strings.ToLower(line)
	if containsAny(lower, docMarkers) {
		return nil
	}

	var order []*candidate
	byValue := make(map[string]*candidate)
	for _, r := range d.rules.Rules(rules.APIKeyPatterns) {
		for _, m := range scanner.FindRule(line, r) {
			value := strings.Trim(m.Groups["value"], "\"'`")
			name := m.Groups["name"]
			if !d.plausible(lower, name, value) {
				continue
			}
			c, ok := byValue[value]
			if !ok {
				c = &candidate{value: value, kind: kindOf(r)}
				byValue[value] = c
				order = append(order, c)
			}
			if c.name == "" {
				c.name = name
			}
			if c.provider == "" {
				c.provider = r.Provider
			}
			c.reasons = append(c.reasons, reason{fmt.Sprintf("%s pattern matched", kindOf(r)), r.EffectiveWeight()})
		}
	}

	for _, c := range order {
		if c.name == "" {
			c.name = strings.ToUpper(c.kind)
		}
		provider := d.providerFromName(c.name)
		if p, r, ok := d.providerFromValue(c.value); ok {
			c.reasons = append(c.reasons, reason{fmt.Sprintf("value prefix '%s' (%s)", r.Pattern, p), r.EffectiveWeight()})
			if provider == "" {
				provider = p
			}
		}
		if provider == "" {
			provider = c.provider
		}
		if provider == "" {
			provider = GenericProvider
		}
		c.key = newKey(path, lineNo, c.name, Hardcoded, provider)
		c.key.ValuePreview = previewOf(c.value)
		for _, r := range c.reasons {
			c.key.Add(r.text, r.weight)
		}
	}
	return order
}

// plausible filters matches that are not literal secrets.
func (d *Detector) plausible(lowerLine, name, value string) bool {
	if value == "" || scanner.IsVariableReference(value) || scanner.IsPlaceholder(value) {
		return false
	}
	if !scanner.LooksLikeSecret(value) {
		return false
	}
	if strings.Contains(strings.ToLower(name), "token") && containsAny(lowerLine, tokenNoise) {
		return false
	}
	return true
}

// references returns environment lookups of key-like variables on a line,
// skipping names already reported as hardcoded there.
func (d *Detector) references(path, line string, lineNo int, skip map[string]struct{}) []*candidate {
	var out []*candidate
	seen := make(map[string]*candidate)
	for _, r := range d.rules.Rules(rules.EnvReferencePatterns) {
		for _, m := range scanner.FindRule(line, r) {
			name := m.Groups["name"]
			if name == "" || !isKeyVariable(name) {
				continue
			}
			if _, dup := skip[name]; dup {
				continue
			}
			c, ok := seen[name]
			if !ok {
				provider := d.providerFromName(name)
				if provider == "" {
					provider = GenericProvider
				}
				c = &candidate{name: name, key: newKey(path, lineNo, name, EnvReference, provider)}
				seen[name] = c
				out = append(out, c)
			}
			c.key.Add(fmt.Sprintf("%s environment reference", kindOf(r)), r.EffectiveWeight())
		}
	}
	return out
}

// providerFromName returns the provider of the first key_providers rule found
// in the lowercased name, or "".
func (d *Detector) providerFromName(name string) string {
	lower := strings.ToLower(name)
	for _, r := range d.rules.Rules(rules.KeyProviders) {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r.Provider
		}
	}
	return ""
}

func (d *Detector) providerFromValue(value string) (string, rules.Rule, bool) {
	for _, r := range d.rules.Rules(rules.KeyValuePrefixes) {
		if strings.HasPrefix(value, r.Pattern) {
			return r.Provider, r, true
		}
	}
	return "", rules.Rule{}, false
}

func newKey(path string, line int, name string, kind Kind, provider string) *APIKey {
	k := &APIKey{Name: name, KeyType: kind, Provider: provider}
	k.Target = name
	k.Kind = string(kind)
	k.OriginFile = path
	k.OriginLine = line
	k.ID = iac.StableID("apikey", k.NaturalKey())
	return k
}

func vulnerability(k *APIKey) *iac.Vulnerability {
	v := iac.NewVulnerability(iac.CheckHardcodedKey, k.ID, k.Name, k.OriginFile, k.OriginLine,
		fmt.Sprintf("hardcoded %s key %s", k.Provider, k.Name))
	v.Description = iac.CheckHardcodedKey.Description + ": " + k.Name
	return v
}

// usedBy lists the elements starting within usedByDistance lines of line.
func usedBy(elements []*extractor.CodeElement, line int) []string {
	var out []string
	for _, el := range elements {
		if el.StartLine >= line-usedByDistance && el.StartLine <= line+usedByDistance {
			out = append(out, el.ID)
		}
	}
	return out
}

// relatedServices names the services sharing the key's provider or whose
// provider appears in the key name.
func relatedServices(k *APIKey, svcs []*services.Service) []string {
	upperName := strings.ToUpper(k.Name)
	set := make(map[string]struct{})
	for _, s := range svcs {
		if s.Provider == services.UnknownProvider {
			continue
		}
		p := strings.ToUpper(s.Provider)
		if strings.EqualFold(s.Provider, k.Provider) ||
			strings.Contains(upperName, p) ||
			strings.Contains(upperName, strings.ReplaceAll(p, "_", "")) {
			set[s.Name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	if len(out) > relatedLimit {
		out = out[:relatedLimit]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isKeyVariable(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "api") && strings.Contains(lower, "key") {
		return true
	}
	return containsAny(lower, keyVariableMarkers)
}

// previewOf keeps the first previewLength runes of value.
func previewOf(value string) string {
	if utf8.RuneCountInString(value) <= previewLength {
		return value
	}
	return string([]rune(value)[:previewLength]) + "..."
}

func kindOf(r rules.Rule) string {
	if r.Kind == "" {
		return "api_key"
	}
	return r.Kind
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
