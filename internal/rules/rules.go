package rules

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Domain names one family of signal rules.
type Domain string

const (
	EnvironmentVariables Domain = "environment_variables"
	SDKPatterns          Domain = "sdk_patterns"
	APIEndpoints         Domain = "api_endpoints"
	DatabasePatterns     Domain = "database_patterns"
	ImportPatterns       Domain = "import_patterns"
	PackageSignals       Domain = "package_signals"
	AWSSDKv3Services     Domain = "aws_sdk_v3_services"
	AWSSDKv2Services     Domain = "aws_sdk_v2_services"
	ProviderSDKPatterns  Domain = "provider_sdk_patterns"
	APIKeyPatterns       Domain = "api_key_patterns"
	EnvReferencePatterns Domain = "env_reference_patterns"
	KeyProviders         Domain = "key_providers"
	KeyValuePrefixes     Domain = "key_value_prefixes"
	IaCResources         Domain = "iac_resources"
)

// Domains lists every domain in a stable order.
var Domains = []Domain{
	EnvironmentVariables,
	SDKPatterns,
	APIEndpoints,
	DatabasePatterns,
	ImportPatterns,
	PackageSignals,
	AWSSDKv3Services,
	AWSSDKv2Services,
	ProviderSDKPatterns,
	APIKeyPatterns,
	EnvReferencePatterns,
	KeyProviders,
	KeyValuePrefixes,
	IaCResources,
}

func (d Domain) Known() bool {
	for _, k := range Domains {
		if k == d {
			return true
		}
	}
	return false
}

// MatchMode selects how a rule pattern is compared against text.
type MatchMode string

const (
	// MatchWord is a case-insensitive word-boundary match, the default.
	MatchWord MatchMode = "word"
	// MatchRegex patterns are already delimiter-qualified and skip the boundary check.
	MatchRegex     MatchMode = "regex"
	MatchPrefix    MatchMode = "prefix"
	MatchSubstring MatchMode = "substring"
)

// DefaultWeight applies to rules without confidence_weight.
const DefaultWeight = 0.7

// Rule maps a textual pattern to a target identity and an evidence weight.
type Rule struct {
	Pattern     string    `json:"pattern"`
	Provider    string    `json:"provider"`
	Kind        string    `json:"kind,omitempty"`
	ServiceName string    `json:"service_name,omitempty"`
	Weight      float64   `json:"confidence_weight,omitempty"`
	Match       MatchMode `json:"match,omitempty"`
}

func (r Rule) Mode() MatchMode {
	if r.Match == "" {
		return MatchWord
	}
	return r.Match
}

func (r Rule) EffectiveWeight() float64 {
	if r.Weight == 0 {
		return DefaultWeight
	}
	return r.Weight
}

// Name returns the service name, or fallback formatted with the pattern when unset.
func (r Rule) Name(fallback string) string {
	if r.ServiceName != "" {
		return r.ServiceName
	}
	if fallback == "" {
		return r.Pattern
	}
	return fmt.Sprintf(fallback, strings.Trim(strings.ReplaceAll(r.Pattern, "://", ""), "@/"))
}

func (r Rule) key() string {
	return string(r.Mode()) + "\x00" + r.Pattern + "\x00" + r.Provider + "\x00" + r.Kind
}

// RuleSet is the loadable, mergeable document of signal rules.
type RuleSet struct {
	Version string            `json:"version"`
	Domains map[Domain][]Rule `json:"domains"`
}

// Rules returns the rules for d, in document order.
func (rs *RuleSet) Rules(d Domain) []Rule {
	if rs == nil {
		return nil
	}
	return rs.Domains[d]
}

// Lookup returns the first rule in d whose pattern equals value, ignoring case.
func (rs *RuleSet) Lookup(d Domain, value string) (Rule, bool) {
	for _, r := range rs.Rules(d) {
		if strings.EqualFold(r.Pattern, value) {
			return r, true
		}
	}
	return Rule{}, false
}

// Merge appends other's rules that are not already present and returns how many were added.
func (rs *RuleSet) Merge(other *RuleSet) int {
	if other == nil {
		return 0
	}
	if rs.Domains == nil {
		rs.Domains = make(map[Domain][]Rule)
	}

	added := 0
	for _, d := range Domains {
		incoming := other.Domains[d]
		if len(incoming) == 0 {
			continue
		}
		seen := make(map[string]struct{}, len(rs.Domains[d]))
		for _, r := range rs.Domains[d] {
			seen[r.key()] = struct{}{}
		}
		for _, r := range incoming {
			if _, ok := seen[r.key()]; ok {
				continue
			}
			seen[r.key()] = struct{}{}
			rs.Domains[d] = append(rs.Domains[d], r)
			added++
		}
	}
	return added
}

func (rs *RuleSet) Clone() *RuleSet {
	out := &RuleSet{Version: rs.Version, Domains: make(map[Domain][]Rule, len(rs.Domains))}
	for d, list := range rs.Domains {
		out.Domains[d] = append([]Rule(nil), list...)
	}
	return out
}

// Count returns the total number of rules.
func (rs *RuleSet) Count() int {
	n := 0
	for _, list := range rs.Domains {
		n += len(list)
	}
	return n
}

// Validate checks domains, weights and that regex rules compile.
func (rs *RuleSet) Validate() error {
	for d, list := range rs.Domains {
		if !d.Known() {
			return fmt.Errorf("unknown rule domain %q", d)
		}
		for i, r := range list {
			if r.Pattern == "" {
				return fmt.Errorf("%s[%d]: empty pattern", d, i)
			}
			if w := r.EffectiveWeight(); w <= 0 || w > 1 {
				return fmt.Errorf("%s[%d]: weight %v outside (0,1]", d, i, w)
			}
			switch r.Mode() {
			case MatchWord, MatchPrefix, MatchSubstring:
			case MatchRegex:
				if _, err := Compile(r.Pattern); err != nil {
					return fmt.Errorf("%s[%d]: %w", d, i, err)
				}
			default:
				return fmt.Errorf("%s[%d]: unknown match mode %q", d, i, r.Match)
			}
		}
	}
	return nil
}

// Parse decodes and validates a rule document.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to decode rule document: %w", err)
	}
	if rs.Domains == nil {
		rs.Domains = make(map[Domain][]Rule)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Load reads a base rule document from path.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules %s: %w", path, err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rs, nil
}

//go:embed defaults.json
var defaultDocument []byte

var (
	defaultOnce sync.Once
	defaultSet  *RuleSet
)

// Default returns a copy of the embedded rule set.
func Default() *RuleSet {
	defaultOnce.Do(func() {
		rs, err := Parse(defaultDocument)
		if err != nil {
			panic(fmt.Sprintf("embedded rules are invalid: %v", err))
		}
		defaultSet = rs
	})
	return defaultSet.Clone()
}
