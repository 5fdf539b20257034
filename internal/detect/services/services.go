// Package services detects external services a repository talks to.
package services

import (
	"maps"
	"strings"

	"repograph/internal/finding"
)

// Type classifies a service.
type Type string

const (
	Database      Type = "Database"
	Auth          Type = "Auth"
	Payment       Type = "Payment"
	Storage       Type = "Storage"
	AI            Type = "AI"
	Monitoring    Type = "Monitoring"
	Hosting       Type = "Hosting"
	Messaging     Type = "Messaging"
	Analytics     Type = "Analytics"
	Email         Type = "Email"
	CloudProvider Type = "CloudProvider"
	Other         Type = "Other"
)

var knownTypes = []Type{Database, Auth, Payment, Storage, AI, Monitoring, Hosting, Messaging, Analytics, Email, CloudProvider, Other}

// ParseType maps a rule kind onto a Type. Unknown kinds are Other.
func ParseType(s string) Type {
	for _, t := range knownTypes {
		if strings.EqualFold(string(t), s) {
			return t
		}
	}
	return Other
}

// UnknownProvider names services whose provider could not be determined.
const UnknownProvider = "unknown"

// Service is one detected external service. Its natural key is
// (name, provider, type).
type Service struct {
	finding.Candidate
	Name          string            `json:"name"`
	Provider      string            `json:"provider"`
	Type          Type              `json:"service_type"`
	Configuration map[string]string `json:"configuration,omitempty"`
	// RelatedDependencies names packages that implement the service, used for RelatedTo edges.
	RelatedDependencies []string `json:"related_dependencies,omitempty"`
}

func (s *Service) NaturalKey() string {
	return s.Name + "\x00" + s.Provider + "\x00" + string(s.Type)
}

func (s *Service) Core() *finding.Candidate { return &s.Candidate }

func (s *Service) Clone() *Service {
	out := *s
	out.Candidate = s.Candidate.Clone()
	out.Configuration = maps.Clone(s.Configuration)
	out.RelatedDependencies = append([]string(nil), s.RelatedDependencies...)
	return &out
}

// UnionAux adds configuration keys missing from s and unions related dependencies.
func (s *Service) UnionAux(other *Service) {
	for k, v := range other.Configuration {
		if _, ok := s.Configuration[k]; ok {
			continue
		}
		if s.Configuration == nil {
			s.Configuration = make(map[string]string)
		}
		s.Configuration[k] = v
	}
	s.RelatedDependencies = finding.UnionStrings(s.RelatedDependencies, other.RelatedDependencies...)
}

func newService(name, provider string, typ Type, file string) *Service {
	if provider == "" {
		provider = UnknownProvider
	}
	s := &Service{Name: name, Provider: provider, Type: typ}
	s.Target = name
	s.Kind = string(typ)
	s.OriginFile = file
	return s
}

// accumulator collects evidence for the services of one file, keyed like Merge.
type accumulator struct {
	file  string
	order []*Service
	index map[string]*Service
}

func newAccumulator(file string) *accumulator {
	return &accumulator{file: file, index: make(map[string]*Service)}
}

// add records evidence for a service, creating it on first sight. The first
// evidence with a known line fixes the service's origin line.
func (a *accumulator) add(name, provider string, typ Type, reason string, weight float64, line int) *Service {
	probe := newService(name, provider, typ, a.file)
	key := probe.NaturalKey()
	s, ok := a.index[key]
	if !ok {
		s = probe
		a.index[key] = s
		a.order = append(a.order, s)
	}
	s.Add(reason, weight)
	if s.OriginLine == 0 && line > 0 {
		s.OriginLine = line
	}
	return s
}

func (a *accumulator) accepted(threshold float64) []*Service {
	var out []*Service
	for _, s := range a.order {
		if s.Accepted(threshold) {
			out = append(out, s)
		}
	}
	return out
}

func (s *Service) configure(key, value string) {
	if value == "" {
		return
	}
	if s.Configuration == nil {
		s.Configuration = make(map[string]string)
	}
	if _, ok := s.Configuration[key]; !ok {
		s.Configuration[key] = value
	}
}

func (s *Service) relate(dep string) {
	s.RelatedDependencies = finding.UnionStrings(s.RelatedDependencies, dep)
}
