// Package apikeys finds API keys written into source and configuration files,
// and references to keys held in the environment.
package apikeys

import (
	"strconv"

	"repograph/internal/finding"
)

// Kind tells a literal key from a reference to one.
type Kind string

const (
	Hardcoded    Kind = "hardcoded"
	EnvReference Kind = "env_reference"
)

// GenericProvider is used when neither the key name nor its value identify a provider.
const GenericProvider = "generic"

// APIKey is one key occurrence. Its natural key is (file, line, key name).
type APIKey struct {
	finding.Candidate
	ID              string   `json:"id"`
	Name            string   `json:"key_name"`
	KeyType         Kind     `json:"key_type"`
	Provider        string   `json:"provider"`
	ValuePreview    string   `json:"value_preview,omitempty"`
	Context         string   `json:"context"`
	UsedBy          []string `json:"used_by,omitempty"`
	RelatedServices []string `json:"related_services,omitempty"`
}

func (k *APIKey) NaturalKey() string {
	return k.OriginFile + "\x00" + strconv.Itoa(k.OriginLine) + "\x00" + k.Name
}

func (k *APIKey) Core() *finding.Candidate { return &k.Candidate }

func (k *APIKey) Clone() *APIKey {
	out := *k
	out.Candidate = k.Candidate.Clone()
	out.UsedBy = append([]string(nil), k.UsedBy...)
	out.RelatedServices = append([]string(nil), k.RelatedServices...)
	return &out
}

func (k *APIKey) UnionAux(other *APIKey) {
	k.UsedBy = finding.UnionStrings(k.UsedBy, other.UsedBy...)
	k.RelatedServices = finding.UnionStrings(k.RelatedServices, other.RelatedServices...)
}
