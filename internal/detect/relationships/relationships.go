// Package relationships links code elements to the services and dependencies
// they use.
package relationships

import (
	"errors"
	"fmt"

	"repograph/internal/finding"
)

// ErrUnknownTargetKind is returned for a TargetKind outside the closed set.
var ErrUnknownTargetKind = errors.New("unknown relationship target kind")

// TargetKind is what a relationship points at.
type TargetKind string

const (
	TargetService    TargetKind = "Service"
	TargetDependency TargetKind = "Dependency"
)

// RelationshipType returns the verb used for relationships to k.
func (k TargetKind) RelationshipType() (string, error) {
	switch k {
	case TargetService:
		return "uses", nil
	case TargetDependency:
		return "imports", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTargetKind, string(k))
	}
}

// Relationship records that a code element uses a target. Its natural key is
// (element id, target kind, target name).
type Relationship struct {
	finding.Candidate
	ElementID        string     `json:"code_element_id"`
	ElementName      string     `json:"code_element_name"`
	TargetKind       TargetKind `json:"target_type"`
	TargetName       string     `json:"target_name"`
	RelationshipType string     `json:"relationship_type"`
}

func (r *Relationship) NaturalKey() string {
	return r.ElementID + "\x00" + string(r.TargetKind) + "\x00" + r.TargetName
}

func (r *Relationship) Core() *finding.Candidate { return &r.Candidate }

func (r *Relationship) Clone() *Relationship {
	out := *r
	out.Candidate = r.Candidate.Clone()
	return &out
}

func (r *Relationship) UnionAux(*Relationship) {}
