// Package iac extracts infrastructure-security entities from Terraform,
// CloudFormation, SAM, Serverless and Firebase files, and flags insecure
// configurations.
package iac

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"repograph/internal/finding"
)

// ErrUnknownEntityType is returned by ParseEntityType for names outside the closed set.
var ErrUnknownEntityType = errors.New("unknown security entity type")

// EntityType classifies a security entity.
type EntityType string

const (
	IamRole           EntityType = "IamRole"
	IamPolicy         EntityType = "IamPolicy"
	LambdaFunction    EntityType = "LambdaFunction"
	S3Bucket          EntityType = "S3Bucket"
	SecurityGroup     EntityType = "SecurityGroup"
	Vpc               EntityType = "Vpc"
	Subnet            EntityType = "Subnet"
	Ec2Instance       EntityType = "Ec2Instance"
	RdsInstance       EntityType = "RdsInstance"
	ApiGateway        EntityType = "ApiGateway"
	FirebaseRules     EntityType = "FirebaseRules"
	EnvironmentConfig EntityType = "EnvironmentConfig"
	SecurityConfig    EntityType = "SecurityConfig"
	ApiKey            EntityType = "ApiKey"
)

var entityTypes = []EntityType{
	IamRole, IamPolicy, LambdaFunction, S3Bucket, SecurityGroup, Vpc, Subnet,
	Ec2Instance, RdsInstance, ApiGateway, FirebaseRules, EnvironmentConfig,
	SecurityConfig, ApiKey,
}

func ParseEntityType(s string) (EntityType, error) {
	for _, t := range entityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
}

// Severity ranks a vulnerability.
type Severity string

const (
	Critical Severity = "Critical"
	High     Severity = "High"
	Medium   Severity = "Medium"
	Low      Severity = "Low"
	Info     Severity = "Info"
)

// Rank orders severities from Critical (0) to Info (4). Unknown values rank last.
func (s Severity) Rank() int {
	switch s {
	case Critical:
		return 0
	case High:
		return 1
	case Medium:
		return 2
	case Low:
		return 3
	case Info:
		return 4
	default:
		return 5
	}
}

const (
	ProviderAWS      = "aws"
	ProviderFirebase = "firebase"
	ProviderGeneric  = "generic"
)

// Entity is one infrastructure resource or security-relevant file. Its natural
// key is (type, name, file). Configuration stays open; the well-known region
// and arn keys are lifted into typed fields.
type Entity struct {
	finding.Candidate
	ID            string         `json:"id"`
	Type          EntityType     `json:"entity_type"`
	Name          string         `json:"name"`
	Provider      string         `json:"provider"`
	Configuration map[string]any `json:"configuration,omitempty"`
	Arn           *string        `json:"arn,omitempty"`
	Region        *string        `json:"region,omitempty"`
}

func (e *Entity) NaturalKey() string {
	return string(e.Type) + "\x00" + e.Name + "\x00" + e.OriginFile
}

func (e *Entity) Core() *finding.Candidate { return &e.Candidate }

func (e *Entity) Clone() *Entity {
	out := *e
	out.Candidate = e.Candidate.Clone()
	out.Configuration = maps.Clone(e.Configuration)
	return &out
}

func (e *Entity) UnionAux(other *Entity) {
	if e.Arn == nil {
		e.Arn = other.Arn
	}
	if e.Region == nil {
		e.Region = other.Region
	}
}

// NewEntity builds an entity with a stable id derived from its natural key.
// Region and arn found in config are normalized into the typed fields.
func NewEntity(typ EntityType, name, provider, file string, line int, config map[string]any) *Entity {
	e := &Entity{Type: typ, Name: name, Provider: provider, Configuration: config}
	e.Target = name
	e.Kind = string(typ)
	e.OriginFile = file
	e.OriginLine = line
	e.ID = stableID("entity", e.NaturalKey())
	e.normalize()
	return e
}

func (e *Entity) normalize() {
	if v, ok := e.Configuration["region"].(string); ok && v != "" {
		e.Region = &v
	}
	if v, ok := e.Configuration["arn"].(string); ok && v != "" {
		e.Arn = &v
	}
}

// SetConfig records a configuration value, ignoring empty strings.
func (e *Entity) SetConfig(key string, v any) {
	if s, ok := v.(string); ok && s == "" {
		return
	}
	if e.Configuration == nil {
		e.Configuration = make(map[string]any)
	}
	e.Configuration[key] = v
	if key == "region" || key == "arn" {
		e.normalize()
	}
}

// ConfigString returns a string configuration value.
func (e *Entity) ConfigString(key string) string {
	s, _ := e.Configuration[key].(string)
	return s
}

// Vulnerability is an insecure configuration of an entity. Its natural key is
// (file, line, type).
type Vulnerability struct {
	finding.Candidate
	ID             string   `json:"id"`
	EntityID       string   `json:"entity_id"`
	Type           string   `json:"vulnerability_type"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

func (v *Vulnerability) NaturalKey() string {
	return v.OriginFile + "\x00" + strconv.Itoa(v.OriginLine) + "\x00" + v.Type
}

func (v *Vulnerability) Core() *finding.Candidate { return &v.Candidate }

func (v *Vulnerability) Clone() *Vulnerability {
	out := *v
	out.Candidate = v.Candidate.Clone()
	return &out
}

func (v *Vulnerability) UnionAux(*Vulnerability) {}

// NewVulnerability builds a vulnerability against the entity with id
// entityID, located at file and line.
func NewVulnerability(check Check, entityID, entityName, file string, line int, reason string) *Vulnerability {
	v := &Vulnerability{
		EntityID:       entityID,
		Type:           check.Type,
		Severity:       check.Severity,
		Description:    check.Description,
		Recommendation: check.Recommendation,
	}
	v.Subject = entityID
	v.Target = entityName
	v.Kind = check.Type
	v.OriginFile = file
	v.OriginLine = line
	v.ID = stableID("vulnerability", v.NaturalKey())
	v.Add(reason, check.Weight)
	v.Rescore()
	return v
}

// Relationship links two entities, such as a Lambda function and the role it assumes.
type Relationship struct {
	finding.Candidate
	SourceID         string   `json:"source_entity_id"`
	TargetID         string   `json:"target_entity_id"`
	RelationshipType string   `json:"relationship_type"`
	Permissions      []string `json:"permissions,omitempty"`
}

func (r *Relationship) NaturalKey() string {
	return r.SourceID + "\x00" + r.TargetID + "\x00" + r.RelationshipType
}

func (r *Relationship) Core() *finding.Candidate { return &r.Candidate }

func (r *Relationship) Clone() *Relationship {
	out := *r
	out.Candidate = r.Candidate.Clone()
	out.Permissions = append([]string(nil), r.Permissions...)
	return &out
}

func (r *Relationship) UnionAux(other *Relationship) {
	r.Permissions = finding.UnionStrings(r.Permissions, other.Permissions...)
}

// Result groups what one file yielded.
type Result struct {
	Entities        []*Entity
	Vulnerabilities []*Vulnerability
}

func (r *Result) add(o Result) {
	r.Entities = append(r.Entities, o.Entities...)
	r.Vulnerabilities = append(r.Vulnerabilities, o.Vulnerabilities...)
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("repograph/security"))

// stableID derives a name-based UUID so that the same finding gets the same
// id in every run and duplicates collapse onto one id.
func stableID(kind, key string) string {
	return uuid.NewSHA1(idNamespace, []byte(kind+"\x00"+key)).String()
}

// StableID exposes the id scheme to other detectors producing security findings.
func StableID(kind string, parts ...string) string {
	return stableID(kind, strings.Join(parts, "\x00"))
}
