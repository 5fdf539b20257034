package iac

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"repograph/internal/crawler"
	"repograph/internal/rules"
)

// Detector routes infrastructure and security files to their parsers.
type Detector struct {
	rules     *rules.RuleSet
	threshold float64
	logger    zerolog.Logger
}

func NewDetector(rs *rules.RuleSet, threshold float64, logger zerolog.Logger) *Detector {
	return &Detector{
		rules:     rs,
		threshold: threshold,
		logger:    logger.With().Str("component", "iac_detector").Logger(),
	}
}

// DetectFile returns the entities and vulnerabilities found in one file.
// Files of no interest yield an empty result.
func (d *Detector) DetectFile(f crawler.File) Result {
	name := f.Name()
	ext := filepath.Ext(name)

	var out Result
	switch {
	case ext == ".tf":
		out.add(d.terraform(f.Path, f.Content))
	case IsServerless(name):
		out.add(d.serverless(f.Path, f.Content))
	case IsFirebaseRules(name):
		out.add(d.firebase(f.Path, f.Content))
	case isTemplateExt(ext) && IsCloudFormation(f.Content):
		out.add(d.cloudFormation(f.Path, f.Content))
	case isEnvFile(name):
		out.add(d.envConfig(f.Path, f.Content))
	}
	if IsSecurityConfig(name) {
		out.add(d.securityConfig(f.Path, f.Content))
	}
	return out
}

func isTemplateExt(ext string) bool {
	switch ext {
	case ".yaml", ".yml", ".json", ".template":
		return true
	}
	return false
}

func isEnvFile(name string) bool {
	return name == ".env" || strings.HasPrefix(name, ".env.") || strings.HasSuffix(name, ".env")
}

// LinkRoles relates each Lambda function to the IAM role it names. A role in
// the function's own file wins over one declared elsewhere.
func LinkRoles(entities []*Entity) []*Relationship {
	roles := make(map[string][]*Entity)
	for _, e := range entities {
		if e.Type == IamRole {
			roles[e.Name] = append(roles[e.Name], e)
		}
	}

	var out []*Relationship
	for _, fn := range entities {
		if fn.Type != LambdaFunction {
			continue
		}
		ref := fn.ConfigString("role")
		candidates := roles[ref]
		if ref == "" || len(candidates) == 0 {
			continue
		}
		role := candidates[0]
		for _, c := range candidates {
			if c.OriginFile == fn.OriginFile {
				role = c
				break
			}
		}

		r := &Relationship{
			SourceID:         fn.ID,
			TargetID:         role.ID,
			RelationshipType: "uses",
			Permissions:      []string{"assume_role"},
		}
		r.Subject = fn.Name
		r.Target = role.Name
		r.Kind = "uses"
		r.OriginFile = fn.OriginFile
		r.OriginLine = fn.OriginLine
		r.Add("function role references "+role.Name, 1.0)
		r.Rescore()
		out = append(out, r)
	}
	return out
}
