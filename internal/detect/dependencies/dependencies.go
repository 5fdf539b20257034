// Package dependencies extracts declared third-party packages from manifests.
package dependencies

import (
	"path"

	"repograph/internal/crawler"
	"repograph/internal/finding"
)

// PackageManager identifies the ecosystem a manifest belongs to.
type PackageManager string

const (
	Npm   PackageManager = "npm"
	Pip   PackageManager = "pip"
	Cargo PackageManager = "cargo"
	Maven PackageManager = "maven"
	Go    PackageManager = "go"
)

// Dependency is one declared package. Its natural key is (name, package manager).
type Dependency struct {
	finding.Candidate
	Name           string         `json:"name"`
	Version        string         `json:"version"`
	PackageManager PackageManager `json:"package_manager"`
	IsDev          bool           `json:"is_dev"`
	IsOptional     bool           `json:"is_optional"`
}

func (d *Dependency) NaturalKey() string {
	return d.Name + "\x00" + string(d.PackageManager)
}

func (d *Dependency) Core() *finding.Candidate { return &d.Candidate }

func (d *Dependency) Clone() *Dependency {
	out := *d
	out.Candidate = d.Candidate.Clone()
	return &out
}

// UnionAux keeps a dependency runtime-scoped when any manifest declares it so.
func (d *Dependency) UnionAux(other *Dependency) {
	d.IsDev = d.IsDev && other.IsDev
	d.IsOptional = d.IsOptional && other.IsOptional
	if isVague(d.Version) && !isVague(other.Version) {
		d.Version = other.Version
	}
}

func isVague(v string) bool {
	return v == "" || v == "unknown" || v == "latest"
}

func newDependency(manifest, name, version string, pm PackageManager) *Dependency {
	if version == "" {
		version = "unknown"
	}
	d := &Dependency{
		Name:           name,
		Version:        version,
		PackageManager: pm,
	}
	d.Target = name
	d.Kind = string(pm)
	d.Subject = manifest
	d.OriginFile = manifest
	d.Add("declared in "+path.Base(manifest), 1.0)
	d.Rescore()
	return d
}

// IsManifest reports whether p names a supported manifest file.
func IsManifest(p string) bool {
	_, ok := parserFor(p)
	return ok
}

type parser func(manifest string, data []byte) ([]*Dependency, error)

func parserFor(p string) (parser, bool) {
	base := path.Base(p)
	switch {
	case base == "package.json":
		return parseNpm, true
	case base == "Cargo.toml":
		return parseCargo, true
	case base == "pom.xml":
		return parseMaven, true
	case base == "go.mod":
		return parseGoMod, true
	case isRequirements(base):
		return parsePip, true
	}
	return nil, false
}

// Extract returns the dependencies declared in f. Files that are not
// manifests yield nothing; malformed manifests yield the parse error and no
// dependencies.
func Extract(f crawler.File) ([]*Dependency, error) {
	parse, ok := parserFor(f.Path)
	if !ok {
		return nil, nil
	}
	return parse(f.Path, f.Content)
}
