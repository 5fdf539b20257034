package dependencies

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

type packageJSON struct {
	Dependencies         map[string]any `json:"dependencies"`
	DevDependencies      map[string]any `json:"devDependencies"`
	OptionalDependencies map[string]any `json:"optionalDependencies"`
}

func parseNpm(manifest string, data []byte) ([]*Dependency, error) {
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifest, err)
	}

	var out []*Dependency
	add := func(deps map[string]any, dev, optional bool) {
		for _, name := range sortedKeys(deps) {
			version, _ := deps[name].(string)
			d := newDependency(manifest, name, version, Npm)
			d.IsDev = dev
			d.IsOptional = optional
			out = append(out, d)
		}
	}
	add(pkg.Dependencies, false, false)
	add(pkg.DevDependencies, true, false)
	add(pkg.OptionalDependencies, false, true)
	return out, nil
}

func isRequirements(base string) bool {
	return strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt")
}

// pipOperators are tried in order; two-character operators come first so
// "pkg>=1" is not read as "pkg" > "=1".
var pipOperators = []string{"==", ">=", "<=", "~=", "!=", ">", "<"}

func parsePip(manifest string, data []byte) ([]*Dependency, error) {
	var out []*Dependency
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") || strings.Contains(line, "://") {
			continue
		}
		spec := strings.Join(strings.Fields(line), "")

		name, version := spec, "latest"
		for _, op := range pipOperators {
			if i := strings.Index(spec, op); i > 0 {
				name = spec[:i]
				version = spec[i+len(op):]
				if op != "==" {
					version = op + version
				}
				break
			}
		}
		if i := strings.Index(name, "["); i > 0 {
			name = name[:i]
		}
		if name == "" {
			continue
		}
		out = append(out, newDependency(manifest, name, version, Pip))
	}
	return out, nil
}

func parseCargo(manifest string, data []byte) ([]*Dependency, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifest, err)
	}

	var out []*Dependency
	add := func(table string, dev bool) {
		deps, _ := doc[table].(map[string]any)
		for _, name := range sortedKeys(deps) {
			var version string
			var optional bool
			switch v := deps[name].(type) {
			case string:
				version = v
			case map[string]any:
				version, _ = v["version"].(string)
				optional, _ = v["optional"].(bool)
			}
			d := newDependency(manifest, name, version, Cargo)
			d.IsDev = dev
			d.IsOptional = optional
			out = append(out, d)
		}
	}
	add("dependencies", false)
	add("dev-dependencies", true)
	add("build-dependencies", true)
	return out, nil
}

type pomProject struct {
	Dependencies []pomDependency `xml:"dependencies>dependency"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}

func parseMaven(manifest string, data []byte) ([]*Dependency, error) {
	var project pomProject
	if err := xml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifest, err)
	}

	var out []*Dependency
	for _, pd := range project.Dependencies {
		name := strings.TrimSpace(pd.ArtifactID)
		if name == "" {
			continue
		}
		d := newDependency(manifest, name, strings.TrimSpace(pd.Version), Maven)
		d.IsDev = strings.TrimSpace(pd.Scope) == "test"
		d.IsOptional = strings.TrimSpace(pd.Optional) == "true"
		if g := strings.TrimSpace(pd.GroupID); g != "" {
			d.SetExtra("group_id", g)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseGoMod(manifest string, data []byte) ([]*Dependency, error) {
	f, err := modfile.ParseLax(manifest, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifest, err)
	}

	out := make([]*Dependency, 0, len(f.Require))
	for _, r := range f.Require {
		d := newDependency(manifest, r.Mod.Path, r.Mod.Version, Go)
		if r.Indirect {
			d.SetExtra("indirect", true)
		}
		out = append(out, d)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
