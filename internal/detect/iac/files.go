package iac

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"repograph/internal/scanner"
)

const (
	fileEvidenceWeight = 1.0
	previewLimit       = 500
	variableLimit      = 20
)

// IsFirebaseRules reports Firestore, Storage and Realtime Database rule files.
func IsFirebaseRules(name string) bool {
	return strings.HasSuffix(name, ".rules") || name == "database.rules.json"
}

func firebaseRuleType(name string) string {
	switch {
	case strings.Contains(name, "firestore"):
		return "Firestore Rules"
	case strings.Contains(name, "storage"):
		return "Storage Rules"
	case strings.Contains(name, "database"):
		return "Database Rules"
	default:
		return "Firebase Rules"
	}
}

var (
	allowReadWrite = []string{"allow read, write: if true", "allow read, write: if request.auth == null"}
	rtdbOpen       = []string{`".read": true`, `".write": true`, `".read": "true"`, `".write": "true"`}
)

// firebase records the rules file and flags rules that grant access
// unconditionally or without an auth check. Only the first unauthenticated
// rule of a file is reported.
func (d *Detector) firebase(path string, f []byte) Result {
	name := strings.ToLower(filepath.Base(path))
	ruleType := firebaseRuleType(name)
	text := string(f)

	e := NewEntity(FirebaseRules, fmt.Sprintf("%s (%s)", filepath.Base(path), ruleType), ProviderFirebase, path, 0, nil)
	e.Add("firebase rules file "+filepath.Base(path), fileEvidenceWeight)
	e.SetConfig("file_name", filepath.Base(path))
	e.SetConfig("rule_type", ruleType)
	e.SetConfig("content_preview", preview(text))
	if !e.Accepted(d.threshold) {
		return Result{}
	}
	out := Result{Entities: []*Entity{e}}

	lines := scanner.Lines(text)
	for i, line := range lines {
		if containsAny(line, allowReadWrite) || containsAny(line, rtdbOpen) ||
			(strings.Contains(line, "allow read, write") && strings.Contains(line, "if true")) {
			v := NewVulnerability(CheckFirebaseOpen, e.ID, e.Name, path, i+1, "unrestricted rule: "+strings.TrimSpace(line))
			v.Description = ruleType + " " + CheckFirebaseOpen.Description
			out.Vulnerabilities = append(out.Vulnerabilities, v)
			break
		}
	}
	for i, line := range lines {
		if scanner.IsCommentLine(line) {
			continue
		}
		if !strings.Contains(line, "allow read") && !strings.Contains(line, "allow write") {
			continue
		}
		if strings.Contains(line, "request.auth") || strings.Contains(line, "if false") {
			continue
		}
		v := NewVulnerability(CheckFirebaseAuth, e.ID, e.Name, path, i+1, "rule without auth check: "+strings.TrimSpace(line))
		v.Description = ruleType + " " + CheckFirebaseAuth.Description
		out.Vulnerabilities = append(out.Vulnerabilities, v)
		break
	}
	return out
}

var secretNameMarkers = []string{"secret", "key", "password", "token"}

// envConfig records an environment file by its variable names. Values are
// never stored.
func (d *Detector) envConfig(path string, f []byte) Result {
	var vars []string
	hasSecrets := false
	for _, line := range scanner.Lines(string(f)) {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		t = strings.TrimPrefix(t, "export ")
		name, _, ok := strings.Cut(t, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if containsAny(strings.ToLower(name), secretNameMarkers) {
			hasSecrets = true
		}
		vars = append(vars, name)
	}
	if len(vars) == 0 {
		return Result{}
	}

	base := filepath.Base(path)
	e := NewEntity(EnvironmentConfig, base, ProviderGeneric, path, 0, nil)
	e.Add(fmt.Sprintf("environment file declares %d variables", len(vars)), fileEvidenceWeight)
	e.SetConfig("file_name", base)
	e.SetConfig("variable_count", len(vars))
	e.SetConfig("has_secrets", hasSecrets)
	if len(vars) > variableLimit {
		vars = vars[:variableLimit]
	}
	e.SetConfig("variables", vars)
	if !e.Accepted(d.threshold) {
		return Result{}
	}
	return Result{Entities: []*Entity{e}}
}

// IsSecurityConfig reports JSON or YAML files named after security settings.
func IsSecurityConfig(name string) bool {
	if !strings.Contains(name, "security") {
		return false
	}
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// securityConfig keeps the parsed content of a security settings file, or a
// preview when it does not parse.
func (d *Detector) securityConfig(path string, f []byte) Result {
	base := filepath.Base(path)
	e := NewEntity(SecurityConfig, base, ProviderGeneric, path, 0, nil)
	e.Add("security configuration file "+base, fileEvidenceWeight)
	e.SetConfig("file_name", base)

	var doc any
	switch {
	case json.Unmarshal(f, &doc) == nil:
		e.SetConfig("config_type", "json")
		e.SetConfig("content", doc)
	case yaml.Unmarshal(f, &doc) == nil && doc != nil:
		e.SetConfig("config_type", "yaml")
		e.SetConfig("content", doc)
	default:
		e.SetConfig("content_preview", preview(string(f)))
	}
	if !e.Accepted(d.threshold) {
		return Result{}
	}
	return Result{Entities: []*Entity{e}}
}

func preview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	return s[:previewLimit] + "..."
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
