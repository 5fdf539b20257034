package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// BuildStableElementID creates a deterministic element ID.
// The ID is derived from identity fields and the canonical declaration, so it
// survives edits elsewhere in the file that shift line numbers.
func BuildStableElementID(el *CodeElement) string {
	if el == nil {
		return ""
	}

	lang := strings.TrimSpace(el.Language)
	if lang == "" {
		lang = "unknown"
	}

	file := strings.TrimSpace(el.Filepath)
	if file == "" {
		file = "_"
	}

	kind := strings.TrimSpace(el.UnitType)
	if kind == "" {
		kind = "element"
	}

	name := strings.TrimSpace(el.Name)
	if name == "" {
		name = "_"
	}

	fingerprint := strings.Join([]string{
		lang,
		file,
		kind,
		canonicalize(el.Parent),
		name,
		canonicalize(el.Signature),
	}, "|")

	sum := sha256.Sum256([]byte(fingerprint))
	short := hex.EncodeToString(sum[:8])
	return fmt.Sprintf("%s/%s:%s:%s:%s", lang, file, kind, el.QualifiedName(), short)
}

func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}
