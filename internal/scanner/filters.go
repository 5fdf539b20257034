package scanner

import (
	"strings"
	"unicode"
)

var commentPrefixes = []string{"//", "#", "/*", "*", "--", "<!--", ";;"}

// IsCommentLine reports a line whose first non-blank text opens or continues a comment.
func IsCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "#!") {
		return false
	}
	for _, p := range commentPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

// IsTypeDeclaration reports lines declaring a type or interface rather than a value.
func IsTypeDeclaration(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	switch {
	case strings.Contains(l, "interface "), strings.HasPrefix(l, "interface{"):
		return true
	case strings.Contains(l, "typedef"):
		return true
	case (strings.HasPrefix(l, "type ") || strings.HasPrefix(l, "export type ")) && strings.Contains(l, "="):
		return true
	}
	return false
}

var placeholderMarkers = []string{
	"example",
	"placeholder",
	"your_",
	"your-",
	"yourkey",
	"replace_",
	"replace-",
	"replaceme",
	"changeme",
	"change_me",
	"dummy",
	"<",
	">",
}

// IsPlaceholder reports example or template values such as "your_api_key_here".
func IsPlaceholder(value string) bool {
	v := strings.ToLower(trimQuotes(value))
	if v == "" {
		return true
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

var referenceMarkers = []string{
	"${",
	"$(",
	"{{",
	"process.env",
	"process['env']",
	`process["env"]`,
	"process.",
	"getenv",
	"environ",
	"config.",
	"env.",
}

// IsVariableReference reports values that name another value instead of being
// a literal: interpolation, environment lookups, config access or a single
// property-access chain like firebaseConfig.apiKey.
func IsVariableReference(value string) bool {
	v := trimQuotes(value)
	if strings.HasPrefix(v, "$") {
		return true
	}
	for _, m := range referenceMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	if strings.Count(v, ".") == 1 && isAccessChain(v) {
		return true
	}
	return false
}

func isAccessChain(v string) bool {
	parts := strings.Split(v, ".")
	for _, p := range parts {
		if p == "" || !(unicode.IsLetter(rune(p[0])) || p[0] == '_' || p[0] == '$') {
			return false
		}
		for _, r := range p {
			if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$') {
				return false
			}
		}
	}
	return true
}

// LooksLikeSecret applies shape heuristics to a literal value: long enough,
// not a URL or path, mostly alphanumeric.
func LooksLikeSecret(value string) bool {
	v := trimQuotes(value)
	if IsVariableReference(v) || len(v) < 20 {
		return false
	}
	if strings.Contains(v, "://") || strings.Count(v, "/") > 1 || strings.Contains(v, `\`) {
		return false
	}
	stripeLike := strings.HasPrefix(v, "sk_") || strings.HasPrefix(v, "pk_")
	if strings.Contains(v, " ") && !stripeLike {
		return false
	}
	if strings.Count(v, ".") > 2 && !stripeLike {
		return false
	}

	alnum, total := 0, 0
	for _, r := range v {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	return total > 0 && float64(alnum)/float64(total) >= 0.7
}

func trimQuotes(v string) string {
	return strings.Trim(strings.TrimSpace(v), "\"'`")
}
