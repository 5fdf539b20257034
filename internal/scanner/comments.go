package scanner

import (
	"path/filepath"
	"strings"
)

// Language returns a language tag from a file extension, or "" when unknown.
func Language(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".py":
		return "python"
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".java", ".kt":
		return "java"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".cs":
		return "csharp"
	}
	return ""
}

// IsCode reports whether path is a source file for a known language.
func IsCode(path string) bool { return Language(path) != "" }

type span struct{ start, end int }

// CommentIndex answers whether a byte offset falls inside a comment.
type CommentIndex struct {
	spans []span
}

// NewCommentIndex records block comments and line comments for the language's syntax.
func NewCommentIndex(text, lang string) *CommentIndex {
	ci := &CommentIndex{}
	hashComments := lang == "python" || lang == "ruby" || lang == ""
	slashComments := lang != "python" && lang != "ruby"

	if slashComments {
		for from := 0; ; {
			i := strings.Index(text[from:], "/*")
			if i < 0 {
				break
			}
			start := from + i
			j := strings.Index(text[start+2:], "*/")
			end := len(text)
			if j >= 0 {
				end = start + 2 + j + 2
			}
			ci.spans = append(ci.spans, span{start, end})
			from = end
			if from >= len(text) {
				break
			}
		}
	}

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if slashComments {
			if i := lineCommentStart(line, "//"); i >= 0 {
				ci.spans = append(ci.spans, span{offset + i, offset + len(line)})
			}
		}
		if hashComments {
			if i := lineCommentStart(line, "#"); i >= 0 {
				ci.spans = append(ci.spans, span{offset + i, offset + len(line)})
			}
		}
		offset += len(line)
	}
	return ci
}

// Contains reports whether pos lies inside any recorded comment.
func (ci *CommentIndex) Contains(pos int) bool {
	for _, s := range ci.spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}

// lineCommentStart finds marker outside quotes, ignoring the // of URLs.
func lineCommentStart(line, marker string) int {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' || c == '`' {
			quote = c
			continue
		}
		if strings.HasPrefix(line[i:], marker) {
			if marker == "//" && i > 0 && line[i-1] == ':' {
				continue
			}
			return i
		}
	}
	return -1
}
