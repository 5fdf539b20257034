package extractor

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"repograph/internal/scanner"
)

// Pattern recognises one kind of declaration on a single line. Named groups
// "name" and optionally "recv" carry the identifier and receiver type.
type Pattern struct {
	Re       *regexp.Regexp
	UnitType string // empty for scope-only declarations such as Rust impl blocks
	// Member patterns only apply inside an enclosing container.
	Member bool
	// Container declarations open a scope that indented functions belong to.
	Container bool
}

// LanguageExtractor defines the declaration patterns for one language.
type LanguageExtractor interface {
	Language() string
	Patterns() []Pattern
}

type patternSet struct {
	lang     string
	patterns []Pattern
}

func (p *patternSet) Language() string   { return p.lang }
func (p *patternSet) Patterns() []Pattern { return p.patterns }

const jsMethodModifiers = `(?:(?:public|private|protected|static|async|readonly|override|get|set)\s+)*`

var (
	goExtractor = &patternSet{lang: "go", patterns: []Pattern{
		{Re: regexp.MustCompile(`^func\s+\(\s*(?:\w+\s+)?\*?\s*(?P<recv>\w+)(?:\[[^\]]*\])?\s*\)\s*(?P<name>\w+)`), UnitType: UnitMethod},
		{Re: regexp.MustCompile(`^func\s+(?P<name>\w+)`), UnitType: UnitFunction},
		{Re: regexp.MustCompile(`^type\s+(?P<name>\w+)(?:\[[^\]]*\])?\s+struct\b`), UnitType: UnitClass},
		{Re: regexp.MustCompile(`^type\s+(?P<name>\w+)(?:\[[^\]]*\])?\s+interface\b`), UnitType: UnitInterface},
	}}

	jsPatterns = []Pattern{
		{Re: regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(?P<name>\w+)`), UnitType: UnitClass, Container: true},
		{Re: regexp.MustCompile(`^\s*(?:export\s+)?interface\s+(?P<name>\w+)`), UnitType: UnitInterface},
		{Re: regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(?P<name>\w+)\s*[(<]`), UnitType: UnitFunction},
		{Re: regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(?P<name>\w+)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*(?::[^=]+)?=>|\w+\s*=>)`), UnitType: UnitFunction},
		{Re: regexp.MustCompile(`^\s+` + jsMethodModifiers + `(?P<name>\w+)\s*(?:<[^>]*>)?\s*\([^)]*\)\s*(?::\s*[^{]+)?\{`), UnitType: UnitMethod, Member: true},
	}
	jsExtractor = &patternSet{lang: "javascript", patterns: jsPatterns}
	tsExtractor = &patternSet{lang: "typescript", patterns: jsPatterns}

	pythonExtractor = &patternSet{lang: "python", patterns: []Pattern{
		{Re: regexp.MustCompile(`^\s*class\s+(?P<name>\w+)`), UnitType: UnitClass, Container: true},
		{Re: regexp.MustCompile(`^\s*(?:async\s+)?def\s+(?P<name>\w+)`), UnitType: UnitFunction},
	}}

	rustVis = `(?:pub(?:\([^)]*\))?\s+)?`

	rustExtractor = &patternSet{lang: "rust", patterns: []Pattern{
		{Re: regexp.MustCompile(`^\s*` + rustVis + `(?:struct|enum)\s+(?P<name>\w+)`), UnitType: UnitClass},
		{Re: regexp.MustCompile(`^\s*` + rustVis + `trait\s+(?P<name>\w+)`), UnitType: UnitInterface, Container: true},
		{Re: regexp.MustCompile(`^\s*impl(?:<[^>]*>)?\s+(?:[\w:]+(?:<[^>]*>)?\s+for\s+)?(?P<name>\w+)`), Container: true},
		{Re: regexp.MustCompile(`^\s*` + rustVis + `(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?(?:extern\s+"[^"]*"\s+)?fn\s+(?P<name>\w+)`), UnitType: UnitFunction},
	}}

	javaModifiers = `(?:(?:public|private|protected|abstract|final|static|sealed|synchronized|native|default)\s+)*`

	javaExtractor = &patternSet{lang: "java", patterns: []Pattern{
		{Re: regexp.MustCompile(`^\s*` + javaModifiers + `(?:class|record|enum)\s+(?P<name>\w+)`), UnitType: UnitClass, Container: true},
		{Re: regexp.MustCompile(`^\s*` + javaModifiers + `@?interface\s+(?P<name>\w+)`), UnitType: UnitInterface, Container: true},
		{Re: regexp.MustCompile(`^\s+` + javaModifiers + `(?:<[^>]+>\s+)?[\w.]+(?:<[^>]*>)?(?:\[\])*\s+(?P<name>\w+)\s*\([^;]*$`), UnitType: UnitMethod, Member: true},
	}}
)

// keywords that method patterns would otherwise mistake for names.
var controlKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {}, "return": {},
	"function": {}, "else": {}, "new": {}, "throw": {}, "do": {}, "try": {},
}

// Extractor orchestrates line-oriented extraction for one language.
type Extractor struct {
	langExtractor LanguageExtractor
	langName      string
}

// NewExtractor creates a new extractor for a given language.
func NewExtractor(lang string) (*Extractor, error) {
	var langExt LanguageExtractor
	switch lang {
	case "go":
		langExt = goExtractor
	case "javascript":
		langExt = jsExtractor
	case "typescript":
		langExt = tsExtractor
	case "python":
		langExt = pythonExtractor
	case "rust":
		langExt = rustExtractor
	case "java":
		langExt = javaExtractor
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return &Extractor{langExtractor: langExt, langName: lang}, nil
}

// ExtractElements picks the extractor from the file extension. Unsupported
// languages yield no elements.
func ExtractElements(path, content string) []*CodeElement {
	ext, err := NewExtractor(scanner.Language(path))
	if err != nil {
		return nil
	}
	return ext.Extract(path, content)
}

// ExtractFromFile reads a single source file and extracts its code elements.
func (e *Extractor) ExtractFromFile(path string) ([]*CodeElement, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return e.Extract(path, string(src)), nil
}

type container struct {
	name   string
	indent int
}

// Extract scans content line by line. Containers are tracked by indentation:
// a non-blank line at or left of a container's indentation closes it.
func (e *Extractor) Extract(path, content string) []*CodeElement {
	lines := scanner.Lines(content)
	var (
		elements []*CodeElement
		scopes   []container
	)

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || scanner.IsCommentLine(line) {
			continue
		}
		indent := indentOf(line)
		for len(scopes) > 0 && indent <= scopes[len(scopes)-1].indent && !isCloser(trimmed) {
			scopes = scopes[:len(scopes)-1]
		}

		for _, p := range e.langExtractor.Patterns() {
			m := p.Re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := group(p.Re, m, "name")
			if name == "" {
				continue
			}
			if _, kw := controlKeywords[name]; kw {
				continue
			}

			var parent string
			if len(scopes) > 0 {
				parent = scopes[len(scopes)-1].name
			}
			if p.Member && parent == "" {
				continue
			}

			if p.UnitType != "" {
				el := &CodeElement{
					Filepath:  path,
					Language:  e.langName,
					StartLine: i + 1,
					UnitType:  p.UnitType,
					Name:      name,
					Signature: canonicalize(trimmed),
				}
				switch {
				case p.UnitType == UnitMethod && group(p.Re, m, "recv") != "":
					el.Parent = group(p.Re, m, "recv")
				case p.UnitType == UnitFunction && parent != "":
					el.UnitType = UnitMethod
					el.Parent = parent
				case p.Member:
					el.Parent = parent
				}
				el.ID = BuildStableElementID(el)
				elements = append(elements, el)
			}
			if p.Container {
				scopes = append(scopes, container{name: name, indent: indent})
			}
			break
		}
	}

	for i, el := range elements {
		if i+1 < len(elements) {
			el.EndLine = elements[i+1].StartLine - 1
		} else {
			el.EndLine = len(lines)
		}
	}
	return elements
}

func group(re *regexp.Regexp, m []string, name string) string {
	i := re.SubexpIndex(name)
	if i < 0 || i >= len(m) {
		return ""
	}
	return m[i]
}

func indentOf(line string) int {
	n := 0
	for _, c := range line {
		switch c {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// isCloser reports lines like "}" or "};" that end a block at the container's indentation.
func isCloser(trimmed string) bool {
	return strings.TrimRight(trimmed, "});,") == ""
}
