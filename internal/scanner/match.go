package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"repograph/internal/rules"
)

// Match is one occurrence of a rule pattern in a text.
type Match struct {
	Start  int // byte offset
	End    int
	Line   int // 1-based
	Groups map[string]string
}

// MatchWord reports whether pattern occurs in text on word boundaries, ignoring case.
func MatchWord(text, pattern string) bool {
	return len(FindWord(text, pattern)) > 0
}

// FindWord returns the byte offsets of every case-insensitive occurrence of
// pattern whose neighbours are boundaries. The start and end of text count as
// boundaries; so does any rune that is neither a letter nor a digit, which
// includes the separators _ - / and . A pattern edge that is itself a
// separator, as in "@aws-sdk/", needs no boundary on that side.
func FindWord(text, pattern string) []int {
	if pattern == "" {
		return nil
	}
	first, _ := utf8.DecodeRuneInString(pattern)
	last, _ := utf8.DecodeLastRuneInString(pattern)
	checkBefore, checkAfter := !isBoundary(first), !isBoundary(last)

	var out []int
	for _, pos := range findFold(text, pattern) {
		if checkBefore && !boundaryBefore(text, pos) {
			continue
		}
		if checkAfter && !boundaryAfter(text, pos+len(pattern)) {
			continue
		}
		out = append(out, pos)
	}
	return out
}

// ContainsFold reports a case-insensitive substring match.
func ContainsFold(text, pattern string) bool {
	return pattern != "" && len(findFold(text, pattern)) > 0
}

// HasPrefixFold reports a case-insensitive prefix match.
func HasPrefixFold(text, prefix string) bool {
	return len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix)
}

// FindRule applies r to text according to its match mode. Word matches are
// boundary-checked; regex, prefix and substring rules are taken as-is.
func FindRule(text string, r rules.Rule) []Match {
	var out []Match
	switch r.Mode() {
	case rules.MatchWord:
		for _, pos := range FindWord(text, r.Pattern) {
			out = append(out, Match{Start: pos, End: pos + len(r.Pattern)})
		}
	case rules.MatchSubstring:
		for _, pos := range findFold(text, r.Pattern) {
			out = append(out, Match{Start: pos, End: pos + len(r.Pattern)})
		}
	case rules.MatchPrefix:
		if HasPrefixFold(text, r.Pattern) {
			out = append(out, Match{Start: 0, End: len(r.Pattern)})
		}
	case rules.MatchRegex:
		re, err := rules.Compile(r.Pattern)
		if err != nil {
			return nil
		}
		names := re.SubexpNames()
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			m := Match{Start: loc[0], End: loc[1]}
			for i, name := range names {
				if name == "" || loc[2*i] < 0 {
					continue
				}
				if m.Groups == nil {
					m.Groups = make(map[string]string)
				}
				m.Groups[name] = text[loc[2*i]:loc[2*i+1]]
			}
			out = append(out, m)
		}
	}

	if len(out) > 0 {
		idx := NewLineIndex(text)
		for i := range out {
			out[i].Line = idx.LineOf(out[i].Start)
		}
	}
	return out
}

// MatchesRule reports whether r matches anywhere in text.
func MatchesRule(text string, r rules.Rule) bool {
	return len(FindRule(text, r)) > 0
}

func findFold(text, pattern string) []int {
	lt, lp := lowerASCII(text), lowerASCII(pattern)
	var out []int
	for from := 0; from <= len(lt)-len(lp); {
		i := strings.Index(lt[from:], lp)
		if i < 0 {
			break
		}
		out = append(out, from+i)
		from += i + 1
	}
	return out
}

// lowerASCII lowercases ASCII letters only so byte offsets stay aligned with the input.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return isBoundary(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return isBoundary(r)
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
