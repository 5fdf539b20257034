package scanner

import (
	"sort"
	"strings"
)

// LineIndex maps byte offsets to 1-based line numbers.
type LineIndex struct {
	starts []int
}

func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts}
}

func (l *LineIndex) LineOf(offset int) int {
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset })
}

// Lines splits text into lines without trailing carriage returns.
func Lines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// Window returns the lines from before lines above line to after lines below
// it, clamped to the text, joined with newlines. line is 1-based; an
// out-of-range line yields an empty window.
func Window(lines []string, line, before, after int) string {
	if line < 1 || line > len(lines) {
		return ""
	}
	start := line - 1 - before
	if start < 0 {
		start = 0
	}
	end := line + after
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}

// Around returns up to n lines on each side of line, for display context.
func Around(lines []string, line, n int) []string {
	if line < 1 || line > len(lines) {
		return nil
	}
	start := line - 1 - n
	if start < 0 {
		start = 0
	}
	end := line + n
	if end > len(lines) {
		end = len(lines)
	}
	return append([]string(nil), lines[start:end]...)
}
