package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	ignore "github.com/sabhiram/go-gitignore"
)

// ErrRootNotFound is returned when the repository root is missing or not a directory.
var ErrRootNotFound = errors.New("repository root not found")

// DefaultMaxFileSize is the size ceiling above which files are skipped unread.
const DefaultMaxFileSize int64 = 1 << 20

var defaultIgnores = []string{
	".git",
	"node_modules",
	"vendor",
	"target",
	"__pycache__",
	".venv",
	"dist/",
	"build/",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.ico",
	"*.woff",
	"*.woff2",
	"*.ttf",
	"*.zip",
	"*.gz",
	"*.pdf",
	"*.lock",
}

// File is one supplied artifact: a slash-separated path relative to the root and its bytes.
type File struct {
	Path    string
	Content []byte
}

// Text returns the content as a string.
func (f File) Text() string { return string(f.Content) }

// Name returns the lowercase base name.
func (f File) Name() string { return strings.ToLower(filepath.Base(f.Path)) }

// Stats counts what the walk did with each candidate file.
type Stats struct {
	Visited         int
	Supplied        int
	SkippedOversize int
	SkippedIgnored  int
	SkippedBinary   int
	Unreadable      int
}

// Crawler supplies repository files to detectors.
type Crawler struct {
	maxFileSize int64
	extra       []string
	logger      zerolog.Logger
}

// Option customizes a Crawler.
type Option func(*Crawler)

func WithMaxFileSize(n int64) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

// WithIgnore adds gitignore-style patterns on top of the defaults and the repository's .gitignore.
func WithIgnore(patterns ...string) Option {
	return func(c *Crawler) { c.extra = append(c.extra, patterns...) }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Crawler) { c.logger = logger.With().Str("component", "crawler").Logger() }
}

// NewCrawler creates a new crawler instance.
func NewCrawler(opts ...Option) *Crawler {
	c := &Crawler{
		maxFileSize: DefaultMaxFileSize,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Walk streams every non-ignored file under root to fn. Per-file problems are
// logged and skipped; only a missing root, a cancelled context or an error
// returned by fn stop the walk.
func (c *Crawler) Walk(ctx context.Context, root string, fn func(File) error) (Stats, error) {
	var stats Stats

	info, err := os.Stat(root)
	if err != nil {
		return stats, fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	matcher := c.compileIgnore(root)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			c.logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			stats.Unreadable++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		stats.Visited++
		if matcher.MatchesPath(rel) {
			stats.SkippedIgnored++
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			c.logger.Debug().Err(err).Str("path", rel).Msg("skipping file without info")
			stats.Unreadable++
			return nil
		}
		if fi.Size() > c.maxFileSize {
			c.logger.Debug().Str("path", rel).Int64("size", fi.Size()).Msg("skipping oversized file")
			stats.SkippedOversize++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			c.logger.Debug().Err(err).Str("path", rel).Msg("skipping unreadable file")
			stats.Unreadable++
			return nil
		}
		if isBinary(content) {
			stats.SkippedBinary++
			return nil
		}

		stats.Supplied++
		return fn(File{Path: rel, Content: content})
	})
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// Collect walks root and returns all supplied files in walk order.
func (c *Crawler) Collect(ctx context.Context, root string) ([]File, Stats, error) {
	var files []File
	stats, err := c.Walk(ctx, root, func(f File) error {
		files = append(files, f)
		return nil
	})
	return files, stats, err
}

func (c *Crawler) compileIgnore(root string) *ignore.GitIgnore {
	patterns := append([]string{}, defaultIgnores...)
	patterns = append(patterns, c.extra...)

	if content, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		patterns = append(patterns, strings.Split(string(content), "\n")...)
	}
	return ignore.CompileIgnoreLines(patterns...)
}

// isBinary reports content with a NUL byte in its first 8000 bytes, the same heuristic git uses.
func isBinary(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	for _, b := range content[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
