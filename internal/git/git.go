package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// ErrNotRepository is returned when dir is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Info describes the checkout an analysis ran against.
type Info struct {
	URL    string
	Branch string
	Commit string
}

// Describe reads the origin URL, current branch and HEAD commit of the work
// tree containing dir. Missing pieces (no remote, detached HEAD, no commits)
// are left empty.
func Describe(ctx context.Context, dir string) (Info, error) {
	if _, err := run(ctx, dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		return Info{}, fmt.Errorf("%s: %w", dir, ErrNotRepository)
	}

	var info Info
	if out, err := run(ctx, dir, "config", "--get", "remote.origin.url"); err == nil {
		info.URL = sanitizeURL(out)
	}
	if out, err := run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		info.Branch = branchName(out)
	}
	if out, err := run(ctx, dir, "rev-parse", "HEAD"); err == nil {
		info.Commit = out
	}
	return info, nil
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(output)), nil
}

// sanitizeURL drops credentials from http(s) remotes so tokens embedded in
// clone URLs are never stored. scp-style remotes are returned unchanged.
func sanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil && u.Scheme != "ssh" {
		u.User = nil
	}
	return u.String()
}

// branchName maps the detached-HEAD answer of rev-parse to no branch.
func branchName(out string) string {
	if out == "HEAD" {
		return ""
	}
	return out
}
