// Package git lists the files a working tree has changed, so analysis can
// be limited to them.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Repo runs git commands in one working tree.
type Repo struct {
	path string
	root string
}

// NewRepo opens the repository containing path.
func NewRepo(ctx context.Context, path string) (*Repo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	repo := &Repo{path: absPath}
	out, err := repo.runGit(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	repo.root = filepath.Clean(strings.TrimSpace(out))
	return repo, nil
}

// Root returns the top-level directory of the working tree.
func (r *Repo) Root() string { return r.root }

func (r *Repo) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, errMsg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}

	return stdout.String(), nil
}

// ChangedFiles returns absolute paths of files that differ from base
// (HEAD when empty) in the working tree or index, plus untracked files
// not excluded by .gitignore. Deleted files are omitted.
func (r *Repo) ChangedFiles(ctx context.Context, base string) ([]string, error) {
	if base == "" {
		base = "HEAD"
	}

	changed, err := r.runGit(ctx, "diff", "--name-only", "--diff-filter=d", base, "--")
	if err != nil {
		return nil, err
	}
	untracked, err := r.runGit(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return r.absolute(changed + "\n" + untracked), nil
}

// StagedFiles returns absolute paths of files added or modified in the index.
func (r *Repo) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := r.runGit(ctx, "diff", "--cached", "--name-only", "--diff-filter=d")
	if err != nil {
		return nil, err
	}
	return r.absolute(out), nil
}

// absolute turns git's root-relative output lines into sorted unique paths.
func (r *Repo) absolute(output string) []string {
	seen := make(map[string]bool)
	var files []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		path := filepath.Join(r.root, filepath.FromSlash(line))
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files
}
