// SPDX-License-Identifier: AGPL-3.0-or-later

// Package source materializes clean copies of the project's tracked
// files into per-entry workspaces.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Snapshotter lists and copies the git-tracked files of a project.
type Snapshotter struct {
	root string

	mu     sync.Mutex
	cached []string
}

// New creates a Snapshotter rooted at the project directory.
func New(root string) *Snapshotter {
	return &Snapshotter{root: root}
}

// TrackedFiles returns the project's git-tracked files, sorted, with
// kestrel's own state directory excluded. The result is cached for the
// lifetime of the Snapshotter; asking git keeps .gitignore respected.
func (s *Snapshotter) TrackedFiles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	// -z avoids any quoting of unusual file names.
	cmd := exec.CommandContext(ctx, "git", "ls-files", "-z")
	cmd.Dir = s.root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files failed: %w", err)
	}

	var files []string
	for _, f := range strings.Split(strings.TrimSuffix(string(out), "\x00"), "\x00") {
		if f == "" || excluded(f) {
			continue
		}
		files = append(files, f)
	}
	sort.Strings(files)

	s.cached = files
	return s.cached, nil
}

// Snapshot copies every tracked file into dest, preserving relative
// paths and file modes. It returns the number of files copied. dest is
// created if missing; existing contents are left in place, so callers
// wanting a clean workspace remove dest first.
func (s *Snapshotter) Snapshot(ctx context.Context, dest string) (int, error) {
	files, err := s.TrackedFiles(ctx)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, err
	}

	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := copyFile(filepath.Join(s.root, rel), filepath.Join(dest, rel)); err != nil {
			return i, fmt.Errorf("snapshotting %s: %w", rel, err)
		}
	}
	return len(files), nil
}

// excluded filters paths that must never leak into a workspace.
// Matching is segment-aware so "foo/.kestrel/bar" is caught while
// ".kestrelish" is not.
func excluded(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == ".kestrel" || part == ".git" {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		cerr := out.Close()
		if err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
