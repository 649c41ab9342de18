package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore serves a directory tree as if it were the remote archive root.
// Used with the "file" protocol for pre-mirrored data and throughout the test
// suite, where it keeps the pipeline fully hermetic.
type LocalStore struct {
	root string
}

// NewLocalStore roots a store at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("local remote store requires a root directory")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("local root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", dir)
	}
	return &LocalStore{root: dir}, nil
}

func (s *LocalStore) Glob(_ context.Context, pattern string) ([]string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(pattern, "/")))
	paths, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
	}

	matches := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil, fmt.Errorf("relativize %s: %w", p, err)
		}
		matches = append(matches, "/"+filepath.ToSlash(rel))
	}
	return matches, nil
}

func (s *LocalStore) Fetch(_ context.Context, remotePath, localPath string) error {
	src := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(remotePath, "/")))

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", remotePath, err)
	}
	defer in.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck // already failing
		return fmt.Errorf("copy %s: %w", remotePath, err)
	}
	return out.Close()
}

func (s *LocalStore) Close() error { return nil }
