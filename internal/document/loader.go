package document

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Loader discovers and reads the documents of a collection below a base
// directory.
type Loader struct {
	fs       fs.FS
	basePath string
	pattern  string
	matcher  glob.Glob
}

// NewLoader compiles pattern, a slash-separated glob where * stays within a
// path segment and ** crosses segments.
func NewLoader(basePath, pattern string) (*Loader, error) {
	basePath = filepath.Clean(basePath)
	return NewFSLoader(os.DirFS(basePath), basePath, pattern)
}

// NewFSLoader is NewLoader over an arbitrary filesystem. basePath is only
// used to derive the directory relative references resolve against.
func NewFSLoader(filesystem fs.FS, basePath, pattern string) (*Loader, error) {
	pattern = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(strings.TrimSpace(pattern))), "/")
	if pattern == "" {
		return nil, fmt.Errorf("document loader: empty glob")
	}
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("document loader: compile glob %q: %w", pattern, err)
	}
	return &Loader{fs: filesystem, basePath: basePath, pattern: pattern, matcher: matcher}, nil
}

// Discover lists matching document paths in lexical order.
func (l *Loader) Discover(ctx context.Context) ([]string, error) {
	root := staticPrefix(l.pattern)
	var paths []string
	err := fs.WalkDir(l.fs, root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if l.matcher.Match(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("document loader: walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Read loads one discovered document.
func (l *Loader) Read(ctx context.Context, p string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}
	raw, err := fs.ReadFile(l.fs, p)
	if err != nil {
		return Source{}, fmt.Errorf("document loader: read %s: %w", p, err)
	}
	return Source{
		Path: p,
		Dir:  filepath.Join(l.basePath, filepath.FromSlash(path.Dir(p))),
		Raw:  raw,
	}, nil
}

// staticPrefix returns the directory part of pattern before the first
// wildcard, so the walk starts as deep as possible.
func staticPrefix(pattern string) string {
	segments := strings.Split(pattern, "/")
	var fixed []string
	for _, seg := range segments[:len(segments)-1] {
		if strings.ContainsAny(seg, "*?[{\\") {
			break
		}
		fixed = append(fixed, seg)
	}
	if len(fixed) == 0 {
		return "."
	}
	return strings.Join(fixed, "/")
}
