package modules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DirSource serves "<root>/<path>.js" for paths matching one of the allow
// patterns (doublestar syntax, matched against the path without extension).
type DirSource struct {
	root  string
	allow []string
}

// NewDirSource creates a directory source. An empty allow list allows
// everything under root.
func NewDirSource(root string, allow ...string) (*DirSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, pattern := range allow {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("modules: invalid allow pattern %q", pattern)
		}
	}
	return &DirSource{root: abs, allow: allow}, nil
}

func (d *DirSource) Fetch(ctx context.Context, p string) (string, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}
	if !d.allowed(p) {
		return "", fmt.Errorf("%w: %s", ErrNotAllowed, p)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(p)+".js"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", err
	}
	return string(data), nil
}

// List returns every module path under root that the allow list permits.
func (d *DirSource) List() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(d.root), "**/*.js")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, m := range matches {
		p := m[:len(m)-len(".js")]
		if d.allowed(p) {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (d *DirSource) allowed(p string) bool {
	if len(d.allow) == 0 {
		return true
	}
	for _, pattern := range d.allow {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
