package modules

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
)

var (
	ErrNotFound    = errors.New("modules: not found")
	ErrInvalidPath = errors.New("modules: invalid path")
	ErrNotAllowed  = errors.New("modules: path not allowed")
)

// Source returns the code of a named module. Paths are slash-separated and
// carry no extension, e.g. "games/fight".
type Source interface {
	Fetch(ctx context.Context, path string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, path string) (string, error)

func (f SourceFunc) Fetch(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// ValidatePath rejects absolute paths, traversal and empty segments.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	case strings.HasPrefix(p, "/"), strings.Contains(p, "\\"):
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	case path.Clean(p) != p:
		return fmt.Errorf("%w: %q is not canonical", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}

// MapSource serves modules from memory.
type MapSource struct {
	mu      sync.RWMutex
	modules map[string]string
}

// NewMapSource creates a source holding a copy of modules.
func NewMapSource(modules map[string]string) *MapSource {
	m := &MapSource{modules: make(map[string]string, len(modules))}
	for k, v := range modules {
		m.modules[k] = v
	}
	return m
}

// Set adds or replaces a module.
func (m *MapSource) Set(path, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[path] = code
}

func (m *MapSource) Fetch(ctx context.Context, p string) (string, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	code, ok := m.modules[p]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return code, nil
}

// Chain tries each source in order and returns the first hit. Errors other
// than ErrNotFound stop the search.
type Chain []Source

func (c Chain) Fetch(ctx context.Context, p string) (string, error) {
	for _, src := range c {
		code, err := src.Fetch(ctx, p)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, p)
}
