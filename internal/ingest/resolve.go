package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
)

// ErrHostNotAllowed is returned for a requested entries URL whose host is
// not on the allow list.
var ErrHostNotAllowed = errors.New("ingest: entries host not allowed")

// Resolver picks the entry source for a tournament that was started without
// inline entries.
type Resolver struct {
	dir    string
	url    string
	hosts  []string
	client *httpclient.Client
	logger *zap.Logger
}

// NewResolver creates a resolver falling back to the configured directory
// and answers page.
func NewResolver(cfg config.EntriesConfig, client *httpclient.Client, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{dir: cfg.Dir, url: cfg.URL, hosts: cfg.AllowedHosts, client: client, logger: logger}
}

// Loader returns the loader for def. Sources are tried in order: pageURL, the
// definition's question page, the configured page, the configured directory.
// The first two come from the request and must name an allowed host.
func (r *Resolver) Loader(def *config.Definition, pageURL string) (Loader, error) {
	for _, u := range []string{pageURL, answersURL(def)} {
		if u == "" {
			continue
		}
		if err := r.checkURL(u); err != nil {
			return nil, err
		}
		return NewPageLoader(u, r.client, r.logger), nil
	}
	if r.url != "" {
		return NewPageLoader(r.url, r.client, r.logger), nil
	}
	if r.dir == "" {
		return nil, ErrNoEntries
	}
	return NewDirLoader(r.dir, DefaultPattern, r.logger)
}

// Resolve loads the entries for def.
func (r *Resolver) Resolve(ctx context.Context, def *config.Definition, pageURL string) ([]match.Entry, error) {
	loader, err := r.Loader(def, pageURL)
	if err != nil {
		return nil, err
	}
	entries, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	return entries, nil
}

func answersURL(def *config.Definition) string {
	if def == nil {
		return ""
	}
	return def.AnswersURL()
}

// checkURL accepts http and https URLs whose host matches an allowed pattern.
func (r *Resolver) checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHostNotAllowed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	for _, pattern := range r.hosts {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), host); ok && host != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
}
