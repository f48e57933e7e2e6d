package modules

import (
	"errors"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
)

// ErrNoSource is returned when neither a directory nor a URL is configured.
var ErrNoSource = errors.New("modules: no module source configured")

// FromConfig builds the process-wide module source: the directory first,
// then the remote host, behind a shared cache.
func FromConfig(cfg config.ModulesConfig, client *httpclient.Client) (*CachedSource, error) {
	var chain Chain
	if cfg.Dir != "" {
		dir, err := NewDirSource(cfg.Dir, cfg.Allow...)
		if err != nil {
			return nil, err
		}
		chain = append(chain, dir)
	}
	if cfg.URL != "" {
		chain = append(chain, NewHTTPSource(cfg.URL, client))
	}
	if len(chain) == 0 {
		return nil, ErrNoSource
	}
	return NewCachedSource(chain), nil
}
