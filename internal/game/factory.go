package game

import (
	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/sandbox"
)

// NewHandlerFactory returns a function building a Runner per definition,
// all sharing opts. It satisfies tournament.HandlerFactory.
func NewHandlerFactory(opts ...Option) func(def *config.Definition) (match.SubHandler, error) {
	return func(def *config.Definition) (match.SubHandler, error) {
		r, err := NewRunner(def, opts...)
		if err != nil {
			return nil, err
		}
		return r.Handle, nil
	}
}

// SandboxConfig maps process configuration onto an execution context
// configuration.
func SandboxConfig(cfg config.SandboxConfig) sandbox.Config {
	out := sandbox.DefaultConfig()
	out.Timeout = cfg.Timeout
	if cfg.MaxCallStackSize > 0 {
		out.MaxCallStackSize = cfg.MaxCallStackSize
	}
	out.Restricted = cfg.Restricted
	out.MonotonicClock = cfg.MonotonicClock
	return out
}
