package match

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownShuffle  = errors.New("unknown shuffle policy")
	ErrUnknownKind     = errors.New("unknown match type")
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// ConfigError reports an invalid node or policy configuration.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("match config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return "fatal: " + e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as tournament-fatal. A fatal task error stops the
// scheduler that sees it and every scheduler above it.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}
