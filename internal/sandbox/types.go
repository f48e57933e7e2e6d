package sandbox

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSpawn    = errors.New("sandbox: failed to spawn execution context")
	ErrNotReady = errors.New("sandbox: execution context is not ready")
	ErrTimeout  = errors.New("sandbox: execution time budget exceeded")
	ErrTornDown = errors.New("sandbox: execution context torn down")
	ErrShed     = errors.New("sandbox: module loading has been shed")
)

// Config defines execution context configuration
type Config struct {
	Timeout          time.Duration // Whole-lifetime budget, 0 disables
	MaxCallStackSize int           // JS call stack limit
	EnableConsole    bool          // Capture console.log/warn/error/info
	Restricted       bool          // Proxy module loads through the host
	MonotonicClock   bool          // performance.now has sub-millisecond precision
}

// DefaultConfig returns the configuration used for contestant code.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
		Restricted:       true,
		MonotonicClock:   true,
	}
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ProtocolError reports a message that matched no expected boundary state.
// It is fatal to the boundary that observed it and to nothing else.
type ProtocolError struct {
	Op     string
	Path   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sandbox: protocol violation: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("sandbox: protocol violation: %s %q: %s", e.Op, e.Path, e.Reason)
}

// ProgramError is an uncaught exception thrown by sandboxed code.
type ProgramError struct {
	Message string
	Stack   string
	Err     error
}

func (e *ProgramError) Error() string {
	return "sandbox: program failed: " + e.Message
}

func (e *ProgramError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err contains a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
