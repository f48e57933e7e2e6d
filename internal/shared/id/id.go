// Package id provides prefixed ULID generation for tournament objects.
//
// IDs are lexicographically sortable by creation time, which keeps run
// listings and log lines in a natural order without extra timestamps.
// Prefixes identify the kind of object in logs (trn_*, task_*, ctx_*).
//
// Note that IDs are never derived from tournament seeds: two replays of the
// same seed get different IDs but identical seeds, teams and outcomes.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one tournament run
type RunID string

// TaskID identifies one scheduled sub-match
type TaskID string

// ContextID identifies one execution context
type ContextID string

const (
	RunPrefix     = "trn"
	TaskPrefix    = "task"
	ContextPrefix = "ctx"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so IDs minted within the same millisecond still sort in order.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

func NewRunID() RunID         { return RunID(Default().GenerateWithPrefix(RunPrefix)) }
func NewTaskID() TaskID       { return TaskID(Default().GenerateWithPrefix(TaskPrefix)) }
func NewContextID() ContextID { return ContextID(Default().GenerateWithPrefix(ContextPrefix)) }

func (id RunID) String() string     { return string(id) }
func (id TaskID) String() string    { return string(id) }
func (id ContextID) String() string { return string(id) }

// IsValid reports whether id is a prefixed ULID with the given prefix.
func IsValid(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed ID.
func Timestamp(id string) (time.Time, error) {
	_, rest, ok := strings.Cut(id, "_")
	if !ok {
		rest = id
	}
	parsed, err := ulid.ParseStrict(rest)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
