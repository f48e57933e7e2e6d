package match

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

// Node is one level of tournament structure.
type Node interface {
	// PickTeams returns the teams for sub-match sc.Index. The input is not
	// modified.
	PickTeams(teams []Team, sc ShuffleContext) []Team

	// Run schedules the node's sub-matches and returns their results in
	// submission order.
	Run(ctx context.Context, rnd *random.Random, teams []Team, handler SubHandler, progress ProgressFunc) ([]Result, error)
}

// Args are the free-form constructor arguments read from a definition.
type Args map[string]interface{}

// Decode copies args into the tagged struct dst. Fields absent from args
// keep their current value.
func (a Args) Decode(dst interface{}) error {
	if len(a) == 0 {
		return nil
	}
	data, err := sonic.Marshal(a)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, dst)
}

// Option configures a node.
type Option func(*options)

type options struct {
	concurrency int
	logger      *zap.Logger
}

// WithConcurrency sets how many sub-matches of this node may run at once.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithLogger sets the logger passed to the node's schedulers.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newOptions(opts []Option) options {
	o := options{concurrency: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Kinds lists the node kinds New accepts.
var Kinds = []string{KindBrawl}

// New builds a node of the named kind.
func New(kind string, args Args, opts ...Option) (Node, error) {
	switch kind {
	case KindBrawl:
		b, err := NewBrawl(args, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, &ConfigError{Field: "type", Err: fmt.Errorf("%w: %q", ErrUnknownKind, kind)}
	}
}

// NodeHandler runs node for each task it receives, with inner as the
// handler of the node's own sub-matches. The task's seed roots the node's
// random stream, so nested levels stay reproducible.
func NodeHandler(node Node, inner SubHandler) SubHandler {
	return func(ctx context.Context, task SubgameTask, report func(float64)) (interface{}, error) {
		results, err := node.Run(ctx, random.New(task.Seed), task.Teams, inner, func(p Progress) {
			report(p.Overall)
		})
		if err != nil {
			return nil, err
		}
		return results, nil
	}
}

// Flatten walks nested results and returns the leaf results in order.
func Flatten(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if nested, ok := r.Outcome.([]Result); ok {
			out = append(out, Flatten(nested)...)
			continue
		}
		out = append(out, r)
	}
	return out
}
