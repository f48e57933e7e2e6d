package match

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
	"github.com/GriffinCanCode/kothrunner/internal/shared/utils"
)

const KindBrawl = "brawl"

// BrawlConfig configures a brawl: Count independent replicates of the same
// roster. TeamLimit of zero keeps every team.
type BrawlConfig struct {
	Count        int    `json:"count"`
	TeamLimit    int    `json:"teamLimit"`
	TeamShuffle  string `json:"teamShuffle"`
	EntryShuffle string `json:"entryShuffle"`
}

// DefaultBrawlConfig returns one sub-match with random team and entry order.
func DefaultBrawlConfig() BrawlConfig {
	return BrawlConfig{
		Count:        1,
		TeamShuffle:  ShuffleRandom,
		EntryShuffle: ShuffleRandom,
	}
}

// Brawl is the flat node variant. It is read-only after construction.
type Brawl struct {
	cfg          BrawlConfig
	teamShuffle  Shuffle
	entryShuffle Shuffle
	concurrency  int
	logger       *zap.Logger
}

// NewBrawl validates args and builds a brawl node.
func NewBrawl(args Args, opts ...Option) (*Brawl, error) {
	o := newOptions(opts)
	cfg := DefaultBrawlConfig()
	if err := args.Decode(&cfg); err != nil {
		return nil, &ConfigError{Field: "args", Err: err}
	}

	if cfg.Count < 1 {
		return nil, &ConfigError{Field: "count", Err: fmt.Errorf("must be at least 1, got %d", cfg.Count)}
	}
	if cfg.Count > utils.MaxSubmatches {
		return nil, &ConfigError{Field: "count", Err: fmt.Errorf("must be at most %d, got %d", utils.MaxSubmatches, cfg.Count)}
	}
	if cfg.TeamLimit < 0 {
		return nil, &ConfigError{Field: "teamLimit", Err: errors.New("must not be negative")}
	}
	teamShuffle, err := LookupShuffle(cfg.TeamShuffle)
	if err != nil {
		return nil, &ConfigError{Field: "teamShuffle", Err: err}
	}
	entryShuffle, err := LookupShuffle(cfg.EntryShuffle)
	if err != nil {
		return nil, &ConfigError{Field: "entryShuffle", Err: err}
	}

	return &Brawl{
		cfg:          cfg,
		teamShuffle:  teamShuffle,
		entryShuffle: entryShuffle,
		concurrency:  o.concurrency,
		logger:       o.logger,
	}, nil
}

// Config returns the validated configuration.
func (b *Brawl) Config() BrawlConfig {
	return b.cfg
}

// PickTeams shuffles every team's entries into a copy, shuffles the team
// list, then keeps the first TeamLimit teams. Truncation always drops the
// trailing teams of the shuffled order.
func (b *Brawl) PickTeams(teams []Team, sc ShuffleContext) []Team {
	sub := make([]Team, len(teams))
	for i, team := range teams {
		sub[i] = team.withEntries(Apply(b.entryShuffle, team.Entries, sc))
	}

	picked := Apply(b.teamShuffle, sub, sc)
	if b.cfg.TeamLimit > 0 && b.cfg.TeamLimit < len(picked) {
		picked = picked[:b.cfg.TeamLimit]
	}
	return picked
}

// Run derives each sub-match seed before picking its teams, in ascending
// index order, and schedules it.
func (b *Brawl) Run(ctx context.Context, rnd *random.Random, teams []Team, handler SubHandler, progress ProgressFunc) ([]Result, error) {
	sched := NewScheduler(ctx, b.concurrency, handler, progress, b.logger)

	for i := 0; i < b.cfg.Count; i++ {
		seed := rnd.DeriveChild()
		picked := b.PickTeams(teams, ShuffleContext{Index: i, Random: rnd})
		if _, err := sched.Add(seed, picked); err != nil {
			b.logger.Debug("Stopped scheduling sub-matches", zap.Int("index", i), zap.Error(err))
			break
		}
	}
	sched.Close()

	return sched.Wait(ctx)
}
