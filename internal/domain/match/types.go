package match

import (
	"context"

	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

// Entry is one submitted program.
type Entry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Code        string `json:"code"`
	Team        string `json:"team,omitempty"`
	Enabled     bool   `json:"enabled"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Team is an identifier plus an ordered list of entries. Teams handed to a
// node are never modified; sub-matches receive copies.
type Team struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	Entries []Entry `json:"entries"`
}

func (t Team) withEntries(entries []Entry) Team {
	t.Entries = entries
	return t
}

// SubgameTask is one unit of scheduled work.
type SubgameTask struct {
	ID    id.TaskID   `json:"id"`
	Index int         `json:"index"`
	Seed  random.Seed `json:"seed"`
	Teams []Team      `json:"teams"`
}

// Result is the outcome of one SubgameTask. Exactly one of Outcome and Err
// is meaningful.
type Result struct {
	TaskID  id.TaskID   `json:"taskId"`
	Index   int         `json:"index"`
	Seed    random.Seed `json:"seed"`
	Teams   []Team      `json:"teams"`
	Outcome interface{} `json:"outcome,omitempty"`
	Err     error       `json:"-"`
}

// Progress is reported while tasks run and once per completion.
type Progress struct {
	Index        int     `json:"index"`
	TaskProgress float64 `json:"taskProgress"`
	Overall      float64 `json:"overall"`
	Completed    int     `json:"completed"`
	Total        int     `json:"total"`
	Result       *Result `json:"result,omitempty"`
}

// SubHandler runs one task to completion. report may be called any number
// of times with values in [0, 1].
type SubHandler func(ctx context.Context, task SubgameTask, report func(float64)) (interface{}, error)

// ProgressFunc receives progress events. Calls are serialized.
type ProgressFunc func(Progress)

// ShuffleContext is what a shuffle policy may depend on.
type ShuffleContext struct {
	Index  int
	Random *random.Random
}
