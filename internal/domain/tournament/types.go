package tournament

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

var (
	ErrRunNotFound    = errors.New("tournament: run not found")
	ErrRunFinished    = errors.New("tournament: run already finished")
	ErrRunNotFinished = errors.New("tournament: run has not finished")
	ErrManagerClosed  = errors.New("tournament: manager is shut down")
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Final reports whether s is a terminal status.
func (s Status) Final() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusCancelled
}

// GameRecord is one finished game, identified by its match and game index.
type GameRecord struct {
	Match    int         `json:"match"`
	Game     int         `json:"game"`
	TaskID   id.TaskID   `json:"taskId"`
	Seed     random.Seed `json:"seed"`
	Teams    []string    `json:"teams"`
	Outcome  interface{} `json:"outcome,omitempty"`
	Error    string      `json:"error,omitempty"`
	Finished time.Time   `json:"finished"`
}

// Run is a snapshot of one tournament run.
type Run struct {
	ID          id.RunID           `json:"id"`
	Name        string             `json:"name"`
	Status      Status             `json:"status"`
	Seed        random.Seed        `json:"seed"`
	Definition  *config.Definition `json:"definition"`
	Teams       int                `json:"teams"`
	Progress    float64            `json:"progress"`
	Matches     int                `json:"matches"`
	MatchesDone int                `json:"matchesDone"`
	GamesDone   int                `json:"gamesDone"`
	GamesFailed int                `json:"gamesFailed"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  *time.Time         `json:"finishedAt,omitempty"`
	Leaderboard []Standing         `json:"leaderboard,omitempty"`
}

// Scored is implemented by game outcomes that carry per-team scores.
type Scored interface {
	ScoreOf(teamID string) (float64, bool)
	IsWinner(teamID string) bool
}
