package game

import (
	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

// Message types exchanged with a game module.
const (
	TypeBegin    = "begin"
	TypeProgress = "progress"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Begin starts one game inside an execution context.
type Begin struct {
	Type   string                  `json:"type"`
	Index  int                     `json:"index"`
	Seed   random.Seed             `json:"seed"`
	Teams  []match.Team            `json:"teams"`
	Config map[string]interface{}  `json:"config"`
	Play   map[string]interface{}  `json:"play"`
	Hidden config.PlayHiddenConfig `json:"hidden"`
}

// Inbound is any message a game module posts.
type Inbound struct {
	Type    string      `json:"type"`
	Value   float64     `json:"value,omitempty"`
	Scores  []TeamScore `json:"scores,omitempty"`
	Steps   int         `json:"steps,omitempty"`
	Message string      `json:"message,omitempty"`
}

// TeamScore is one team's final score in a game.
type TeamScore struct {
	TeamID string  `json:"teamId"`
	Score  float64 `json:"score"`
}

// Outcome is the result a game contributes to its sub-match.
type Outcome struct {
	Scores  []TeamScore `json:"scores"`
	Winners []string    `json:"winners"`
	Steps   int         `json:"steps,omitempty"`
}

// ScoreOf returns the score of teamID.
func (o Outcome) ScoreOf(teamID string) (float64, bool) {
	for _, s := range o.Scores {
		if s.TeamID == teamID {
			return s.Score, true
		}
	}
	return 0, false
}

// IsWinner reports whether teamID is among the winners.
func (o Outcome) IsWinner(teamID string) bool {
	for _, w := range o.Winners {
		if w == teamID {
			return true
		}
	}
	return false
}
