// Package roster turns a flat list of entries into the teams a tournament
// plays with.
package roster

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
)

// Team builder kinds.
const (
	KindFreeForAll = "free_for_all"
	KindTeams      = "teams"
)

var (
	ErrUnknownKind = errors.New("roster: unknown team type")
	ErrNoTeams     = errors.New("roster: no playable teams")
	ErrNoTeamLabel = errors.New("roster: entry has no team")
)

// TeamsArgs configures the teams builder.
type TeamsArgs struct {
	MinEntries int `json:"minEntries"`
}

// Build groups the enabled entries into teams. Disabled entries are left out.
// Team order follows the first appearance of each team in entries.
func Build(kind string, entries []match.Entry, args match.Args) ([]match.Team, error) {
	enabled := make([]match.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Enabled {
			enabled = append(enabled, e)
		}
	}

	var (
		teams []match.Team
		err   error
	)
	switch kind {
	case KindFreeForAll, "":
		teams = freeForAll(enabled)
	case KindTeams:
		teams, err = byLabel(enabled, args)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return nil, ErrNoTeams
	}
	return teams, nil
}

// freeForAll puts every entry in a team of its own.
func freeForAll(entries []match.Entry) []match.Team {
	teams := make([]match.Team, 0, len(entries))
	for _, e := range entries {
		e.Team = e.ID
		teams = append(teams, match.Team{
			ID:      e.ID,
			Name:    e.Title,
			Entries: []match.Entry{e},
		})
	}
	return teams
}

func byLabel(entries []match.Entry, args match.Args) ([]match.Team, error) {
	opts := TeamsArgs{MinEntries: 1}
	if err := args.Decode(&opts); err != nil {
		return nil, &match.ConfigError{Field: "teamTypeArgs", Err: err}
	}
	if opts.MinEntries < 1 {
		return nil, &match.ConfigError{Field: "minEntries", Err: fmt.Errorf("must be at least 1, got %d", opts.MinEntries)}
	}

	index := make(map[string]int)
	var teams []match.Team
	for _, e := range entries {
		if e.Team == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoTeamLabel, e.ID)
		}
		i, ok := index[e.Team]
		if !ok {
			i = len(teams)
			index[e.Team] = i
			teams = append(teams, match.Team{ID: e.Team, Name: e.Team})
		}
		teams[i].Entries = append(teams[i].Entries, e)
	}

	kept := teams[:0]
	for _, t := range teams {
		if len(t.Entries) >= opts.MinEntries {
			kept = append(kept, t)
		}
	}
	return kept, nil
}
