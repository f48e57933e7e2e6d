package tournament

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
)

// Standing is one team's aggregate over every game it played.
type Standing struct {
	Rank    int     `json:"rank"`
	TeamID  string  `json:"teamId"`
	Name    string  `json:"name,omitempty"`
	Games   int     `json:"games"`
	Wins    int     `json:"wins"`
	Errors  int     `json:"errors"`
	WinRate float64 `json:"winRate"`
	Total   float64 `json:"total"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stdDev"`
}

// NewLeaderboard ranks teams by win rate, then mean score. Games that ended
// in an error count against every team in them but add no score. Teams with
// equal win rate and mean share a rank.
func NewLeaderboard(teams []match.Team, games []GameRecord) []Standing {
	index := make(map[string]int, len(teams))
	standings := make([]Standing, len(teams))
	scores := make([][]float64, len(teams))
	for i, t := range teams {
		index[t.ID] = i
		standings[i] = Standing{TeamID: t.ID, Name: t.Name}
	}

	for _, g := range games {
		scored, _ := g.Outcome.(Scored)
		for _, teamID := range g.Teams {
			i, ok := index[teamID]
			if !ok {
				continue
			}
			if g.Error != "" || scored == nil {
				standings[i].Errors++
				continue
			}
			standings[i].Games++
			if s, ok := scored.ScoreOf(teamID); ok {
				scores[i] = append(scores[i], s)
			}
			if scored.IsWinner(teamID) {
				standings[i].Wins++
			}
		}
	}

	for i := range standings {
		s := &standings[i]
		if s.Games > 0 {
			s.WinRate = float64(s.Wins) / float64(s.Games)
		}
		for _, v := range scores[i] {
			s.Total += v
		}
		switch len(scores[i]) {
		case 0:
		case 1:
			s.Mean = scores[i][0]
		default:
			s.Mean, s.StdDev = stat.MeanStdDev(scores[i], nil)
		}
	}

	sort.SliceStable(standings, func(a, b int) bool {
		sa, sb := standings[a], standings[b]
		if sa.WinRate != sb.WinRate {
			return sa.WinRate > sb.WinRate
		}
		if sa.Mean != sb.Mean {
			return sa.Mean > sb.Mean
		}
		return sa.TeamID < sb.TeamID
	})

	for i := range standings {
		if i > 0 && standings[i].WinRate == standings[i-1].WinRate && standings[i].Mean == standings[i-1].Mean {
			standings[i].Rank = standings[i-1].Rank
		} else {
			standings[i].Rank = i + 1
		}
	}
	return standings
}
