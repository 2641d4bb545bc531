// Package normalizer converts raw CFL fantasy feed records into solver
// candidates.
package normalizer

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
	"github.com/stitts-dev/cfl-optimizer/internal/projections"
)

// Drop reasons reported in Report.Dropped.
const (
	DropUnavailable   = "unavailable"
	DropByeWeek       = "bye_week"
	DropFeedLocked    = "feed_locked"
	DropInvalidSalary = "invalid_salary"
	DropMissingName   = "missing_name"
	DropInvalidRole   = "invalid_role"
)

var positionMap = map[string]string{
	"quarterback":   "QB",
	"wide_receiver": "WR",
	"running_back":  "RB",
	"tight_end":     "TE",
	"defense":       "DEF",
	"kicker":        "K",
}

// NormalizePosition maps feed position names to codes. Unknown names are
// upper-cased.
func NormalizePosition(position string) string {
	if code, ok := positionMap[strings.ToLower(position)]; ok {
		return code
	}
	return strings.ToUpper(position)
}

type Options struct {
	LeagueTeams            []string
	UseWeightedProjections bool
}

// Report summarizes one normalization pass.
type Report struct {
	Players  int            `json:"players"`
	Defenses int            `json:"defenses"`
	Locked   int            `json:"locked"`
	ByeTeams []string       `json:"bye_teams"`
	Dropped  map[string]int `json:"dropped"`
}

type Normalizer struct {
	opts   Options
	logger *logrus.Entry
}

func New(opts Options, logger *logrus.Entry) *Normalizer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Normalizer{opts: opts, logger: logger}
}

// Normalize returns the candidate pool for bundle: players first in feed
// order, then one DEF candidate per squad.
func (n *Normalizer) Normalize(bundle *FeedBundle) ([]optimizer.Candidate, Report) {
	report := Report{Dropped: make(map[string]int)}
	bye := ByeTeams(bundle.Gameweeks, n.opts.LeagueTeams)
	report.ByeTeams = sortedKeys(bye)

	current := map[string]bool{}
	if bundle.CurrentTeam != nil {
		current = bundle.CurrentTeam.Success.Team.IDs()
	}

	var projected map[string]float64
	if n.opts.UseWeightedProjections {
		stats := make([]projections.PlayerStats, len(bundle.Players))
		for i, p := range bundle.Players {
			stats[i] = projections.PlayerStats{ID: string(p.ID), Stats: p.Stats}
		}
		projected = projections.BuildProjectionMap(stats)
	}

	pool := make([]optimizer.Candidate, 0, len(bundle.Players)+len(bundle.Squads))
	for _, p := range bundle.Players {
		id := string(p.ID)
		inLineup := current[id]

		if reason := n.skipReason(p, bye, inLineup); reason != "" {
			report.Dropped[reason]++
			continue
		}
		role, ok := optimizer.ParseRole(NormalizePosition(p.Position))
		if !ok {
			report.Dropped[DropInvalidRole]++
			continue
		}

		points := p.Stats.ProjectedScores
		if projected != nil {
			points = projected[id]
		}
		c := optimizer.Candidate{
			ID:               id,
			Name:             p.Name(),
			Role:             role,
			Team:             p.Squad.Abbr,
			Salary:           p.Cost,
			ProjectedPoints:  points,
			OwnershipPercent: bundle.PlayerOwnership[id].Percents,
			Locked:           p.IsLocked && inLineup,
		}
		if c.Locked {
			report.Locked++
		}
		pool = append(pool, c)
		report.Players++
	}

	for _, s := range bundle.Squads {
		id := string(s.ID)
		if s.Name == "" {
			report.Dropped[DropMissingName]++
			continue
		}
		if s.Cost <= 0 {
			report.Dropped[DropInvalidSalary]++
			continue
		}
		pool = append(pool, optimizer.Candidate{
			ID:               "DEF_" + id,
			Name:             s.Abbreviation + " Defense",
			Role:             optimizer.RoleDEF,
			Team:             s.Abbreviation,
			Salary:           s.Cost,
			ProjectedPoints:  s.ProjectedScores,
			OwnershipPercent: bundle.TeamOwnership[id].Percents,
		})
		report.Defenses++
	}

	n.logger.WithFields(logrus.Fields{
		"players":   report.Players,
		"defenses":  report.Defenses,
		"locked":    report.Locked,
		"bye_teams": report.ByeTeams,
		"dropped":   report.Dropped,
	}).Info("Normalized feed into candidate pool")
	return pool, report
}

func (n *Normalizer) skipReason(p FeedPlayer, bye map[string]bool, inLineup bool) string {
	switch {
	case p.Status == "unavailable":
		return DropUnavailable
	case bye[p.Squad.Abbr] && !inLineup:
		return DropByeWeek
	case p.IsLocked && !inLineup:
		return DropFeedLocked
	case p.Name() == "":
		return DropMissingName
	case p.Cost <= 0:
		return DropInvalidSalary
	}
	return ""
}

// CurrentGameweek returns the first active gameweek, else the first one not
// complete, else nil.
func CurrentGameweek(gameweeks []FeedGameweek) *FeedGameweek {
	for i := range gameweeks {
		if gameweeks[i].Status == "active" {
			return &gameweeks[i]
		}
	}
	for i := range gameweeks {
		if gameweeks[i].Status != "complete" {
			return &gameweeks[i]
		}
	}
	return nil
}

// ByeTeams returns the league teams without a match in the current gameweek.
// It is empty when there is no current gameweek.
func ByeTeams(gameweeks []FeedGameweek, leagueTeams []string) map[string]bool {
	bye := make(map[string]bool)
	gw := CurrentGameweek(gameweeks)
	if gw == nil {
		return bye
	}
	playing := make(map[string]bool)
	for _, m := range gw.Matches {
		if m.HomeSquad.Abbr != "" {
			playing[m.HomeSquad.Abbr] = true
		}
		if m.AwaySquad.Abbr != "" {
			playing[m.AwaySquad.Abbr] = true
		}
	}
	for _, team := range leagueTeams {
		if !playing[team] {
			bye[team] = true
		}
	}
	return bye
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
