// Package projections computes weighted-average fantasy projections from a
// player's recent gameweek scores.
package projections

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	lastGameWeight   = 0.5
	previousWeight   = 0.3
	seasonAvgWeight  = 0.2
	minGameweeksUsed = 2
)

// Stats is the stats block of a feed player.
type Stats struct {
	ProjectedScores float64 `json:"projectedScores"`
	AvgPoints       float64 `json:"avgPoints"`
	// Points is either {"gws": {"<week>": points}} or an empty array.
	Points json.RawMessage `json:"points,omitempty"`
}

// PlayerStats pairs a player id with its stats.
type PlayerStats struct {
	ID    string
	Stats Stats
}

type pointsBlock struct {
	Gws map[string]float64 `json:"gws"`
}

// Gameweeks decodes the per-gameweek points. ok is false when points is
// missing, an array, or malformed.
func (s Stats) Gameweeks() (map[string]float64, bool) {
	raw := bytes.TrimSpace(s.Points)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var block pointsBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, false
	}
	return block.Gws, true
}

// Weighted returns 0.5*last + 0.3*avg(previous two) + 0.2*seasonAvg over the
// numeric gameweek keys in week order. With exactly two games the first game
// stands in for both previous games. With fewer than two numeric weeks the
// season average is returned unweighted.
func Weighted(gws map[string]float64, seasonAvg float64) float64 {
	type week struct {
		n      int
		points float64
	}
	weeks := make([]week, 0, len(gws))
	for k, v := range gws {
		if !isDigits(k) {
			continue
		}
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		weeks = append(weeks, week{n: n, points: v})
	}
	if len(weeks) < minGameweeksUsed {
		return seasonAvg
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].n < weeks[j].n })

	last := weeks[len(weeks)-1].points
	var previous float64
	if len(weeks) >= 3 {
		previous = (weeks[len(weeks)-3].points + weeks[len(weeks)-2].points) / 2
	} else {
		previous = weeks[0].points
	}
	return lastGameWeight*last + previousWeight*previous + seasonAvgWeight*seasonAvg
}

// ForStats returns the projection for one player, falling back to the site
// projection when there are fewer than two gameweeks of history.
func ForStats(s Stats) float64 {
	gws, ok := s.Gameweeks()
	if !ok || len(gws) < minGameweeksUsed {
		return Round2(s.ProjectedScores)
	}
	return Round2(Weighted(gws, s.AvgPoints))
}

// BuildProjectionMap maps player id to projection. Players without an id are
// skipped.
func BuildProjectionMap(players []PlayerStats) map[string]float64 {
	out := make(map[string]float64, len(players))
	for _, p := range players {
		if p.ID == "" {
			continue
		}
		out[p.ID] = ForStats(p.Stats)
	}
	return out
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isDigits(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}
