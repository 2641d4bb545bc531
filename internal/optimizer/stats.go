package optimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Range summarizes one numeric attribute of a pool.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// PoolStats describes a candidate pool for reporting.
type PoolStats struct {
	TotalPlayers    int          `json:"total_players"`
	TotalTeams      int          `json:"total_teams"`
	Positions       map[Role]int `json:"positions"`
	SalaryRange     Range        `json:"salary_range"`
	ProjectionRange Range        `json:"projection_range"`
}

// ComputePoolStats counts roles and teams and summarizes salaries and
// projections. Averages are rounded to two decimals.
func ComputePoolStats(pool []Candidate) PoolStats {
	stats := PoolStats{
		TotalPlayers: len(pool),
		Positions:    make(map[Role]int),
	}
	if len(pool) == 0 {
		return stats
	}

	teams := make(map[string]struct{})
	salaries := make([]float64, len(pool))
	points := make([]float64, len(pool))
	for i, c := range pool {
		stats.Positions[c.Role]++
		teams[c.Team] = struct{}{}
		salaries[i] = float64(c.Salary)
		points[i] = c.ProjectedPoints
	}
	stats.TotalTeams = len(teams)
	stats.SalaryRange = summarize(salaries)
	stats.ProjectionRange = summarize(points)
	return stats
}

func summarize(values []float64) Range {
	return Range{
		Min: floats.Min(values),
		Max: floats.Max(values),
		Avg: round2(stat.Mean(values, nil)),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
