package optimizer

import (
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testBackends = []string{BackendBranchAndBound, BackendExhaustive}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestSolver(t *testing.T, backend string) *RosterSolver {
	t.Helper()
	b, err := NewBackend(backend, DefaultSolveOptions())
	require.NoError(t, err)
	return NewRosterSolver(b, DefaultSolveOptions().Timeout, quietLogger())
}

func cand(id string, role Role, team string, salary int, points float64) Candidate {
	return Candidate{ID: id, Name: "Player " + id, Role: role, Team: team, Salary: salary, ProjectedPoints: points}
}

// smallPoolRoles is the role layout of the random twelve-candidate pools.
var smallPoolRoles = []Role{RoleQB, RoleQB, RoleDEF, RoleDEF, RoleWR, RoleWR, RoleWR, RoleRB, RoleRB, RoleRB, RoleTE, RoleTE}

func randomPool(r *rand.Rand) []Candidate {
	teams := []string{"BC", "CGY", "EDM", "HAM"}
	pool := make([]Candidate, len(smallPoolRoles))
	for i, role := range smallPoolRoles {
		pool[i] = Candidate{
			ID:              string(rune('a' + i)),
			Name:            "Random " + string(rune('A'+i)),
			Role:            role,
			Team:            teams[r.Intn(len(teams))],
			Salary:          4000 + r.Intn(9)*1000,
			ProjectedPoints: 5 + float64(r.Intn(2500))/100,
		}
	}
	return pool
}

// forEachSubset calls fn for every k-subset of pool.
func forEachSubset(pool []Candidate, k int, fn func([]Candidate)) {
	sel := make([]Candidate, 0, k)
	var rec func(start int)
	rec = func(start int) {
		if len(sel) == k {
			fn(sel)
			return
		}
		for i := start; i <= len(pool)-(k-len(sel)); i++ {
			sel = append(sel, pool[i])
			rec(i + 1)
			sel = sel[:len(sel)-1]
		}
	}
	rec(0)
}

func sumPoints(sel []Candidate) float64 {
	total := 0.0
	for _, c := range sel {
		total += c.ProjectedPoints
	}
	return total
}

// bruteForceBest enumerates every legal roster; mustContain restricts the
// search to supersets of those ids.
func bruteForceBest(pool []Candidate, req RosterRequirement, salaryCap int, mustContain map[string]bool) (float64, bool) {
	best := -1.0
	found := false
	forEachSubset(pool, req.RosterSize, func(sel []Candidate) {
		if req.CheckSelection(sel, salaryCap) != nil {
			return
		}
		have := 0
		for _, c := range sel {
			if mustContain[c.ID] {
				have++
			}
		}
		if have != len(mustContain) {
			return
		}
		if v := sumPoints(sel); v > best {
			best = v
			found = true
		}
	})
	return best, found
}

// bruteForceCaptain returns the best base total plus one doubled non-DEF pick.
func bruteForceCaptain(pool []Candidate, req RosterRequirement, salaryCap int) (float64, bool) {
	best := -1.0
	found := false
	forEachSubset(pool, req.RosterSize, func(sel []Candidate) {
		if req.CheckSelection(sel, salaryCap) != nil {
			return
		}
		base := sumPoints(sel)
		for _, c := range sel {
			if !req.CanCaptain(c.Role) {
				continue
			}
			if v := base + c.ProjectedPoints; v > best {
				best = v
				found = true
			}
		}
	})
	return best, found
}

func selectionIDs(sel []Candidate) []string {
	ids := make([]string, len(sel))
	for i, c := range sel {
		ids[i] = c.ID
	}
	return ids
}

// legalPool is seven candidates that already form a legal roster.
func legalPool() []Candidate {
	return []Candidate{
		cand("qb1", RoleQB, "BC", 12000, 22.5),
		cand("wr1", RoleWR, "BC", 10000, 15.1),
		cand("wr2", RoleWR, "TOR", 9000, 12.0),
		cand("rb1", RoleRB, "HAM", 11000, 14.2),
		cand("rb2", RoleRB, "TOR", 8000, 10.4),
		cand("te1", RoleTE, "WPG", 7000, 8.3),
		cand("def1", RoleDEF, "OTT", 6000, 7.0),
	}
}
