package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertLegalLineup(t *testing.T, lineup *Lineup, req RosterRequirement, salaryCap int) {
	t.Helper()
	require.NotNil(t, lineup)
	assert.True(t, lineup.IsValid)
	assert.Len(t, lineup.Players, req.RosterSize)
	assert.LessOrEqual(t, lineup.TotalSalary, salaryCap)

	roles := make(map[Role]int)
	teams := make(map[string]int)
	flex := 0
	for _, p := range lineup.Players {
		roles[p.Role]++
		teams[p.Team]++
		if req.IsFlex(p.Role) {
			flex++
		}
	}
	assert.Equal(t, 1, roles[RoleQB], "exactly one QB")
	assert.Equal(t, 1, roles[RoleDEF], "exactly one DEF")
	assert.Equal(t, 5, flex, "five flex players")
	assert.GreaterOrEqual(t, roles[RoleWR], 2)
	assert.GreaterOrEqual(t, roles[RoleRB], 2)
	for team, n := range teams {
		assert.LessOrEqual(t, n, req.TeamLimit(team), "team %s over limit", team)
	}
}

func TestRosterSolver_MatchesBruteForce(t *testing.T) {
	req := DefaultRequirement()
	const salaryCap = 60000

	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			solver := newTestSolver(t, backend)
			r := rand.New(rand.NewSource(42))
			feasibleSeen := 0
			for trial := 0; trial < 25; trial++ {
				pool := randomPool(r)
				want, feasible := bruteForceBest(pool, req, salaryCap, nil)

				lineup, err := solver.Solve(context.Background(), pool, req, salaryCap)
				if !feasible {
					require.Error(t, err, "trial %d", trial)
					assert.True(t, errors.Is(err, ErrInfeasible), "trial %d: %v", trial, err)
					continue
				}
				feasibleSeen++
				require.NoError(t, err, "trial %d", trial)
				assertLegalLineup(t, lineup, req, salaryCap)
				assert.InDelta(t, want, lineup.TotalProjectedPoints, 1e-6, "trial %d", trial)
			}
			assert.Greater(t, feasibleSeen, 0)
		})
	}
}

func TestRosterSolver_ExactLegalPool(t *testing.T) {
	req := DefaultRequirement()
	pool := legalPool()
	expectedSalary := 0
	for _, c := range pool {
		expectedSalary += c.Salary
	}

	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			lineup, err := newTestSolver(t, backend).Solve(context.Background(), pool, req, DefaultSalaryCap)
			require.NoError(t, err)
			assert.True(t, lineup.IsValid)
			assert.ElementsMatch(t, selectionIDs(pool), lineup.PlayerIDs())
			assert.Equal(t, expectedSalary, lineup.TotalSalary)
			assert.Equal(t, DefaultSalaryCap-expectedSalary, lineup.RemainingCap)
			assert.InDelta(t, sumPoints(pool), lineup.TotalProjectedPoints, 1e-9)
		})
	}
}

func TestRosterSolver_FlexScenario(t *testing.T) {
	req := DefaultRequirement()
	teams := []string{"BC", "CGY", "EDM", "HAM", "MTL", "OTT", "SSK", "TOR", "WPG"}
	var pool []Candidate
	pool = append(pool, cand("qb", RoleQB, "BC", 13000, 24))
	pool = append(pool, cand("def", RoleDEF, "OTT", 5000, 6))
	for i := 0; i < 10; i++ {
		pool = append(pool, cand(fmt.Sprintf("wr%d", i), RoleWR, teams[i%len(teams)], 6000+i*700, 8+float64(i)*1.3))
		pool = append(pool, cand(fmt.Sprintf("rb%d", i), RoleRB, teams[(i+4)%len(teams)], 6500+i*650, 7.5+float64(i)*1.4))
	}

	flexPool := pool[2:]
	best := -1.0
	forEachSubset(flexPool, 5, func(sel []Candidate) {
		full := append([]Candidate{pool[0], pool[1]}, sel...)
		if req.CheckSelection(full, DefaultSalaryCap) == nil {
			if v := sumPoints(full); v > best {
				best = v
			}
		}
	})
	require.Greater(t, best, 0.0)

	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			lineup, err := newTestSolver(t, backend).Solve(context.Background(), pool, req, DefaultSalaryCap)
			require.NoError(t, err)
			assertLegalLineup(t, lineup, req, DefaultSalaryCap)
			assert.True(t, lineup.Contains("qb"))
			assert.True(t, lineup.Contains("def"))
			assert.InDelta(t, best, lineup.TotalProjectedPoints, 1e-6)
		})
	}
}

func TestRosterSolver_NoQuarterback(t *testing.T) {
	pool := legalPool()[1:]
	pool = append(pool, cand("wr9", RoleWR, "EDM", 5000, 9))

	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			_, err := newTestSolver(t, backend).Solve(context.Background(), pool, DefaultRequirement(), DefaultSalaryCap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInfeasible))
			assert.False(t, errors.Is(err, ErrResidualInfeasible))

			var inf *InfeasibleError
			require.True(t, errors.As(err, &inf))
			assert.Equal(t, "QB", inf.Requirement)
		})
	}
}

func TestRosterSolver_InfeasibleShapes(t *testing.T) {
	tests := []struct {
		name      string
		pool      func() []Candidate
		salaryCap int
		req       RosterRequirement
	}{
		{
			name:      "pool smaller than roster",
			pool:      func() []Candidate { return legalPool()[:6] },
			salaryCap: DefaultSalaryCap,
			req:       DefaultRequirement(),
		},
		{
			name:      "budget too small",
			pool:      legalPool,
			salaryCap: 40000,
			req:       DefaultRequirement(),
		},
		{
			name: "team limit",
			pool: func() []Candidate {
				pool := legalPool()
				for i := range pool {
					pool[i].Team = "BC"
				}
				return pool
			},
			salaryCap: DefaultSalaryCap,
			req:       DefaultRequirement(),
		},
		{
			name: "budget binds only with role rules",
			pool: func() []Candidate {
				pool := legalPool()
				pool = append(pool, cand("wr-cheap", RoleWR, "EDM", 1000, 1))
				return pool
			},
			salaryCap: 53000,
			req:       DefaultRequirement(),
		},
	}

	for _, tt := range tests {
		for _, backend := range testBackends {
			t.Run(tt.name+"/"+backend, func(t *testing.T) {
				_, err := newTestSolver(t, backend).Solve(context.Background(), tt.pool(), tt.req, tt.salaryCap)
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInfeasible), "got %v", err)
			})
		}
	}
}

func TestRosterSolver_DoesNotMutatePool(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	pool := randomPool(r)
	snapshot := clonePool(pool)

	_, _ = newTestSolver(t, BackendBranchAndBound).Solve(context.Background(), pool, DefaultRequirement(), 65000)
	assert.Equal(t, snapshot, pool)
}

func TestRosterSolver_FiltersIneligible(t *testing.T) {
	pool := legalPool()
	pool = append(pool,
		Candidate{ID: "k1", Name: "Kicker", Role: "K", Team: "EDM", Salary: 3000, ProjectedPoints: 50},
		Candidate{ID: "free", Name: "No Salary", Role: RoleWR, Team: "EDM", Salary: 0, ProjectedPoints: 50},
	)
	lineup, err := newTestSolver(t, BackendBranchAndBound).Solve(context.Background(), pool, DefaultRequirement(), DefaultSalaryCap)
	require.NoError(t, err)
	assert.False(t, lineup.Contains("k1"))
	assert.False(t, lineup.Contains("free"))
}

func TestRosterSolver_SolveLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			_, err := newTestSolver(t, backend).Solve(ctx, legalPool(), DefaultRequirement(), DefaultSalaryCap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInfeasible))
			assert.True(t, errors.Is(err, ErrSolveLimit))
		})
	}
}

func TestRosterSolver_InvalidRequirement(t *testing.T) {
	req := DefaultRequirement()
	req.FlexTotal = 4

	_, err := newTestSolver(t, BackendBranchAndBound).Solve(context.Background(), legalPool(), req, DefaultSalaryCap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequirement))
	assert.False(t, errors.Is(err, ErrInfeasible))
}

func TestExhaustive_NodeLimit(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	pool := randomPool(r)
	problem := Formulate(pool, DefaultRequirement(), 80000)

	_, err := NewExhaustive(2).Solve(context.Background(), problem)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSolveLimit))
}

func TestBackends_AgreeOnProblem(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for trial := 0; trial < 10; trial++ {
		pool := randomPool(r)
		problem := Formulate(pool, DefaultRequirement().WithMaxPerTeam(2), 65000)

		bnb, errB := NewBranchAndBound(0).Solve(context.Background(), problem)
		exh, errE := NewExhaustive(0).Solve(context.Background(), problem)
		if errE != nil {
			assert.True(t, errors.Is(errB, ErrInfeasible), "trial %d", trial)
			continue
		}
		require.NoError(t, errB, "trial %d", trial)
		assert.True(t, problem.Feasible(bnb.Selected))
		assert.InDelta(t, exh.Objective, bnb.Objective, 1e-6, "trial %d", trial)
	}
}
