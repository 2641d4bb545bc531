package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// RosterSolver formulates and solves the base roster program. It holds no
// pool state between calls and never mutates the pool it is given.
type RosterSolver struct {
	backend Backend
	timeout time.Duration
	logger  *logrus.Entry
}

// NewRosterSolver creates a solver on top of backend. A zero timeout disables
// the per-solve deadline.
func NewRosterSolver(backend Backend, timeout time.Duration, logger *logrus.Entry) *RosterSolver {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RosterSolver{backend: backend, timeout: timeout, logger: logger}
}

// Backend returns the name of the configured backend.
func (s *RosterSolver) Backend() string {
	return s.backend.Name()
}

// Solve returns the optimal legal lineup for pool.
func (s *RosterSolver) Solve(ctx context.Context, pool []Candidate, req RosterRequirement, salaryCap int) (*Lineup, error) {
	selected, err := s.Select(ctx, pool, req, salaryCap)
	if err != nil {
		return nil, err
	}
	return AssembleLineup(selected, "", 0, salaryCap, req.RosterSize), nil
}

// Select returns the optimal legal selection from pool, in pool order.
func (s *RosterSolver) Select(ctx context.Context, pool []Candidate, req RosterRequirement, salaryCap int) ([]Candidate, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if salaryCap < 0 {
		return nil, newInfeasible("salary_cap", "salary cap %d is negative", salaryCap)
	}

	filtered := s.filterPool(pool, req)
	if err := precheck(filtered, req, salaryCap); err != nil {
		s.logger.WithFields(logrus.Fields{
			"candidates": len(filtered),
			"reason":     err.Error(),
		}).Debug("Pool rejected before solving")
		return nil, err
	}
	if req.RosterSize == 0 {
		return []Candidate{}, nil
	}

	problem := Formulate(filtered, req, salaryCap)

	solveCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	sol, err := s.backend.Solve(solveCtx, problem)
	fields := logrus.Fields{
		"backend":        s.backend.Name(),
		"candidates":     len(filtered),
		"constraints":    len(problem.Constraints),
		"salary_cap":     salaryCap,
		"nodes_explored": sol.Nodes,
		"elapsed_ms":     time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Debug("Roster solve failed")
		return nil, err
	}
	fields["objective"] = sol.Objective
	s.logger.WithFields(fields).Debug("Roster solve completed")

	sort.Ints(sol.Selected)
	selected := make([]Candidate, len(sol.Selected))
	for i, idx := range sol.Selected {
		selected[i] = filtered[idx]
	}
	if err := req.CheckSelection(selected, salaryCap); err != nil {
		return nil, fmt.Errorf("backend %s returned an illegal roster: %w", s.backend.Name(), err)
	}
	return selected, nil
}

// filterPool drops candidates that may not enter the program: ineligible
// records and roles outside every slot group.
func (s *RosterSolver) filterPool(pool []Candidate, req RosterRequirement) []Candidate {
	filtered := make([]Candidate, 0, len(pool))
	dropped := 0
	for _, c := range pool {
		if !c.IsEligible() || !req.Selectable(c.Role) {
			dropped++
			continue
		}
		filtered = append(filtered, c)
	}
	if dropped > 0 {
		s.logger.WithFields(logrus.Fields{
			"dropped":   dropped,
			"remaining": len(filtered),
		}).Debug("Filtered ineligible candidates")
	}
	return filtered
}

// precheck catches the common infeasible shapes so the caller gets the
// specific unmet requirement rather than a generic failure from the backend.
func precheck(pool []Candidate, req RosterRequirement, salaryCap int) error {
	roleCounts := make(map[Role]int)
	flex := 0
	for _, c := range pool {
		roleCounts[c.Role]++
		if req.IsFlex(c.Role) {
			flex++
		}
	}
	for _, role := range req.exactRoles() {
		if roleCounts[role] < req.Exact[role] {
			return newInfeasible(string(role), "need exactly %d, pool has %d", req.Exact[role], roleCounts[role])
		}
	}
	for _, role := range req.minimumRoles() {
		if roleCounts[role] < req.Minimums[role] {
			return newInfeasible(string(role), "need at least %d, pool has %d", req.Minimums[role], roleCounts[role])
		}
	}
	if flex < req.FlexTotal {
		return newInfeasible("flex", "need %d flex players, pool has %d", req.FlexTotal, flex)
	}
	if len(pool) < req.RosterSize {
		return newInfeasible("roster_size", "pool has %d candidates, roster needs %d", len(pool), req.RosterSize)
	}

	salaries := make([]int, len(pool))
	for i, c := range pool {
		salaries[i] = c.Salary
	}
	sort.Ints(salaries)
	cheapest := 0
	for _, v := range salaries[:req.RosterSize] {
		cheapest += v
	}
	if cheapest > salaryCap {
		return newInfeasible("salary_cap", "cheapest %d candidates cost %d, cap is %d", req.RosterSize, cheapest, salaryCap)
	}
	return nil
}
