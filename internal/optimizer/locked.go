package optimizer

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"
)

// Partition is a pool split into locked and available candidates together
// with the requirement that remains once the locked ones are fixed.
type Partition struct {
	Locked          []Candidate
	Available       []Candidate
	LockedSalary    int
	LockedPoints    float64
	LockedRoles     map[Role]int
	LockedTeams     map[string]int
	RemainingSlots  int
	RemainingBudget int
	Residual        RosterRequirement
}

// PartitionPool splits pool on the Locked flag and derives the residual
// requirement. It fails with a residual InfeasibleError when the locked set
// alone already breaks a rule.
func PartitionPool(pool []Candidate, req RosterRequirement, salaryCap int) (*Partition, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := &Partition{
		LockedRoles: make(map[Role]int),
		LockedTeams: make(map[string]int),
	}
	seen := make(map[string]bool)
	lockedFlex := 0
	for _, c := range pool {
		if !c.Locked {
			p.Available = append(p.Available, c)
			continue
		}
		if !c.IsEligible() || !req.Selectable(c.Role) {
			return nil, newResidualInfeasible("locked", "locked candidate %s is not selectable", c.ID)
		}
		if seen[c.ID] {
			return nil, newResidualInfeasible("unique", "candidate %s locked twice", c.ID)
		}
		seen[c.ID] = true
		p.Locked = append(p.Locked, c)
		p.LockedSalary += c.Salary
		p.LockedPoints += c.ProjectedPoints
		p.LockedRoles[c.Role]++
		p.LockedTeams[c.Team]++
		if req.IsFlex(c.Role) {
			lockedFlex++
		}
	}

	p.RemainingSlots = req.RosterSize - len(p.Locked)
	p.RemainingBudget = salaryCap - p.LockedSalary
	if p.RemainingSlots < 0 {
		return nil, newResidualInfeasible("roster_size", "%d candidates locked, roster holds %d", len(p.Locked), req.RosterSize)
	}
	if p.RemainingBudget < 0 {
		return nil, newResidualInfeasible("salary_cap", "locked salary %d exceeds cap %d", p.LockedSalary, salaryCap)
	}

	residual := req.clone()
	residual.RosterSize = p.RemainingSlots
	for _, role := range req.exactRoles() {
		if p.LockedRoles[role] > req.Exact[role] {
			return nil, newResidualInfeasible(string(role), "%d locked, exactly %d allowed", p.LockedRoles[role], req.Exact[role])
		}
		residual.Exact[role] = req.Exact[role] - p.LockedRoles[role]
	}
	if lockedFlex > req.FlexTotal {
		return nil, newResidualInfeasible("flex", "%d flex players locked, exactly %d allowed", lockedFlex, req.FlexTotal)
	}
	residual.FlexTotal = req.FlexTotal - lockedFlex
	minTotal := 0
	for _, role := range req.minimumRoles() {
		left := req.Minimums[role] - p.LockedRoles[role]
		if left < 0 {
			left = 0
		}
		residual.Minimums[role] = left
		minTotal += left
	}
	if minTotal > residual.FlexTotal {
		return nil, newResidualInfeasible("flex", "%d flex slots left but residual minimums need %d", residual.FlexTotal, minTotal)
	}

	teams := make([]string, 0, len(p.LockedTeams))
	for team := range p.LockedTeams {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	if residual.TeamAllowance == nil {
		residual.TeamAllowance = make(map[string]int, len(teams))
	}
	for _, team := range teams {
		limit := req.TeamLimit(team)
		if p.LockedTeams[team] > limit {
			return nil, newResidualInfeasible("max_per_team:"+team, "%d locked, limit %d", p.LockedTeams[team], limit)
		}
		residual.TeamAllowance[team] = limit - p.LockedTeams[team]
	}
	p.Residual = residual
	return p, nil
}

// LockedPartitioner completes a partially fixed roster: locked candidates are
// kept as they are and only the remaining slots are optimized.
type LockedPartitioner struct {
	solver *RosterSolver
	logger *logrus.Entry
}

// NewLockedPartitioner wraps solver, which solves the residual problem.
func NewLockedPartitioner(solver *RosterSolver, logger *logrus.Entry) *LockedPartitioner {
	if logger == nil {
		logger = solver.logger
	}
	return &LockedPartitioner{solver: solver, logger: logger}
}

// Solve returns a lineup holding every locked candidate plus the optimal
// completion from the unlocked pool.
func (l *LockedPartitioner) Solve(ctx context.Context, pool []Candidate, req RosterRequirement, salaryCap int) (*Lineup, error) {
	selected, err := l.Select(ctx, pool, req, salaryCap)
	if err != nil {
		return nil, err
	}
	return AssembleLineup(selected, "", 0, salaryCap, req.RosterSize), nil
}

// Select returns the locked candidates followed by the solved completion.
func (l *LockedPartitioner) Select(ctx context.Context, pool []Candidate, req RosterRequirement, salaryCap int) ([]Candidate, error) {
	part, err := PartitionPool(pool, req, salaryCap)
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{
		"locked":           len(part.Locked),
		"available":        len(part.Available),
		"remaining_slots":  part.RemainingSlots,
		"remaining_budget": part.RemainingBudget,
	}).Debug("Partitioned locked candidates")

	if part.RemainingSlots == 0 {
		if err := req.CheckSelection(part.Locked, salaryCap); err != nil {
			return nil, asResidual(err)
		}
		return clonePool(part.Locked), nil
	}

	solved, err := l.solver.Select(ctx, part.Available, part.Residual, part.RemainingBudget)
	if err != nil {
		return nil, asResidual(err)
	}
	return MergeSelection(part.Locked, solved), nil
}

// MergeSelection concatenates the locked set and a residual solution.
func MergeSelection(locked, solved []Candidate) []Candidate {
	out := make([]Candidate, 0, len(locked)+len(solved))
	out = append(out, locked...)
	return append(out, solved...)
}

// asResidual marks an infeasibility of the reduced problem as residual so the
// caller can tell it apart from an infeasible unrestricted pool.
func asResidual(err error) error {
	var inf *InfeasibleError
	if errors.As(err, &inf) && !inf.residual {
		return &InfeasibleError{Requirement: inf.Requirement, Detail: inf.Detail, residual: true}
	}
	return err
}
