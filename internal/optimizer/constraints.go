package optimizer

import (
	"fmt"
	"sort"
)

const (
	DefaultSalaryCap  = 70000
	DefaultRosterSize = 7
	DefaultMaxPerTeam = 3
)

// RosterRequirement describes the positional composition of a legal lineup.
// It is configuration: solver stages derive new values from it rather than
// mutating it.
type RosterRequirement struct {
	RosterSize int          `json:"roster_size"`
	Exact      map[Role]int `json:"exact"`
	FlexRoles  []Role       `json:"flex_roles"`
	FlexTotal  int          `json:"flex_total"`
	Minimums   map[Role]int `json:"minimums"`
	MaxPerTeam int          `json:"max_per_team"`
	// TeamAllowance overrides MaxPerTeam for the listed teams. The
	// locked-slot partitioner uses it to carry per-team residual allowances.
	TeamAllowance map[string]int `json:"team_allowance,omitempty"`
	// CaptainIneligible lists roles that can never be captain.
	CaptainIneligible []Role `json:"captain_ineligible"`
}

// DefaultRequirement returns the CFL fantasy roster: 1 QB, 1 DEF and five
// WR/RB/TE of which at least two WR and two RB, max three per team.
func DefaultRequirement() RosterRequirement {
	return RosterRequirement{
		RosterSize:        DefaultRosterSize,
		Exact:             map[Role]int{RoleQB: 1, RoleDEF: 1},
		FlexRoles:         []Role{RoleWR, RoleRB, RoleTE},
		FlexTotal:         5,
		Minimums:          map[Role]int{RoleWR: 2, RoleRB: 2},
		MaxPerTeam:        DefaultMaxPerTeam,
		CaptainIneligible: []Role{RoleDEF},
	}
}

// WithMaxPerTeam returns a copy of the requirement with a different team cap.
func (r RosterRequirement) WithMaxPerTeam(n int) RosterRequirement {
	out := r.clone()
	out.MaxPerTeam = n
	return out
}

func (r RosterRequirement) clone() RosterRequirement {
	out := r
	out.Exact = copyCounts(r.Exact)
	out.Minimums = copyCounts(r.Minimums)
	out.FlexRoles = append([]Role(nil), r.FlexRoles...)
	out.CaptainIneligible = append([]Role(nil), r.CaptainIneligible...)
	if r.TeamAllowance != nil {
		out.TeamAllowance = make(map[string]int, len(r.TeamAllowance))
		for k, v := range r.TeamAllowance {
			out.TeamAllowance[k] = v
		}
	}
	return out
}

func copyCounts(in map[Role]int) map[Role]int {
	out := make(map[Role]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Validate checks the requirement is internally consistent.
func (r RosterRequirement) Validate() error {
	if r.RosterSize < 0 {
		return fmt.Errorf("%w: roster size %d is negative", ErrInvalidRequirement, r.RosterSize)
	}
	if r.MaxPerTeam <= 0 {
		return fmt.Errorf("%w: max per team must be positive, got %d", ErrInvalidRequirement, r.MaxPerTeam)
	}
	slots := r.FlexTotal
	for role, n := range r.Exact {
		if n < 0 {
			return fmt.Errorf("%w: exact count for %s is negative", ErrInvalidRequirement, role)
		}
		if r.IsFlex(role) {
			return fmt.Errorf("%w: %s is both an exact and a flex role", ErrInvalidRequirement, role)
		}
		slots += n
	}
	if slots != r.RosterSize {
		return fmt.Errorf("%w: exact slots plus flex total is %d, roster size is %d", ErrInvalidRequirement, slots, r.RosterSize)
	}
	minTotal := 0
	for role, n := range r.Minimums {
		if !r.IsFlex(role) {
			return fmt.Errorf("%w: minimum for %s which is not a flex role", ErrInvalidRequirement, role)
		}
		if n < 0 {
			return fmt.Errorf("%w: minimum for %s is negative", ErrInvalidRequirement, role)
		}
		minTotal += n
	}
	if minTotal > r.FlexTotal {
		return fmt.Errorf("%w: flex minimums (%d) exceed flex total (%d)", ErrInvalidRequirement, minTotal, r.FlexTotal)
	}
	return nil
}

// IsFlex reports whether role can fill a flex slot.
func (r RosterRequirement) IsFlex(role Role) bool {
	for _, f := range r.FlexRoles {
		if f == role {
			return true
		}
	}
	return false
}

// Selectable reports whether role belongs to an exact or flex group.
func (r RosterRequirement) Selectable(role Role) bool {
	if _, ok := r.Exact[role]; ok {
		return true
	}
	return r.IsFlex(role)
}

// CanCaptain reports whether a candidate of this role may be captain.
func (r RosterRequirement) CanCaptain(role Role) bool {
	for _, x := range r.CaptainIneligible {
		if x == role {
			return false
		}
	}
	return true
}

// TeamLimit returns the maximum number of selections allowed from team.
func (r RosterRequirement) TeamLimit(team string) int {
	if n, ok := r.TeamAllowance[team]; ok {
		return n
	}
	return r.MaxPerTeam
}

// exactRoles returns the exact-count roles in a stable order.
func (r RosterRequirement) exactRoles() []Role {
	roles := make([]Role, 0, len(r.Exact))
	for role := range r.Exact {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

func (r RosterRequirement) minimumRoles() []Role {
	roles := make([]Role, 0, len(r.Minimums))
	for role := range r.Minimums {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// CheckSelection validates a concrete set of candidates against the
// requirement and salary cap. It returns nil for a legal roster.
func (r RosterRequirement) CheckSelection(selected []Candidate, salaryCap int) error {
	if len(selected) != r.RosterSize {
		return newInfeasible("roster_size", "selected %d candidates, need %d", len(selected), r.RosterSize)
	}
	salary := 0
	roleCounts := make(map[Role]int)
	teamCounts := make(map[string]int)
	flex := 0
	seen := make(map[string]bool, len(selected))
	for _, c := range selected {
		if seen[c.ID] {
			return newInfeasible("unique", "candidate %s selected twice", c.ID)
		}
		seen[c.ID] = true
		if !r.Selectable(c.Role) {
			return newInfeasible("role", "candidate %s has unselectable role %s", c.ID, c.Role)
		}
		salary += c.Salary
		roleCounts[c.Role]++
		teamCounts[c.Team]++
		if r.IsFlex(c.Role) {
			flex++
		}
	}
	if salary > salaryCap {
		return newInfeasible("salary_cap", "salary %d exceeds cap %d", salary, salaryCap)
	}
	for _, role := range r.exactRoles() {
		if roleCounts[role] != r.Exact[role] {
			return newInfeasible(string(role), "need exactly %d, got %d", r.Exact[role], roleCounts[role])
		}
	}
	if flex != r.FlexTotal {
		return newInfeasible("flex", "need exactly %d flex players, got %d", r.FlexTotal, flex)
	}
	for _, role := range r.minimumRoles() {
		if roleCounts[role] < r.Minimums[role] {
			return newInfeasible(string(role), "need at least %d, got %d", r.Minimums[role], roleCounts[role])
		}
	}
	for team, n := range teamCounts {
		if n > r.TeamLimit(team) {
			return newInfeasible("max_per_team:"+team, "%d selected, limit %d", n, r.TeamLimit(team))
		}
	}
	return nil
}
