package optimizer

import "strings"

// Role is a roster position code.
type Role string

const (
	RoleQB  Role = "QB"
	RoleRB  Role = "RB"
	RoleWR  Role = "WR"
	RoleTE  Role = "TE"
	RoleDEF Role = "DEF"
)

// ValidRoles is the closed set of position codes the solver accepts.
var ValidRoles = []Role{RoleQB, RoleRB, RoleWR, RoleTE, RoleDEF}

// ParseRole converts a position code to a Role. The second return value is
// false for codes outside ValidRoles.
func ParseRole(code string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(code)))
	for _, v := range ValidRoles {
		if r == v {
			return r, true
		}
	}
	return r, false
}

// Candidate is a selectable player or defense unit. It is a plain value type
// so that copying a pool slice yields a fully independent pool.
type Candidate struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Role             Role    `json:"role"`
	Team             string  `json:"team"`
	Salary           int     `json:"salary"`
	ProjectedPoints  float64 `json:"projected_points"`
	OwnershipPercent float64 `json:"ownership_percent"`
	Locked           bool    `json:"locked"`
}

// IsEligible reports whether the candidate may enter a solver pool.
func (c Candidate) IsEligible() bool {
	if c.Salary <= 0 || c.ProjectedPoints < 0 {
		return false
	}
	_, ok := ParseRole(string(c.Role))
	return ok
}

// LineupPlayer is the externally consumed view of a selected candidate.
type LineupPlayer struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Role             Role    `json:"role"`
	Team             string  `json:"team"`
	Salary           int     `json:"salary"`
	ProjectedPoints  float64 `json:"projected_points"`
	OwnershipPercent float64 `json:"ownership_percent"`
	Locked           bool    `json:"locked"`
	IsCaptain        bool    `json:"is_captain"`
}

// Lineup is one solved roster. It is built once by AssembleLineup and not
// modified afterwards.
type Lineup struct {
	Players              []LineupPlayer `json:"players"`
	TotalSalary          int            `json:"total_salary"`
	TotalProjectedPoints float64        `json:"total_projected_points"`
	RemainingCap         int            `json:"remaining_cap"`
	SalaryCap            int            `json:"salary_cap"`
	IsValid              bool           `json:"is_valid"`
	CaptainID            string         `json:"captain_id,omitempty"`
	CaptainBonusPoints   float64        `json:"captain_bonus_points"`
}

// PlayerIDs returns the ids of the selected players in lineup order.
func (l *Lineup) PlayerIDs() []string {
	ids := make([]string, len(l.Players))
	for i, p := range l.Players {
		ids[i] = p.ID
	}
	return ids
}

// Contains reports whether a candidate id is part of the lineup.
func (l *Lineup) Contains(id string) bool {
	for _, p := range l.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// BasePoints is the sum of the selected players' own projections, without
// any captain bonus.
func (l *Lineup) BasePoints() float64 {
	total := 0.0
	for _, p := range l.Players {
		total += p.ProjectedPoints
	}
	return total
}

func clonePool(pool []Candidate) []Candidate {
	out := make([]Candidate, len(pool))
	copy(out, pool)
	return out
}
