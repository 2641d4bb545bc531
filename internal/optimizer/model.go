package optimizer

import (
	"fmt"
	"sort"
)

const feasibilityEps = 1e-9

// Sense is the direction of a linear constraint row.
type Sense int

const (
	LessEqual Sense = iota
	Equal
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case Equal:
		return "=="
	case GreaterEqual:
		return ">="
	}
	return "?"
}

// Constraint is one linear row over the 0/1 selection variables. All
// coefficients are non-negative.
type Constraint struct {
	Label string
	Coef  []float64
	Sense Sense
	RHS   float64
}

// Problem is a binary program: maximize Objective·x subject to
// Constraints, with exactly Cardinality variables set to one.
type Problem struct {
	Objective   []float64
	Constraints []Constraint
	Cardinality int
	// CardinalityImplied is set when the constraint rows already force the
	// selection size, so a backend may leave the cardinality row out.
	CardinalityImplied bool
}

// NumVars returns the number of decision variables.
func (p *Problem) NumVars() int {
	return len(p.Objective)
}

// Value returns the objective of a selection.
func (p *Problem) Value(selected []int) float64 {
	total := 0.0
	for _, i := range selected {
		total += p.Objective[i]
	}
	return total
}

// Feasible checks a selection against every row and the cardinality.
func (p *Problem) Feasible(selected []int) bool {
	if len(selected) != p.Cardinality {
		return false
	}
	for _, row := range p.Constraints {
		sum := 0.0
		for _, i := range selected {
			sum += row.Coef[i]
		}
		switch row.Sense {
		case LessEqual:
			if sum > row.RHS+feasibilityEps {
				return false
			}
		case Equal:
			if sum > row.RHS+feasibilityEps || sum < row.RHS-feasibilityEps {
				return false
			}
		case GreaterEqual:
			if sum < row.RHS-feasibilityEps {
				return false
			}
		}
	}
	return true
}

// Solution is a backend's answer to a Problem.
type Solution struct {
	Selected  []int
	Objective float64
	Nodes     int
}

// Formulate builds the roster integer program for a filtered pool. Every
// candidate in pool must have a role selectable under req.
func Formulate(pool []Candidate, req RosterRequirement, salaryCap int) *Problem {
	n := len(pool)
	p := &Problem{
		Objective:   make([]float64, n),
		Cardinality: req.RosterSize,
	}

	salary := Constraint{Label: "salary_cap", Coef: make([]float64, n), Sense: LessEqual, RHS: float64(salaryCap)}
	for i, c := range pool {
		p.Objective[i] = c.ProjectedPoints
		salary.Coef[i] = float64(c.Salary)
	}
	p.Constraints = append(p.Constraints, salary)

	for _, role := range req.exactRoles() {
		row := Constraint{Label: string(role), Coef: make([]float64, n), Sense: Equal, RHS: float64(req.Exact[role])}
		for i, c := range pool {
			if c.Role == role {
				row.Coef[i] = 1
			}
		}
		p.Constraints = append(p.Constraints, row)
	}

	flex := Constraint{Label: "flex", Coef: make([]float64, n), Sense: Equal, RHS: float64(req.FlexTotal)}
	for i, c := range pool {
		if req.IsFlex(c.Role) {
			flex.Coef[i] = 1
		}
	}
	p.Constraints = append(p.Constraints, flex)

	for _, role := range req.minimumRoles() {
		if req.Minimums[role] == 0 {
			continue
		}
		row := Constraint{Label: "min:" + string(role), Coef: make([]float64, n), Sense: GreaterEqual, RHS: float64(req.Minimums[role])}
		for i, c := range pool {
			if c.Role == role {
				row.Coef[i] = 1
			}
		}
		p.Constraints = append(p.Constraints, row)
	}

	teams := make([]string, 0)
	seen := make(map[string]bool)
	for _, c := range pool {
		if !seen[c.Team] {
			seen[c.Team] = true
			teams = append(teams, c.Team)
		}
	}
	sort.Strings(teams)
	for _, team := range teams {
		row := Constraint{Label: fmt.Sprintf("max_per_team:%s", team), Coef: make([]float64, n), Sense: LessEqual, RHS: float64(req.TeamLimit(team))}
		for i, c := range pool {
			if c.Team == team {
				row.Coef[i] = 1
			}
		}
		p.Constraints = append(p.Constraints, row)
	}

	implied := true
	for _, c := range pool {
		if !req.Selectable(c.Role) {
			implied = false
			break
		}
	}
	p.CardinalityImplied = implied
	return p
}
