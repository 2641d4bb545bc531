package optimizer

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	integralityTol = 1e-6
	boundTol       = 1e-7
	simplexTol     = 1e-10
)

// BranchAndBound solves the binary program by depth-first branch-and-bound,
// bounding each node with the LP relaxation solved by gonum's simplex.
type BranchAndBound struct {
	NodeLimit int
}

// NewBranchAndBound creates the default backend. nodeLimit <= 0 means no
// node budget (the context deadline still applies).
func NewBranchAndBound(nodeLimit int) *BranchAndBound {
	return &BranchAndBound{NodeLimit: nodeLimit}
}

func (b *BranchAndBound) Name() string { return BackendBranchAndBound }

// Solve returns the optimal selection or ErrInfeasible.
func (b *BranchAndBound) Solve(ctx context.Context, p *Problem) (Solution, error) {
	n := p.NumVars()
	if p.Cardinality > n {
		return Solution{}, newInfeasible("roster_size", "pool has %d candidates, roster needs %d", n, p.Cardinality)
	}
	s := &bnbSearch{
		problem: p,
		fixed:   make([]int8, n),
		counter: nodeCounter{ctx: ctx, limit: b.NodeLimit},
		best:    math.Inf(-1),
	}
	for i := range s.fixed {
		s.fixed[i] = free
	}
	if err := s.branch(); err != nil {
		return Solution{Nodes: s.counter.nodes}, err
	}
	if s.bestSel == nil {
		return Solution{Nodes: s.counter.nodes}, newInfeasible("", "no selection satisfies all constraints")
	}
	return Solution{Selected: s.bestSel, Objective: s.best, Nodes: s.counter.nodes}, nil
}

const free int8 = -1

type relaxStatus int

const (
	relaxOptimal relaxStatus = iota
	relaxInfeasible
	relaxUnknown
)

type relaxation struct {
	status relaxStatus
	bound  float64
	// x maps free variable index to its LP value.
	x map[int]float64
}

type bnbSearch struct {
	problem *Problem
	fixed   []int8
	counter nodeCounter
	best    float64
	bestSel []int
}

func (s *bnbSearch) branch() error {
	if err := s.counter.tick(); err != nil {
		return err
	}

	fixedValue := 0.0
	for i, v := range s.fixed {
		if v == 1 {
			fixedValue += s.problem.Objective[i]
		}
	}

	r := s.relax()
	branchVar := -1
	switch r.status {
	case relaxInfeasible:
		return nil
	case relaxOptimal:
		if s.bestSel != nil && fixedValue+r.bound <= s.best+boundTol {
			return nil
		}
		branchVar = mostFractional(r.x)
		if branchVar < 0 {
			sel := s.selectionWith(r.x)
			if s.problem.Feasible(sel) {
				s.offer(sel)
				return nil
			}
		}
	}

	if branchVar < 0 {
		branchVar = s.firstFree()
	}
	if branchVar < 0 {
		sel := s.selectionWith(nil)
		if s.problem.Feasible(sel) {
			s.offer(sel)
		}
		return nil
	}

	for _, v := range [2]int8{1, 0} {
		s.fixed[branchVar] = v
		err := s.branch()
		s.fixed[branchVar] = free
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *bnbSearch) offer(sel []int) {
	v := s.problem.Value(sel)
	if s.bestSel == nil || v > s.best+feasibilityEps {
		s.best = v
		s.bestSel = sel
	}
}

func (s *bnbSearch) firstFree() int {
	for i, v := range s.fixed {
		if v == free {
			return i
		}
	}
	return -1
}

// selectionWith returns the fixed-to-one variables plus free variables whose
// LP value rounds to one.
func (s *bnbSearch) selectionWith(x map[int]float64) []int {
	sel := make([]int, 0, s.problem.Cardinality)
	for i, v := range s.fixed {
		if v == 1 || (v == free && x[i] > 0.5) {
			sel = append(sel, i)
		}
	}
	return sel
}

func mostFractional(x map[int]float64) int {
	best := -1
	bestFrac := integralityTol
	for i, v := range x {
		f := v - math.Floor(v)
		if 1-f < f {
			f = 1 - f
		}
		if f > bestFrac || (f == bestFrac && best >= 0 && i < best) {
			best = i
			bestFrac = f
		}
	}
	return best
}

type keptRow struct {
	coef  []float64
	sense Sense
	rhs   float64
}

// relax builds and solves the LP relaxation over the free variables with
// the fixed ones substituted out.
func (s *bnbSearch) relax() relaxation {
	p := s.problem
	freeIdx := make([]int, 0, len(s.fixed))
	chosen := 0
	for i, v := range s.fixed {
		switch v {
		case free:
			freeIdx = append(freeIdx, i)
		case 1:
			chosen++
		}
	}

	rows := make([]keptRow, 0, len(p.Constraints)+1)
	for _, c := range p.Constraints {
		residual := c.RHS
		freeSum := 0.0
		coef := make([]float64, len(freeIdx))
		for i, v := range s.fixed {
			if v == 1 {
				residual -= c.Coef[i]
			}
		}
		for k, i := range freeIdx {
			coef[k] = c.Coef[i]
			freeSum += c.Coef[i]
		}
		switch c.Sense {
		case LessEqual:
			if residual < -feasibilityEps {
				return relaxation{status: relaxInfeasible}
			}
			if freeSum <= residual+feasibilityEps {
				continue
			}
		case Equal:
			if residual < -feasibilityEps || residual > freeSum+feasibilityEps {
				return relaxation{status: relaxInfeasible}
			}
			if freeSum == 0 {
				continue
			}
		case GreaterEqual:
			if residual <= feasibilityEps {
				continue
			}
			if freeSum < residual-feasibilityEps {
				return relaxation{status: relaxInfeasible}
			}
		}
		rows = append(rows, keptRow{coef: coef, sense: c.Sense, rhs: math.Max(residual, 0)})
	}

	remaining := p.Cardinality - chosen
	if remaining < 0 || remaining > len(freeIdx) {
		return relaxation{status: relaxInfeasible}
	}
	if len(freeIdx) == 0 {
		return relaxation{status: relaxOptimal, x: map[int]float64{}}
	}
	if !p.CardinalityImplied {
		ones := make([]float64, len(freeIdx))
		for k := range ones {
			ones[k] = 1
		}
		rows = append(rows, keptRow{coef: ones, sense: Equal, rhs: float64(remaining)})
	}
	if remaining == 0 {
		for _, r := range rows {
			if r.sense != LessEqual && r.rhs > feasibilityEps {
				return relaxation{status: relaxInfeasible}
			}
		}
		x := make(map[int]float64, len(freeIdx))
		for _, i := range freeIdx {
			x[i] = 0
		}
		return relaxation{status: relaxOptimal, bound: 0, x: x}
	}

	equalities := 0
	for _, r := range rows {
		if r.sense == Equal {
			equalities++
		}
	}
	if equalities > len(freeIdx) {
		return relaxation{status: relaxUnknown}
	}
	return s.simplex(freeIdx, rows)
}

// simplex converts the kept rows to standard form (Ax = b, x >= 0) with a
// slack per inequality and an upper-bound row per free variable, then
// solves it with gonum.
func (s *bnbSearch) simplex(freeIdx []int, rows []keptRow) (res relaxation) {
	nf := len(freeIdx)
	slacks := 0
	for _, r := range rows {
		if r.sense != Equal {
			slacks++
		}
	}
	m := len(rows) + nf
	cols := nf + slacks + nf

	A := mat.NewDense(m, cols, nil)
	b := make([]float64, m)
	c := make([]float64, cols)
	for k, i := range freeIdx {
		c[k] = -s.problem.Objective[i]
	}

	slack := nf
	for ri, r := range rows {
		scale := 0.0
		for _, v := range r.coef {
			scale = math.Max(scale, v)
		}
		if scale == 0 {
			scale = 1
		}
		for k, v := range r.coef {
			A.Set(ri, k, v/scale)
		}
		b[ri] = r.rhs / scale
		switch r.sense {
		case LessEqual:
			A.Set(ri, slack, 1)
			slack++
		case GreaterEqual:
			A.Set(ri, slack, -1)
			slack++
		}
	}
	for k := 0; k < nf; k++ {
		row := len(rows) + k
		A.Set(row, k, 1)
		A.Set(row, nf+slacks+k, 1)
		b[row] = 1
	}

	defer func() {
		if recover() != nil {
			res = relaxation{status: relaxUnknown}
		}
	}()
	optF, optX, err := lp.Simplex(c, A, b, simplexTol, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return relaxation{status: relaxInfeasible}
		}
		return relaxation{status: relaxUnknown}
	}
	x := make(map[int]float64, nf)
	for k, i := range freeIdx {
		x[i] = optX[k]
	}
	return relaxation{status: relaxOptimal, bound: -optF, x: x}
}
