package optimizer

import (
	"context"
	"math"
	"sort"
)

// Exhaustive enumerates selections by backtracking over candidates in
// descending objective order, pruning on row bounds and on the best
// possible completion. It is exact and intended for small pools and as a
// cross-check of the branch-and-bound backend.
type Exhaustive struct {
	NodeLimit int
}

// NewExhaustive creates the backtracking backend.
func NewExhaustive(nodeLimit int) *Exhaustive {
	return &Exhaustive{NodeLimit: nodeLimit}
}

func (e *Exhaustive) Name() string { return BackendExhaustive }

// Solve returns the optimal selection or ErrInfeasible.
func (e *Exhaustive) Solve(ctx context.Context, p *Problem) (Solution, error) {
	n := p.NumVars()
	if p.Cardinality > n {
		return Solution{}, newInfeasible("roster_size", "pool has %d candidates, roster needs %d", n, p.Cardinality)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p.Objective[order[a]] > p.Objective[order[b]]
	})

	// suffix[r][k] is the sum of row r's coefficients over order[k:].
	suffix := make([][]float64, len(p.Constraints))
	for r, row := range p.Constraints {
		suffix[r] = make([]float64, n+1)
		for k := n - 1; k >= 0; k-- {
			suffix[r][k] = suffix[r][k+1] + row.Coef[order[k]]
		}
	}
	// prefix[k] is the sum of objective over order[:k].
	prefix := make([]float64, n+1)
	for k := 0; k < n; k++ {
		prefix[k+1] = prefix[k] + p.Objective[order[k]]
	}

	s := &exhaustiveSearch{
		problem: p,
		order:   order,
		suffix:  suffix,
		prefix:  prefix,
		sums:    make([]float64, len(p.Constraints)),
		current: make([]int, 0, p.Cardinality),
		counter: nodeCounter{ctx: ctx, limit: e.NodeLimit},
		best:    math.Inf(-1),
	}
	if err := s.visit(0, 0); err != nil {
		return Solution{Nodes: s.counter.nodes}, err
	}
	if s.bestSel == nil {
		return Solution{Nodes: s.counter.nodes}, newInfeasible("", "no selection satisfies all constraints")
	}
	sort.Ints(s.bestSel)
	return Solution{Selected: s.bestSel, Objective: s.best, Nodes: s.counter.nodes}, nil
}

type exhaustiveSearch struct {
	problem *Problem
	order   []int
	suffix  [][]float64
	prefix  []float64
	sums    []float64
	current []int
	value   float64
	counter nodeCounter
	best    float64
	bestSel []int
}

func (s *exhaustiveSearch) visit(k, chosen int) error {
	if err := s.counter.tick(); err != nil {
		return err
	}
	p := s.problem
	n := len(s.order)
	need := p.Cardinality - chosen

	if need < 0 || need > n-k {
		return nil
	}
	for r, row := range p.Constraints {
		switch row.Sense {
		case LessEqual:
			if s.sums[r] > row.RHS+feasibilityEps {
				return nil
			}
		case Equal:
			if s.sums[r] > row.RHS+feasibilityEps || s.sums[r]+s.suffix[r][k] < row.RHS-feasibilityEps {
				return nil
			}
		case GreaterEqual:
			if s.sums[r]+s.suffix[r][k] < row.RHS-feasibilityEps {
				return nil
			}
		}
	}
	if s.bestSel != nil && s.value+s.prefix[k+need]-s.prefix[k] <= s.best+feasibilityEps {
		return nil
	}

	if need == 0 {
		if p.Feasible(s.current) {
			s.best = s.value
			s.bestSel = append([]int(nil), s.current...)
		}
		return nil
	}

	idx := s.order[k]
	s.include(idx, 1)
	err := s.visit(k+1, chosen+1)
	s.include(idx, -1)
	if err != nil {
		return err
	}
	return s.visit(k+1, chosen)
}

func (s *exhaustiveSearch) include(idx int, sign float64) {
	for r, row := range s.problem.Constraints {
		s.sums[r] += sign * row.Coef[idx]
	}
	s.value += sign * s.problem.Objective[idx]
	if sign > 0 {
		s.current = append(s.current, idx)
	} else {
		s.current = s.current[:len(s.current)-1]
	}
}
