package optimizer

import (
	"context"
	"fmt"
	"time"
)

// Backend solves a binary roster Problem to optimality.
type Backend interface {
	Name() string
	Solve(ctx context.Context, p *Problem) (Solution, error)
}

const (
	BackendBranchAndBound = "branch_and_bound"
	BackendExhaustive     = "exhaustive"
)

// SolveOptions bounds the work done by a single solve.
type SolveOptions struct {
	Backend   string        `json:"backend"`
	Timeout   time.Duration `json:"timeout"`
	NodeLimit int           `json:"node_limit"`
}

// DefaultSolveOptions returns the options used when none are configured.
func DefaultSolveOptions() SolveOptions {
	return SolveOptions{
		Backend:   BackendBranchAndBound,
		Timeout:   5 * time.Second,
		NodeLimit: 200000,
	}
}

// NewBackend returns the backend registered under name.
func NewBackend(name string, opts SolveOptions) (Backend, error) {
	switch name {
	case "", BackendBranchAndBound:
		return NewBranchAndBound(opts.NodeLimit), nil
	case BackendExhaustive:
		return NewExhaustive(opts.NodeLimit), nil
	default:
		return nil, fmt.Errorf("unknown solver backend %q", name)
	}
}

// nodeCounter enforces the node budget and the context deadline.
type nodeCounter struct {
	ctx   context.Context
	limit int
	nodes int
}

func (n *nodeCounter) tick() error {
	n.nodes++
	if n.limit > 0 && n.nodes > n.limit {
		return solveLimitError(fmt.Sprintf("explored more than %d nodes", n.limit))
	}
	if n.nodes == 1 || n.nodes&63 == 0 {
		if err := n.ctx.Err(); err != nil {
			return solveLimitError(err.Error())
		}
	}
	return nil
}
