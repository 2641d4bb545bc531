package optimizer

import (
	"errors"
	"fmt"
)

var (
	// ErrInfeasible means no assignment satisfies the active constraints.
	ErrInfeasible = errors.New("no feasible lineup")
	// ErrResidualInfeasible means the reduced problem left after fixing
	// locked candidates cannot be satisfied. It matches ErrInfeasible too.
	ErrResidualInfeasible = fmt.Errorf("%w: residual requirements cannot be met", ErrInfeasible)
	// ErrSolveLimit is reported, joined with ErrInfeasible, when a single
	// solve exceeds its node budget or deadline.
	ErrSolveLimit = errors.New("solve limit exceeded")
	// ErrInvalidRequirement flags a RosterRequirement that is internally
	// inconsistent (e.g. slot counts not adding up to the roster size).
	ErrInvalidRequirement = errors.New("invalid roster requirement")
	// ErrInvalidRequest flags malformed engine input such as a negative cap.
	ErrInvalidRequest = errors.New("invalid optimize request")
)

// InfeasibleError identifies the specific requirement that could not be met.
type InfeasibleError struct {
	Requirement string
	Detail      string
	residual    bool
}

func newInfeasible(requirement, format string, args ...interface{}) *InfeasibleError {
	return &InfeasibleError{Requirement: requirement, Detail: fmt.Sprintf(format, args...)}
}

func newResidualInfeasible(requirement, format string, args ...interface{}) *InfeasibleError {
	e := newInfeasible(requirement, format, args...)
	e.residual = true
	return e
}

func (e *InfeasibleError) Error() string {
	prefix := "infeasible"
	if e.residual {
		prefix = "residual infeasible"
	}
	if e.Requirement == "" {
		return fmt.Sprintf("%s: %s", prefix, e.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", prefix, e.Requirement, e.Detail)
}

// Unwrap lets errors.Is match ErrInfeasible, and ErrResidualInfeasible for
// failures raised by the locked-slot partitioner.
func (e *InfeasibleError) Unwrap() error {
	if e.residual {
		return ErrResidualInfeasible
	}
	return ErrInfeasible
}

// IsResidual reports whether the error came from a locked-slot reduction.
func (e *InfeasibleError) IsResidual() bool {
	return e.residual
}

func solveLimitError(detail string) error {
	return fmt.Errorf("%w: %w: %s", ErrInfeasible, ErrSolveLimit, detail)
}
