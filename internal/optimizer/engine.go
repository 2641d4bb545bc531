package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/pkg/logger"
)

const DefaultMaxLineups = 20

// Request is one optimize call against the engine.
type Request struct {
	Candidates []Candidate `json:"candidates"`
	// SalaryCap of zero means the engine default.
	SalaryCap int `json:"salary_cap"`
	// Requirement of nil means the engine default.
	Requirement *RosterRequirement `json:"requirement,omitempty"`
	UseCaptain  bool               `json:"use_captain"`
	NumLineups  int                `json:"num_lineups"`
	// Parallelism bounds concurrent captain sub-solves; zero means the
	// engine default.
	Parallelism int          `json:"parallelism"`
	Progress    ProgressFunc `json:"-"`
}

// Result is the outcome of Engine.Optimize.
type Result struct {
	OptimizationID string    `json:"optimization_id"`
	Lineups        []*Lineup `json:"lineups"`
	PoolStats      PoolStats `json:"pool_stats"`
	Backend        string    `json:"backend"`
	Mode           string    `json:"mode"`
	ElapsedMs      int64     `json:"elapsed_ms"`
}

// EngineConfig holds engine-wide defaults.
type EngineConfig struct {
	Solve          SolveOptions
	SalaryCap      int
	Requirement    RosterRequirement
	CaptainWorkers int
	MaxLineups     int
}

// DefaultEngineConfig returns the CFL defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Solve:          DefaultSolveOptions(),
		SalaryCap:      DefaultSalaryCap,
		Requirement:    DefaultRequirement(),
		CaptainWorkers: 1,
		MaxLineups:     DefaultMaxLineups,
	}
}

// Engine routes optimize requests to the roster solver, the locked-slot
// partitioner and the captain search.
type Engine struct {
	cfg     EngineConfig
	backend Backend
}

// NewEngine validates cfg and builds the configured backend.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Requirement.Validate(); err != nil {
		return nil, err
	}
	if cfg.SalaryCap <= 0 {
		return nil, fmt.Errorf("%w: salary cap must be positive, got %d", ErrInvalidRequest, cfg.SalaryCap)
	}
	if cfg.MaxLineups <= 0 {
		cfg.MaxLineups = DefaultMaxLineups
	}
	if cfg.CaptainWorkers <= 0 {
		cfg.CaptainWorkers = 1
	}
	backend, err := NewBackend(cfg.Solve.Backend, cfg.Solve)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, backend: backend}, nil
}

// Backend returns the name of the solve backend in use.
func (e *Engine) Backend() string {
	return e.backend.Name()
}

// Optimize solves the request. NumLineups greater than one repeats the same
// independent solve; no diversity between lineups is attempted.
func (e *Engine) Optimize(ctx context.Context, req Request) (*Result, error) {
	optimizationID := uuid.New().String()
	start := time.Now()

	salaryCap := req.SalaryCap
	if salaryCap == 0 {
		salaryCap = e.cfg.SalaryCap
	}
	if salaryCap < 0 {
		return nil, fmt.Errorf("%w: salary cap %d is negative", ErrInvalidRequest, salaryCap)
	}
	requirement := e.cfg.Requirement
	if req.Requirement != nil {
		requirement = *req.Requirement
	}
	if err := requirement.Validate(); err != nil {
		return nil, err
	}
	numLineups := req.NumLineups
	if numLineups <= 0 {
		numLineups = 1
	}
	workers := req.Parallelism
	if workers <= 0 {
		workers = e.cfg.CaptainWorkers
	}

	pool := clonePool(req.Candidates)
	hasLocked := false
	for _, c := range pool {
		if c.Locked {
			hasLocked = true
			break
		}
	}
	mode := modeName(hasLocked, req.UseCaptain)

	log := logger.WithOptimizationContext(optimizationID, mode, e.backend.Name())
	if numLineups > e.cfg.MaxLineups {
		log.WithFields(logrus.Fields{
			"requested": numLineups,
			"max":       e.cfg.MaxLineups,
		}).Warn("Requested lineups exceed maximum, clamping")
		numLineups = e.cfg.MaxLineups
	}
	log.WithFields(logrus.Fields{
		"candidates":  len(pool),
		"salary_cap":  salaryCap,
		"num_lineups": numLineups,
		"use_captain": req.UseCaptain,
	}).Info("Starting optimization")

	solver := NewRosterSolver(e.backend, e.cfg.Solve.Timeout, log)
	selectFn := SelectFunc(solver.Select)
	if hasLocked {
		selectFn = NewLockedPartitioner(solver, log).Select
	}

	solveOnce := func() (*Lineup, error) {
		if req.UseCaptain {
			return NewCaptainSearch(selectFn, workers, req.Progress, log).Search(ctx, pool, requirement, salaryCap)
		}
		selected, err := selectFn(ctx, pool, requirement, salaryCap)
		if err != nil {
			return nil, err
		}
		return AssembleLineup(selected, "", 0, salaryCap, requirement.RosterSize), nil
	}

	result := &Result{
		OptimizationID: optimizationID,
		Lineups:        make([]*Lineup, 0, numLineups),
		PoolStats:      ComputePoolStats(req.Candidates),
		Backend:        e.backend.Name(),
		Mode:           mode,
	}
	for i := 0; i < numLineups; i++ {
		lineup, err := solveOnce()
		if err != nil {
			log.WithError(err).Warn("Optimization failed")
			return nil, err
		}
		result.Lineups = append(result.Lineups, lineup)
	}
	result.ElapsedMs = time.Since(start).Milliseconds()

	best := result.Lineups[0]
	log.WithFields(logrus.Fields{
		"lineups":      len(result.Lineups),
		"total_points": best.TotalProjectedPoints,
		"total_salary": best.TotalSalary,
		"captain_id":   best.CaptainID,
		"elapsed_ms":   result.ElapsedMs,
	}).Info("Optimization completed")
	return result, nil
}

const (
	ModeStandard      = "standard"
	ModeLocked        = "locked"
	ModeCaptain       = "captain"
	ModeLockedCaptain = "locked_captain"
)

func modeName(locked, captain bool) string {
	switch {
	case locked && captain:
		return ModeLockedCaptain
	case locked:
		return ModeLocked
	case captain:
		return ModeCaptain
	}
	return ModeStandard
}
