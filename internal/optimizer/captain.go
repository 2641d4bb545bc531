package optimizer

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// SelectFunc returns an optimal legal selection from pool. Both
// RosterSolver.Select and LockedPartitioner.Select satisfy it.
type SelectFunc func(ctx context.Context, pool []Candidate, req RosterRequirement, salaryCap int) ([]Candidate, error)

// ProgressFunc is called after each captain sub-solve finishes.
type ProgressFunc func(done, total int)

// CaptainSearch finds the best captain and roster together by solving one
// perturbed program per captain-eligible candidate.
type CaptainSearch struct {
	selectFn SelectFunc
	workers  int
	progress ProgressFunc
	logger   *logrus.Entry
}

// NewCaptainSearch creates a search over selectFn. workers <= 1 runs the
// sub-solves sequentially.
func NewCaptainSearch(selectFn SelectFunc, workers int, progress ProgressFunc, logger *logrus.Entry) *CaptainSearch {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CaptainSearch{selectFn: selectFn, workers: workers, progress: progress, logger: logger}
}

type captainOutcome struct {
	selected []Candidate
	total    float64
	err      error
}

// Search returns the best lineup with its captain set, the plain lineup when
// no captain improves on zero, or ErrInfeasible when every sub-solve fails.
func (cs *CaptainSearch) Search(ctx context.Context, pool []Candidate, req RosterRequirement, salaryCap int) (*Lineup, error) {
	captains := make([]int, 0, len(pool))
	for i, c := range pool {
		if c.IsEligible() && req.Selectable(c.Role) && req.CanCaptain(c.Role) {
			captains = append(captains, i)
		}
	}
	if len(captains) == 0 {
		cs.logger.Debug("No captain-eligible candidates, solving without captain")
		return cs.plain(ctx, pool, req, salaryCap)
	}

	outcomes := make([]captainOutcome, len(captains))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	semaphore := make(chan struct{}, cs.workers)

	for k, idx := range captains {
		if ctx.Err() != nil {
			outcomes[k].err = solveLimitError(ctx.Err().Error())
			continue
		}
		wg.Add(1)
		go func(k, idx int) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcomes[k] = cs.evaluate(ctx, pool, idx, req, salaryCap)

			if cs.progress != nil {
				mu.Lock()
				done++
				cs.progress(done, len(captains))
				mu.Unlock()
			}
		}(k, idx)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, solveLimitError(err.Error())
	}

	best := 0.0
	bestK := -1
	failures := 0
	var lastErr error
	for k, out := range outcomes {
		id := pool[captains[k]].ID
		if out.err != nil {
			failures++
			lastErr = out.err
			cs.logger.WithFields(logrus.Fields{
				"captain_id": id,
				"error":      out.err.Error(),
			}).Warn("Captain sub-solve failed")
			continue
		}
		if out.selected == nil {
			continue
		}
		if out.total > best {
			best = out.total
			bestK = k
		}
	}

	if failures == len(captains) {
		return nil, lastErr
	}
	if bestK < 0 {
		cs.logger.Debug("No captain improved the lineup, returning plain lineup")
		return cs.plain(ctx, pool, req, salaryCap)
	}

	captain := pool[captains[bestK]]
	selected := restoreOriginals(outcomes[bestK].selected, pool)
	cs.logger.WithFields(logrus.Fields{
		"captain_id":      captain.ID,
		"captain_bonus":   captain.ProjectedPoints,
		"evaluated":       len(captains),
		"failed":          failures,
		"perturbed_total": best,
	}).Info("Captain search completed")
	return AssembleLineup(selected, captain.ID, captain.ProjectedPoints, salaryCap, req.RosterSize), nil
}

// evaluate solves the pool with the candidate at idx doubled. The doubling is
// applied to a private copy so nothing visible to other sub-solves changes.
// A nil selection with nil error means the doubled candidate was not chosen.
func (cs *CaptainSearch) evaluate(ctx context.Context, pool []Candidate, idx int, req RosterRequirement, salaryCap int) captainOutcome {
	perturbed := clonePool(pool)
	perturbed[idx].ProjectedPoints *= 2
	captainID := perturbed[idx].ID

	selected, err := cs.selectFn(ctx, perturbed, req, salaryCap)
	if err != nil {
		return captainOutcome{err: err}
	}
	total := 0.0
	chosen := false
	for _, c := range selected {
		total += c.ProjectedPoints
		if c.ID == captainID {
			chosen = true
		}
	}
	if !chosen {
		return captainOutcome{}
	}
	return captainOutcome{selected: selected, total: total}
}

func (cs *CaptainSearch) plain(ctx context.Context, pool []Candidate, req RosterRequirement, salaryCap int) (*Lineup, error) {
	selected, err := cs.selectFn(ctx, pool, req, salaryCap)
	if err != nil {
		return nil, err
	}
	return AssembleLineup(selected, "", 0, salaryCap, req.RosterSize), nil
}

// restoreOriginals swaps perturbed copies back to the caller's candidates.
func restoreOriginals(selected, pool []Candidate) []Candidate {
	byID := make(map[string]Candidate, len(pool))
	for _, c := range pool {
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = c
		}
	}
	out := make([]Candidate, len(selected))
	for i, c := range selected {
		out[i] = byID[c.ID]
	}
	return out
}
