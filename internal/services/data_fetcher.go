package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
	"github.com/stitts-dev/cfl-optimizer/internal/store"
)

const refreshJobID = "feed_refresh"

var ErrEmptyBundle = errors.New("feed returned no players or squads")

type BundleFetcher interface {
	FetchBundle(ctx context.Context) (*normalizer.FeedBundle, error)
}

type SnapshotSaver interface {
	Save(ctx context.Context, bundle *normalizer.FeedBundle) (*store.PoolSnapshot, error)
}

// JobInfo represents the state of the refresh job
type JobInfo struct {
	ID             string        `json:"id"`
	Schedule       string        `json:"schedule"`
	Status         string        `json:"status"`
	LastRun        time.Time     `json:"last_run"`
	NextRun        time.Time     `json:"next_run"`
	RunCount       int           `json:"run_count"`
	ErrorCount     int           `json:"error_count"`
	LastError      string        `json:"last_error,omitempty"`
	LastSnapshotID string        `json:"last_snapshot_id,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// DataFetcherService refreshes the stored pool snapshot from the feed on a
// cron schedule.
type DataFetcherService struct {
	fetcher BundleFetcher
	store   SnapshotSaver
	logger  *logrus.Logger
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.RWMutex
	job       JobInfo
	entryID   cron.EntryID
	isRunning bool
}

// NewDataFetcherService creates a new data fetcher service. schedule is a
// standard five-field cron spec or a descriptor such as "@every 15m".
func NewDataFetcherService(fetcher BundleFetcher, saver SnapshotSaver, schedule string, logger *logrus.Logger) *DataFetcherService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	cronLogger := cron.VerbosePrintfLogger(logger.WithField("component", "data_fetcher"))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &DataFetcherService{
		fetcher: fetcher,
		store:   saver,
		logger:  logger,
		cron:    c,
		ctx:     ctx,
		cancel:  cancel,
		job: JobInfo{
			ID:       refreshJobID,
			Schedule: schedule,
			Status:   "idle",
		},
	}
}

// Start schedules the refresh job and runs it once immediately.
func (s *DataFetcherService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("data fetcher service is already running")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("data fetcher service has been stopped")
	}

	entryID, err := s.cron.AddFunc(s.job.Schedule, s.runJob)
	if err != nil {
		return fmt.Errorf("failed to schedule feed refresh: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true
	s.job.Status = "scheduled"
	s.job.NextRun = s.cron.Entry(entryID).Next

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob()
	}()

	s.logger.WithFields(logrus.Fields{
		"component": "data_fetcher",
		"job_id":    refreshJobID,
		"schedule":  s.job.Schedule,
		"next_run":  s.job.NextRun,
	}).Info("Data fetcher service started")
	return nil
}

// Stop cancels in-flight fetches and waits for running jobs. A stopped
// service cannot be restarted.
func (s *DataFetcherService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.logger.WithField("component", "data_fetcher").Info("Data fetcher service stopped")
}

// Status returns a copy of the job state.
func (s *DataFetcherService) Status() JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.job
}

// Refresh fetches a bundle and stores it as the newest snapshot.
func (s *DataFetcherService) Refresh(ctx context.Context) (*store.PoolSnapshot, error) {
	bundle, err := s.fetcher.FetchBundle(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed bundle: %w", err)
	}
	if bundle == nil || bundle.IsEmpty() {
		return nil, ErrEmptyBundle
	}
	snapshot, err := s.store.Save(ctx, bundle)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *DataFetcherService) runJob() {
	s.mu.Lock()
	s.job.Status = "running"
	s.job.LastRun = time.Now()
	s.job.RunCount++
	runCount := s.job.RunCount
	s.mu.Unlock()

	logger := s.logger.WithFields(logrus.Fields{
		"component": "data_fetcher",
		"job_id":    refreshJobID,
		"run_count": runCount,
	})
	logger.Debug("Starting scheduled feed refresh")

	startTime := time.Now()
	snapshot, err := s.Refresh(s.ctx)
	duration := time.Since(startTime)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.job.Duration = duration
	if s.isRunning {
		s.job.NextRun = s.cron.Entry(s.entryID).Next
	}
	if err != nil {
		s.job.Status = "failed"
		s.job.ErrorCount++
		s.job.LastError = err.Error()
		logger.WithError(err).Warn("Scheduled feed refresh failed")
		return
	}

	s.job.Status = "completed"
	s.job.LastError = ""
	s.job.LastSnapshotID = snapshot.ID.String()
	logger.WithFields(logrus.Fields{
		"snapshot_id": snapshot.ID,
		"players":     snapshot.Players,
		"duration":    duration,
	}).Info("Feed refresh completed")
}
