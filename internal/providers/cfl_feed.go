// Package providers fetches raw fantasy data from the CFL feed.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
)

const (
	pathPlayers         = "/players"
	pathSquads          = "/squads"
	pathGameweeks       = "/gameweeks"
	pathPlayerOwnership = "/players/selection"
	pathSquadOwnership  = "/squads/selection"

	defaultBreakerTimeout   = 30 * time.Second
	defaultMaxResponseBytes = 10 << 20
)

var ErrResponseTooLarge = errors.New("feed response too large")

type FeedClientConfig struct {
	BaseURL string
	// RateLimit is requests per second; zero or less disables limiting.
	RateLimit        float64
	Timeout          time.Duration
	FailureThreshold int
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
	// MaxResponseBytes caps a single response body; zero uses 10 MiB.
	MaxResponseBytes int64
	// CurrentTeamPath is the user's saved lineup endpoint. The lineup is
	// per account so there is no default; empty skips it.
	CurrentTeamPath string
}

// CFLFeedClient reads the public fantasy JSON feed. Every request waits on a
// token bucket and runs inside a circuit breaker.
type CFLFeedClient struct {
	httpClient       *http.Client
	baseURL          string
	currentTeamPath  string
	maxResponseBytes int64
	rateLimiter      *rate.Limiter
	breaker          *gobreaker.CircuitBreaker
	logger           *logrus.Logger
}

func NewCFLFeedClient(cfg FeedClientConfig, logger *logrus.Logger) *CFLFeedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = defaultBreakerTimeout
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}
	currentTeamPath := cfg.CurrentTeamPath
	if currentTeamPath != "" && !strings.HasPrefix(currentTeamPath, "/") {
		currentTeamPath = "/" + currentTeamPath
	}

	settings := gobreaker.Settings{
		Name:        "cfl-feed",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &CFLFeedClient{
		httpClient:       &http.Client{Timeout: timeout},
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		currentTeamPath:  currentTeamPath,
		maxResponseBytes: maxBytes,
		rateLimiter:      rate.NewLimiter(limit, 1),
		breaker:          gobreaker.NewCircuitBreaker(settings),
		logger:           logger,
	}
}

// BreakerState reports the circuit breaker state.
func (c *CFLFeedClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *CFLFeedClient) GetPlayers(ctx context.Context) ([]normalizer.FeedPlayer, error) {
	var players []normalizer.FeedPlayer
	if err := c.getJSON(ctx, pathPlayers, &players); err != nil {
		return nil, err
	}
	return players, nil
}

func (c *CFLFeedClient) GetSquads(ctx context.Context) ([]normalizer.FeedSquad, error) {
	var squads []normalizer.FeedSquad
	if err := c.getJSON(ctx, pathSquads, &squads); err != nil {
		return nil, err
	}
	return squads, nil
}

func (c *CFLFeedClient) GetGameweeks(ctx context.Context) ([]normalizer.FeedGameweek, error) {
	var gameweeks []normalizer.FeedGameweek
	if err := c.getJSON(ctx, pathGameweeks, &gameweeks); err != nil {
		return nil, err
	}
	return gameweeks, nil
}

func (c *CFLFeedClient) GetPlayerOwnership(ctx context.Context) (map[string]normalizer.Ownership, error) {
	return c.getOwnership(ctx, pathPlayerOwnership)
}

func (c *CFLFeedClient) GetSquadOwnership(ctx context.Context) (map[string]normalizer.Ownership, error) {
	return c.getOwnership(ctx, pathSquadOwnership)
}

// GetCurrentTeam returns the saved lineup, or nil when no endpoint is
// configured.
func (c *CFLFeedClient) GetCurrentTeam(ctx context.Context) (*normalizer.CurrentTeam, error) {
	if c.currentTeamPath == "" {
		return nil, nil
	}
	var team normalizer.CurrentTeam
	if err := c.getJSON(ctx, c.currentTeamPath, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

func (c *CFLFeedClient) getOwnership(ctx context.Context, path string) (map[string]normalizer.Ownership, error) {
	ownership := make(map[string]normalizer.Ownership)
	if err := c.getJSON(ctx, path, &ownership); err != nil {
		return nil, err
	}
	return ownership, nil
}

// FetchBundle loads everything needed to build a candidate pool. Players and
// squads are required; gameweeks, ownership and the current team are best
// effort.
func (c *CFLFeedClient) FetchBundle(ctx context.Context) (*normalizer.FeedBundle, error) {
	players, err := c.GetPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch players: %w", err)
	}
	squads, err := c.GetSquads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch squads: %w", err)
	}
	bundle := &normalizer.FeedBundle{Players: players, Squads: squads}

	if bundle.Gameweeks, err = c.GetGameweeks(ctx); err != nil {
		c.warnOptional(pathGameweeks, err)
	}
	if bundle.PlayerOwnership, err = c.GetPlayerOwnership(ctx); err != nil {
		c.warnOptional(pathPlayerOwnership, err)
	}
	if bundle.TeamOwnership, err = c.GetSquadOwnership(ctx); err != nil {
		c.warnOptional(pathSquadOwnership, err)
	}
	if bundle.CurrentTeam, err = c.GetCurrentTeam(ctx); err != nil {
		c.warnOptional(c.currentTeamPath, err)
	}

	c.logger.WithFields(logrus.Fields{
		"players":      len(bundle.Players),
		"squads":       len(bundle.Squads),
		"gameweeks":    len(bundle.Gameweeks),
		"current_team": bundle.CurrentTeam != nil,
	}).Info("Fetched CFL feed bundle")
	return bundle, nil
}

func (c *CFLFeedClient) warnOptional(path string, err error) {
	c.logger.WithFields(logrus.Fields{
		"endpoint": path,
		"error":    err.Error(),
	}).Warn("Optional feed endpoint failed, continuing without it")
}

func (c *CFLFeedClient) getJSON(ctx context.Context, path string, target interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	url := c.baseURL + path
	body, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "cfl-optimizer/1.0.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("feed request %s failed with status %d", path, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if int64(len(data)) > c.maxResponseBytes {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrResponseTooLarge, path, c.maxResponseBytes)
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	data := body.([]byte)
	if err := json.Unmarshal(data, target); err != nil {
		c.logger.WithFields(logrus.Fields{
			"url":             url,
			"response_length": len(data),
			"error":           err.Error(),
		}).Error("Failed to decode JSON response from CFL feed")
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
