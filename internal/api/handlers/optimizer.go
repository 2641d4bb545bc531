package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
	"github.com/stitts-dev/cfl-optimizer/internal/store"
	"github.com/stitts-dev/cfl-optimizer/internal/websocket"
	"github.com/stitts-dev/cfl-optimizer/pkg/cache"
	"github.com/stitts-dev/cfl-optimizer/pkg/utils"
)

const defaultMultipleLineups = 5

// OptimizeSettings mirrors the optimization_settings block of a request.
type OptimizeSettings struct {
	// UseCaptain defaults to true when omitted.
	UseCaptain             *bool  `json:"use_captain,omitempty"`
	MaxPlayersFromTeam     int    `json:"max_players_from_team,omitempty"`
	NumLineups             int    `json:"num_lineups,omitempty"`
	SalaryCap              int    `json:"salary_cap,omitempty"`
	SessionID              string `json:"session_id,omitempty"`
	UseWeightedProjections bool   `json:"use_weighted_projections,omitempty"`
}

func (s OptimizeSettings) captain() bool {
	return s.UseCaptain == nil || *s.UseCaptain
}

// OptimizeRequest carries the pool in one of three forms: raw feed records,
// already normalized candidates, or a reference to a stored snapshot. With
// none of them the latest snapshot is used.
type OptimizeRequest struct {
	normalizer.FeedBundle
	Candidates []optimizer.Candidate `json:"candidates,omitempty"`
	SnapshotID string                `json:"snapshot_id,omitempty"`
	Settings   OptimizeSettings      `json:"optimization_settings"`
}

type OptimizeResponse struct {
	*optimizer.Result
	SnapshotID    string             `json:"snapshot_id,omitempty"`
	Normalization *normalizer.Report `json:"normalization,omitempty"`
}

type cacheKeyInput struct {
	Request    OptimizeRequest `json:"request"`
	Backend    string          `json:"backend"`
	SnapshotID string          `json:"snapshot_id"`
}

// Engines maps backend names to engines; Default names the one used when a
// request does not pick one.
type Engines struct {
	ByBackend map[string]*optimizer.Engine
	Default   string
}

// OptimizerHandler serves the optimize endpoints.
type OptimizerHandler struct {
	engines     Engines
	requirement optimizer.RosterRequirement
	normOpts    normalizer.Options
	cache       *cache.OptimizationCacheService
	store       *store.PoolStore
	wsHub       *websocket.Hub
	logger      *logrus.Logger
}

func NewOptimizerHandler(
	engines Engines,
	requirement optimizer.RosterRequirement,
	normOpts normalizer.Options,
	cacheService *cache.OptimizationCacheService,
	poolStore *store.PoolStore,
	wsHub *websocket.Hub,
	logger *logrus.Logger,
) *OptimizerHandler {
	return &OptimizerHandler{
		engines:     engines,
		requirement: requirement,
		normOpts:    normOpts,
		cache:       cacheService,
		store:       poolStore,
		wsHub:       wsHub,
		logger:      logger,
	}
}

// OptimizeLineup handles POST /optimize. num_lineups defaults to 1.
func (h *OptimizerHandler) OptimizeLineup(c *gin.Context) {
	h.optimize(c, 1)
}

// OptimizeMultiple handles POST /optimize/multiple. num_lineups defaults to 5.
func (h *OptimizerHandler) OptimizeMultiple(c *gin.Context) {
	h.optimize(c, defaultMultipleLineups)
}

func (h *OptimizerHandler) optimize(c *gin.Context, defaultLineups int) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}
	if req.Settings.NumLineups <= 0 {
		req.Settings.NumLineups = defaultLineups
	}

	backend := c.DefaultQuery("engine", h.engines.Default)
	engine, ok := h.engines.ByBackend[backend]
	if !ok {
		utils.SendValidationError(c, "Unknown engine", fmt.Sprintf("engine %q is not configured", backend))
		return
	}

	ctx := c.Request.Context()
	snapshot, appErr := h.resolveSnapshot(ctx, &req)
	if appErr != nil {
		utils.SendError(c, utils.StatusForCode(appErr.Code), appErr)
		return
	}

	snapshotID := ""
	if snapshot != nil {
		snapshotID = snapshot.ID.String()
	}
	keyReq := req
	keyReq.Settings.SessionID = ""
	cacheKey, err := cache.RequestKey(cacheKeyInput{Request: keyReq, Backend: backend, SnapshotID: snapshotID})
	if err != nil {
		h.logger.WithError(err).Warn("Failed to build cache key")
	}
	if cacheKey != "" {
		if cached, err := h.cache.GetOptimizationResult(ctx, cacheKey); err != nil {
			h.logger.WithError(err).Warn("Failed to read optimization cache")
		} else if cached != nil {
			h.logger.WithField("cache_key", cacheKey).Info("Returning cached optimization result")
			resp := OptimizeResponse{Result: cached.Result, SnapshotID: snapshotID, Normalization: cached.Normalization}
			utils.SendSuccessWithMeta(c, resp, &utils.Meta{
				OptimizationID: cached.Result.OptimizationID,
				Cached:         true,
				ElapsedMs:      cached.Result.ElapsedMs,
			})
			return
		}
	}

	candidates, report, appErr := h.buildPool(&req, snapshot)
	if appErr != nil {
		utils.SendError(c, utils.StatusForCode(appErr.Code), appErr)
		return
	}

	requirement := h.requirement
	if req.Settings.MaxPlayersFromTeam > 0 {
		requirement = requirement.WithMaxPerTeam(req.Settings.MaxPlayersFromTeam)
	}
	engineReq := optimizer.Request{
		Candidates:  candidates,
		SalaryCap:   req.Settings.SalaryCap,
		Requirement: &requirement,
		UseCaptain:  req.Settings.captain(),
		NumLineups:  req.Settings.NumLineups,
	}
	if req.Settings.SessionID != "" && h.wsHub != nil {
		engineReq.Progress = h.wsHub.ProgressReporter(req.Settings.SessionID)
	}

	result, err := engine.Optimize(ctx, engineReq)
	if err != nil {
		status, appErr := utils.OptimizationError(err)
		h.logger.WithFields(logrus.Fields{
			"code":       appErr.Code,
			"candidates": len(candidates),
		}).WithError(err).Warn("Optimization request failed")
		utils.SendError(c, status, appErr)
		return
	}

	if cacheKey != "" {
		if err := h.cache.SetOptimizationResult(ctx, cacheKey, &cache.CachedOptimization{Result: result, Normalization: report}); err != nil {
			h.logger.WithError(err).Warn("Failed to cache optimization result")
		}
	}

	utils.SendSuccessWithMeta(c, OptimizeResponse{Result: result, SnapshotID: snapshotID, Normalization: report}, &utils.Meta{
		OptimizationID: result.OptimizationID,
		ElapsedMs:      result.ElapsedMs,
	})
}

// resolveSnapshot loads the stored snapshot the request refers to, if any.
func (h *OptimizerHandler) resolveSnapshot(ctx context.Context, req *OptimizeRequest) (*store.PoolSnapshot, *utils.AppError) {
	if len(req.Candidates) > 0 || !req.FeedBundle.IsEmpty() {
		return nil, nil
	}
	if h.store == nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "No player or team data provided")
	}

	var (
		snapshot *store.PoolSnapshot
		err      error
	)
	if req.SnapshotID != "" {
		id, parseErr := uuid.Parse(req.SnapshotID)
		if parseErr != nil {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid snapshot_id", parseErr.Error())
		}
		snapshot, err = h.store.Get(ctx, id)
	} else {
		snapshot, err = h.store.Latest(ctx)
	}
	if errors.Is(err, store.ErrSnapshotNotFound) {
		if req.SnapshotID == "" {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "No player or team data provided and no snapshot loaded")
		}
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Snapshot not found", req.SnapshotID)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load pool snapshot")
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to load pool snapshot")
	}
	return snapshot, nil
}

func (h *OptimizerHandler) buildPool(req *OptimizeRequest, snapshot *store.PoolSnapshot) ([]optimizer.Candidate, *normalizer.Report, *utils.AppError) {
	if len(req.Candidates) > 0 {
		return req.Candidates, nil, nil
	}

	bundle := &req.FeedBundle
	if snapshot != nil {
		decoded, err := snapshot.DecodeBundle()
		if err != nil {
			return nil, nil, utils.NewAppError(utils.ErrCodeInternal, "Stored snapshot is unreadable", err.Error())
		}
		bundle = decoded
	}

	opts := h.normOpts
	opts.UseWeightedProjections = req.Settings.UseWeightedProjections
	candidates, report := normalizer.New(opts, logrus.NewEntry(h.logger)).Normalize(bundle)
	return candidates, &report, nil
}
