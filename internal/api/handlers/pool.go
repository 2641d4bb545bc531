package handlers

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
	"github.com/stitts-dev/cfl-optimizer/internal/store"
	"github.com/stitts-dev/cfl-optimizer/pkg/utils"
)

// BundleFetcher loads a feed bundle from an upstream source.
type BundleFetcher interface {
	FetchBundle(ctx context.Context) (*normalizer.FeedBundle, error)
}

const (
	SourceRequest = "request"
	SourceFeed    = "feed"
)

type PoolStatsResponse struct {
	SnapshotID    string              `json:"snapshot_id"`
	Source        string              `json:"source,omitempty"`
	LoadedAt      time.Time           `json:"loaded_at"`
	Stats         optimizer.PoolStats `json:"stats"`
	Normalization normalizer.Report   `json:"normalization"`
}

// PoolHandler loads and inspects candidate pool snapshots.
type PoolHandler struct {
	store    *store.PoolStore
	feed     BundleFetcher
	normOpts normalizer.Options
	logger   *logrus.Logger
}

// NewPoolHandler builds the handler. feed may be nil, in which case
// load-data requires the bundle in the request body.
func NewPoolHandler(poolStore *store.PoolStore, feed BundleFetcher, normOpts normalizer.Options, logger *logrus.Logger) *PoolHandler {
	return &PoolHandler{store: poolStore, feed: feed, normOpts: normOpts, logger: logger}
}

// LoadData handles POST /load-data. The body is a feed bundle; an empty body
// pulls the bundle from the upstream feed.
func (h *PoolHandler) LoadData(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	var bundle normalizer.FeedBundle
	if err := c.ShouldBindJSON(&bundle); err != nil && !errors.Is(err, io.EOF) {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}

	source := SourceRequest
	if bundle.IsEmpty() {
		if h.feed == nil {
			utils.SendValidationError(c, "No player or team data provided", "feed fetching is not configured")
			return
		}
		fetched, err := h.feed.FetchBundle(ctx)
		if err != nil {
			h.logger.WithError(err).Error("Failed to fetch feed bundle")
			utils.SendError(c, utils.StatusForCode(utils.ErrCodeFeedUnavailable),
				utils.NewAppError(utils.ErrCodeFeedUnavailable, "Fantasy feed unavailable", err.Error()))
			return
		}
		bundle = *fetched
		source = SourceFeed
	}

	snapshot, err := h.store.Save(ctx, &bundle)
	if err != nil {
		h.logger.WithError(err).Error("Failed to save pool snapshot")
		utils.SendInternalError(c, "Failed to save pool snapshot")
		return
	}

	resp := h.describe(snapshot, &bundle)
	resp.Source = source
	h.logger.WithFields(logrus.Fields{
		"snapshot_id": resp.SnapshotID,
		"source":      source,
		"candidates":  resp.Stats.TotalPlayers,
	}).Info("Data loaded successfully")

	utils.SendSuccessWithMeta(c, resp, &utils.Meta{ElapsedMs: time.Since(start).Milliseconds()})
}

// PlayerStats handles GET /player-stats for the latest snapshot.
func (h *PoolHandler) PlayerStats(c *gin.Context) {
	snapshot, err := h.store.Latest(c.Request.Context())
	if errors.Is(err, store.ErrSnapshotNotFound) {
		utils.SendNotFound(c, "No player data loaded")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load pool snapshot")
		utils.SendInternalError(c, "Failed to load pool snapshot")
		return
	}

	bundle, err := snapshot.DecodeBundle()
	if err != nil {
		h.logger.WithError(err).Error("Stored snapshot is unreadable")
		utils.SendInternalError(c, "Stored snapshot is unreadable")
		return
	}
	utils.SendSuccess(c, h.describe(snapshot, bundle))
}

func (h *PoolHandler) describe(snapshot *store.PoolSnapshot, bundle *normalizer.FeedBundle) PoolStatsResponse {
	candidates, report := normalizer.New(h.normOpts, logrus.NewEntry(h.logger)).Normalize(bundle)
	return PoolStatsResponse{
		SnapshotID:    snapshot.ID.String(),
		LoadedAt:      snapshot.CreatedAt,
		Stats:         optimizer.ComputePoolStats(candidates),
		Normalization: report,
	}
}
