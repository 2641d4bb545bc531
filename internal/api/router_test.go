package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/stitts-dev/cfl-optimizer/internal/api/handlers"
	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
	"github.com/stitts-dev/cfl-optimizer/internal/store"
	"github.com/stitts-dev/cfl-optimizer/internal/websocket"
	"github.com/stitts-dev/cfl-optimizer/pkg/cache"
	"github.com/stitts-dev/cfl-optimizer/pkg/database"
	"github.com/stitts-dev/cfl-optimizer/pkg/logger"
	"github.com/stitts-dev/cfl-optimizer/pkg/utils"
)

const bundleJSON = `{
  "players": [
    {"id": 1, "firstName": "Bo", "lastName": "Levi", "position": "quarterback", "squad": {"abbr": "BC"}, "cost": 12000, "stats": {"projectedScores": 22.5}},
    {"id": 2, "firstName": "Wide", "lastName": "One", "position": "wide_receiver", "squad": {"abbr": "BC"}, "cost": 10000, "stats": {"projectedScores": 15}},
    {"id": 3, "firstName": "Wide", "lastName": "Two", "position": "wide_receiver", "squad": {"abbr": "TOR"}, "cost": 9000, "stats": {"projectedScores": 12}},
    {"id": 4, "firstName": "Run", "lastName": "One", "position": "running_back", "squad": {"abbr": "HAM"}, "cost": 11000, "stats": {"projectedScores": 14}},
    {"id": 5, "firstName": "Run", "lastName": "Two", "position": "running_back", "squad": {"abbr": "TOR"}, "cost": 8000, "stats": {"projectedScores": 10}},
    {"id": 6, "firstName": "Tight", "lastName": "End", "position": "tight_end", "squad": {"abbr": "WPG"}, "cost": 7000, "stats": {"projectedScores": 8}},
    {"id": 7, "firstName": "Out", "lastName": "Injured", "position": "tight_end", "squad": {"abbr": "WPG"}, "cost": 7000, "status": "unavailable", "stats": {"projectedScores": 30}}
  ],
  "teams": [{"id": 10, "name": "Ottawa Redblacks", "abbreviation": "OTT", "cost": 6000, "projectedScores": 7}]
}`

type stubFetcher struct {
	bundle *normalizer.FeedBundle
	err    error
	calls  int
}

func (f *stubFetcher) FetchBundle(ctx context.Context) (*normalizer.FeedBundle, error) {
	f.calls++
	return f.bundle, f.err
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.AppError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

type RouterTestSuite struct {
	suite.Suite
	db      *database.DB
	router  *gin.Engine
	fetcher *stubFetcher
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (s *RouterTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
}

func (s *RouterTestSuite) SetupTest() {
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := database.NewConnection(":memory:", false)
	s.Require().NoError(err)
	s.db = db

	poolStore := store.NewPoolStore(db.DB, log)
	s.Require().NoError(poolStore.Migrate())

	engines := handlers.Engines{ByBackend: map[string]*optimizer.Engine{}, Default: optimizer.BackendBranchAndBound}
	for _, backend := range []string{optimizer.BackendBranchAndBound, optimizer.BackendExhaustive} {
		cfg := optimizer.DefaultEngineConfig()
		cfg.Solve.Backend = backend
		engine, err := optimizer.NewEngine(cfg)
		s.Require().NoError(err)
		engines.ByBackend[backend] = engine
	}

	normOpts := normalizer.Options{LeagueTeams: []string{"BC", "TOR", "HAM", "WPG", "OTT"}}
	hub := websocket.NewHub(log)
	cacheService := cache.NewOptimizationCacheService(cache.NewMemoryCache(), time.Minute, log)
	s.fetcher = &stubFetcher{}

	h := Handlers{
		Optimizer: handlers.NewOptimizerHandler(engines, optimizer.DefaultRequirement(), normOpts, cacheService, poolStore, hub, log),
		Pool:      handlers.NewPoolHandler(poolStore, s.fetcher, normOpts, log),
		Health:    handlers.NewHealthHandler(db, nil, hub, optimizer.BackendBranchAndBound),
		Hub:       hub,
	}
	s.router = NewRouter(h, []string{"http://localhost:5173"}, nil)
}

func (s *RouterTestSuite) TearDownTest() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *RouterTestSuite) do(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *RouterTestSuite) decodeOptimize(env envelope) handlers.OptimizeResponse {
	var resp handlers.OptimizeResponse
	s.Require().NoError(json.Unmarshal(env.Data, &resp))
	s.Require().NotNil(resp.Result)
	return resp
}

func legalCandidates() []optimizer.Candidate {
	c := func(id string, role optimizer.Role, team string, salary int, points float64) optimizer.Candidate {
		return optimizer.Candidate{ID: id, Name: id, Role: role, Team: team, Salary: salary, ProjectedPoints: points}
	}
	return []optimizer.Candidate{
		c("qb1", optimizer.RoleQB, "BC", 12000, 22.5),
		c("wr1", optimizer.RoleWR, "BC", 10000, 15.1),
		c("wr2", optimizer.RoleWR, "TOR", 9000, 12.0),
		c("rb1", optimizer.RoleRB, "HAM", 11000, 14.2),
		c("rb2", optimizer.RoleRB, "TOR", 8000, 10.4),
		c("te1", optimizer.RoleTE, "WPG", 7000, 8.3),
		c("def1", optimizer.RoleDEF, "OTT", 6000, 7.0),
	}
}

func (s *RouterTestSuite) TestHealth() {
	w, _ := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)

	var health handlers.HealthStatus
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &health))
	s.Equal("healthy", health.Status)
	s.Equal("ok", health.Checks["database"])
	s.Equal("memory", health.Checks["cache"])
	s.Equal(optimizer.BackendBranchAndBound, health.Backend)
}

func (s *RouterTestSuite) TestOptimize_CandidatesWithCaptain() {
	body := map[string]interface{}{"candidates": legalCandidates()}

	w, env := s.do(http.MethodPost, "/api/v1/optimize", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.True(env.Success)
	s.Require().NotNil(env.Meta)
	s.False(env.Meta.Cached)

	resp := s.decodeOptimize(env)
	s.Equal(optimizer.ModeCaptain, resp.Mode)
	s.Require().Len(resp.Lineups, 1)
	lineup := resp.Lineups[0]
	s.Len(lineup.Players, 7)
	s.Equal("qb1", lineup.CaptainID)
	s.Equal(63000, lineup.TotalSalary)
	s.Equal(7000, lineup.RemainingCap)
	s.InDelta(112.0, lineup.TotalProjectedPoints, 1e-6)
	s.True(lineup.IsValid)
	s.Nil(resp.Normalization)

	// identical request is served from the cache
	w, env = s.do(http.MethodPost, "/api/v1/optimize", body)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NotNil(env.Meta)
	s.True(env.Meta.Cached)
	s.Equal(resp.OptimizationID, s.decodeOptimize(env).OptimizationID)
}

func (s *RouterTestSuite) TestOptimize_NoCaptainAndExhaustive() {
	body := map[string]interface{}{
		"candidates":            legalCandidates(),
		"optimization_settings": map[string]interface{}{"use_captain": false},
	}

	w, env := s.do(http.MethodPost, "/api/v1/optimize?engine=exhaustive", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	resp := s.decodeOptimize(env)
	s.Equal(optimizer.BackendExhaustive, resp.Backend)
	s.Equal(optimizer.ModeStandard, resp.Mode)
	s.Empty(resp.Lineups[0].CaptainID)
	s.InDelta(89.5, resp.Lineups[0].TotalProjectedPoints, 1e-6)
}

func (s *RouterTestSuite) TestOptimize_Locked() {
	pool := legalCandidates()
	pool[1].Locked = true
	body := map[string]interface{}{"candidates": pool}

	w, env := s.do(http.MethodPost, "/api/v1/optimize", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	resp := s.decodeOptimize(env)
	s.Equal(optimizer.ModeLockedCaptain, resp.Mode)
	s.True(resp.Lineups[0].Contains("wr1"))
}

func (s *RouterTestSuite) TestOptimize_Multiple() {
	body := map[string]interface{}{
		"candidates":            legalCandidates(),
		"optimization_settings": map[string]interface{}{"use_captain": false},
	}

	w, env := s.do(http.MethodPost, "/api/v1/optimize/multiple", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	resp := s.decodeOptimize(env)
	s.Len(resp.Lineups, 5)
	for _, l := range resp.Lineups {
		s.Equal(resp.Lineups[0].PlayerIDs(), l.PlayerIDs())
	}
}

func (s *RouterTestSuite) TestOptimize_Errors() {
	noDefense := legalCandidates()[:6]

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{name: "malformed json", path: "/api/v1/optimize", body: "{not json", status: http.StatusBadRequest, code: utils.ErrCodeValidation},
		{name: "unknown engine", path: "/api/v1/optimize?engine=glpk", body: map[string]interface{}{"candidates": legalCandidates()}, status: http.StatusBadRequest, code: utils.ErrCodeValidation},
		{name: "infeasible pool", path: "/api/v1/optimize", body: map[string]interface{}{"candidates": noDefense}, status: http.StatusUnprocessableEntity, code: utils.ErrCodeInfeasible},
		{name: "nothing loaded", path: "/api/v1/optimize", body: map[string]interface{}{}, status: http.StatusBadRequest, code: utils.ErrCodeValidation},
		{name: "bad snapshot id", path: "/api/v1/optimize", body: map[string]interface{}{"snapshot_id": "nope"}, status: http.StatusBadRequest, code: utils.ErrCodeValidation},
		{name: "unknown snapshot", path: "/api/v1/optimize", body: map[string]interface{}{"snapshot_id": "7d0b7e38-4a0e-4d4e-9d38-2a8f0b0c1d2e"}, status: http.StatusNotFound, code: utils.ErrCodeNotFound},
		{name: "negative salary cap", path: "/api/v1/optimize", body: map[string]interface{}{"candidates": legalCandidates(), "optimization_settings": map[string]interface{}{"salary_cap": -5}}, status: http.StatusBadRequest, code: utils.ErrCodeValidation},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w, env := s.do(http.MethodPost, tt.path, tt.body)
			s.Equal(tt.status, w.Code, w.Body.String())
			s.False(env.Success)
			s.Require().NotNil(env.Error)
			s.Equal(tt.code, env.Error.Code)
		})
	}
}

func (s *RouterTestSuite) TestOptimize_FeedBundle() {
	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(bundleJSON), &body))
	body["optimization_settings"] = map[string]interface{}{"use_captain": false}

	w, env := s.do(http.MethodPost, "/api/v1/optimize", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	resp := s.decodeOptimize(env)
	s.Require().NotNil(resp.Normalization)
	s.Equal(6, resp.Normalization.Players)
	s.Equal(1, resp.Normalization.Defenses)
	s.Equal(1, resp.Normalization.Dropped[normalizer.DropUnavailable])
	s.True(resp.Lineups[0].Contains("DEF_10"))
	s.False(resp.Lineups[0].Contains("7"))
	s.Equal(63000, resp.Lineups[0].TotalSalary)

	// a cache hit returns the same shape, report included
	w, env = s.do(http.MethodPost, "/api/v1/optimize", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Require().NotNil(env.Meta)
	s.True(env.Meta.Cached)
	cached := s.decodeOptimize(env)
	s.Equal(resp.OptimizationID, cached.OptimizationID)
	s.Equal(resp.Normalization, cached.Normalization)
}

func (s *RouterTestSuite) TestLoadDataThenStatsThenOptimize() {
	w, env := s.do(http.MethodGet, "/api/v1/player-stats", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(utils.ErrCodeNotFound, env.Error.Code)

	w, env = s.do(http.MethodPost, "/api/v1/load-data", bundleJSON)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var loaded handlers.PoolStatsResponse
	s.Require().NoError(json.Unmarshal(env.Data, &loaded))
	s.NotEmpty(loaded.SnapshotID)
	s.Equal(handlers.SourceRequest, loaded.Source)
	s.Equal(7, loaded.Stats.TotalPlayers)
	s.Equal(2, loaded.Stats.Positions[optimizer.RoleWR])
	s.Equal(6000.0, loaded.Stats.SalaryRange.Min)
	s.Equal(12000.0, loaded.Stats.SalaryRange.Max)
	s.Equal(0, s.fetcher.calls)

	w, env = s.do(http.MethodGet, "/api/v1/player-stats", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var stats handlers.PoolStatsResponse
	s.Require().NoError(json.Unmarshal(env.Data, &stats))
	s.Equal(loaded.SnapshotID, stats.SnapshotID)
	s.Equal(loaded.Stats, stats.Stats)

	w, env = s.do(http.MethodPost, "/api/v1/optimize", map[string]interface{}{})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	resp := s.decodeOptimize(env)
	s.Equal(loaded.SnapshotID, resp.SnapshotID)
	s.Equal("1", resp.Lineups[0].CaptainID)
}

func (s *RouterTestSuite) TestLoadData_FromFeed() {
	var bundle normalizer.FeedBundle
	s.Require().NoError(json.Unmarshal([]byte(bundleJSON), &bundle))
	s.fetcher.bundle = &bundle

	w, env := s.do(http.MethodPost, "/api/v1/load-data", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var loaded handlers.PoolStatsResponse
	s.Require().NoError(json.Unmarshal(env.Data, &loaded))
	s.Equal(handlers.SourceFeed, loaded.Source)
	s.Equal(1, s.fetcher.calls)
}

func (s *RouterTestSuite) TestLoadData_FeedDown() {
	s.fetcher.err = errors.New("connection refused")

	w, env := s.do(http.MethodPost, "/api/v1/load-data", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal(utils.ErrCodeFeedUnavailable, env.Error.Code)
}

func (s *RouterTestSuite) TestCORSAndNoRoute() {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/optimize", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Empty(w.Header().Get("Access-Control-Allow-Origin"))

	w, env := s.do(http.MethodGet, "/nope", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(utils.ErrCodeNotFound, env.Error.Code)
}
