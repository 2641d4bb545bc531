package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
	"github.com/stitts-dev/cfl-optimizer/internal/providers"
	"github.com/stitts-dev/cfl-optimizer/pkg/config"
	"github.com/stitts-dev/cfl-optimizer/pkg/logger"
)

// poolInput is the file format: either normalized candidates or raw feed
// records.
type poolInput struct {
	normalizer.FeedBundle
	Candidates []optimizer.Candidate `json:"candidates,omitempty"`
}

func main() {
	input := flag.String("input", "-", "pool JSON file, - for stdin")
	fetch := flag.Bool("fetch", false, "fetch the pool from FEED_BASE_URL instead of -input")
	captain := flag.Bool("captain", true, "pick a captain")
	lineups := flag.Int("lineups", 1, "number of lineups")
	backend := flag.String("backend", "", "solve backend (default SOLVER_BACKEND)")
	weighted := flag.Bool("weighted", false, "use weighted-average projections for feed players")
	maxPerTeam := flag.Int("max-per-team", 0, "players allowed per team (default MAX_PER_TEAM)")
	asJSON := flag.Bool("json", false, "print the result as JSON")
	verbose := flag.Bool("verbose", false, "log at debug level")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.InitLogger(level, true)
	log.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := loadPool(ctx, cfg, log, *input, *fetch, *weighted)
	if err != nil {
		log.WithError(err).Error("Failed to load pool")
		os.Exit(1)
	}

	engineCfg := cfg.EngineConfig()
	if *backend != "" {
		engineCfg.Solve.Backend = *backend
	}
	engine, err := optimizer.NewEngine(engineCfg)
	if err != nil {
		log.WithError(err).Error("Failed to build engine")
		os.Exit(1)
	}

	requirement := cfg.RosterRequirement()
	if *maxPerTeam > 0 {
		requirement = requirement.WithMaxPerTeam(*maxPerTeam)
	}
	result, err := engine.Optimize(ctx, optimizer.Request{
		Candidates:  pool,
		Requirement: &requirement,
		UseCaptain:  *captain,
		NumLineups:  *lineups,
	})
	if err != nil {
		log.WithError(err).Error("Optimization failed")
		os.Exit(2)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.WithError(err).Error("Failed to encode result")
			os.Exit(1)
		}
		return
	}
	if err := renderResult(os.Stdout, result); err != nil {
		log.WithError(err).Error("Failed to render result")
		os.Exit(1)
	}
}

func loadPool(ctx context.Context, cfg *config.Config, log *logrus.Logger, path string, fetch, weighted bool) ([]optimizer.Candidate, error) {
	var in poolInput
	if fetch {
		client := providers.NewCFLFeedClient(cfg.FeedClientConfig(), log)
		bundle, err := client.FetchBundle(ctx)
		if err != nil {
			return nil, err
		}
		in.FeedBundle = *bundle
	} else if err := readInput(path, &in); err != nil {
		return nil, err
	}

	if len(in.Candidates) > 0 {
		return in.Candidates, nil
	}
	norm := normalizer.New(normalizer.Options{
		LeagueTeams:            cfg.LeagueTeams,
		UseWeightedProjections: weighted,
	}, logrus.NewEntry(log))
	pool, _ := norm.Normalize(&in.FeedBundle)
	return pool, nil
}

func readInput(path string, in *poolInput) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(in); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
