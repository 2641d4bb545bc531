package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
)

func TestRenderResult(t *testing.T) {
	result := &optimizer.Result{
		OptimizationID: "opt-1",
		Backend:        optimizer.BackendBranchAndBound,
		Mode:           optimizer.ModeCaptain,
		Lineups: []*optimizer.Lineup{
			{
				Players: []optimizer.LineupPlayer{
					{ID: "1", Name: "Bo Levi", Role: optimizer.RoleQB, Team: "BC", Salary: 12000, ProjectedPoints: 22.5, IsCaptain: true},
					{ID: "DEF_10", Name: "OTT Defense", Role: optimizer.RoleDEF, Team: "OTT", Salary: 6000, ProjectedPoints: 7, Locked: true},
				},
				TotalSalary:          18000,
				TotalProjectedPoints: 52,
				RemainingCap:         52000,
				SalaryCap:            70000,
				CaptainID:            "1",
				CaptainBonusPoints:   22.5,
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderResult(&buf, result))
	out := buf.String()

	assert.Contains(t, out, "optimization opt-1")
	assert.Contains(t, out, "Lineup 1")
	assert.Contains(t, out, "Bo Levi")
	assert.Contains(t, out, "OTT Defense")
	assert.Contains(t, out, "$12000")
	assert.Contains(t, out, "salary $18000 / $70000 (remaining $52000)")
	assert.Contains(t, out, "captain bonus 22.50")
	assert.Contains(t, out, "INVALID")
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"candidates": [{"id": "qb1", "name": "QB", "role": "QB", "team": "BC", "salary": 12000, "projected_points": 20}],
		"players": [{"id": 5, "firstName": "A", "lastName": "B", "position": "quarterback", "squad": {"abbr": "BC"}, "cost": 1000}]
	}`), 0o600))

	var in poolInput
	require.NoError(t, readInput(path, &in))
	require.Len(t, in.Candidates, 1)
	assert.Equal(t, optimizer.RoleQB, in.Candidates[0].Role)
	require.Len(t, in.Players, 1)
	assert.Equal(t, "A B", in.Players[0].Name())

	assert.Error(t, readInput(filepath.Join(dir, "missing.json"), &in))
}
