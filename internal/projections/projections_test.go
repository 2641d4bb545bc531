package projections

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stats(avg, site float64, points string) Stats {
	return Stats{AvgPoints: avg, ProjectedScores: site, Points: json.RawMessage(points)}
}

func TestBuildProjectionMap(t *testing.T) {
	players := []PlayerStats{
		{ID: "1", Stats: stats(10, 8.5, `{"gws": {"1": 15.0, "2": 12.0, "3": 8.0}}`)},
		{ID: "2", Stats: stats(5, 6, `{"gws": {"1": 8.0, "2": 4.0}}`)},
		{ID: "3", Stats: stats(7.5, 7, `[]`)},
		{ID: "4", Stats: stats(12, 11, `{"gws": {"1": 5.0}}`)},
		{ID: "", Stats: stats(1, 1, `[]`)},
	}

	got := BuildProjectionMap(players)
	assert.Len(t, got, 4)
	assert.Equal(t, 10.05, got["1"])
	assert.Equal(t, 5.4, got["2"])
	assert.Equal(t, 7.0, got["3"])
	assert.Equal(t, 11.0, got["4"])
}

func TestWeighted(t *testing.T) {
	tests := []struct {
		name string
		gws  map[string]float64
		avg  float64
		want float64
	}{
		{name: "three games", gws: map[string]float64{"1": 10, "2": 15, "3": 5}, avg: 12, want: 8.65},
		{name: "out of order keys", gws: map[string]float64{"3": 20, "1": 10, "2": 15}, avg: 12, want: 16.15},
		{name: "numeric not lexical order", gws: map[string]float64{"9": 4, "10": 10, "8": 6}, avg: 5, want: 7.5},
		{name: "non numeric keys ignored", gws: map[string]float64{"1": 8, "2": 4, "total": 100}, avg: 5, want: 5.4},
		{name: "only one numeric week", gws: map[string]float64{"1": 8, "x": 4}, avg: 5, want: 5},
		{name: "uses only the last three", gws: map[string]float64{"1": 100, "2": 10, "3": 20, "4": 30}, avg: 0, want: 19.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Weighted(tt.gws, tt.avg), 1e-9)
		})
	}
}

func TestForStats_Fallbacks(t *testing.T) {
	assert.Equal(t, 6.13, ForStats(stats(3, 6.129, ``)))
	assert.Equal(t, 6.13, ForStats(stats(3, 6.129, `"garbage"`)))
	assert.Equal(t, 6.13, ForStats(stats(3, 6.129, `{"gws": {}}`)))
	// two keys but only one numeric week falls through to the season average
	assert.Equal(t, 3.0, ForStats(stats(3, 6.129, `{"gws": {"1": 9, "bonus": 2}}`)))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.01, Round2(1.005000001))
	assert.Equal(t, -2.35, Round2(-2.349))
	assert.Equal(t, 10.0, Round2(9.999))
}
