package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stitts-dev/cfl-optimizer/internal/projections"
)

// FeedID accepts ids encoded either as JSON numbers or strings.
type FeedID string

func (id *FeedID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FeedID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("feed id must be a number or string: %w", err)
	}
	*id = FeedID(n.String())
	return nil
}

type SquadRef struct {
	Abbr string `json:"abbr"`
}

// FeedPlayer is one record of the /players feed.
type FeedPlayer struct {
	ID        FeedID            `json:"id"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Position  string            `json:"position"`
	Squad     SquadRef          `json:"squad"`
	Cost      int               `json:"cost"`
	Status    string            `json:"status"`
	IsLocked  bool              `json:"isLocked"`
	Stats     projections.Stats `json:"stats"`
}

// Name joins first and last name.
func (p FeedPlayer) Name() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// FeedSquad is one record of the /squads feed; it becomes a DEF candidate.
type FeedSquad struct {
	ID              FeedID  `json:"id"`
	Name            string  `json:"name"`
	Abbreviation    string  `json:"abbreviation"`
	Cost            int     `json:"cost"`
	ProjectedScores float64 `json:"projectedScores"`
}

type FeedMatch struct {
	HomeSquad SquadRef `json:"homeSquad"`
	AwaySquad SquadRef `json:"awaySquad"`
}

type FeedGameweek struct {
	ID      FeedID      `json:"id"`
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Matches []FeedMatch `json:"matches"`
}

// Ownership is the selection share of a player or squad.
type Ownership struct {
	Percents float64 `json:"percents"`
}

// CurrentTeam is the user's saved lineup.
type CurrentTeam struct {
	Success struct {
		Team CurrentLineup `json:"team"`
	} `json:"success"`
}

type CurrentLineup struct {
	Captain             FeedID `json:"captain"`
	Quarterback         FeedID `json:"quarterback"`
	FirstWideReceivers  FeedID `json:"firstWideReceivers"`
	SecondWideReceivers FeedID `json:"secondWideReceivers"`
	FirstRunningBacks   FeedID `json:"firstRunningBacks"`
	SecondRunningBacks  FeedID `json:"secondRunningBacks"`
	Flex                FeedID `json:"flex"`
	DefenseSquad        FeedID `json:"defenseSquad"`
}

// IDs returns the non-empty ids of the lineup slots.
func (l CurrentLineup) IDs() map[string]bool {
	out := make(map[string]bool)
	for _, id := range []FeedID{
		l.Captain, l.Quarterback,
		l.FirstWideReceivers, l.SecondWideReceivers,
		l.FirstRunningBacks, l.SecondRunningBacks,
		l.Flex, l.DefenseSquad,
	} {
		if id != "" {
			out[string(id)] = true
		}
	}
	return out
}

// FeedBundle is everything fetched from the feed for one optimization.
type FeedBundle struct {
	Players         []FeedPlayer         `json:"players"`
	Squads          []FeedSquad          `json:"teams"`
	PlayerOwnership map[string]Ownership `json:"player_ownership,omitempty"`
	TeamOwnership   map[string]Ownership `json:"team_ownership,omitempty"`
	Gameweeks       []FeedGameweek       `json:"gameweeks,omitempty"`
	CurrentTeam     *CurrentTeam         `json:"current_team,omitempty"`
}

// IsEmpty reports whether the bundle carries neither players nor squads.
func (b *FeedBundle) IsEmpty() bool {
	return len(b.Players) == 0 && len(b.Squads) == 0
}
