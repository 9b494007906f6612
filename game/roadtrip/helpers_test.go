package roadtrip

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/partyroom/lobby"
)

// testTrack has a park two cells right of home and one in the far corner.
func testTrack() *Track {
	return &Track{
		Name:            "Test",
		Description:     "Test track",
		GridSize:        5,
		MaxBattery:      10,
		StartingBattery: 10,
		Layout: []string{
			"HRPRR",
			"RWRRR",
			"RRRRR",
			"RRRRR",
			"RRRRP",
		},
		Messages: Messages{
			Welcome:            "Welcome!",
			HomeCharge:         "Home charged!",
			SuperchargerCharge: "Supercharged!",
			ParkVisited:        "Park visited! Score: %d",
			ParkAlreadyVisited: "Already visited",
			Victory:            "%s wins!",
			OutOfBattery:       "No battery!",
			Stranded:           "Stranded!",
			CantMove:           "Can't move!",
			BatteryStatus:      "Battery: %d/%d",
			Towed:              "Towed!",
		},
	}
}

type memTracks map[string]*Track

func (m memTracks) LoadTrack(name string) (*Track, error) {
	if t, ok := m[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("track %s not found", name)
}

type push struct {
	to      string
	event   string
	payload any
}

// fakePusher records everything a game pushes.
type fakePusher struct {
	mu     sync.Mutex
	pushes []push
}

func (f *fakePusher) PushTo(publicID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{to: publicID, event: event, payload: payload})
}

func (f *fakePusher) PushToAll(event string, payload any) {
	f.PushTo("*", event, payload)
}

func (f *fakePusher) PushError(code string, args any) {
	f.PushTo("*", lobby.EventError, lobby.ErrorEnvelope{Code: code, Args: args})
}

func (f *fakePusher) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.pushes))
	for _, p := range f.pushes {
		out = append(out, p.event)
	}
	return out
}

func (f *fakePusher) find(to, event string) (push, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pushes {
		if p.to == to && p.event == event {
			return p, true
		}
	}
	return push{}, false
}

func newTestRules(towDelay time.Duration, mutate func(*Track)) *Rules {
	track := testTrack()
	if mutate != nil {
		mutate(track)
	}
	return NewRules(memTracks{"test": track, "other": testTrack()}, "test", towDelay, zerolog.Nop())
}

// startGame initialises a race for the given player ids.
func startGame(t *testing.T, rules *Rules, players ...string) (*Game, *fakePusher) {
	t.Helper()
	members := make([]lobby.Member, 0, len(players))
	for _, id := range players {
		members = append(members, lobby.Member{PublicID: id, Name: "name-" + id})
	}
	pusher := &fakePusher{}
	g := rules.NewGame().(*Game)
	require.NoError(t, g.Init(lobby.InitParams{
		Members:      members,
		HostPublicID: players[0],
		Settings:     rules.DefaultSettings(),
		RoomCode:     "ABC123",
		Push:         pusher,
	}))
	t.Cleanup(g.Close)
	return g, pusher
}

func moveArgs(player, direction string) lobby.ActionArgs {
	data, _ := json.Marshal(MoveInput{Direction: direction})
	return lobby.ActionArgs{PlayerID: player, Data: data}
}

// drive performs a series of moves for player and fails on the first error.
func drive(t *testing.T, g *Game, player string, directions ...string) *lobby.ActionResult {
	t.Helper()
	var res *lobby.ActionResult
	for _, d := range directions {
		res = g.move(moveArgs(player, d))
		require.NotNil(t, res)
		require.Nil(t, res.Error, "move %s: %+v", d, res.Error)
	}
	return res
}
