package roadtrip

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/partyroom/lobby"
)

// Action names.
const (
	ActionMove  = "move"
	ActionState = "state"
	ActionHonk  = "honk"
)

// Events pushed by the race.
const (
	EventRaceUpdate   = "race-update"
	EventRaceFinished = "race-finished"
	EventHonk         = "honk"
	EventTowed        = "towed"
)

// Error codes returned by race actions.
const (
	ErrRaceOver      = "RaceOver"
	ErrStranded      = "Stranded"
	ErrBlocked       = "Blocked"
	ErrUnknownPlayer = "UnknownPlayer"
	ErrBadMove       = "InvalidInput"
)

// Race is the shared view of a race.
type Race struct {
	Code   string `json:"code"`
	Track  string `json:"track"`
	Mode   string `json:"mode"`
	Parks  int    `json:"parks"`
	Cars   []Car  `json:"cars"`
	Over   bool   `json:"over"`
	Winner string `json:"winner,omitempty"`
}

// MoveResult is the reply to a move.
type MoveResult struct {
	Step Step `json:"step"`
	Car  Car  `json:"car"`
}

// Finish is the payload of race-finished.
type Finish struct {
	Winner  string `json:"winner"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Honk is the payload of honk.
type Honk struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// Game is one race hosted by an active room.
type Game struct {
	rules *Rules

	mu      sync.Mutex
	track   *Track
	trackID string
	mode    string
	code    string
	push    lobby.Pusher
	cars    map[string]*Car
	order   []string
	winner  string
	over    bool
	closed  bool
	tows    map[string]*time.Timer
}

// Init places a car for every member on the home cell.
func (g *Game) Init(p lobby.InitParams) error {
	s, err := g.rules.settings(p.Settings)
	if err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	track, err := g.rules.tracks.LoadTrack(s.Track)
	if err != nil {
		return fmt.Errorf("load track %q: %w", s.Track, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.track = track
	g.trackID = s.Track
	g.mode = s.Mode
	g.code = p.RoomCode
	g.push = p.Push
	g.cars = make(map[string]*Car, len(p.Members))
	g.tows = make(map[string]*time.Timer)
	for _, m := range p.Members {
		var profile Profile
		if !isEmpty(m.Profile) {
			if err := json.Unmarshal(m.Profile, &profile); err != nil {
				g.rules.log.Debug().Err(err).Str("code", p.RoomCode).Str("player", m.PublicID).
					Msg("profile not decoded, car keeps default colour")
			}
		}
		g.cars[m.PublicID] = newCar(m.PublicID, m.Name, profile.Color, track)
		g.order = append(g.order, m.PublicID)
	}

	g.rules.log.Info().Str("code", p.RoomCode).Str("track", track.Name).Str("mode", s.Mode).
		Int("cars", len(g.cars)).Msg("race initialised")
	return nil
}

// Handlers returns the race action table.
func (g *Game) Handlers() map[string]lobby.ActionHandler {
	return map[string]lobby.ActionHandler{
		ActionMove:  g.move,
		ActionState: g.state,
		ActionHonk:  g.honk,
	}
}

// Close cancels pending tows.
func (g *Game) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.stopTows()
}

func (g *Game) move(args lobby.ActionArgs) *lobby.ActionResult {
	var in MoveInput
	if err := json.Unmarshal(args.Data, &in); err != nil {
		return lobby.Fail(ErrBadMove, nil)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.over {
		return lobby.Fail(ErrRaceOver, map[string]string{"winner": g.winner})
	}
	car, ok := g.cars[args.PlayerID]
	if !ok {
		return lobby.Fail(ErrUnknownPlayer, nil)
	}
	if car.Stranded {
		return lobby.Fail(ErrStranded, nil)
	}

	step, err := car.drive(in.Direction, g.track)
	var blocked *BlockedError
	switch {
	case errors.As(err, &blocked):
		return lobby.Fail(ErrBlocked, blocked)
	case errors.Is(err, errOutOfBattery):
		g.scheduleTow(car)
		return lobby.Fail(ErrStranded, nil)
	case err != nil:
		return lobby.Fail(ErrBadMove, nil)
	}

	if car.Stranded {
		g.scheduleTow(car)
	}
	g.push.PushToAll(EventRaceUpdate, g.snapshot())

	if car.finished(g.track) {
		g.over = true
		g.winner = car.PlayerID
		g.stopTows()
		car.Message = fmt.Sprintf(g.track.Messages.Victory, car.Name)
		g.push.PushToAll(EventRaceFinished, Finish{Winner: car.PlayerID, Name: car.Name, Message: car.Message})
		g.rules.log.Info().Str("code", g.code).Str("winner", car.PlayerID).Int("moves", car.Moves).Msg("race finished")
	}
	return lobby.Respond(MoveResult{Step: step, Car: *car})
}

func (g *Game) state(lobby.ActionArgs) *lobby.ActionResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return lobby.Respond(g.snapshot())
}

func (g *Game) honk(args lobby.ActionArgs) *lobby.ActionResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	car, ok := g.cars[args.PlayerID]
	if !ok {
		return lobby.Fail(ErrUnknownPlayer, nil)
	}
	g.push.PushToAll(EventHonk, Honk{PlayerID: car.PlayerID, Name: car.Name})
	return nil
}

// scheduleTow arranges for car to be recharged later. Caller holds g.mu.
func (g *Game) scheduleTow(car *Car) {
	if _, pending := g.tows[car.PlayerID]; pending {
		return
	}
	id := car.PlayerID
	g.tows[id] = time.AfterFunc(g.rules.towDelay, func() { g.tow(id) })
}

func (g *Game) tow(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.tows, id)
	car, ok := g.cars[id]
	if g.closed || g.over || !ok || !car.Stranded {
		return
	}
	car.tow(g.track)
	g.push.PushTo(id, EventTowed, *car)
	g.push.PushToAll(EventRaceUpdate, g.snapshot())
}

// stopTows cancels pending tows. Caller holds g.mu.
func (g *Game) stopTows() {
	for id, t := range g.tows {
		t.Stop()
		delete(g.tows, id)
	}
}

// snapshot copies the race state. Caller holds g.mu.
func (g *Game) snapshot() Race {
	r := Race{
		Code:   g.code,
		Track:  g.trackID,
		Mode:   g.mode,
		Parks:  g.track.Parks(),
		Cars:   make([]Car, 0, len(g.order)),
		Over:   g.over,
		Winner: g.winner,
	}
	for _, id := range g.order {
		r.Cars = append(r.Cars, *g.cars[id])
	}
	return r
}
