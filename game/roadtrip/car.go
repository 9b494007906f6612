package roadtrip

import (
	"errors"
	"fmt"
)

var (
	errBadDirection = errors.New("unknown direction")
	errOutOfBattery = errors.New("out of battery")
)

// BlockedError reports a move into an obstacle.
type BlockedError struct {
	At       Position `json:"at"`
	Obstacle CellType `json:"obstacle"`
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by %s at (%d,%d)", e.Obstacle, e.At.X, e.At.Y)
}

// Car is one player's state on the shared track.
type Car struct {
	PlayerID string   `json:"playerId"`
	Name     string   `json:"name"`
	Color    string   `json:"color,omitempty"`
	Pos      Position `json:"pos"`
	Battery  int      `json:"battery"`
	Score    int      `json:"score"`
	Moves    int      `json:"moves"`
	Stranded bool     `json:"stranded"`
	Message  string   `json:"message"`

	visited map[string]bool
}

func newCar(playerID, name, color string, t *Track) *Car {
	return &Car{
		PlayerID: playerID,
		Name:     name,
		Color:    color,
		Pos:      t.Start(),
		Battery:  t.StartingBattery,
		Message:  t.Messages.Welcome,
		visited:  make(map[string]bool),
	}
}

// Step describes one successful move.
type Step struct {
	From          Position `json:"from"`
	To            Position `json:"to"`
	Cell          CellType `json:"cell"`
	BatteryBefore int      `json:"battery_before"`
	BatteryAfter  int      `json:"battery_after"`
	Scored        bool     `json:"scored"`
}

// drive moves the car one cell. The wall check runs before the battery
// check, so a blocked move never strands a car.
func (c *Car) drive(direction string, t *Track) (Step, error) {
	to, ok := c.Pos.step(direction)
	if !ok {
		return Step{}, errBadDirection
	}
	if !t.Passable(to) {
		c.Message = t.Messages.CantMove
		return Step{}, &BlockedError{At: to, Obstacle: t.Cell(to)}
	}
	if c.Battery <= 0 {
		c.Stranded = true
		c.Message = t.Messages.OutOfBattery
		return Step{}, errOutOfBattery
	}

	step := Step{From: c.Pos, To: to, BatteryBefore: c.Battery}
	c.Pos = to
	c.Battery--
	c.Moves++

	switch step.Cell = t.Cell(to); step.Cell {
	case Home:
		c.Battery = t.MaxBattery
		c.Message = t.Messages.HomeCharge
	case Supercharger:
		c.Battery = t.MaxBattery
		c.Message = t.Messages.SuperchargerCharge
	case Park:
		if !c.visited[to.key()] {
			c.visited[to.key()] = true
			c.Score++
			step.Scored = true
			c.Message = fmt.Sprintf(t.Messages.ParkVisited, c.Score)
		} else {
			c.Message = t.Messages.ParkAlreadyVisited
		}
	default:
		if t.Messages.BatteryStatus != "" {
			c.Message = fmt.Sprintf(t.Messages.BatteryStatus, c.Battery, t.MaxBattery)
		}
	}

	if c.Battery == 0 && !t.IsCharger(to) {
		c.Stranded = true
		c.Message = t.Messages.Stranded
	}
	step.BatteryAfter = c.Battery
	return step, nil
}

// tow recharges a stranded car where it stands.
func (c *Car) tow(t *Track) {
	c.Battery = t.MaxBattery
	c.Stranded = false
	c.Message = t.Messages.Towed
}

func (c *Car) finished(t *Track) bool {
	return c.Score == t.Parks()
}
