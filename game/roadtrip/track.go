package roadtrip

import (
	"fmt"
	"strings"
)

// CellType represents different types of track cells
type CellType string

const (
	Road         CellType = "road"
	Home         CellType = "home"
	Park         CellType = "park"
	Supercharger CellType = "supercharger"
	Water        CellType = "water"
	Building     CellType = "building"
	Boundary     CellType = "boundary"

	// Validation constants
	MinGridSize = 5
	MaxGridSize = 50
	MinBattery  = 1
	MaxBattery  = 100
)

var cellByChar = map[rune]CellType{
	'R': Road,
	'H': Home,
	'P': Park,
	'S': Supercharger,
	'W': Water,
	'B': Building,
}

// Position represents x,y coordinates
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) step(direction string) (Position, bool) {
	switch direction {
	case "up":
		p.Y--
	case "down":
		p.Y++
	case "left":
		p.X--
	case "right":
		p.X++
	default:
		return p, false
	}
	return p, true
}

func (p Position) key() string { return fmt.Sprintf("%d,%d", p.X, p.Y) }

// Messages are the player-facing texts of a track.
type Messages struct {
	Welcome            string `json:"welcome"`
	HomeCharge         string `json:"home_charge"`
	SuperchargerCharge string `json:"supercharger_charge"`
	ParkVisited        string `json:"park_visited"`
	ParkAlreadyVisited string `json:"park_already_visited"`
	Victory            string `json:"victory"`
	OutOfBattery       string `json:"out_of_battery"`
	Stranded           string `json:"stranded"`
	CantMove           string `json:"cant_move"`
	BatteryStatus      string `json:"battery_status"`
	Towed              string `json:"towed"`
}

// Track is a race course loaded from a JSON track file.
type Track struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	GridSize        int               `json:"grid_size"`
	MaxBattery      int               `json:"max_battery"`
	StartingBattery int               `json:"starting_battery"`
	Layout          []string          `json:"layout"`
	Legend          map[string]string `json:"legend,omitempty"`
	Messages        Messages          `json:"messages"`
}

// Cell returns the type of the cell at p. Positions off the grid are Boundary.
func (t *Track) Cell(p Position) CellType {
	if p.Y < 0 || p.Y >= len(t.Layout) || p.X < 0 || p.X >= len(t.Layout[p.Y]) {
		return Boundary
	}
	if c, ok := cellByChar[rune(t.Layout[p.Y][p.X])]; ok {
		return c
	}
	return Building
}

// Passable reports whether a car may enter p. Only water, buildings and the
// grid edge block movement; homes are passable and charge the battery.
func (t *Track) Passable(p Position) bool {
	switch t.Cell(p) {
	case Water, Building, Boundary:
		return false
	}
	return true
}

// IsCharger reports whether p refills the battery.
func (t *Track) IsCharger(p Position) bool {
	c := t.Cell(p)
	return c == Home || c == Supercharger
}

// Start returns the first home cell in reading order.
func (t *Track) Start() Position {
	for y, row := range t.Layout {
		if x := strings.IndexByte(row, 'H'); x >= 0 {
			return Position{X: x, Y: y}
		}
	}
	return Position{}
}

// Parks counts the parks on the track.
func (t *Track) Parks() int {
	n := 0
	for _, row := range t.Layout {
		n += strings.Count(row, "P")
	}
	return n
}

// Validate checks a track for correctness and playability
func (t *Track) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("track validation: name is required")
	}
	if t.Description == "" {
		return fmt.Errorf("track validation: description is required")
	}

	if t.GridSize < MinGridSize || t.GridSize > MaxGridSize {
		return fmt.Errorf("track validation: grid_size must be between %d and %d, got %d", MinGridSize, MaxGridSize, t.GridSize)
	}

	if t.MaxBattery < MinBattery || t.MaxBattery > MaxBattery {
		return fmt.Errorf("track validation: max_battery must be between %d and %d, got %d", MinBattery, MaxBattery, t.MaxBattery)
	}
	if t.StartingBattery < MinBattery || t.StartingBattery > t.MaxBattery {
		return fmt.Errorf("track validation: starting_battery must be between %d and max_battery (%d), got %d",
			MinBattery, t.MaxBattery, t.StartingBattery)
	}

	if len(t.Layout) != t.GridSize {
		return fmt.Errorf("track validation: layout must have %d rows to match grid_size, got %d",
			t.GridSize, len(t.Layout))
	}

	hasHome := false
	var chargers, parks []Position
	for y, row := range t.Layout {
		if len(row) != t.GridSize {
			return fmt.Errorf("track validation: row %d must have %d characters to match grid_size, got %d",
				y+1, t.GridSize, len(row))
		}
		for x, char := range row {
			switch char {
			case 'R', 'W', 'B':
			case 'H':
				hasHome = true
				chargers = append(chargers, Position{x, y})
			case 'S':
				chargers = append(chargers, Position{x, y})
			case 'P':
				parks = append(parks, Position{x, y})
			default:
				return fmt.Errorf("track validation: invalid character '%c' at row %d, col %d", char, y+1, x+1)
			}
		}
	}
	if !hasHome {
		return fmt.Errorf("track validation: layout must contain at least one home (H) cell")
	}
	if len(parks) == 0 {
		return fmt.Errorf("track validation: layout must contain at least one park (P) cell")
	}

	for key, char := range map[string]CellType{"R": Road, "H": Home, "P": Park, "S": Supercharger, "W": Water, "B": Building} {
		if v, ok := t.Legend[key]; ok && v != string(char) {
			return fmt.Errorf("track validation: legend['%s'] must be '%s', got '%s'", key, char, v)
		}
	}

	if !strings.Contains(t.Messages.ParkVisited, "%d") {
		return fmt.Errorf("track validation: messages.park_visited must contain %%d for score")
	}
	if !strings.Contains(t.Messages.Victory, "%s") {
		return fmt.Errorf("track validation: messages.victory must contain %%s for the winner")
	}
	if t.Messages.BatteryStatus != "" && strings.Count(t.Messages.BatteryStatus, "%d") != 2 {
		return fmt.Errorf("track validation: messages.battery_status must contain two %%d for battery values")
	}

	// every park must lie within one battery of some charger
	for _, park := range parks {
		nearest := -1
		for _, charger := range chargers {
			if d := distance(park, charger); nearest < 0 || d < nearest {
				nearest = d
			}
		}
		if nearest > t.MaxBattery {
			return fmt.Errorf("track validation: park at (%d, %d) is unreachable - nearest charger is %d moves away but max battery is %d",
				park.X+1, park.Y+1, nearest, t.MaxBattery)
		}
	}
	return nil
}

func distance(a, b Position) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// abs returns the absolute value of x
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Unreachable lists the parks a car cannot drive to from the start cell,
// ignoring battery limits.
func (t *Track) Unreachable() []Position {
	start := t.Start()
	seen := map[Position]bool{start: true}
	queue := []Position{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range []string{"up", "down", "left", "right"} {
			next, _ := cur.step(d)
			if !seen[next] && t.Passable(next) {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	var out []Position
	for y, row := range t.Layout {
		for x := range row {
			p := Position{X: x, Y: y}
			if t.Cell(p) == Park && !seen[p] {
				out = append(out, p)
			}
		}
	}
	return out
}
