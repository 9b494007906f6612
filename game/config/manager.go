package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/mcp-training/partyroom/game/roadtrip"
)

var (
	ErrTrackNotFound = errors.New("track not found")
	ErrInvalidTrack  = errors.New("invalid track")
)

// TrackInfo summarises a track file.
type TrackInfo struct {
	Filename    string `json:"filename"`
	TrackID     string `json:"track_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	GridSize    int    `json:"grid_size"`
	MaxBattery  int    `json:"max_battery"`
	Parks       int    `json:"parks"`
}

// Manager handles track loading and caching
type Manager struct {
	dir          string
	defaultTrack string
	tracks       map[string]*roadtrip.Track
	mu           sync.RWMutex
}

// NewManager creates a new track manager reading JSON files from dir
func NewManager(dir string) (*Manager, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("tracks directory does not exist: %s", dir)
	}

	m := &Manager{
		dir:    dir,
		tracks: make(map[string]*roadtrip.Track),
	}
	if err := m.loadDefault(); err != nil {
		return nil, fmt.Errorf("failed to load default track: %w", err)
	}
	return m, nil
}

// LoadTrack loads a track by id (file name without extension)
func (m *Manager) LoadTrack(id string) (*roadtrip.Track, error) {
	id = strings.TrimSuffix(id, ".json")
	if !validID(id) {
		return nil, ErrTrackNotFound
	}

	m.mu.RLock()
	if track, ok := m.tracks[id]; ok {
		m.mu.RUnlock()
		return track, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if track, ok := m.tracks[id]; ok {
		return track, nil
	}

	track, err := LoadTrackFile(filepath.Join(m.dir, id+".json"))
	if err != nil {
		return nil, err
	}
	m.tracks[id] = track
	return track, nil
}

// ListTracks returns information about every valid track in the directory
func (m *Manager) ListTracks() ([]TrackInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracks directory: %w", err)
	}

	var out []TrackInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		track, err := m.LoadTrack(id)
		if err != nil {
			// Skip invalid tracks
			continue
		}
		out = append(out, TrackInfo{
			Filename:    entry.Name(),
			TrackID:     id,
			Name:        track.Name,
			Description: track.Description,
			GridSize:    track.GridSize,
			MaxBattery:  track.MaxBattery,
			Parks:       track.Parks(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out, nil
}

// Default returns the id of the default track
func (m *Manager) Default() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultTrack
}

// SetDefault sets the default track by id
func (m *Manager) SetDefault(id string) error {
	if _, err := m.LoadTrack(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultTrack = strings.TrimSuffix(id, ".json")
	return nil
}

// RefreshCache drops cached tracks so they are re-read from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.tracks = make(map[string]*roadtrip.Track)
	m.mu.Unlock()
	return m.loadDefault()
}

// SaveTrack validates a track and writes it to disk
func (m *Manager) SaveTrack(id string, track *roadtrip.Track) error {
	id = strings.TrimSuffix(id, ".json")
	if !validID(id) {
		return fmt.Errorf("%w: bad track id %q", ErrInvalidTrack, id)
	}
	if err := track.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrack, err)
	}

	data, err := json.MarshalIndent(track, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, id+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write track file: %w", err)
	}

	m.mu.Lock()
	m.tracks[id] = track
	m.mu.Unlock()
	return nil
}

// loadDefault picks classic.json, or else the first valid track
func (m *Manager) loadDefault() error {
	if _, err := m.LoadTrack("classic"); err == nil {
		m.mu.Lock()
		m.defaultTrack = "classic"
		m.mu.Unlock()
		return nil
	}

	tracks, err := m.ListTracks()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(tracks) == 0 {
		m.tracks[MinimalTrackID] = minimalTrack()
		m.defaultTrack = MinimalTrackID
		return nil
	}
	m.defaultTrack = tracks[0].TrackID
	return nil
}

// MinimalTrackID names the built-in track used when the directory has none.
const MinimalTrackID = "minimal"

// minimalTrack creates a minimal valid track
func minimalTrack() *roadtrip.Track {
	return &roadtrip.Track{
		Name:            "Minimal",
		Description:     "Built-in five by five loop",
		GridSize:        5,
		MaxBattery:      10,
		StartingBattery: 10,
		Layout: []string{
			"RRPRR",
			"RRRHR",
			"RRSRR",
			"RRRRR",
			"RRPRR",
		},
		Messages: roadtrip.Messages{
			Welcome:            "Start your engines!",
			HomeCharge:         "Home sweet home! Battery fully charged!",
			SuperchargerCharge: "Supercharger! Battery fully charged!",
			ParkVisited:        "Park visited! Score: %d",
			ParkAlreadyVisited: "Already visited this park",
			Victory:            "%s visited every park and wins!",
			OutOfBattery:       "Out of battery!",
			Stranded:           "Stranded! A tow truck is on its way.",
			CantMove:           "Can't move there!",
			BatteryStatus:      "Battery: %d/%d",
			Towed:              "Towed and recharged.",
		},
	}
}

// validID rejects ids that would escape the tracks directory
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// LoadTrackFile reads and validates a single track file
func LoadTrackFile(path string) (*roadtrip.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("failed to read track file: %w", err)
	}

	var track roadtrip.Track
	if err := json.Unmarshal(data, &track); err != nil {
		return nil, fmt.Errorf("%w: failed to parse: %v", ErrInvalidTrack, err)
	}
	if err := track.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrack, err)
	}
	return &track, nil
}
