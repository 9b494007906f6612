// Package config manages the race tracks available to rooms.
//
// The config package handles:
//   - Loading tracks from JSON files
//   - Track validation and caching
//   - Default track selection
//   - Track discovery and listing
//
// Track Format:
//
// Tracks are stored as JSON files in the tracks directory. Each file defines:
//   - Grid layout using character mapping (R=road, H=home, P=park, etc.)
//   - Battery parameters (max capacity, starting amount)
//   - Player-facing messages for the race events
//
// A track's id is its file name without the .json extension. When the
// directory holds no valid track a built-in "minimal" track is served.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	track, err := manager.LoadTrack("classic")
//	tracks, err := manager.ListTracks()
//	id := manager.Default()
package config
