package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/partyroom/game/config"
	"github.com/wricardo/mcp-training/partyroom/game/roadtrip"
	"github.com/wricardo/mcp-training/partyroom/lobby"
)

// Rooms is the read side of the lobby exposed over REST.
type Rooms interface {
	Rooms() []lobby.RoomSummary
	Room(code string) (lobby.RoomSummary, bool)
	Stats() lobby.Stats
}

// Tracks is the track catalogue.
type Tracks interface {
	ListTracks() ([]config.TrackInfo, error)
	LoadTrack(id string) (*roadtrip.Track, error)
	SaveTrack(id string, track *roadtrip.Track) error
}

// Hub is the websocket endpoint.
type Hub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Counts() (clients, groups int)
}

// Stats combines lobby registry counts with transport counts.
type Stats struct {
	lobby.Stats
	Connections int    `json:"connections"`
	Groups      int    `json:"groups"`
	Uptime      string `json:"uptime"`
}

// Server represents the REST API server
type Server struct {
	rooms   Rooms
	tracks  Tracks
	hub     Hub
	router  *mux.Router
	log     zerolog.Logger
	started time.Time
}

// NewServer creates a new API server
func NewServer(rooms Rooms, tracks Tracks, hub Hub, log zerolog.Logger) *Server {
	s := &Server{
		rooms:   rooms,
		tracks:  tracks,
		hub:     hub,
		router:  mux.NewRouter(),
		log:     log.With().Str("component", "api").Logger(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{"GET", "/health", s.handleHealth},
		{"GET", "/stats", s.handleStats},

		// Rooms
		{"GET", "/rooms", s.handleListRooms},
		{"GET", "/rooms/{code}", s.handleGetRoom},

		// Tracks
		{"GET", "/tracks", s.handleListTracks},
		{"POST", "/tracks", s.handleCreateTrack},
		{"GET", "/tracks/{id}", s.handleGetTrack},
	}

	var paths []string
	allowed := make(map[string][]string)
	for _, rt := range routes {
		api.HandleFunc(rt.path, rt.handler).Methods(rt.method)
		if _, ok := allowed[rt.path]; !ok {
			paths = append(paths, rt.path)
		}
		allowed[rt.path] = append(allowed[rt.path], rt.method)
	}
	// known paths answer 405 for any other method
	for _, path := range paths {
		api.HandleFunc(path, methodNotAllowed(allowed[path]))
	}

	// WebSocket
	s.router.HandleFunc("/ws", s.hub.ServeWS)
}

func methodNotAllowed(methods []string) http.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.Rooms()

	query := r.URL.Query()
	state := query.Get("state") // "lobby", "active" or empty for all
	limitStr := query.Get("limit")

	switch lobby.State(state) {
	case "":
	case lobby.StateLobby, lobby.StateActive:
		filtered := make([]lobby.RoomSummary, 0, len(rooms))
		for _, room := range rooms {
			if room.State == lobby.State(state) {
				filtered = append(filtered, room)
			}
		}
		rooms = filtered
	default:
		respondError(w, http.StatusBadRequest, "state must be lobby or active")
		return
	}

	total := len(rooms)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(rooms) {
			rooms = rooms[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"total": total,
		"rooms": rooms,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	room, ok := s.rooms.Room(code)
	if !ok {
		respondError(w, http.StatusNotFound, "room not found: "+code)
		return
	}

	respondJSON(w, http.StatusOK, room)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := Stats{
		Stats:  s.rooms.Stats(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	stats.Connections, stats.Groups = s.hub.Counts()

	respondJSON(w, http.StatusOK, stats)
}

// Track Handlers

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.tracks.ListTracks()
	if err != nil {
		s.log.Error().Err(err).Msg("list tracks")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(tracks),
		"tracks": tracks,
	})
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	track, err := s.tracks.LoadTrack(id)
	switch {
	case errors.Is(err, config.ErrTrackNotFound):
		respondError(w, http.StatusNotFound, "track not found: "+id)
		return
	case err != nil:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, track)
}

func (s *Server) handleCreateTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string          `json:"track_id"`
		Track   *roadtrip.Track `json:"track"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TrackID == "" || req.Track == nil {
		respondError(w, http.StatusBadRequest, "track_id and track are required")
		return
	}
	if _, err := s.tracks.LoadTrack(req.TrackID); err == nil {
		respondError(w, http.StatusConflict, "track already exists: "+req.TrackID)
		return
	} else if !errors.Is(err, config.ErrTrackNotFound) && !errors.Is(err, config.ErrInvalidTrack) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.tracks.SaveTrack(req.TrackID, req.Track); err != nil {
		if errors.Is(err, config.ErrInvalidTrack) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.log.Error().Err(err).Str("track_id", req.TrackID).Msg("save track")
		respondError(w, http.StatusInternalServerError, "Failed to save track")
		return
	}

	s.log.Info().Str("track_id", req.TrackID).Msg("track saved")
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Track saved successfully",
		"track_id": req.TrackID,
	})
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
