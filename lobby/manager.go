package lobby

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Unsolicited server events.
const (
	EventConnected     = "connected"
	EventRoomUpdated   = "room-updated"
	EventGameStarted   = "game-started"
	EventPartyLeft     = "party-left"
	EventPartyRejoined = "party-rejoined"
	EventRoomDestroyed = "room-destroyed"
)

// detachedPrefix marks the synthetic registry key of a party that explicitly
// left an active room and now waits, offline, to be resumed.
const detachedPrefix = "detached:"

// Manager owns every party and room. A single mutex guards all registries so
// the invariants spanning them hold after each operation.
type Manager struct {
	mu        sync.Mutex
	opts      Options
	transport Transport
	log       zerolog.Logger
	now       func() time.Time

	parties map[string]*Party     // connection id -> party
	rooms   map[string]*Room      // room id -> room
	codes   map[string]string     // room code -> room id
	tokens  map[string]string     // resume token -> connection id
	actions map[string]ActionSpec // custom action name -> spec

	dir *directory
}

// NewManager creates a Manager delivering through t.
func NewManager(t Transport, opts Options) (*Manager, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		opts:      opts,
		transport: t,
		log:       opts.Logger,
		now:       time.Now,
		parties:   make(map[string]*Party),
		rooms:     make(map[string]*Room),
		codes:     make(map[string]string),
		tokens:    make(map[string]string),
		actions:   make(map[string]ActionSpec),
		dir:       newDirectory(),
	}
	for _, a := range opts.Actions {
		if err := m.registerAction(a.Name, a.Validate); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Connect registers a connection, resuming the offline party named by
// resumeToken when possible. The caller always receives a "connected" event.
func (m *Manager) Connect(connID, resumeToken string) PartyView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connect(connID, resumeToken)
}

// Disconnect handles the loss of connID.
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnect(connID)
}

// CreateRoom opens a new lobby hosted by connID.
func (m *Manager) CreateRoom(connID, name string, profile, settings json.RawMessage) (RoomView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRoom(connID, name, profile, settings)
}

// JoinRoom adds connID to the lobby identified by code.
func (m *Manager) JoinRoom(connID, name string, profile json.RawMessage, code string) (RoomView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinRoom(connID, name, profile, code)
}

// LeaveRoom removes connID from its room while keeping the connection registered.
func (m *Manager) LeaveRoom(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveRoom(connID)
}

// SetParty updates the caller's name and/or profile.
func (m *Manager) SetParty(connID, name string, profile json.RawMessage) (PartyView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setParty(connID, name, profile)
}

// SetRoomSettings replaces the settings of the caller's lobby.
func (m *Manager) SetRoomSettings(connID string, settings json.RawMessage) (RoomView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setRoomSettings(connID, settings)
}

// StartGame moves the caller's room from lobby to active.
func (m *Manager) StartGame(connID string) (RoomView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startGame(connID)
}

// GetRoom returns the caller's view of its room.
func (m *Manager) GetRoom(connID string) (RoomView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getRoom(connID)
}

// GetParty returns the caller's own projection.
func (m *Manager) GetParty(connID string) (PartyView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.party(connID)
	if err != nil {
		return PartyView{}, err
	}
	return p.view(), nil
}

// Rooms lists every live room, oldest first.
func (m *Manager) Rooms() []RoomSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RoomSummary, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, m.summary(room))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Room looks up a live room by its code.
func (m *Manager) Room(code string) (RoomSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, ok := m.opts.Codes.Normalize(code)
	if !ok {
		return RoomSummary{}, false
	}
	id, ok := m.codes[code]
	if !ok {
		return RoomSummary{}, false
	}
	return m.summary(m.rooms[id]), true
}

// Stats counts registry contents.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Rooms:        len(m.rooms),
		RoomsByState: map[State]int{StateLobby: 0, StateActive: 0},
		Parties:      len(m.parties),
		Actions:      m.actionNames(),
	}
	for _, room := range m.rooms {
		s.RoomsByState[room.state()]++
	}
	for _, p := range m.parties {
		if p.Presence == Online {
			s.OnlineParties++
		}
	}
	return s
}

// connect is Connect without locking.
func (m *Manager) connect(connID, token string) PartyView {
	if p, ok := m.parties[connID]; ok && p.Presence == Online {
		m.transport.Send(connID, EventConnected, Welcome{PublicID: p.PublicID, ResumeToken: p.ResumeToken})
		return p.view()
	}

	p := m.resumable(token)
	// an offline seat still registered under a reused id keeps its place
	if stale, ok := m.parties[connID]; ok && stale != p {
		m.park(stale)
	}

	if p != nil {
		room := m.rooms[p.RoomID]
		old := p.ConnectionID
		m.rekey(p, connID)
		room.rekey(old, connID)
		p.Presence = Online

		m.transport.Send(connID, EventConnected, Welcome{PublicID: p.PublicID, ResumeToken: p.ResumeToken, Resumed: true})
		m.transport.BroadcastToGroup(room.ID, EventPartyRejoined, PartyNotice{PublicID: p.PublicID, Name: p.Name})
		m.transport.JoinGroup(connID, room.ID)
		m.dir.set(p.PublicID, connID, room.ID)

		m.log.Info().Str("conn_id", connID).Str("public_id", p.PublicID).Str("room_id", room.ID).
			Msg("party resumed")
		return p.view()
	}

	p = newParty(connID)
	m.parties[connID] = p
	m.tokens[p.ResumeToken] = connID
	m.transport.Send(connID, EventConnected, Welcome{PublicID: p.PublicID, ResumeToken: p.ResumeToken})

	m.log.Debug().Str("conn_id", connID).Str("public_id", p.PublicID).Msg("party connected")
	return p.view()
}

// resumable returns the offline party named by token if its room still exists.
func (m *Manager) resumable(token string) *Party {
	if token == "" {
		return nil
	}
	p, ok := m.parties[m.tokens[token]]
	if !ok || p.Presence != Offline || p.RoomID == "" {
		return nil
	}
	if room, ok := m.rooms[p.RoomID]; !ok || room.destroyed {
		return nil
	}
	return p
}

// disconnect is Disconnect without locking.
func (m *Manager) disconnect(connID string) {
	p, ok := m.parties[connID]
	if !ok || p.Presence == Offline {
		return
	}
	if p.RoomID == "" {
		m.forget(p)
		m.log.Debug().Str("conn_id", connID).Msg("party disconnected")
		return
	}
	m.leave(p, true)
}

func (m *Manager) createRoom(connID, name string, profile, settings json.RawMessage) (RoomView, error) {
	p, err := m.party(connID)
	if err != nil {
		return RoomView{}, err
	}
	if p.RoomID != "" {
		return RoomView{}, ErrAlreadyInRoom
	}
	name, ok := normalizeName(name, m.opts.MaxNameLength)
	if !ok {
		return RoomView{}, ErrInvalidName
	}
	if err := m.checkProfile(profile); err != nil {
		return RoomView{}, err
	}
	if isEmpty(settings) {
		settings = m.opts.DefaultSettings
	}
	if !isEmpty(settings) {
		if err := m.opts.ValidateSettings.check(settings); err != nil {
			return RoomView{}, newError(CodeInvalidSettings, err)
		}
	}
	code, err := m.drawCode()
	if err != nil {
		return RoomView{}, newError(CodeUnhandled, err)
	}

	room := &Room{
		ID:               uuid.NewString(),
		Code:             code,
		HostConnectionID: connID,
		Members:          []string{connID},
		Settings:         settings,
		CreatedAt:        m.now(),
	}
	m.rooms[room.ID] = room
	m.codes[code] = room.ID

	m.enter(p, room, name, profile)

	m.log.Info().Str("room_id", room.ID).Str("code", code).Str("host", p.PublicID).Msg("room created")
	return m.roomView(room, p), nil
}

func (m *Manager) joinRoom(connID, name string, profile json.RawMessage, code string) (RoomView, error) {
	p, err := m.party(connID)
	if err != nil {
		return RoomView{}, err
	}
	if p.RoomID != "" {
		return RoomView{}, ErrAlreadyInRoom
	}
	name, ok := normalizeName(name, m.opts.MaxNameLength)
	if !ok {
		return RoomView{}, ErrInvalidName
	}
	code, ok = m.opts.Codes.Normalize(code)
	if !ok {
		return RoomView{}, ErrInvalidCode
	}
	if err := m.checkProfile(profile); err != nil {
		return RoomView{}, err
	}
	id, ok := m.codes[code]
	if !ok {
		return RoomView{}, ErrRoomNotFound
	}
	room := m.rooms[id]
	if room.Game != nil {
		return RoomView{}, ErrGameAlreadyStarted
	}
	if len(room.Members) >= m.opts.MaxPlayers {
		return RoomView{}, withArgs(CodeRoomFull, map[string]int{"maxPlayers": m.opts.MaxPlayers})
	}

	room.Members = append(room.Members, connID)
	m.enter(p, room, name, profile)
	m.broadcastRoom(room)

	m.log.Info().Str("room_id", room.ID).Str("public_id", p.PublicID).Int("members", len(room.Members)).
		Msg("party joined room")
	return m.roomView(room, p), nil
}

func (m *Manager) leaveRoom(connID string) error {
	p, err := m.party(connID)
	if err != nil {
		return err
	}
	if _, err := m.roomOf(p); err != nil {
		return err
	}
	m.leave(p, false)
	return nil
}

func (m *Manager) setParty(connID, name string, profile json.RawMessage) (PartyView, error) {
	p, err := m.party(connID)
	if err != nil {
		return PartyView{}, err
	}
	if name != "" {
		var ok bool
		if name, ok = normalizeName(name, m.opts.MaxNameLength); !ok {
			return PartyView{}, ErrInvalidName
		}
	}
	if err := m.checkProfile(profile); err != nil {
		return PartyView{}, err
	}

	if name != "" {
		p.Name = name
	}
	if !isEmpty(profile) {
		p.Profile = profile
	}
	if room, ok := m.rooms[p.RoomID]; ok && room.Game == nil {
		m.broadcastRoom(room)
	}
	return p.view(), nil
}

func (m *Manager) setRoomSettings(connID string, settings json.RawMessage) (RoomView, error) {
	p, err := m.party(connID)
	if err != nil {
		return RoomView{}, err
	}
	room, err := m.roomOf(p)
	if err != nil {
		return RoomView{}, err
	}
	if room.HostConnectionID != connID {
		return RoomView{}, ErrNotHost
	}
	if room.Game != nil {
		return RoomView{}, ErrGameAlreadyStarted
	}
	if err := m.opts.ValidateSettings.check(settings); err != nil {
		return RoomView{}, newError(CodeInvalidSettings, err)
	}

	room.Settings = settings
	m.broadcastRoom(room)
	return m.roomView(room, p), nil
}

func (m *Manager) startGame(connID string) (RoomView, error) {
	p, err := m.party(connID)
	if err != nil {
		return RoomView{}, err
	}
	room, err := m.roomOf(p)
	if err != nil {
		return RoomView{}, err
	}
	if room.HostConnectionID != connID {
		return RoomView{}, ErrNotHost
	}
	if room.Game != nil {
		return RoomView{}, ErrGameAlreadyStarted
	}
	if n := len(room.Members); n < m.opts.MinPlayers || n > m.opts.MaxPlayers {
		return RoomView{}, withArgs(CodeWrongPlayerCount, map[string]int{
			"count": n, "minPlayers": m.opts.MinPlayers, "maxPlayers": m.opts.MaxPlayers,
		})
	}
	members := m.members(room)
	if m.opts.CanStart != nil && !m.opts.CanStart(room.Settings, members) {
		return RoomView{}, ErrIncompatibleSettings
	}

	game := m.opts.NewGame()
	if game == nil {
		return RoomView{}, newError(CodeUnhandled, fmt.Errorf("game factory returned nil"))
	}
	push := newGateway(room.ID, m.dir, m.transport, m.log.With().Str("room_id", room.ID).Logger())
	handlers, err := initGame(game, InitParams{
		Members:      members,
		HostPublicID: p.PublicID,
		Settings:     room.Settings,
		RoomCode:     room.Code,
		Push:         push,
	})
	if err != nil {
		push.close()
		return RoomView{}, newError(CodeUnhandled, err)
	}

	room.Game = game
	room.handlers = handlers
	room.push = push
	room.StartedAt = m.now()
	m.transport.BroadcastToGroup(room.ID, EventGameStarted, RoomNotice{Code: room.Code})

	m.log.Info().Str("room_id", room.ID).Str("code", room.Code).Int("members", len(members)).Msg("game started")
	return m.roomView(room, p), nil
}

// initGame runs Init and binds the action table, converting panics into errors.
func initGame(game Game, params InitParams) (handlers map[string]ActionHandler, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("game init panicked: %v", r)
		}
	}()
	if err := game.Init(params); err != nil {
		return nil, fmt.Errorf("game init: %w", err)
	}
	handlers = make(map[string]ActionHandler)
	for name, h := range game.Handlers() {
		if h != nil {
			handlers[name] = h
		}
	}
	return handlers, nil
}

func (m *Manager) getRoom(connID string) (RoomView, error) {
	p, err := m.party(connID)
	if err != nil {
		return RoomView{}, err
	}
	room, err := m.roomOf(p)
	if err != nil {
		return RoomView{}, err
	}
	return m.roomView(room, p), nil
}

// leave runs the leave transition for p. removeAfter deletes the party once it
// no longer belongs to a room.
func (m *Manager) leave(p *Party, removeAfter bool) {
	room, ok := m.rooms[p.RoomID]
	if !ok {
		p.RoomID = ""
		if removeAfter {
			m.forget(p)
		}
		return
	}

	if room.Game == nil {
		if p.ConnectionID == room.HostConnectionID {
			m.destroy(room, "host left")
		} else {
			room.remove(p.ConnectionID)
			m.exit(p, room)
			if len(room.Members) == 0 {
				m.destroy(room, "empty")
			} else {
				m.broadcastRoom(room)
			}
		}
		if removeAfter {
			m.forget(p)
		}
		return
	}

	if m.onlineOthers(room, p.ConnectionID) == 0 {
		m.destroy(room, "last online member left")
		if removeAfter {
			m.forget(p)
		}
		return
	}

	p.Presence = Offline
	m.dir.drop(p.PublicID)
	m.transport.LeaveGroup(p.ConnectionID, room.ID)
	m.transport.BroadcastToGroup(room.ID, EventPartyLeft, PartyNotice{PublicID: p.PublicID, Name: p.Name})
	m.log.Info().Str("room_id", room.ID).Str("public_id", p.PublicID).Msg("party went offline")

	if !removeAfter {
		m.detach(p)
	}
}

// detach parks p, offline, under a synthetic key so its live connection can
// carry on with a fresh identity while the game keeps the old seat resumable.
func (m *Manager) detach(p *Party) {
	connID := p.ConnectionID
	m.park(p)

	fresh := newParty(connID)
	fresh.Name, fresh.Profile = p.Name, p.Profile
	m.parties[connID] = fresh
	m.tokens[fresh.ResumeToken] = connID
	m.transport.Send(connID, EventConnected, Welcome{PublicID: fresh.PublicID, ResumeToken: fresh.ResumeToken})
}

// destroy tears room down. Surviving online members are released; offline
// members are deleted for good.
func (m *Manager) destroy(room *Room, reason string) {
	m.transport.BroadcastToGroup(room.ID, EventRoomDestroyed, RoomNotice{Code: room.Code})
	if room.push != nil {
		room.push.close()
	}
	for _, id := range room.Members {
		p, ok := m.parties[id]
		if !ok {
			continue
		}
		if p.Presence == Offline {
			m.forget(p)
			continue
		}
		m.exit(p, room)
	}
	room.Members = nil
	room.destroyed = true
	delete(m.codes, room.Code)
	delete(m.rooms, room.ID)

	if c, ok := room.Game.(Closer); ok {
		c.Close()
	}
	m.log.Info().Str("room_id", room.ID).Str("code", room.Code).Str("reason", reason).Msg("room destroyed")
}

// enter records p as an online member of room.
func (m *Manager) enter(p *Party, room *Room, name string, profile json.RawMessage) {
	p.RoomID = room.ID
	p.Name = name
	if !isEmpty(profile) {
		p.Profile = profile
	}
	m.transport.JoinGroup(p.ConnectionID, room.ID)
	m.dir.set(p.PublicID, p.ConnectionID, room.ID)
}

// exit clears p's membership of room.
func (m *Manager) exit(p *Party, room *Room) {
	p.RoomID = ""
	m.dir.drop(p.PublicID)
	m.transport.LeaveGroup(p.ConnectionID, room.ID)
}

// park moves an offline p to a synthetic key, keeping its seat resumable.
func (m *Manager) park(p *Party) {
	old := p.ConnectionID
	ghost := detachedPrefix + uuid.NewString()
	m.rekey(p, ghost)
	if room, ok := m.rooms[p.RoomID]; ok {
		room.rekey(old, ghost)
	}
}

// rekey moves p to a new registry key.
func (m *Manager) rekey(p *Party, connID string) {
	delete(m.parties, p.ConnectionID)
	p.ConnectionID = connID
	m.parties[connID] = p
	m.tokens[p.ResumeToken] = connID
}

// forget deletes p from every index.
func (m *Manager) forget(p *Party) {
	delete(m.parties, p.ConnectionID)
	delete(m.tokens, p.ResumeToken)
	m.dir.drop(p.PublicID)
}

func (m *Manager) party(connID string) (*Party, error) {
	p, ok := m.parties[connID]
	if !ok || p.Presence == Offline {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	return p, nil
}

func (m *Manager) roomOf(p *Party) (*Room, error) {
	room, ok := m.rooms[p.RoomID]
	if !ok {
		return nil, ErrNotInRoom
	}
	return room, nil
}

func (m *Manager) checkProfile(profile json.RawMessage) error {
	if isEmpty(profile) {
		return nil
	}
	if err := m.opts.ValidateProfile.check(profile); err != nil {
		return newError(CodeInvalidProfile, err)
	}
	return nil
}

// drawCode returns a code not used by any live room.
func (m *Manager) drawCode() (string, error) {
	for range codeAttempts {
		code, err := m.opts.Codes.Next()
		if err != nil {
			return "", fmt.Errorf("draw room code: %w", err)
		}
		if _, taken := m.codes[code]; !taken {
			return code, nil
		}
		m.log.Warn().Str("code", code).Msg("room code collision, redrawing")
	}
	return "", fmt.Errorf("no free room code after %d attempts", codeAttempts)
}

func (m *Manager) onlineOthers(room *Room, connID string) int {
	n := 0
	for _, id := range room.Members {
		if p, ok := m.parties[id]; ok && id != connID && p.Presence == Online {
			n++
		}
	}
	return n
}

func (m *Manager) members(room *Room) []Member {
	out := make([]Member, 0, len(room.Members))
	for _, id := range room.Members {
		if p, ok := m.parties[id]; ok {
			out = append(out, p.member())
		}
	}
	return out
}

func (m *Manager) memberViews(room *Room) []MemberView {
	out := make([]MemberView, 0, len(room.Members))
	for _, id := range room.Members {
		p, ok := m.parties[id]
		if !ok {
			continue
		}
		out = append(out, MemberView{
			PublicID: p.PublicID,
			Name:     p.Name,
			Profile:  p.Profile,
			Online:   p.Presence == Online,
			IsHost:   id == room.HostConnectionID,
		})
	}
	return out
}

func (m *Manager) hostID(room *Room) string {
	if host, ok := m.parties[room.HostConnectionID]; ok {
		return host.PublicID
	}
	return ""
}

func (m *Manager) roomView(room *Room, viewer *Party) RoomView {
	return RoomView{
		Code:     room.Code,
		State:    room.state(),
		IsHost:   viewer.ConnectionID == room.HostConnectionID,
		Members:  m.memberViews(room),
		Settings: room.Settings,
	}
}

func (m *Manager) broadcastRoom(room *Room) {
	m.transport.BroadcastToGroup(room.ID, EventRoomUpdated, RoomUpdate{
		Code:     room.Code,
		State:    room.state(),
		HostID:   m.hostID(room),
		Members:  m.memberViews(room),
		Settings: room.Settings,
	})
}

func (m *Manager) summary(room *Room) RoomSummary {
	s := RoomSummary{
		ID:        room.ID,
		Code:      room.Code,
		State:     room.state(),
		HostID:    m.hostID(room),
		Members:   m.memberViews(room),
		CreatedAt: room.CreatedAt,
	}
	for _, mv := range s.Members {
		if mv.Online {
			s.Online++
		}
	}
	if !room.StartedAt.IsZero() {
		started := room.StartedAt
		s.StartedAt = &started
	}
	return s
}
