package lobby

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	Event   string
	Payload any
}

// fakeTransport records everything delivered to each connection, expanding
// group broadcasts against the group membership at call time.
type fakeTransport struct {
	mu     sync.Mutex
	groups map[string]map[string]bool
	inbox  map[string][]message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		groups: make(map[string]map[string]bool),
		inbox:  make(map[string][]message),
	}
}

func (f *fakeTransport) Send(connID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox[connID] = append(f.inbox[connID], message{event, payload})
}

func (f *fakeTransport) BroadcastToGroup(group, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for connID := range f.groups[group] {
		f.inbox[connID] = append(f.inbox[connID], message{event, payload})
	}
}

func (f *fakeTransport) JoinGroup(connID, group string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groups[group] == nil {
		f.groups[group] = make(map[string]bool)
	}
	f.groups[group][connID] = true
}

func (f *fakeTransport) LeaveGroup(connID, group string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups[group], connID)
}

func (f *fakeTransport) events(connID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.inbox[connID]))
	for _, msg := range f.inbox[connID] {
		out = append(out, msg.Event)
	}
	return out
}

// last returns the most recent payload of event delivered to connID.
func (f *fakeTransport) last(connID, event string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.inbox[connID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Event == event {
			return msgs[i].Payload, true
		}
	}
	return nil, false
}

func (f *fakeTransport) count(connID, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msg := range f.inbox[connID] {
		if msg.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = make(map[string][]message)
}

func (f *fakeTransport) welcome(t *testing.T, connID string) Welcome {
	t.Helper()
	payload, ok := f.last(connID, EventConnected)
	require.True(t, ok, "no connected event for %s", connID)
	w, ok := payload.(Welcome)
	require.True(t, ok)
	return w
}

// recordingGame is a Game exposing a handful of behaviours to dispatch against.
type recordingGame struct {
	mu      sync.Mutex
	params  InitParams
	inits   int
	closed  bool
	initErr error
}

func (g *recordingGame) Init(params InitParams) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.params = params
	g.inits++
	return g.initErr
}

func (g *recordingGame) Handlers() map[string]ActionHandler {
	return map[string]ActionHandler{
		"echo": func(args ActionArgs) *ActionResult {
			return Respond(map[string]string{"player": args.PlayerID, "data": string(args.Data)})
		},
		"fail": func(ActionArgs) *ActionResult {
			return Fail("Nope", map[string]int{"tries": 1})
		},
		"silent": func(ActionArgs) *ActionResult { return nil },
		"boom":   func(ActionArgs) *ActionResult { panic("boom") },
		"shout": func(args ActionArgs) *ActionResult {
			g.push().PushToAll("shout", string(args.Data))
			return nil
		},
	}
}

func (g *recordingGame) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

func (g *recordingGame) push() Pusher {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params.Push
}

func (g *recordingGame) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// fixedCodes replays a list of codes, repeating the last one.
type fixedCodes struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func (c *fixedCodes) Next() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) == 0 {
		return "", errors.New("no codes")
	}
	code := c.codes[min(c.next, len(c.codes)-1)]
	c.next++
	return code, nil
}

func (c *fixedCodes) Normalize(code string) (string, bool) {
	return NewHexCodes(DefaultCodeLength).Normalize(code)
}

type harness struct {
	t     *testing.T
	m     *Manager
	tr    *fakeTransport
	mu    sync.Mutex
	games []*recordingGame
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{t: t, tr: newFakeTransport()}
	opts := Options{
		NewGame: func() Game {
			g := &recordingGame{}
			h.mu.Lock()
			h.games = append(h.games, g)
			h.mu.Unlock()
			return g
		},
		Actions: []ActionSpec{
			{Name: "echo"},
			{Name: "fail"},
			{Name: "silent"},
			{Name: "boom"},
			{Name: "shout"},
		},
		Logger: zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	m, err := NewManager(h.tr, opts)
	require.NoError(t, err)
	clock := time.Unix(1700000000, 0)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	h.m = m
	return h
}

func (h *harness) game(i int) *recordingGame {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Greater(h.t, len(h.games), i)
	return h.games[i]
}

func (h *harness) connect(connIDs ...string) {
	for _, id := range connIDs {
		h.m.Connect(id, "")
	}
}

func (h *harness) publicID(connID string) string {
	p, err := h.m.GetParty(connID)
	require.NoError(h.t, err)
	return p.PublicID
}

// room creates a room hosted by the first connection and joins the rest.
func (h *harness) room(host string, others ...string) string {
	h.t.Helper()
	h.connect(append([]string{host}, others...)...)
	v, err := h.m.CreateRoom(host, "host-"+host, nil, nil)
	require.NoError(h.t, err)
	for _, id := range others {
		_, err := h.m.JoinRoom(id, "player-"+id, nil, v.Code)
		require.NoError(h.t, err)
	}
	return v.Code
}

// started builds a room and starts its game.
func (h *harness) started(host string, others ...string) string {
	h.t.Helper()
	code := h.room(host, others...)
	_, err := h.m.StartGame(host)
	require.NoError(h.t, err)
	return code
}

func requireCode(t *testing.T, err error, want Code) {
	t.Helper()
	require.Error(t, err)
	got, ok := CodeOf(err)
	require.True(t, ok, "error %v carries no code", err)
	assert.Equal(t, want, got)
}

// checkInvariants asserts the registry invariants directly on internal state.
func checkInvariants(t *testing.T, m *Manager) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	owner := make(map[string]string)
	codes := make(map[string]bool)
	for id, room := range m.rooms {
		assert.False(t, codes[room.Code], "duplicate live code %s", room.Code)
		codes[room.Code] = true
		assert.Equal(t, id, m.codes[room.Code])
		if room.Game == nil {
			assert.LessOrEqual(t, len(room.Members), m.opts.MaxPlayers)
		}
		for _, connID := range room.Members {
			_, dup := owner[connID]
			assert.False(t, dup, "connection %s in two rooms or twice in one", connID)
			owner[connID] = id
			p, ok := m.parties[connID]
			if assert.True(t, ok, "member %s has no party", connID) {
				assert.Equal(t, id, p.RoomID)
			}
		}
	}
	assert.Len(t, m.codes, len(m.rooms))
	for connID, p := range m.parties {
		assert.Equal(t, connID, p.ConnectionID)
		assert.Equal(t, connID, m.tokens[p.ResumeToken])
		if p.RoomID != "" {
			assert.Equal(t, p.RoomID, owner[connID], fmt.Sprintf("party %s points at a room it is not in", connID))
		}
		if p.Presence == Offline {
			assert.NotEmpty(t, p.RoomID, "offline party outside any room")
		}
	}
	assert.Len(t, m.tokens, len(m.parties))
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }
