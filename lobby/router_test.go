package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnMessage_CreateAndJoin(t *testing.T) {
	h := newHarness(t, nil)
	h.m.OnConnect("a", "")
	h.m.OnConnect("b", "")

	h.m.OnMessage("a", EventCreateRoom, raw(`{"name":"alice","profile":{"color":"#00ff00"}}`))
	payload, ok := h.tr.last("a", ResponseEvent(EventCreateRoom))
	require.True(t, ok)
	view := payload.(RoomView)
	assert.True(t, view.IsHost)

	h.tr.reset()
	h.m.OnMessage("b", EventJoinRoom, raw(`{"name":"bob","code":"`+view.Code+`"}`))

	// the broadcast precedes the reply
	assert.Equal(t, []string{EventRoomUpdated, ResponseEvent(EventJoinRoom)}, h.tr.events("b"))
	assert.Equal(t, []string{EventRoomUpdated}, h.tr.events("a"))
}

func TestOnMessage_Errors(t *testing.T) {
	h := newHarness(t, nil)
	h.m.OnConnect("a", "")

	h.m.OnMessage("a", EventCreateRoom, raw(`{"name":`))
	payload, ok := h.tr.last("a", ErrorEvent(EventCreateRoom))
	require.True(t, ok)
	assert.Equal(t, ErrorEnvelope{Code: string(CodeInvalidInput)}, payload)

	h.m.OnMessage("a", "teleport", nil)
	payload, ok = h.tr.last("a", ErrorEvent("teleport"))
	require.True(t, ok)
	assert.Equal(t, ErrorEnvelope{Code: string(CodeMissingHandler)}, payload)

	h.m.OnMessage("a", EventGetRoom, nil)
	payload, ok = h.tr.last("a", ErrorEvent(EventGetRoom))
	require.True(t, ok)
	assert.Equal(t, ErrorEnvelope{Code: string(CodeNotInRoom)}, payload)

	h.m.OnMessage("ghost", EventGetParty, nil)
	payload, ok = h.tr.last("ghost", ErrorEvent(EventGetParty))
	require.True(t, ok)
	assert.Equal(t, ErrorEnvelope{Code: string(CodeUnhandled)}, payload)
}

func TestOnMessage_ArgsTravelInEnvelope(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxPlayers = 1 })
	code := h.room("a")
	h.m.OnConnect("b", "")

	h.m.OnMessage("b", EventJoinRoom, raw(`{"name":"bob","code":"`+code+`"}`))
	payload, ok := h.tr.last("b", ErrorEvent(EventJoinRoom))
	require.True(t, ok)
	assert.Equal(t, ErrorEnvelope{Code: string(CodeRoomFull), Args: map[string]int{"maxPlayers": 1}}, payload)
}

func TestOnMessage_Actions(t *testing.T) {
	h := newHarness(t, nil)
	h.started("a")
	h.tr.reset()

	h.m.OnMessage("a", "fail", nil)
	payload, ok := h.tr.last("a", ErrorEvent("fail"))
	require.True(t, ok)
	assert.Equal(t, ErrorEnvelope{Code: "Nope", Args: map[string]int{"tries": 1}}, payload)

	h.m.OnMessage("a", "silent", nil)
	payload, ok = h.tr.last("a", ResponseEvent("silent"))
	require.True(t, ok)
	assert.Nil(t, payload)

	h.m.OnMessage("a", "boom", nil)
	payload, ok = h.tr.last("a", ErrorEvent("boom"))
	require.True(t, ok)
	assert.Equal(t, ErrorEnvelope{Code: string(CodeUnhandled)}, payload)
}

func TestOnMessage_LeaveAndStart(t *testing.T) {
	h := newHarness(t, nil)
	h.room("a", "b")
	h.tr.reset()

	h.m.OnMessage("b", EventStartGame, nil)
	payload, ok := h.tr.last("b", ErrorEvent(EventStartGame))
	require.True(t, ok)
	assert.Equal(t, ErrorEnvelope{Code: string(CodeNotHost)}, payload)

	h.m.OnMessage("b", EventLeaveRoom, nil)
	_, ok = h.tr.last("b", ResponseEvent(EventLeaveRoom))
	assert.True(t, ok)

	h.m.OnMessage("a", EventStartGame, nil)
	_, ok = h.tr.last("a", ResponseEvent(EventStartGame))
	assert.True(t, ok)
	assert.Equal(t, 1, h.tr.count("a", EventGameStarted))

	h.m.OnDisconnect("a")
	assert.Equal(t, 0, h.m.Stats().Rooms)
}

func TestErrorsMatchByCode(t *testing.T) {
	err := newError(CodeInvalidSettings, assert.AnError)
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, ErrInvalidName)
	assert.Contains(t, err.Error(), "InvalidSettings")

	_, ok := CodeOf(ErrUnknownConnection)
	assert.False(t, ok)
}

func TestHexCodes(t *testing.T) {
	codes := NewHexCodes(6)
	for i := 0; i < 50; i++ {
		code, err := codes.Next()
		require.NoError(t, err)
		got, ok := codes.Normalize(code)
		require.True(t, ok, code)
		assert.Equal(t, code, got)
	}

	got, ok := codes.Normalize(" 7f3a2c ")
	assert.True(t, ok)
	assert.Equal(t, "7F3A2C", got)

	for _, bad := range []string{"", "7F3A2", "7F3A2CC", "ZZZZZZ"} {
		_, ok := codes.Normalize(bad)
		assert.False(t, ok, bad)
	}

	odd := NewHexCodes(5)
	code, err := odd.Next()
	require.NoError(t, err)
	assert.Len(t, code, 5)
}
