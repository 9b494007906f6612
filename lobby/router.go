package lobby

import (
	"encoding/json"
	"fmt"
)

// Built-in client events.
const (
	EventCreateRoom      = "createRoom"
	EventJoinRoom        = "joinRoom"
	EventLeaveRoom       = "leaveRoom"
	EventGetRoom         = "getRoom"
	EventGetParty        = "getParty"
	EventSetParty        = "setParty"
	EventSetRoomSettings = "setRoomSettings"
	EventStartGame       = "startGame"
)

func isBuiltin(event string) bool {
	switch event {
	case EventCreateRoom, EventJoinRoom, EventLeaveRoom, EventGetRoom,
		EventGetParty, EventSetParty, EventSetRoomSettings, EventStartGame:
		return true
	}
	return false
}

type createRoomRequest struct {
	Name     string          `json:"name"`
	Profile  json.RawMessage `json:"profile"`
	Settings json.RawMessage `json:"settings"`
}

type joinRoomRequest struct {
	Name    string          `json:"name"`
	Profile json.RawMessage `json:"profile"`
	Code    string          `json:"code"`
}

type setPartyRequest struct {
	Name    string          `json:"name"`
	Profile json.RawMessage `json:"profile"`
}

type setRoomSettingsRequest struct {
	Settings json.RawMessage `json:"settings"`
}

// OnConnect is called by the transport when a connection opens.
func (m *Manager) OnConnect(connID, resumeToken string) {
	m.Connect(connID, resumeToken)
}

// OnDisconnect is called by the transport when a connection closes.
func (m *Manager) OnDisconnect(connID string) {
	m.Disconnect(connID)
}

// OnMessage routes one inbound message and replies scoped to its event. The
// reply is sent before the lock is released, so it is ordered with respect
// to any broadcast the operation produced.
func (m *Manager) OnMessage(connID, event string, data json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.replyError(connID, event, fmt.Errorf("panic handling %q: %v", event, r))
		}
	}()

	switch event {
	case EventCreateRoom:
		var req createRoomRequest
		if err := decode(data, &req); err != nil {
			m.replyError(connID, event, err)
			return
		}
		v, err := m.createRoom(connID, req.Name, req.Profile, req.Settings)
		m.respond(connID, event, v, err)

	case EventJoinRoom:
		var req joinRoomRequest
		if err := decode(data, &req); err != nil {
			m.replyError(connID, event, err)
			return
		}
		v, err := m.joinRoom(connID, req.Name, req.Profile, req.Code)
		m.respond(connID, event, v, err)

	case EventLeaveRoom:
		m.respond(connID, event, nil, m.leaveRoom(connID))

	case EventGetRoom:
		v, err := m.getRoom(connID)
		m.respond(connID, event, v, err)

	case EventGetParty:
		p, err := m.party(connID)
		if err != nil {
			m.replyError(connID, event, err)
			return
		}
		m.reply(connID, event, p.view())

	case EventSetParty:
		var req setPartyRequest
		if err := decode(data, &req); err != nil {
			m.replyError(connID, event, err)
			return
		}
		v, err := m.setParty(connID, req.Name, req.Profile)
		m.respond(connID, event, v, err)

	case EventSetRoomSettings:
		var req setRoomSettingsRequest
		if err := decode(data, &req); err != nil {
			m.replyError(connID, event, err)
			return
		}
		v, err := m.setRoomSettings(connID, req.Settings)
		m.respond(connID, event, v, err)

	case EventStartGame:
		v, err := m.startGame(connID)
		m.respond(connID, event, v, err)

	default:
		if _, ok := m.actions[event]; !ok {
			m.replyError(connID, event, ErrMissingHandler)
			return
		}
		res, err := m.dispatch(connID, event, data)
		if err != nil {
			m.replyError(connID, event, err)
			return
		}
		m.replyAction(connID, event, res)
	}
}

func (m *Manager) respond(connID, query string, payload any, err error) {
	if err != nil {
		m.replyError(connID, query, err)
		return
	}
	m.reply(connID, query, payload)
}

// decode unmarshals a built-in request body. An absent body decodes to the
// zero value.
func decode(data json.RawMessage, v any) error {
	if isEmpty(data) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newError(CodeInvalidInput, err)
	}
	return nil
}
