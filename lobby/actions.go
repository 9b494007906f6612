package lobby

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RegisterAction makes name routable as a custom action. v may be nil.
// Built-in event names cannot be registered.
func (m *Manager) RegisterAction(name string, v Validator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerAction(name, v)
}

// UnregisterAction stops routing name. Unknown names are ignored.
func (m *Manager) UnregisterAction(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, name)
}

// Dispatch runs a custom action on behalf of connID against the game of its
// room. A non-nil error is a dispatch failure; game-level failures come back
// inside the result.
func (m *Manager) Dispatch(connID, name string, data json.RawMessage) (*ActionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatch(connID, name, data)
}

func (m *Manager) registerAction(name string, v Validator) error {
	if name == "" {
		return fmt.Errorf("lobby: action name is empty")
	}
	if isBuiltin(name) {
		return fmt.Errorf("lobby: action %q shadows a built-in event", name)
	}
	m.actions[name] = ActionSpec{Name: name, Validate: v}
	return nil
}

func (m *Manager) dispatch(connID, name string, data json.RawMessage) (*ActionResult, error) {
	p, err := m.party(connID)
	if err != nil {
		return nil, err
	}
	room, err := m.roomOf(p)
	if err != nil {
		return nil, err
	}
	if room.Game == nil {
		return nil, ErrGameNotStarted
	}
	spec, ok := m.actions[name]
	if !ok {
		return nil, ErrMissingHandler
	}
	if err := spec.Validate.check(data); err != nil {
		return nil, newError(CodeInvalidInput, err)
	}
	h, ok := room.handlers[name]
	if !ok {
		return nil, ErrMissingHandler
	}
	return invoke(h, ActionArgs{PlayerID: p.PublicID, Data: data})
}

// invoke calls h, converting a panic into an Unhandled error.
func invoke(h ActionHandler, args ActionArgs) (res *ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, newError(CodeUnhandled, fmt.Errorf("action handler panicked: %v", r))
		}
	}()
	return h(args), nil
}

func (m *Manager) actionNames() []string {
	names := make([]string, 0, len(m.actions))
	for name := range m.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
