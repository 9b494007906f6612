package lobby

import "errors"

const (
	responseSuffix = "_response"
	errorSuffix    = "_error"
)

// Transport is the outbound half of the channel-multiplexing transport.
// Implementations must not block: every call happens while room state is locked.
type Transport interface {
	Send(connID, event string, payload any)
	BroadcastToGroup(group, event string, payload any)
	JoinGroup(connID, group string)
	LeaveGroup(connID, group string)
}

// ErrorEnvelope is the payload of every "<query>_error" message.
type ErrorEnvelope struct {
	Code string `json:"code"`
	Args any    `json:"args,omitempty"`
}

// ResponseEvent returns the success event name for query.
func ResponseEvent(query string) string { return query + responseSuffix }

// ErrorEvent returns the failure event name for query.
func ErrorEvent(query string) string { return query + errorSuffix }

// reply delivers a success envelope scoped to query.
func (m *Manager) reply(connID, query string, payload any) {
	m.transport.Send(connID, ResponseEvent(query), payload)
}

// replyError logs err and delivers an error envelope scoped to query. Errors
// that carry no code are reported as Unhandled.
func (m *Manager) replyError(connID, query string, err error) {
	var e *Error
	if !errors.As(err, &e) {
		m.log.Error().Err(err).Str("conn_id", connID).Str("query", query).Msg("request failed")
		m.transport.Send(connID, ErrorEvent(query), ErrorEnvelope{Code: string(CodeUnhandled)})
		return
	}
	m.log.Info().Err(err).Str("conn_id", connID).Str("query", query).Msg("request rejected")
	m.transport.Send(connID, ErrorEvent(query), ErrorEnvelope{Code: string(e.Code), Args: e.Args})
}

// replyAction turns a game handler result into an envelope.
func (m *Manager) replyAction(connID, query string, res *ActionResult) {
	switch {
	case res == nil:
		m.reply(connID, query, nil)
	case res.Error != nil:
		m.log.Debug().Str("conn_id", connID).Str("query", query).Str("code", res.Error.Code).Msg("action failed")
		m.transport.Send(connID, ErrorEvent(query), ErrorEnvelope{Code: res.Error.Code, Args: res.Error.Args})
	default:
		m.reply(connID, query, res.Response)
	}
}
