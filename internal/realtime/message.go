// Package realtime implements the notification channel client: a single
// websocket connection with outbound queuing, an AUTH handshake and
// exponential-backoff reconnection.
package realtime

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// MessageType tags every frame on the wire.
type MessageType string

// Known message types.
const (
	TypeAuth                  MessageType = "AUTH"
	TypeConnectionEstablished MessageType = "CONNECTION_ESTABLISHED"
	TypeAuthSuccess           MessageType = "AUTH_SUCCESS"
	TypeAuthUpdate            MessageType = "AUTH_UPDATE"
)

// AuthUpdateAction describes what an AUTH_UPDATE asks the receiver to do.
type AuthUpdateAction string

// AUTH_UPDATE actions.
const (
	ActionSessionExpired     AuthUpdateAction = "SESSION_EXPIRED"
	ActionPermissionsUpdated AuthUpdateAction = "PERMISSIONS_UPDATED"
)

// ErrMalformedMessage marks inbound payloads that cannot be decoded.
var ErrMalformedMessage = errors.New("realtime: malformed message")

// Message is the closed set of frames the client understands, plus Unknown
// for forward compatibility.
type Message interface {
	MessageType() MessageType
}

// Auth identifies the session to the endpoint.
type Auth struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Timestamp int64  `json:"timestamp"`
}

// ConnectionEstablished is the endpoint's greeting.
type ConnectionEstablished struct {
	ClientID string `json:"clientId,omitempty"`
}

// AuthSuccess acknowledges an Auth frame.
type AuthSuccess struct {
	UserID string `json:"userId,omitempty"`
}

// AuthUpdate pushes an authorization change for one user.
type AuthUpdate struct {
	UserID      string           `json:"userId"`
	Action      AuthUpdateAction `json:"action"`
	Permissions []string         `json:"permissions,omitempty"`
}

// Unknown carries any frame with an unrecognised type verbatim.
type Unknown struct {
	Type MessageType
	Raw  json.RawMessage
}

func (Auth) MessageType() MessageType                  { return TypeAuth }
func (ConnectionEstablished) MessageType() MessageType { return TypeConnectionEstablished }
func (AuthSuccess) MessageType() MessageType           { return TypeAuthSuccess }
func (AuthUpdate) MessageType() MessageType            { return TypeAuthUpdate }
func (u Unknown) MessageType() MessageType             { return u.Type }

// Encode renders m as a JSON object with a "type" discriminator.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("realtime: nil message")
	}
	if u, ok := m.(Unknown); ok {
		if len(u.Raw) > 0 {
			return append([]byte(nil), u.Raw...), nil
		}
		return json.Marshal(map[string]MessageType{"type": u.Type})
	}
	if m.MessageType() == "" {
		return nil, errors.New("realtime: message type required")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("realtime: encode %s: %w", m.MessageType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("realtime: encode %s: %w", m.MessageType(), err)
	}
	typ, err := json.Marshal(m.MessageType())
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}

// Decode parses an inbound frame. Payloads that are not JSON objects with a
// non-empty "type" fail with ErrMalformedMessage.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	switch head.Type {
	case TypeAuth:
		var m Auth
		return decodeInto(data, &m)
	case TypeConnectionEstablished:
		var m ConnectionEstablished
		return decodeInto(data, &m)
	case TypeAuthSuccess:
		var m AuthSuccess
		return decodeInto(data, &m)
	case TypeAuthUpdate:
		var m AuthUpdate
		if _, err := decodeInto(data, &m); err != nil {
			return nil, err
		}
		if m.UserID == "" {
			return nil, fmt.Errorf("%w: AUTH_UPDATE without userId", ErrMalformedMessage)
		}
		return m, nil
	default:
		return Unknown{Type: head.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

func decodeInto[T Message](data []byte, m *T) (Message, error) {
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return *m, nil
}
