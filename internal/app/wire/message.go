/*
Package wire defines the messages exchanged between a roster client and the registrar.

Every frame on the connection is an Envelope: a message type plus a raw JSON payload
whose shape depends on the type.
*/
package wire

import (
	"encoding/json"
	"fmt"
)

// MessageType names a message on the wire.
type MessageType string

const (
	// TypeRegisterUser is sent by a client to ask the registrar to confirm a provisional person.
	TypeRegisterUser MessageType = "register-user"

	// TypeUserRegistered is sent by the registrar once a person has been assigned a server id.
	TypeUserRegistered MessageType = "user-registered"

	// TypeLeaveUser is sent by a client to withdraw a person it registered earlier.
	TypeLeaveUser MessageType = "leave-user"

	// TypeListChange carries the full list of people currently online.
	TypeListChange MessageType = "listchange"

	// TypeError reports a request the registrar refused.
	TypeError MessageType = "error"
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(msgType MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// Presentation is the opaque bag of display attributes attached to a person.
type Presentation map[string]any

// DefaultPresentation is used for a person registered without display attributes.
func DefaultPresentation() Presentation {
	return Presentation{
		"top":              25,
		"left":             25,
		"background-color": "#8f8",
	}
}

// RegisterUserPayload asks for a provisional person to be registered.
type RegisterUserPayload struct {
	ClientID     string       `json:"clientId"`
	Name         string       `json:"name"`
	Presentation Presentation `json:"presentation,omitempty"`
}

// UserRegisteredPayload confirms a registration. ClientID echoes the provisional id.
type UserRegisteredPayload struct {
	ClientID     string       `json:"clientId"`
	ServerID     string       `json:"serverId"`
	Presentation Presentation `json:"presentation,omitempty"`
	Token        string       `json:"token,omitempty"`
}

// LeaveUserPayload withdraws a registered person.
type LeaveUserPayload struct {
	ServerID string `json:"serverId"`
}

// PersonPayload describes one online person in a list change.
type PersonPayload struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Presentation Presentation `json:"presentation,omitempty"`
}

// ErrorPayload describes why the registrar refused a request.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DecodeUserRegistered accepts either a single confirmation object or an array of them
// and returns the first confirmation.
func DecodeUserRegistered(raw json.RawMessage) (UserRegisteredPayload, error) {
	var list []UserRegisteredPayload
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return UserRegisteredPayload{}, fmt.Errorf("empty %s list", TypeUserRegistered)
		}
		return list[0], nil
	}

	var single UserRegisteredPayload
	if err := json.Unmarshal(raw, &single); err != nil {
		return UserRegisteredPayload{}, fmt.Errorf("decode %s payload: %w", TypeUserRegistered, err)
	}
	return single, nil
}
