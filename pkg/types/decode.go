package types

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// PeekType returns the frame's type discriminator, or "" when absent.
func PeekType(raw []byte) string {
	return gjson.GetBytes(raw, "type").String()
}

// Decode turns one relay frame into its concrete variant.
// ARCHITECTURAL DISCOVERY: The discriminator is peeked with gjson before any
// struct unmarshalling so unknown types cost a single scan and never fail.
func Decode(raw []byte) (Inbound, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedFrame
	}
	typ := gjson.GetBytes(raw, "type")
	if !typ.Exists() || typ.Type != gjson.String || typ.Str == "" {
		return nil, ErrMissingType
	}

	var msg Inbound
	switch typ.Str {
	case MessageTypeActiveUsers, MessageTypeUserLists, MessageTypeUserListsUpdate:
		return &UserListMessage{Type: typ.Str, Raw: append(json.RawMessage(nil), raw...)}, nil
	case MessageTypeUpdateReactions:
		msg = &ReactionsMessage{}
	case MessageTypePause:
		msg = &PauseMessage{}
	case MessageTypeWarning:
		msg = &WarningMessage{}
	case MessageTypePong:
		msg = &PongMessage{}
	case MessageTypeError, MessageTypeRegisterUserError, MessageTypeGetUserListsError:
		msg = &ErrorMessage{}
	case MessageTypeRegisterUserSuccess:
		msg = &RegisterResultMessage{}
	default:
		return &UnknownMessage{Type: typ.Str, Raw: append(json.RawMessage(nil), raw...)}, nil
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, typ.Str, err)
	}
	return msg, nil
}

// NewIdentityMessage builds register, unregister and heartbeat frames.
func NewIdentityMessage(msgType, username, sessionID string) *IdentityMessage {
	return &IdentityMessage{Type: msgType, Username: username, SessionID: sessionID}
}

// NewUnregisterUserMessage builds the nested-payload unregister variant.
func NewUnregisterUserMessage(id, name string) *UnregisterUserMessage {
	m := &UnregisterUserMessage{Type: MessageTypeUnregisterUser}
	m.Payload.ID = id
	m.Payload.Name = name
	return m
}

// NewRequest builds a snapshot request such as getUserLists or getReactions.
func NewRequest(msgType string) *RequestMessage {
	return &RequestMessage{Type: msgType}
}

// NewReactionUpdate builds a reaction_update frame.
func NewReactionUpdate(sessionToken string, update ReactionUpdate) *ReactionUpdateMessage {
	return &ReactionUpdateMessage{Type: MessageTypeReactionUpdate, SessionToken: sessionToken, Data: update}
}

// NewPauseMessage builds a pause frame.
func NewPauseMessage(sessionToken string, data PauseData) *PauseMessage {
	return &PauseMessage{Type: MessageTypePause, SessionToken: sessionToken, Data: data}
}

// NewWarningMessage builds a warning frame.
func NewWarningMessage(sessionToken string, data WarningData) *WarningMessage {
	return &WarningMessage{Type: MessageTypeWarning, SessionToken: sessionToken, Data: data}
}
