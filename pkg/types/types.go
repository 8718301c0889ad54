package types

import (
	"encoding/json"
	"time"
)

// Outbound message types understood by the relay.
// Both the current and the historical spelling of register/unregister are kept
// because relay deployments still answer to either.
const (
	MessageTypeRegister       = "register"
	MessageTypeRegisterUser   = "registerUser"
	MessageTypeUnregister     = "unregister"
	MessageTypeUnregisterUser = "unregisterUser"
	MessageTypeHeartbeat      = "heartbeat"
	MessageTypeGetUserLists   = "getUserLists"
	MessageTypeGetReactions   = "getReactions"
	MessageTypeReactionUpdate = "reaction_update"
)

// Message types that travel in both directions.
const (
	MessageTypeWarning = "warning"
	MessageTypePause   = "pause"
)

// Inbound message types emitted by the relay.
const (
	MessageTypeActiveUsers         = "activeUsers"
	MessageTypeUserLists           = "userLists"
	MessageTypeUserListsUpdate     = "userListsUpdate"
	MessageTypeUpdateReactions     = "update_reactions"
	MessageTypePong                = "pong"
	MessageTypeError               = "error"
	MessageTypeRegisterUserSuccess = "registerUserSuccess"
	MessageTypeRegisterUserError   = "registerUserError"
	MessageTypeGetUserListsError   = "getUserListsError"
)

// PresenceMessageTypes lists every snapshot spelling of the user list.
var PresenceMessageTypes = []string{
	MessageTypeActiveUsers,
	MessageTypeUserLists,
	MessageTypeUserListsUpdate,
}

// ReactionAction is the toggle direction carried by reaction_update.
type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

// Inbound is the closed set of messages the relay can deliver.
// Every concrete variant in this package implements it; Decode never returns
// anything else.
type Inbound interface {
	MessageType() string
}

// UserListMessage is a presence snapshot. The relay has shipped three shapes
// over time (flat names, data.users, payload.data.users); Raw keeps the frame
// so the presence tracker can inspect all of them.
type UserListMessage struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (m *UserListMessage) MessageType() string { return m.Type }

// ReactionsMessage carries the authoritative reaction state as a JSON-encoded string.
type ReactionsMessage struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken,omitempty"`
	Data         struct {
		Reactions string `json:"reactions"`
	} `json:"data"`
}

func (m *ReactionsMessage) MessageType() string { return m.Type }

// PauseData describes a pause announcement. Duration is in minutes and 0 means
// the current pause was stopped. Times are unix milliseconds.
type PauseData struct {
	UserID           string `json:"userId"`
	Duration         int    `json:"duration"`
	Reason           string `json:"reason,omitempty"`
	StartTime        int64  `json:"startTime"`
	EndTime          int64  `json:"endTime"`
	EndTimeFormatted string `json:"endTimeFormatted"`
}

// PauseMessage is sent by moderators and mirrored back by the relay to every client.
type PauseMessage struct {
	Type         string    `json:"type"`
	SessionToken string    `json:"sessionToken"`
	Data         PauseData `json:"data"`
}

func (m *PauseMessage) MessageType() string { return m.Type }

// WarningData is a single problem report. Timestamp is unix milliseconds.
type WarningData struct {
	UserID      string `json:"userId"`
	ProblemType string `json:"problemType"`
	Timestamp   int64  `json:"timestamp"`
}

// WarningMessage is broadcast by any participant and aggregated by moderators.
type WarningMessage struct {
	Type         string      `json:"type"`
	SessionToken string      `json:"sessionToken"`
	Data         WarningData `json:"data"`
}

func (m *WarningMessage) MessageType() string { return m.Type }

// PongMessage is the relay's liveness reply.
type PongMessage struct {
	Type string `json:"type"`
}

func (m *PongMessage) MessageType() string { return m.Type }

// ErrorMessage covers error, registerUserError and getUserListsError.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Payload *struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	} `json:"payload,omitempty"`
}

func (m *ErrorMessage) MessageType() string { return m.Type }

// Text returns whichever error description the relay filled in.
func (m *ErrorMessage) Text() string {
	if m.Payload != nil && m.Payload.Error != "" {
		return m.Payload.Error
	}
	return m.Message
}

// RegisterResultMessage acknowledges a registerUser request.
type RegisterResultMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Success bool `json:"success"`
		User    struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
	} `json:"payload"`
}

func (m *RegisterResultMessage) MessageType() string { return m.Type }

// UnknownMessage is any well-formed frame with a type this client does not model.
// It is still routed so modules can opt into new relay features.
type UnknownMessage struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (m *UnknownMessage) MessageType() string { return m.Type }

// IdentityMessage is used for register, unregister and heartbeat.
type IdentityMessage struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	SessionID string `json:"sessionId"`
}

// UnregisterUserMessage is the older unregister variant with a nested payload.
type UnregisterUserMessage struct {
	Type    string `json:"type"`
	Payload struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"payload"`
}

// RequestMessage asks the relay for a full-state snapshot.
type RequestMessage struct {
	Type string `json:"type"`
}

// ReactionUpdate is the body of a reaction_update request.
type ReactionUpdate struct {
	MessageID string         `json:"messageId"`
	Emoji     string         `json:"emoji"`
	UserID    string         `json:"userId"`
	Action    ReactionAction `json:"action"`
}

// ReactionUpdateMessage toggles one user's emoji on one message.
type ReactionUpdateMessage struct {
	Type         string         `json:"type"`
	SessionToken string         `json:"sessionToken"`
	Data         ReactionUpdate `json:"data"`
}

// PauseAnnouncement is what receivers display for an active pause.
type PauseAnnouncement struct {
	PauseData
	EndsAt time.Time `json:"endsAt"`
	Coffee bool      `json:"coffee"`
}

// PauseEnd describes the short-lived notice shown when a pause finishes.
// Stopped is set when a moderator ended the pause early. The notice is hidden
// at HideAt.
type PauseEnd struct {
	Stopped bool      `json:"stopped"`
	Reason  string    `json:"reason,omitempty"`
	HideAt  time.Time `json:"hideAt"`
}

// WarningAlert is the moderator-side view of an aggregated problem report.
type WarningAlert struct {
	ID          string    `json:"id"`
	ProblemType string    `json:"problemType"`
	Label       string    `json:"label"`
	Count       int       `json:"count"`
	Reporters   []string  `json:"reporters"`
	ReportedAt  time.Time `json:"reportedAt"`
	Message     string    `json:"message"`
}

// Event kinds emitted to the overlay.
const (
	EventPauseStarted     = "pause_started"
	EventPauseEnded       = "pause_ended"
	EventWarningRaised    = "warning_raised"
	EventWarningUpdated   = "warning_updated"
	EventWarningDismissed = "warning_dismissed"
)

// Event is one notification the overlay renders. Exactly one of the optional
// fields is set, matching Kind.
type Event struct {
	Seq         uint64             `json:"seq"`
	Kind        string             `json:"kind"`
	At          time.Time          `json:"at"`
	Pause       *PauseAnnouncement `json:"pause,omitempty"`
	PauseEnd    *PauseEnd          `json:"pauseEnd,omitempty"`
	Alert       *WarningAlert      `json:"alert,omitempty"`
	ProblemType string             `json:"problemType,omitempty"`
}

// Journal directions.
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)

// JournalEntry is one frame recorded for the lifetime of the process.
type JournalEntry struct {
	ID         int64           `json:"id"`
	InstanceID string          `json:"instance_id"`
	Direction  string          `json:"direction"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}
