// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeStart    = "start"
	TypeNext     = "next"
	TypeStop     = "stop"
	TypeReport   = "report"
	TypeCommands = "commands"
	TypeStats    = "stats"
	TypeBlock    = "block"
	TypeUnblock  = "unblock"
	TypeMessage  = "message"
	TypeMedia    = "media"
	TypePing     = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated = "session_created"
	TypeNotice         = "notice"
	TypeForwarded      = "forwarded"
	TypeError          = "error"
	TypePong           = "pong"
	// TypeMessage and TypeStats are also used server -> client.
)

// ---------------------------------------------------------------------------
// Envelope: used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// Profile is optional display metadata sent with start and next.
type Profile struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// StartMsg registers the client and asks for the welcome text.
type StartMsg struct {
	Type string `json:"type"`
	Profile
}

// NextMsg asks for a new partner, ending the current chat if any.
type NextMsg struct {
	Type string `json:"type"`
	Profile
}

// StopMsg ends the current chat or leaves the queue.
type StopMsg struct {
	Type string `json:"type"`
}

// ReportMsg reports the current partner to the moderator.
type ReportMsg struct {
	Type string `json:"type"`
}

// CommandsMsg asks for the command list.
type CommandsMsg struct {
	Type string `json:"type"`
}

// StatsMsg asks for aggregate counts. Moderator only.
type StatsMsg struct {
	Type string `json:"type"`
}

// BlockMsg blocks the user named by Target. Moderator only. Target is kept
// as text so a malformed id can be reported back.
type BlockMsg struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// UnblockMsg unblocks the user named by Target. Moderator only.
type UnblockMsg struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// ChatMsg is a text message for the current partner.
type ChatMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MediaMsg announces non-text content, which is always rejected.
type MediaMsg struct {
	Type string `json:"type"`
	Kind string `json:"kind"` // photo, video, voice, audio, sticker, document
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a connection is established.
type SessionCreatedMsg struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

// NoticeMsg carries any text produced by the bot itself.
type NoticeMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerChatMsg is a text message relayed from the partner.
type ServerChatMsg struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// ForwardedMsg is a past message re-delivered to the moderator.
type ForwardedMsg struct {
	Type       string `json:"type"`
	FromUserID int64  `json:"from_user_id"`
	MessageID  int64  `json:"message_id"`
	Text       string `json:"text"`
	Ts         int64  `json:"ts"`
}

// ServerStatsMsg carries aggregate counts to the moderator.
type ServerStatsMsg struct {
	Type        string `json:"type"`
	Users       int    `json:"users"`
	ActiveChats int    `json:"active_chats"`
	Reports     int    `json:"reports"`
	Queue       int    `json:"queue"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeStart:
		var m StartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeNext:
		var m NextMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStop:
		msg = StopMsg{Type: env.Type}
	case TypeReport:
		msg = ReportMsg{Type: env.Type}
	case TypeCommands:
		msg = CommandsMsg{Type: env.Type}
	case TypeStats:
		msg = StatsMsg{Type: env.Type}
	case TypeBlock:
		var m BlockMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUnblock:
		var m UnblockMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMedia:
		var m MediaMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		msg = PingMsg{Type: env.Type}
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	// UseNumber keeps 64-bit ids exact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

// Notice is a shortcut for a NoticeMsg frame.
func Notice(text string) []byte {
	out, _ := NewServerMessage(TypeNotice, NoticeMsg{Text: text})
	return out
}
