// Package protocol defines the realtime envelope exchanged with the chat
// server over the WebSocket transport.
package protocol

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danhigham/huddle/internal/domain"
)

// Version is embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated during the WebSocket handshake.
const Subprotocol = "huddle.realtime.v1"

// Client -> server.
const (
	TypePresenceAnnounce = "presence.announce"
	TypeChannelJoin      = "channel.join"
	TypeChannelLeave     = "channel.leave"
	TypeMessageBroadcast = "message.broadcast"
)

// Server -> client.
const (
	TypeConnected       = "connected"
	TypeMessageReceived = "message.received"
	TypePresenceChanged = "presence.changed"
	TypeError           = "error"
)

// Both directions.
const (
	TypeTypingStart = "typing.start"
	TypeTypingStop  = "typing.stop"
)

type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation of an inbound envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	switch e.Type {
	case TypePresenceAnnounce,
		TypeChannelJoin,
		TypeChannelLeave,
		TypeMessageBroadcast,
		TypeConnected,
		TypeMessageReceived,
		TypePresenceChanged,
		TypeError,
		TypeTypingStart,
		TypeTypingStop:
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// New builds an envelope with a fresh ULID and the given payload.
func New(typ string, now time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return Envelope{}, fmt.Errorf("generate envelope id: %w", err)
	}
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      id.String(),
		TS:      now.UTC(),
		Payload: raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Type, err)
	}
	return nil
}

// ---- Payloads ----

type PresenceAnnouncePayload struct {
	UserID string `json:"user_id"`
}

type ChannelPayload struct {
	ConversationID string `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
}

type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type PresenceChangedPayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// Online reports whether the status means the user is reachable.
func (p PresenceChangedPayload) Online() bool {
	return p.Status == "online"
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func FromMessage(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

func (p MessagePayload) Message() domain.Message {
	return domain.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		SenderName:     p.SenderName,
		Content:        p.Content,
		CreatedAt:      p.CreatedAt,
	}
}
