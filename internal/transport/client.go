package transport

import (
	"context"

	"github.com/danhigham/huddle/internal/domain"
)

// EventHandler receives inbound events from one transport connection.
// Calls are made sequentially from the connection's read loop.
type EventHandler interface {
	OnConnected()
	OnDisconnected(err error)
	OnMessage(msg domain.Message)
	OnTyping(conversationID, userID string)
	OnStopTyping(conversationID, userID string)
	OnPresence(userID string, online bool)
}

// Conn is a single live transport connection. Emits on a closed Conn
// return domain.ErrNotConnected.
type Conn interface {
	AnnouncePresence(ctx context.Context, userID string) error
	JoinChannel(ctx context.Context, conversationID string) error
	LeaveChannel(ctx context.Context, conversationID string) error
	Broadcast(ctx context.Context, msg domain.Message) error
	Typing(ctx context.Context, conversationID string) error
	StopTyping(ctx context.Context, conversationID string) error
	Close() error
}

// Dialer opens a Conn bound to a session.
type Dialer interface {
	Dial(ctx context.Context, session domain.Session, handler EventHandler) (Conn, error)
}
