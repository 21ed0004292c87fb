package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/danhigham/huddle/internal/domain"
	"github.com/danhigham/huddle/internal/protocol"
)

const (
	maxReadBytes        = 1 << 20 // 1MiB
	defaultWriteTimeout = 5 * time.Second
)

// WebSocketDialer dials the realtime endpoint with the session's bearer token.
type WebSocketDialer struct {
	URL          string
	HTTPClient   *http.Client
	WriteTimeout time.Duration
	Logger       *zap.Logger

	now func() time.Time
}

func NewWebSocketDialer(url string, logger *zap.Logger) *WebSocketDialer {
	return &WebSocketDialer{
		URL:          url,
		WriteTimeout: defaultWriteTimeout,
		Logger:       logger,
	}
}

// Dial opens the connection and starts its read loop. The context only
// bounds the handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, session domain.Session, handler EventHandler) (Conn, error) {
	if handler == nil {
		return nil, errors.New("transport: nil event handler")
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+session.Token)

	conn, resp, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		Subprotocols: []string{protocol.Subprotocol},
		HTTPHeader:   h,
		HTTPClient:   d.HTTPClient,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", d.URL, domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	conn.SetReadLimit(maxReadBytes)

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	now := d.now
	if now == nil {
		now = time.Now
	}

	c := &wsConn{
		conn:         conn,
		handler:      handler,
		logger:       logger.With(zap.String("user_id", session.UserID)),
		writeTimeout: writeTimeout,
		now:          now,
		done:         make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

type wsConn struct {
	conn         *websocket.Conn
	handler      EventHandler
	logger       *zap.Logger
	writeTimeout time.Duration
	now          func() time.Time

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (c *wsConn) AnnouncePresence(ctx context.Context, userID string) error {
	return c.emit(ctx, protocol.TypePresenceAnnounce, protocol.PresenceAnnouncePayload{UserID: userID})
}

func (c *wsConn) JoinChannel(ctx context.Context, conversationID string) error {
	return c.emit(ctx, protocol.TypeChannelJoin, protocol.ChannelPayload{ConversationID: conversationID})
}

func (c *wsConn) LeaveChannel(ctx context.Context, conversationID string) error {
	return c.emit(ctx, protocol.TypeChannelLeave, protocol.ChannelPayload{ConversationID: conversationID})
}

func (c *wsConn) Broadcast(ctx context.Context, msg domain.Message) error {
	return c.emit(ctx, protocol.TypeMessageBroadcast, protocol.FromMessage(msg))
}

func (c *wsConn) Typing(ctx context.Context, conversationID string) error {
	return c.emit(ctx, protocol.TypeTypingStart, protocol.TypingPayload{ConversationID: conversationID})
}

func (c *wsConn) StopTyping(ctx context.Context, conversationID string) error {
	return c.emit(ctx, protocol.TypeTypingStop, protocol.TypingPayload{ConversationID: conversationID})
}

// Close closes the socket and waits for the read loop to exit, so no event
// is delivered after it returns. Closing twice is a no-op.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// The peer may already be gone; a failed close handshake leaves nothing to clean up.
	if err := c.conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		c.logger.Debug("close websocket", zap.Error(err))
	}
	<-c.done
	return nil
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *wsConn) emit(ctx context.Context, typ string, payload any) error {
	if c.isClosed() {
		return domain.ErrNotConnected
	}

	env, err := protocol.New(typ, c.now(), payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("write %s: %w", typ, err)
	}
	return nil
}

func (c *wsConn) readLoop() {
	defer close(c.done)

	for {
		mt, data, err := c.conn.Read(context.Background())
		if err != nil {
			if c.isClosed() {
				return
			}
			// Marked closed before the handler runs: a Close issued from
			// inside OnDisconnected must not wait on this goroutine.
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			c.logger.Warn("websocket read failed", zap.Error(err))
			c.handler.OnDisconnected(err)
			return
		}

		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			c.logger.Debug("ignoring frame", zap.String("type", mt.String()))
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("bad json from server", zap.Error(err))
			continue
		}
		if err := env.Validate(); err != nil {
			c.logger.Warn("bad envelope from server", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *wsConn) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeConnected:
		c.handler.OnConnected()

	case protocol.TypeMessageReceived:
		var p protocol.MessagePayload
		if err := env.Decode(&p); err != nil {
			c.logger.Warn("dropping message", zap.Error(err))
			return
		}
		c.handler.OnMessage(p.Message())

	case protocol.TypeTypingStart, protocol.TypeTypingStop:
		var p protocol.TypingPayload
		if err := env.Decode(&p); err != nil {
			c.logger.Warn("dropping typing event", zap.Error(err))
			return
		}
		if env.Type == protocol.TypeTypingStart {
			c.handler.OnTyping(p.ConversationID, p.UserID)
		} else {
			c.handler.OnStopTyping(p.ConversationID, p.UserID)
		}

	case protocol.TypePresenceChanged:
		var p protocol.PresenceChangedPayload
		if err := env.Decode(&p); err != nil {
			c.logger.Warn("dropping presence event", zap.Error(err))
			return
		}
		c.handler.OnPresence(p.UserID, p.Online())

	case protocol.TypeError:
		var p protocol.ErrorPayload
		_ = env.Decode(&p)
		c.logger.Warn("server error", zap.String("code", p.Code), zap.String("message", p.Message))

	default:
		c.logger.Debug("ignoring envelope", zap.String("type", env.Type))
	}
}
