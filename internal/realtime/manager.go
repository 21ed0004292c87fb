// Package realtime coordinates one chat session: the transport connection,
// the active conversation, outgoing sends, typing debounce and the unread
// notification queue.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/danhigham/huddle/internal/domain"
	"github.com/danhigham/huddle/internal/state"
	"github.com/danhigham/huddle/internal/transport"
)

// ErrSuperseded is returned by Connect when a later Connect or Disconnect
// replaced the connection while it was dialing.
var ErrSuperseded = errors.New("connect superseded")

// API is the subset of the REST client the manager needs.
type API interface {
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	FetchMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, conversationID, content string) (domain.Message, error)
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMetrics registers the manager's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = newMetrics(reg) }
}

// OnSessionEnded is called after an unauthorized response tore the session down.
func OnSessionEnded(f func(cause error)) Option {
	return func(m *Manager) { m.onSessionEnded = f }
}

// OnNotification is called for every notification queued for a conversation
// that is not being viewed.
func OnNotification(f func(domain.Notification)) Option {
	return func(m *Manager) { m.onNotification = f }
}

type typingState struct {
	active bool
	last   time.Time
	timer  Timer // the pending stop check, replaced on every keystroke
}

// Manager is safe for concurrent use. Every operation and every inbound
// transport event runs under one mutex; the history fetch and the send
// persist run with it released.
type Manager struct {
	api    API
	dialer transport.Dialer
	store  *state.Store

	logger         *zap.Logger
	clock          Clock
	metrics        *metrics
	onSessionEnded func(error)
	onNotification func(domain.Notification)

	mu         sync.Mutex
	after      []func()
	session    *domain.Session
	conn       transport.Conn
	connGen    uint64
	connState  domain.ConnState
	active     string
	selectGen  uint64
	typing     map[string]*typingState
	refreshing bool
}

func New(api API, dialer transport.Dialer, store *state.Store, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		dialer: dialer,
		store:  store,
		logger: zap.NewNop(),
		clock:  SystemClock{},
		typing: make(map[string]*typingState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = newMetrics(nil)
	}
	return m
}

// unlock releases the mutex, then runs the work queued with afterUnlock.
func (m *Manager) unlock() {
	after := m.after
	m.after = nil
	m.mu.Unlock()
	for _, f := range after {
		f()
	}
}

func (m *Manager) afterUnlock(f func()) {
	m.after = append(m.after, f)
}

// Connect dials a transport connection bound to session and announces
// presence. A live connection is closed and replaced.
func (m *Manager) Connect(ctx context.Context, session domain.Session) error {
	if !session.Valid() {
		return domain.ErrNoSession
	}

	m.mu.Lock()
	m.dropConnLocked()
	gen := m.connGen
	m.session = &session
	m.store.SetSelf(session.UserID)
	m.setConnStateLocked(domain.ConnConnecting)
	m.unlock()

	conn, err := m.dialer.Dial(ctx, session, &connHandler{m: m, gen: gen})

	m.mu.Lock()
	defer m.unlock()

	if gen != m.connGen {
		if err == nil {
			m.afterUnlock(func() { _ = conn.Close() })
		}
		return ErrSuperseded
	}
	if err != nil {
		m.setConnStateLocked(domain.ConnDisconnected)
		m.logger.Warn("connect failed", zap.String("user_id", session.UserID), zap.Error(err))
		m.checkAuthLocked(err)
		return fmt.Errorf("connect: %w", err)
	}

	m.conn = conn
	m.setConnStateLocked(domain.ConnConnected)
	m.logger.Info("connected", zap.String("user_id", session.UserID))

	m.emitLocked("presence.announce", func(c transport.Conn) error {
		return c.AnnouncePresence(ctx, session.UserID)
	})
	if m.active != "" {
		id := m.active
		m.emitLocked("channel.join", func(c transport.Conn) error {
			return c.JoinChannel(ctx, id)
		})
	}
	return nil
}

// Disconnect closes the connection and clears typing state. It keeps the
// session and the active view. Calling it again is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.unlock()
	m.dropConnLocked()
	m.setConnStateLocked(domain.ConnDisconnected)
}

// dropConnLocked invalidates the current connection's handler, schedules its
// close and forgets all typing state.
func (m *Manager) dropConnLocked() {
	m.connGen++
	if conn := m.conn; conn != nil {
		m.conn = nil
		m.afterUnlock(func() {
			if err := conn.Close(); err != nil {
				m.logger.Debug("close transport", zap.Error(err))
			}
		})
	}
	m.resetTypingLocked()
	m.store.ClearPeerTyping()
}

func (m *Manager) resetTypingLocked() {
	for _, ts := range m.typing {
		if ts.timer != nil {
			ts.timer.Stop()
		}
	}
	clear(m.typing)
}

func (m *Manager) setConnStateLocked(s domain.ConnState) {
	m.connState = s
	m.metrics.setConnState(s)
	m.store.SetConnState(s)
}

func (m *Manager) State() domain.ConnState {
	m.mu.Lock()
	defer m.unlock()
	return m.connState
}

func (m *Manager) Session() (domain.Session, bool) {
	m.mu.Lock()
	defer m.unlock()
	if m.session == nil {
		return domain.Session{}, false
	}
	return *m.session, true
}

func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.unlock()
	return m.active
}

// emitLocked runs f against the live connection. Without one the emit is
// dropped; transport errors are logged, never returned.
func (m *Manager) emitLocked(op string, f func(transport.Conn) error) {
	if m.conn == nil || m.connState != domain.ConnConnected {
		m.logger.Debug("dropping emit while disconnected", zap.String("op", op))
		return
	}
	if err := f(m.conn); err != nil {
		m.logger.Warn("emit failed", zap.String("op", op), zap.Error(err))
	}
}

// checkAuthLocked ends the session if err is an unauthorized response.
func (m *Manager) checkAuthLocked(err error) bool {
	if !errors.Is(err, domain.ErrUnauthorized) {
		return false
	}
	if m.session == nil {
		return true
	}
	m.logger.Warn("session rejected by server, logging out", zap.Error(err))
	m.metrics.sessionEnds.Inc()

	m.dropConnLocked()
	m.setConnStateLocked(domain.ConnDisconnected)
	m.session = nil
	m.active = ""
	m.selectGen++
	m.store.Reset()

	if f := m.onSessionEnded; f != nil {
		m.afterUnlock(func() { f(err) })
	}
	return true
}

// SelectConversation makes id the active view: it leaves the previous
// channel, joins the new one, clears the conversation's notifications and
// loads its history. An empty id clears the active view.
func (m *Manager) SelectConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.session == nil {
		m.unlock()
		return domain.ErrNoSession
	}

	prev := m.active
	m.selectGen++
	gen := m.selectGen

	if prev != "" && prev != id {
		m.stopTypingLocked(ctx, prev)
		m.emitLocked("channel.leave", func(c transport.Conn) error {
			return c.LeaveChannel(ctx, prev)
		})
	}
	m.active = id
	m.store.SetActive(id)
	if id == "" {
		m.unlock()
		return nil
	}
	if prev != id {
		m.emitLocked("channel.join", func(c transport.Conn) error {
			return c.JoinChannel(ctx, id)
		})
	}
	m.unlock()

	history, err := m.api.FetchMessages(ctx, id)

	m.mu.Lock()
	defer m.unlock()

	if err != nil && m.checkAuthLocked(err) {
		return fmt.Errorf("load history: %w", err)
	}
	if gen != m.selectGen {
		m.metrics.staleHistories.Inc()
		m.logger.Debug("discarding stale history", zap.String("conversation_id", id))
		return nil
	}
	if err != nil {
		m.store.SetLoading(false)
		m.logger.Error("load history failed", zap.String("conversation_id", id), zap.Error(err))
		return fmt.Errorf("load history: %w", err)
	}
	m.store.ApplyHistory(id, history)
	return nil
}

// SendMessage persists content in the active conversation, broadcasts the
// canonical message and appends it locally. Nothing is broadcast or appended
// when persisting fails.
func (m *Manager) SendMessage(ctx context.Context, id, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, domain.ErrEmptyContent
	}

	m.mu.Lock()
	switch {
	case m.session == nil:
		m.unlock()
		return domain.Message{}, domain.ErrNoSession
	case id == "":
		m.unlock()
		return domain.Message{}, domain.ErrNoConversation
	case id != m.active:
		m.unlock()
		return domain.Message{}, domain.ErrNotActive
	}
	m.emitStopTypingLocked(ctx, id)
	m.unlock()

	msg, err := m.api.SendMessage(ctx, id, content)

	m.mu.Lock()
	defer m.unlock()

	if err != nil {
		m.metrics.sends.WithLabelValues("error").Inc()
		m.checkAuthLocked(err)
		m.logger.Error("send failed", zap.String("conversation_id", id), zap.Error(err))
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}
	m.metrics.sends.WithLabelValues("ok").Inc()

	m.emitLocked("message.broadcast", func(c transport.Conn) error {
		return c.Broadcast(ctx, msg)
	})
	m.store.AppendMessage(msg)
	m.store.BumpConversation(msg)
	return msg, nil
}

// TypingHandler is called on every input change in conversation id. The
// first keystroke of a burst emits "typing"; each keystroke reschedules the
// check that emits "stop typing" once domain.TypingTimeout has passed since
// the last keystroke.
func (m *Manager) TypingHandler(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.unlock()

	if id == "" || m.conn == nil || m.connState != domain.ConnConnected {
		return
	}

	ts := m.typing[id]
	if ts == nil {
		ts = &typingState{}
		m.typing[id] = ts
	}
	ts.last = m.clock.Now()
	if !ts.active {
		ts.active = true
		m.metrics.typingEmits.WithLabelValues("start").Inc()
		m.emitLocked("typing.start", func(c transport.Conn) error {
			return c.Typing(ctx, id)
		})
	}
	if ts.timer != nil {
		ts.timer.Stop()
	}
	ts.timer = m.clock.AfterFunc(domain.TypingTimeout, func() {
		m.typingTimeout(id)
	})
}

func (m *Manager) typingTimeout(id string) {
	m.mu.Lock()
	defer m.unlock()

	ts := m.typing[id]
	if ts == nil || !ts.active {
		return
	}
	if m.clock.Now().Sub(ts.last) < domain.TypingTimeout {
		return
	}
	m.stopTypingLocked(context.Background(), id)
}

// stopTypingLocked emits "stop typing" only if a burst is in progress.
func (m *Manager) stopTypingLocked(ctx context.Context, id string) {
	ts := m.typing[id]
	if ts == nil || !ts.active {
		return
	}
	m.emitStopTypingLocked(ctx, id)
}

// emitStopTypingLocked emits "stop typing" unconditionally and ends any
// burst in progress.
func (m *Manager) emitStopTypingLocked(ctx context.Context, id string) {
	if ts := m.typing[id]; ts != nil {
		if ts.timer != nil {
			ts.timer.Stop()
		}
		delete(m.typing, id)
	}
	if m.conn == nil {
		return
	}
	m.metrics.typingEmits.WithLabelValues("stop").Inc()
	m.emitLocked("typing.stop", func(c transport.Conn) error {
		return c.StopTyping(ctx, id)
	})
}

// Typing reports whether a local typing burst is in progress for id.
func (m *Manager) Typing(id string) bool {
	m.mu.Lock()
	defer m.unlock()
	ts := m.typing[id]
	return ts != nil && ts.active
}

// OnPeerMessage routes an inbound message into the active list or the
// notification queue. Redelivered messages are ignored.
func (m *Manager) OnPeerMessage(msg domain.Message) {
	m.mu.Lock()
	defer m.unlock()
	m.onPeerMessageLocked(msg)
}

func (m *Manager) onPeerMessageLocked(msg domain.Message) {
	if msg.ID == "" || msg.ConversationID == "" {
		m.logger.Warn("dropping peer message without ids", zap.String("message_id", msg.ID))
		return
	}

	if msg.ConversationID == m.active {
		if m.store.AppendMessage(msg) {
			m.store.BumpConversation(msg)
			m.metrics.peerMessages.WithLabelValues(routeActive).Inc()
		} else {
			m.metrics.peerMessages.WithLabelValues(routeDuplicate).Inc()
		}
		return
	}

	known := m.store.BumpConversation(msg)
	if !known {
		m.refreshConversationsLocked()
	}

	if m.session != nil && msg.SenderID == m.session.UserID {
		m.metrics.peerMessages.WithLabelValues(routeOwn).Inc()
		return
	}

	conv, ok := m.store.Conversation(msg.ConversationID)
	if !ok {
		conv = domain.Conversation{ID: msg.ConversationID}
	}
	n := domain.Notification{Message: msg, Conversation: conv}
	if !m.store.PushNotification(n) {
		m.metrics.peerMessages.WithLabelValues(routeDuplicate).Inc()
		return
	}
	m.metrics.peerMessages.WithLabelValues(routeNotification).Inc()
	if f := m.onNotification; f != nil {
		m.afterUnlock(func() { f(n) })
	}
}

// refreshConversationsLocked reloads the conversation list in the
// background, at most one load at a time.
func (m *Manager) refreshConversationsLocked() {
	if m.refreshing || m.session == nil {
		return
	}
	m.refreshing = true
	m.afterUnlock(func() {
		go func() {
			if err := m.RefreshConversations(context.Background()); err != nil {
				m.logger.Warn("refresh conversations", zap.Error(err))
			}
		}()
	})
}

// RefreshConversations reloads the conversation list from the API. A list
// that arrives after the session changed to another identity is discarded; a
// reconnect with the same session keeps it.
func (m *Manager) RefreshConversations(ctx context.Context) error {
	m.mu.Lock()
	if m.session == nil {
		m.refreshing = false
		m.unlock()
		return domain.ErrNoSession
	}
	session := *m.session
	m.refreshing = true
	m.unlock()

	convs, err := m.api.ListConversations(ctx)

	m.mu.Lock()
	defer m.unlock()
	m.refreshing = false

	if err != nil {
		m.checkAuthLocked(err)
		return fmt.Errorf("list conversations: %w", err)
	}
	if m.session == nil {
		return domain.ErrNoSession
	}
	if *m.session != session {
		m.logger.Debug("discarding conversation list of a previous session")
		return nil
	}
	m.store.SetConversations(convs)
	return nil
}

func (m *Manager) OnPeerTyping(conversationID string) {
	m.store.SetPeerTyping(conversationID, true)
}

func (m *Manager) OnPeerStopTyping(conversationID string) {
	m.store.SetPeerTyping(conversationID, false)
}

func (m *Manager) OnPresence(userID string, online bool) {
	m.store.OnUserStatus(userID, online)
}

// DismissNotification drops one queued notification.
func (m *Manager) DismissNotification(messageID string) bool {
	return m.store.DismissNotification(messageID)
}

// connHandler delivers events of one connection. Events from a connection
// that has since been replaced or closed are dropped.
type connHandler struct {
	m   *Manager
	gen uint64
}

// lock acquires the manager mutex and reports whether the connection is
// still current. The caller must unlock.
func (h *connHandler) lock() bool {
	h.m.mu.Lock()
	return h.gen == h.m.connGen
}

func (h *connHandler) OnConnected() {
	m := h.m
	current := h.lock()
	defer m.unlock()
	if !current || m.conn == nil {
		return
	}
	m.setConnStateLocked(domain.ConnConnected)
}

func (h *connHandler) OnDisconnected(err error) {
	m := h.m
	current := h.lock()
	defer m.unlock()
	if !current {
		return
	}
	m.logger.Warn("transport dropped", zap.Error(err))
	if m.checkAuthLocked(err) {
		return
	}
	m.dropConnLocked()
	m.setConnStateLocked(domain.ConnDisconnected)
}

func (h *connHandler) OnMessage(msg domain.Message) {
	m := h.m
	current := h.lock()
	defer m.unlock()
	if !current {
		return
	}
	m.onPeerMessageLocked(msg)
}

func (h *connHandler) OnTyping(conversationID, userID string) {
	m := h.m
	current := h.lock()
	defer m.unlock()
	if !current || m.isSelfLocked(userID) {
		return
	}
	m.store.SetPeerTyping(conversationID, true)
}

func (h *connHandler) OnStopTyping(conversationID, userID string) {
	m := h.m
	current := h.lock()
	defer m.unlock()
	if !current || m.isSelfLocked(userID) {
		return
	}
	m.store.SetPeerTyping(conversationID, false)
}

func (h *connHandler) OnPresence(userID string, online bool) {
	m := h.m
	current := h.lock()
	defer m.unlock()
	if !current {
		return
	}
	m.store.OnUserStatus(userID, online)
}

func (m *Manager) isSelfLocked(userID string) bool {
	return userID != "" && m.session != nil && userID == m.session.UserID
}
