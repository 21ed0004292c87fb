package state

import (
	"sort"
	"sync"

	"github.com/danhigham/huddle/internal/domain"
)

const maxMessages = 500

// Store caches what the UI renders: the conversation list, the messages of
// the active conversation, the notification queue, typing flags and
// presence. It is not a persistent store.
type Store struct {
	mu            sync.RWMutex
	selfID        string
	conversations []domain.Conversation
	activeID      string
	messages      []domain.Message
	seen          map[string]struct{}
	loading       bool
	notifications []domain.Notification
	peerTyping    map[string]bool
	online        map[string]bool
	connState     domain.ConnState
	drawFunc      func()
}

func New(drawFunc func()) *Store {
	return &Store{
		seen:       make(map[string]struct{}),
		peerTyping: make(map[string]bool),
		online:     make(map[string]bool),
		drawFunc:   drawFunc,
	}
}

func (s *Store) SetDrawFunc(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawFunc = f
}

func (s *Store) draw() {
	if s.drawFunc != nil {
		s.drawFunc()
	}
}

func (s *Store) SetSelf(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = userID
}

func (s *Store) Self() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

// SetConversations replaces the conversation list and seeds presence from
// the participants' online flags.
func (s *Store) SetConversations(convs []domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = append([]domain.Conversation(nil), convs...)
	for _, c := range s.conversations {
		for _, p := range c.Participants {
			if p.ID == s.selfID {
				continue
			}
			if p.Online {
				s.online[p.ID] = true
			} else {
				delete(s.online, p.ID)
			}
		}
	}
	s.sortConversations()
	s.draw()
}

// BumpConversation records msg as the latest message of its conversation and
// moves it to the top. It reports false if the conversation is unknown.
func (s *Store) BumpConversation(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.conversations {
		if c.ID != msg.ConversationID {
			continue
		}
		m := msg
		c.LatestMessage = &m
		copy(s.conversations[1:i+1], s.conversations[:i])
		s.conversations[0] = c
		s.draw()
		return true
	}
	return false
}

// sortConversations orders by latest message, newest first; conversations
// without messages keep their relative order at the bottom.
func (s *Store) sortConversations() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		a, b := s.conversations[i].LatestMessage, s.conversations[j].LatestMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}

func (s *Store) Conversation(id string) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Conversation{}, false
}

func (s *Store) Conversations(kind domain.ConversationKind) []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if kind.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

// SetActive switches the active view. The message list is emptied and the
// conversation's notifications are cleared.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = id
	s.messages = nil
	clear(s.seen)
	s.loading = id != ""
	s.clearNotificationsLocked(id)
	s.draw()
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ApplyHistory installs fetched history for id if it is still the active
// view. Messages delivered live while the fetch was in flight are kept after
// the history. Ids of messages trimmed past the limit stay known, so a
// redelivery is still rejected.
func (s *Store) ApplyHistory(id string, history []domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" || id != s.activeID {
		return false
	}

	merged := make([]domain.Message, 0, len(history)+len(s.messages))
	inMerged := make(map[string]struct{}, cap(merged))
	for _, batch := range [][]domain.Message{history, s.messages} {
		for _, m := range batch {
			if _, dup := inMerged[m.ID]; dup {
				continue
			}
			inMerged[m.ID] = struct{}{}
			s.seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}
	if len(merged) > maxMessages {
		merged = merged[len(merged)-maxMessages:]
	}
	s.messages = merged
	s.loading = false
	s.draw()
	return true
}

// AppendMessage appends msg to the active list. It reports false if msg
// belongs to another conversation or was already seen in this view, including
// messages since trimmed from the list.
func (s *Store) AppendMessage(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ConversationID == "" || msg.ConversationID != s.activeID {
		return false
	}
	if _, dup := s.seen[msg.ID]; dup {
		return false
	}

	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	if len(s.messages) > maxMessages {
		s.messages = s.messages[len(s.messages)-maxMessages:]
	}
	s.draw()
	return true
}

func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
	s.draw()
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// PushNotification prepends n unless its message is already queued.
func (s *Store) PushNotification(n domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.notifications {
		if existing.Message.ID == n.Message.ID {
			return false
		}
	}
	s.notifications = append([]domain.Notification{n}, s.notifications...)
	s.draw()
	return true
}

func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// UnreadCount returns the number of queued notifications for a conversation.
func (s *Store) UnreadCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, notif := range s.notifications {
		if notif.Message.ConversationID == conversationID {
			n++
		}
	}
	return n
}

func (s *Store) ClearNotifications(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearNotificationsLocked(conversationID)
	s.draw()
}

func (s *Store) clearNotificationsLocked(conversationID string) {
	if conversationID == "" {
		return
	}
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.Message.ConversationID != conversationID {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
}

// DismissNotification removes a single queued notification.
func (s *Store) DismissNotification(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.Message.ID == messageID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			s.draw()
			return true
		}
	}
	return false
}

func (s *Store) SetPeerTyping(conversationID string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typing {
		s.peerTyping[conversationID] = true
	} else {
		delete(s.peerTyping, conversationID)
	}
	s.draw()
}

func (s *Store) PeerTyping(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerTyping[conversationID]
}

func (s *Store) ClearPeerTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.peerTyping)
	s.draw()
}

func (s *Store) OnUserStatus(userID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online {
		s.online[userID] = true
	} else {
		delete(s.online, userID)
	}
	s.draw()
}

func (s *Store) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online[userID]
}

func (s *Store) SetConnState(cs domain.ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connState = cs
	s.draw()
}

func (s *Store) ConnState() domain.ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

// Reset drops everything tied to the session.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = ""
	s.conversations = nil
	s.activeID = ""
	s.messages = nil
	clear(s.seen)
	s.loading = false
	s.notifications = nil
	clear(s.peerTyping)
	clear(s.online)
	s.connState = domain.ConnDisconnected
	s.draw()
}
