package domain

import "time"

// TypingTimeout is the inactivity window after the last keystroke before a
// "stop typing" signal is emitted.
const TypingTimeout = 3000 * time.Millisecond

type User struct {
	ID     string `json:"_id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email,omitempty" yaml:"email,omitempty"`
	Online bool   `json:"isOnline,omitempty" yaml:"-"`
}

// Session is the authenticated identity a transport connection is bound to.
type Session struct {
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
	Token  string `yaml:"token"`
}

func (s Session) Valid() bool {
	return s.UserID != "" && s.Token != ""
}

type Conversation struct {
	ID            string   `json:"_id"`
	Name          string   `json:"chatName"`
	IsGroup       bool     `json:"isGroupChat"`
	Participants  []User   `json:"users"`
	LatestMessage *Message `json:"latestMessage,omitempty"`
}

// DisplayName returns the group name, or for a direct conversation the name
// of the participant that is not selfID.
func (c Conversation) DisplayName(selfID string) string {
	if c.IsGroup {
		return c.Name
	}
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p.Name
		}
	}
	if c.Name != "" {
		return c.Name
	}
	return "Unknown"
}

// Peer returns the other participant of a direct conversation.
func (c Conversation) Peer(selfID string) (User, bool) {
	if c.IsGroup {
		return User{}, false
	}
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return User{}, false
}

type Message struct {
	ID             string    `json:"_id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notification is an unread message for a conversation that is not being viewed.
type Notification struct {
	Message      Message
	Conversation Conversation
}

// ConversationKind filters the conversation list.
type ConversationKind int

const (
	KindAll ConversationKind = iota
	KindDirect
	KindGroup
)

func (k ConversationKind) Match(c Conversation) bool {
	switch k {
	case KindDirect:
		return !c.IsGroup
	case KindGroup:
		return c.IsGroup
	default:
		return true
	}
}

func (k ConversationKind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindGroup:
		return "group"
	default:
		return "all"
	}
}

// ParseConversationKind accepts "all", "direct" or "group".
func ParseConversationKind(s string) (ConversationKind, bool) {
	switch s {
	case "", "all":
		return KindAll, true
	case "direct", "single":
		return KindDirect, true
	case "group":
		return KindGroup, true
	default:
		return KindAll, false
	}
}

type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
