package state_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/huddle/internal/domain"
	"github.com/danhigham/huddle/internal/state"
)

func TestStore_AppendMessage(t *testing.T) {
	s := state.New(nil) // nil drawFunc for testing
	s.SetActive("c1")

	msg := domain.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderName:     "Alice",
		Content:        "Hello",
		CreatedAt:      time.Now(),
	}

	require.True(t, s.AppendMessage(msg))
	assert.False(t, s.AppendMessage(msg), "duplicate must be rejected")

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Content)
}

func TestStore_AppendMessage_OtherConversation(t *testing.T) {
	s := state.New(nil)
	s.SetActive("c1")

	assert.False(t, s.AppendMessage(domain.Message{ID: "m1", ConversationID: "c2"}))
	assert.Empty(t, s.Messages())
}

func TestStore_SetConversations(t *testing.T) {
	s := state.New(nil)
	s.SetSelf("me")

	now := time.Now()
	s.SetConversations([]domain.Conversation{
		{ID: "1", Name: "Old", IsGroup: true, LatestMessage: &domain.Message{CreatedAt: now.Add(-time.Hour)}},
		{ID: "2", Name: "Empty", IsGroup: true},
		{ID: "3", Participants: []domain.User{{ID: "me"}, {ID: "bob", Name: "Bob", Online: true}},
			LatestMessage: &domain.Message{CreatedAt: now}},
	})

	got := s.Conversations(domain.KindAll)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"3", "1", "2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.True(t, s.IsOnline("bob"), "presence is seeded from participants")
	assert.Len(t, s.Conversations(domain.KindGroup), 2)
}

func TestStore_ActiveChat(t *testing.T) {
	s := state.New(nil)

	s.SetActive("42")
	assert.Equal(t, "42", s.ActiveID())
	assert.True(t, s.Loading(), "selecting a conversation marks the view loading")

	s.SetActive("")
	assert.Empty(t, s.ActiveID())
	assert.False(t, s.Loading())
}

func TestStore_BumpConversation(t *testing.T) {
	s := state.New(nil)
	s.SetConversations([]domain.Conversation{
		{ID: "1", Name: "Alice"},
		{ID: "2", Name: "Bob"},
		{ID: "3", Name: "Carol"},
	})

	msg := domain.Message{ID: "m1", ConversationID: "3", Content: "Hey", CreatedAt: time.Now()}
	require.True(t, s.BumpConversation(msg))

	updated := s.Conversations(domain.KindAll)
	assert.Equal(t, []string{"3", "1", "2"}, []string{updated[0].ID, updated[1].ID, updated[2].ID})
	require.NotNil(t, updated[0].LatestMessage)
	assert.Equal(t, "Hey", updated[0].LatestMessage.Content)

	assert.False(t, s.BumpConversation(domain.Message{ID: "m2", ConversationID: "404"}))
}

func TestStore_Notifications(t *testing.T) {
	s := state.New(nil)

	n1 := domain.Notification{Message: domain.Message{ID: "m1", ConversationID: "c1"}}
	n2 := domain.Notification{Message: domain.Message{ID: "m2", ConversationID: "c2"}}
	n3 := domain.Notification{Message: domain.Message{ID: "m3", ConversationID: "c1"}}

	for _, n := range []domain.Notification{n1, n2, n3} {
		require.True(t, s.PushNotification(n), n.Message.ID)
	}
	assert.False(t, s.PushNotification(n1), "duplicate notification was queued")

	got := s.Notifications()
	require.Len(t, got, 3)
	assert.Equal(t, "m3", got[0].Message.ID, "newest first")
	assert.Equal(t, 2, s.UnreadCount("c1"))

	assert.True(t, s.DismissNotification("m2"))

	s.SetActive("c1")
	assert.Empty(t, s.Notifications())
}

func TestStore_ApplyHistory(t *testing.T) {
	s := state.New(nil)
	s.SetActive("c1")

	s.AppendMessage(domain.Message{ID: "m3", ConversationID: "c1", Content: "live"})

	history := []domain.Message{
		{ID: "m1", ConversationID: "c1"},
		{ID: "m2", ConversationID: "c1"},
		{ID: "m3", ConversationID: "c1", Content: "live"},
	}
	require.True(t, s.ApplyHistory("c1", history))
	assert.Len(t, s.Messages(), 3)
	assert.False(t, s.Loading())

	assert.False(t, s.ApplyHistory("c2", history), "history for an inactive conversation")
}

func TestStore_MessageLimit(t *testing.T) {
	s := state.New(nil)
	s.SetActive("1")

	for i := 0; i < 600; i++ {
		s.AppendMessage(domain.Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "1",
			Content:        "msg",
		})
	}

	assert.LessOrEqual(t, len(s.Messages()), 500)
}

func TestStore_RedeliveryBeyondLimitIsRejected(t *testing.T) {
	s := state.New(nil)
	s.SetActive("1")

	for i := 0; i < 501; i++ {
		require.True(t, s.AppendMessage(domain.Message{ID: fmt.Sprintf("m%d", i), ConversationID: "1"}))
	}
	require.NotEqual(t, "m0", s.Messages()[0].ID, "m0 should have been trimmed")

	assert.False(t, s.AppendMessage(domain.Message{ID: "m0", ConversationID: "1"}))
	assert.Len(t, s.Messages(), 500)

	// Switching views starts a fresh set.
	s.SetActive("2")
	s.SetActive("1")
	assert.True(t, s.AppendMessage(domain.Message{ID: "m0", ConversationID: "1"}))
}

func TestStore_DrawFunc(t *testing.T) {
	draws := 0
	s := state.New(func() { draws++ })

	s.SetPeerTyping("c1", true)
	assert.True(t, s.PeerTyping("c1"))
	s.SetPeerTyping("c1", false)
	s.OnUserStatus("u1", true)
	s.Reset()

	assert.Equal(t, 4, draws)
	assert.False(t, s.IsOnline("u1"), "Reset clears presence")
}
