package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/huddle/internal/domain"
	"github.com/danhigham/huddle/internal/state"
)

// fakeRealtime records calls and mimics the store side effects of the
// session manager.
type fakeRealtime struct {
	store      *state.Store
	convs      []domain.Conversation
	connectErr error
	sendErr    error

	mu    sync.Mutex
	calls []string
}

func (f *fakeRealtime) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRealtime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRealtime) count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeRealtime) Connect(_ context.Context, s domain.Session) error {
	f.record("connect")
	if f.connectErr != nil {
		return f.connectErr
	}
	f.store.SetSelf(s.UserID)
	f.store.SetConnState(domain.ConnConnected)
	return nil
}

func (f *fakeRealtime) SelectConversation(_ context.Context, id string) error {
	f.record("select:" + id)
	f.store.SetActive(id)
	f.store.ApplyHistory(id, nil)
	return nil
}

func (f *fakeRealtime) SendMessage(_ context.Context, id, content string) (domain.Message, error) {
	f.record("send:" + content)
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	return domain.Message{ID: "srv-1", ConversationID: id, Content: content}, nil
}

func (f *fakeRealtime) TypingHandler(_ context.Context, id string) {
	f.record("typing:" + id)
}

func (f *fakeRealtime) RefreshConversations(context.Context) error {
	f.record("refresh")
	f.store.SetConversations(f.convs)
	return nil
}

func (f *fakeRealtime) DismissNotification(messageID string) bool {
	f.record("dismiss:" + messageID)
	return f.store.DismissNotification(messageID)
}

func newTestModel(t *testing.T, convs []domain.Conversation) (Model, *fakeRealtime, *state.Store) {
	t.Helper()
	store := state.New(nil)
	rt := &fakeRealtime{store: store, convs: convs}
	m := NewModel(store, rt, domain.Session{UserID: "me", Name: "Me", Token: "tok"}, domain.KindAll)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	// Past the splash so keys reach the panes.
	m.splash = m.splash.ConnReady().TimerDone()
	return m, rt, store
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := updateCmd(t, m, msg)
	return next
}

func updateCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok, "Update returned %T", next)
	return model, cmd
}

// run executes cmd and flattens batches. Only use it on commands that do not
// wait on timers.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func keyPress(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func typeText(t *testing.T, m InputModel, s string) InputModel {
	t.Helper()
	for _, r := range s {
		m, _ = m.Update(keyPress(r))
	}
	return m
}

func TestModel_StartupRefreshesAfterConnectAndSelectsNewest(t *testing.T) {
	now := time.Now()
	convs := []domain.Conversation{
		{ID: "old", Name: "Old", IsGroup: true, LatestMessage: &domain.Message{CreatedAt: now.Add(-time.Hour)}},
		{ID: "new", Name: "New", IsGroup: true, LatestMessage: &domain.Message{CreatedAt: now}},
	}
	m, rt, store := newTestModel(t, convs)

	msgs := run(m.connectCmd())
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"connect"}, rt.Calls(), "nothing but connect runs before it returns")

	m, cmd := updateCmd(t, m, msgs[0])
	require.NotNil(t, cmd, "connect result should trigger the conversation load")
	assert.Empty(t, run(cmd))
	assert.Equal(t, []string{"connect", "refresh"}, rt.Calls())

	m, cmd = updateCmd(t, m, StoreUpdatedMsg{})
	selected := run(cmd)
	require.Len(t, selected, 1)
	assert.Equal(t, ConversationSelectedMsg{ID: "new"}, selected[0])

	m, cmd = updateCmd(t, m, selected[0])
	loaded := run(cmd)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", store.ActiveID())
	assert.Equal(t, focusInput, m.focus)

	m = update(t, m, loaded[0])
	_, cmd = updateCmd(t, m, StoreUpdatedMsg{})
	assert.Nil(t, cmd, "auto-select happens once")
}

func TestModel_ConnectFailureStillLoadsConversations(t *testing.T) {
	m, rt, _ := newTestModel(t, nil)
	rt.connectErr = errors.New("dial: refused")

	msgs := run(m.connectCmd())
	require.Len(t, msgs, 1)
	m, cmd := updateCmd(t, m, msgs[0])
	assert.Contains(t, m.status.notice, "Connect failed")
	run(cmd)
	assert.Equal(t, 1, rt.count("refresh"))
}

func TestModel_UnauthorizedConnectSkipsRefresh(t *testing.T) {
	m, rt, _ := newTestModel(t, nil)

	_, cmd := updateCmd(t, m, connectResultMsg{err: domain.ErrUnauthorized})
	assert.Nil(t, cmd)
	assert.Zero(t, rt.count("refresh"))
}

func TestModel_ReconnectKeyConnectsBeforeRefresh(t *testing.T) {
	m, rt, _ := newTestModel(t, nil)

	m, cmd := updateCmd(t, m, tea.KeyPressMsg{Code: 'r', Mod: tea.ModCtrl})
	msgs := run(cmd)
	assert.Equal(t, []string{"connect"}, rt.Calls())
	require.Len(t, msgs, 1)

	_, cmd = updateCmd(t, m, msgs[0])
	run(cmd)
	assert.Equal(t, []string{"connect", "refresh"}, rt.Calls())
}

func TestModel_TypingReportedBeforeSendRuns(t *testing.T) {
	m, rt, store := newTestModel(t, []domain.Conversation{{ID: "c1", Name: "Team", IsGroup: true}})
	store.SetActive("c1")
	m.focus = focusInput
	m = m.updateFocus()

	for _, r := range "hey" {
		m = update(t, m, keyPress(r))
	}
	// Reported inside Update, no command has run yet.
	assert.Equal(t, 3, rt.count("typing:c1"))

	m, cmd := updateCmd(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	assert.Equal(t, 3, rt.count("typing:c1"), "enter clearing the line is not typing")
	assert.Empty(t, m.input.Value())

	msgs := run(cmd)
	require.Len(t, msgs, 1)
	assert.Equal(t, sendMessageMsg{text: "hey"}, msgs[0])

	_, cmd = updateCmd(t, m, msgs[0])
	run(cmd)
	calls := rt.Calls()
	assert.Equal(t, "send:hey", calls[len(calls)-1])
}

func TestModel_TypingIgnoredWithoutActiveConversation(t *testing.T) {
	m, rt, _ := newTestModel(t, nil)
	m.focus = focusInput
	m = m.updateFocus()

	m = update(t, m, keyPress('x'))
	assert.Equal(t, "x", m.input.Value())
	assert.Zero(t, rt.count("typing:"))
}

func TestModel_FailedSendRestoresInput(t *testing.T) {
	m, rt, store := newTestModel(t, []domain.Conversation{{ID: "c1", Name: "Team", IsGroup: true}})
	rt.sendErr = errors.New("http 500")
	store.SetActive("c1")
	m.focus = focusInput
	m = m.updateFocus()

	for _, r := range "hello" {
		m = update(t, m, keyPress(r))
	}
	m, cmd := updateCmd(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	require.Empty(t, m.input.Value())

	for _, msg := range run(cmd) {
		var next tea.Cmd
		m, next = updateCmd(t, m, msg)
		for _, result := range run(next) {
			m = update(t, m, result)
		}
	}

	assert.Equal(t, "hello", m.input.Value())
	assert.Contains(t, m.status.notice, "Send error")
	assert.Contains(t, m.status.notice, "http 500")
}

func TestModel_SendWithoutConversationKeepsText(t *testing.T) {
	m, rt, _ := newTestModel(t, nil)

	m, cmd := updateCmd(t, m, sendMessageMsg{text: "orphan"})
	assert.Nil(t, cmd)
	assert.Equal(t, "orphan", m.input.Value())
	assert.Zero(t, rt.count("send:"))
}

func TestModel_SessionEndedQuits(t *testing.T) {
	m, _, _ := newTestModel(t, nil)

	m, cmd := updateCmd(t, m, SessionEndedMsg{Err: domain.ErrUnauthorized})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.ErrorIs(t, m.ended, domain.ErrUnauthorized)
}

func TestInputModel_EnterSendsAndClears(t *testing.T) {
	m := NewInputModel().SetSize(40, inputRenderedHeight).SetFocused(true)
	m = typeText(t, m, "hi")
	require.Equal(t, "hi", m.Value())

	m, cmd := m.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, sendMessageMsg{text: "hi"}, cmd())
	assert.Empty(t, m.Value())
}

func TestInputModel_EnterIgnoresBlank(t *testing.T) {
	m := typeText(t, NewInputModel().SetFocused(true), "   ")

	_, cmd := m.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	assert.Nil(t, cmd, "blank input should not send")
}

func TestInputModel_Restore(t *testing.T) {
	m := NewInputModel().SetFocused(true).Restore("lost message")
	assert.Equal(t, "lost message", m.Value())

	m = typeText(t, NewInputModel().SetFocused(true), "new")
	m = m.Restore("lost message")
	assert.Equal(t, "new", m.Value(), "Restore must not overwrite newer text")
}

func TestNewConversationItem(t *testing.T) {
	online := func(id string) bool { return id == "bob" }
	direct := domain.Conversation{
		ID:            "c1",
		Participants:  []domain.User{{ID: "me", Name: "Me"}, {ID: "bob", Name: "Bob"}},
		LatestMessage: &domain.Message{Content: "line one\nline two"},
	}

	item := newConversationItem(direct, "me", 2, online)
	assert.Equal(t, "Bob", item.title)
	assert.True(t, item.online)
	assert.Equal(t, 2, item.unreadCount)
	assert.NotContains(t, item.lastMessage, "\n")

	group := newConversationItem(domain.Conversation{ID: "g", Name: "Team", IsGroup: true}, "me", 0, online)
	assert.Equal(t, "Team", group.title)
	assert.True(t, group.group)
	assert.False(t, group.online)
}

func TestChatListModel_CycleKind(t *testing.T) {
	m := NewChatListModel()
	for _, want := range []domain.ConversationKind{domain.KindDirect, domain.KindGroup, domain.KindAll} {
		m = m.CycleKind()
		assert.Equal(t, want, m.Kind())
	}
}

func TestMessageViewModel_SenderName(t *testing.T) {
	m := NewMessageViewModel().SetSender("me", map[string]string{"bob": "Bob"})

	cases := []struct {
		msg  domain.Message
		want string
	}{
		{domain.Message{SenderID: "me"}, "You"},
		{domain.Message{SenderID: "bob"}, "Bob"},
		{domain.Message{SenderID: "x", SenderName: "Xavier"}, "Xavier"},
		{domain.Message{SenderID: "ghost"}, "Unknown"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, m.senderName(c.msg), "sender %q", c.msg.SenderID)
	}
}

func TestHasMarkdown(t *testing.T) {
	assert.False(t, hasMarkdown("plain words"))
	assert.True(t, hasMarkdown("some **bold** text"))
	assert.True(t, hasMarkdown("| a | b |\n| - | - |"))
}

func TestSplashDismissesAfterTimerAndConnection(t *testing.T) {
	s := NewSplashModel().SetSize(80, 24).ConnReady()
	require.True(t, s.IsVisible(), "splash hidden before minimum duration")

	s = s.TimerDone()
	assert.False(t, s.IsVisible())
}

func TestStatusModel_ConnState(t *testing.T) {
	s := newStatusModel().SetWidth(80).SetConnState(domain.ConnConnected)
	assert.True(t, s.connected)
	assert.Equal(t, "connected", s.text)

	view := s.SetNotice("Send error: boom").View()
	assert.Contains(t, view, "Send error")
}
