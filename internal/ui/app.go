package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/huddle/internal/domain"
	"github.com/danhigham/huddle/internal/state"
)

type focusTarget int

const (
	focusChatList focusTarget = iota
	focusMessages
	focusInput
)

const chatListWidth = 36

// inputRenderedHeight is the total height of the input box (1 inner + 2 border).
const inputRenderedHeight = 3

// statusBarHeight is the single row reserved for the status bar.
const statusBarHeight = 1

// Realtime is the session manager as seen by the UI. Calls that reach the
// REST API are made from commands. TypingHandler only emits on the socket and
// is called from Update, so it stays ordered with the keystrokes and with the
// send that Enter schedules.
type Realtime interface {
	Connect(ctx context.Context, session domain.Session) error
	SelectConversation(ctx context.Context, id string) error
	SendMessage(ctx context.Context, id, content string) (domain.Message, error)
	TypingHandler(ctx context.Context, id string)
	RefreshConversations(ctx context.Context) error
	DismissNotification(messageID string) bool
}

// Model is the root Bubble Tea model.
type Model struct {
	chatList    ChatListModel
	messageView MessageViewModel
	input       InputModel
	status      statusModel
	splash      SplashModel
	help        HelpModel

	store   *state.Store
	rt      Realtime
	session domain.Session

	focus        focusTarget
	width        int
	height       int
	autoSelected bool
	ended        error
}

// NewModel creates the root model with all sub-components.
func NewModel(store *state.Store, rt Realtime, session domain.Session, kind domain.ConversationKind) Model {
	m := Model{
		chatList:    NewChatListModel().SetKind(kind),
		messageView: NewMessageViewModel(),
		input:       NewInputModel(),
		status:      newStatusModel().SetUserName(session.Name),
		splash:      NewSplashModel(),
		help:        NewHelpModel(),
		store:       store,
		rt:          rt,
		session:     session,
		focus:       focusChatList,
	}
	m = m.updateFocus()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		StoreUpdatedCmd,
		m.connectCmd(),
		tea.Tick(3*time.Second, func(time.Time) tea.Msg { return SplashDoneMsg{} }),
		clockTick(),
	)
}

func clockTick() tea.Cmd {
	return tea.Tick(30*time.Second, func(time.Time) tea.Msg { return clockTickMsg{} })
}

func (m Model) connectCmd() tea.Cmd {
	rt, session := m.rt, m.session
	return func() tea.Msg {
		return connectResultMsg{err: rt.Connect(context.Background(), session)}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	rt := m.rt
	return func() tea.Msg {
		if err := rt.RefreshConversations(context.Background()); err != nil {
			return ErrorMsg{Err: err}
		}
		return nil
	}
}

func (m Model) selectCmd(id string) tea.Cmd {
	rt := m.rt
	return func() tea.Msg {
		return historyLoadedMsg{ID: id, Err: rt.SelectConversation(context.Background(), id)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m = m.distributeSize()
		return m, nil

	case StoreUpdatedMsg:
		m = m.refreshFromStore()
		// Auto-select the first conversation once, on startup.
		if !m.autoSelected && m.store.ActiveID() == "" {
			convs := m.store.Conversations(m.chatList.Kind())
			if len(convs) > 0 {
				m.autoSelected = true
				id := convs[0].ID
				return m, func() tea.Msg { return ConversationSelectedMsg{ID: id} }
			}
		}
		return m, nil

	case connectResultMsg:
		m.splash = m.splash.ConnReady()
		if msg.err != nil {
			m.status = m.status.SetNotice(fmt.Sprintf("Connect failed: %v (ctrl+r to retry)", msg.err))
			if errors.Is(msg.err, domain.ErrUnauthorized) || errors.Is(msg.err, domain.ErrNoSession) {
				return m, nil
			}
		}
		// The list is loaded over REST, so it is fetched even when the socket
		// failed. It needs the session Connect installs.
		return m, m.refreshCmd()

	case ConversationSelectedMsg:
		m.autoSelected = true
		m.status = m.status.SetNotice("")
		m.focus = focusInput
		m = m.updateFocus()
		return m, m.selectCmd(msg.ID)

	case historyLoadedMsg:
		if msg.Err != nil && !errors.Is(msg.Err, domain.ErrUnauthorized) {
			m.status = m.status.SetNotice(fmt.Sprintf("Load failed: %v", msg.Err))
		}
		return m, nil

	case sendMessageMsg:
		id := m.store.ActiveID()
		if id == "" {
			m.input = m.input.Restore(msg.text)
			m.status = m.status.SetNotice(domain.ErrNoConversation.Error())
			return m, nil
		}
		rt := m.rt
		text := msg.text
		cmds = append(cmds, func() tea.Msg {
			_, err := rt.SendMessage(context.Background(), id, text)
			return sendResultMsg{text: text, err: err}
		})
		return m, tea.Batch(cmds...)

	case sendResultMsg:
		if msg.err != nil {
			m.input = m.input.Restore(msg.text)
			m.status = m.status.SetNotice(fmt.Sprintf("Send error: %v", msg.err))
			return m, nil
		}
		m.status = m.status.SetNotice("")
		return m, nil

	case NotificationMsg:
		n := msg.Notification
		title := n.Conversation.DisplayName(m.store.Self())
		if title == "" || title == "Unknown" {
			title = "a new chat"
		}
		m.status = m.status.SetNotice(fmt.Sprintf("New message in %s (ctrl+n)", title))
		return m, nil

	case SessionEndedMsg:
		m.ended = msg.Err
		return m, tea.Quit

	case ErrorMsg:
		m.status = m.status.SetNotice(msg.Err.Error())
		return m, nil

	case SplashDoneMsg:
		m.splash = m.splash.TimerDone()
		return m, nil

	case clockTickMsg:
		return m, clockTick()

	case tea.KeyMsg:
		if m.splash.IsVisible() {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}

		if m.help.IsVisible() {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "?", "f1", "esc":
				m.help = m.help.Toggle()
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "f1":
			m.help = m.help.Toggle()
			return m, nil
		case "?":
			if m.focus != focusInput {
				m.help = m.help.Toggle()
				return m, nil
			}
		case "q":
			if m.focus == focusMessages {
				return m, tea.Quit
			}
		case "tab":
			m.focus = (m.focus + 1) % 3
			m = m.updateFocus()
			return m, nil
		case "shift+tab":
			m.focus = (m.focus + 2) % 3
			m = m.updateFocus()
			return m, nil
		case "esc":
			m.focus = focusChatList
			m = m.updateFocus()
			return m, nil
		case "ctrl+r":
			m.status = m.status.SetNotice("Reconnecting...")
			return m, m.connectCmd()
		case "ctrl+f":
			m.chatList = m.chatList.CycleKind()
			m = m.refreshFromStore()
			return m, nil
		case "ctrl+w":
			m.focus = focusChatList
			m = m.updateFocus()
			return m, m.selectCmd("")
		case "ctrl+n":
			if notes := m.store.Notifications(); len(notes) > 0 {
				id := notes[0].Message.ConversationID
				return m, func() tea.Msg { return ConversationSelectedMsg{ID: id} }
			}
			return m, nil
		case "ctrl+x":
			if notes := m.store.Notifications(); len(notes) > 0 {
				rt, msgID := m.rt, notes[0].Message.ID
				m.status = m.status.SetNotice("")
				return m, func() tea.Msg {
					rt.DismissNotification(msgID)
					return nil
				}
			}
			return m, nil
		}

		switch m.focus {
		case focusChatList:
			var cmd tea.Cmd
			m.chatList, cmd = m.chatList.Update(msg)
			cmds = append(cmds, cmd)
		case focusMessages:
			var cmd tea.Cmd
			m.messageView, cmd = m.messageView.Update(msg)
			cmds = append(cmds, cmd)
		case focusInput:
			before := m.input.Value()
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
			if msg.String() != "enter" && m.input.Value() != before {
				if id := m.store.ActiveID(); id != "" {
					m.rt.TypingHandler(context.Background(), id)
				}
			}
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	// Chat list on the left
	chatListView := m.chatList.View()

	// Right pane: messages + input stacked vertically
	messagesView := m.messageView.View()
	inputView := m.input.View()
	rightPane := lipgloss.JoinVertical(lipgloss.Left, messagesView, inputView)

	// Join horizontally, status bar underneath
	panes := lipgloss.JoinHorizontal(lipgloss.Top, chatListView, rightPane)
	full := lipgloss.JoinVertical(lipgloss.Left, panes, m.status.View())

	// Clamp to terminal dimensions
	mainContent := lipgloss.NewStyle().
		MaxWidth(m.width).
		MaxHeight(m.height).
		Render(full)

	var overlay string
	var x, y int
	switch {
	case m.splash.IsVisible():
		overlay = m.splash.View()
		x, y = m.splash.BoxOffset()
	case m.help.IsVisible():
		overlay = m.help.View()
		x, y = m.help.BoxOffset()
	}

	if overlay != "" {
		bg := lipgloss.NewLayer(mainContent)
		fg := lipgloss.NewLayer(overlay).X(x).Y(y).Z(1)
		comp := lipgloss.NewCompositor(bg, fg)
		v.SetContent(comp.Render())
	} else {
		v.SetContent(mainContent)
	}
	return v
}

func (m Model) distributeSize() Model {
	contentHeight := m.height - statusBarHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	// Chat list: fixed width, full height
	clWidth := chatListWidth
	if clWidth > m.width {
		clWidth = m.width
	}
	m.chatList = m.chatList.SetSize(clWidth, contentHeight)

	// Right pane: remaining width
	rightWidth := m.width - clWidth
	if rightWidth < 1 {
		rightWidth = 1
	}

	// Input gets fixed height, messages get the rest
	messagesHeight := contentHeight - inputRenderedHeight
	if messagesHeight < 1 {
		messagesHeight = 1
	}

	m.messageView = m.messageView.SetSize(rightWidth, messagesHeight)
	m.input = m.input.SetSize(rightWidth, inputRenderedHeight)

	m.status = m.status.SetWidth(m.width)
	m.help = m.help.SetSize(m.width, m.height)
	m.splash = m.splash.SetSize(m.width, m.height)

	return m
}

func (m Model) updateFocus() Model {
	m.chatList = m.chatList.SetFocused(m.focus == focusChatList)
	m.messageView = m.messageView.SetFocused(m.focus == focusMessages)
	m.input = m.input.SetFocused(m.focus == focusInput)
	return m
}

func (m Model) refreshFromStore() Model {
	self := m.store.Self()
	convs := m.store.Conversations(m.chatList.Kind())
	items := make([]conversationItem, len(convs))
	for i, c := range convs {
		items[i] = newConversationItem(c, self, m.store.UnreadCount(c.ID), m.store.IsOnline)
	}
	m.chatList = m.chatList.WithItems(items)
	m.status = m.status.SetConnState(m.store.ConnState())

	active := m.store.ActiveID()
	if active == "" {
		m.status = m.status.SetChatTitle("")
		m.messageView = m.messageView.SetTitle("").SetTypingUser("").SetLoading(false).SetMessages(nil)
		return m
	}

	conv, _ := m.store.Conversation(active)
	title := conv.DisplayName(self)
	typing := ""
	if m.store.PeerTyping(active) {
		typing = typingLabel(conv, self)
	}

	m.status = m.status.SetChatTitle(title)
	m.messageView = m.messageView.
		SetTitle(title).
		SetSender(self, participantNames(conv)).
		SetTypingUser(typing).
		SetLoading(m.store.Loading()).
		SetMessages(m.store.Messages())
	return m
}

func participantNames(c domain.Conversation) map[string]string {
	names := make(map[string]string, len(c.Participants))
	for _, p := range c.Participants {
		names[p.ID] = p.Name
	}
	return names
}

func typingLabel(c domain.Conversation, selfID string) string {
	if peer, ok := c.Peer(selfID); ok && peer.Name != "" {
		return peer.Name
	}
	return "Someone"
}

// App wraps the Bubble Tea program for external use.
type App struct {
	program *tea.Program
}

// NewApp creates a new App ready to Run.
func NewApp(store *state.Store, rt Realtime, session domain.Session, kind domain.ConversationKind) *App {
	model := NewModel(store, rt, session, kind)
	p := tea.NewProgram(model)
	return &App{program: p}
}

// Run starts the Bubble Tea event loop (blocks until quit). It returns the
// cause when the UI quit because the server ended the session.
func (a *App) Run() error {
	final, err := a.program.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.ended != nil {
		return fmt.Errorf("session ended: %w", m.ended)
	}
	return nil
}

// Send sends a message into the Bubble Tea event loop from external goroutines.
func (a *App) Send(msg tea.Msg) {
	go a.program.Send(msg)
}

// DrawFunc returns a function suitable for state.Store that triggers a re-render.
func (a *App) DrawFunc() func() {
	return func() {
		a.Send(StoreUpdatedMsg{})
	}
}

// SessionEndedFunc returns a callback for the manager's forced logout.
func (a *App) SessionEndedFunc() func(error) {
	return func(err error) {
		a.Send(SessionEndedMsg{Err: err})
	}
}

// NotificationFunc returns a callback that surfaces new notifications.
func (a *App) NotificationFunc() func(domain.Notification) {
	return func(n domain.Notification) {
		a.Send(NotificationMsg{Notification: n})
	}
}
