package ui

import (
	"fmt"
	"io"
	"strings"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/huddle/internal/domain"
)

// conversationItem implements list.Item for the conversation list.
type conversationItem struct {
	id          string
	title       string
	group       bool
	online      bool
	unreadCount int
	lastMessage string
}

func (i conversationItem) FilterValue() string { return i.title }

func newConversationItem(c domain.Conversation, selfID string, unread int, online func(string) bool) conversationItem {
	item := conversationItem{
		id:          c.ID,
		title:       c.DisplayName(selfID),
		group:       c.IsGroup,
		unreadCount: unread,
	}
	if peer, ok := c.Peer(selfID); ok {
		item.online = online(peer.ID)
	}
	if c.LatestMessage != nil {
		item.lastMessage = strings.ReplaceAll(c.LatestMessage.Content, "\n", " ")
	}
	return item
}

// conversationItemDelegate renders a conversationItem in the list.
type conversationItemDelegate struct{}

func (d conversationItemDelegate) Height() int                             { return 2 }
func (d conversationItemDelegate) Spacing() int                            { return 1 }
func (d conversationItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d conversationItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(conversationItem)
	if !ok {
		return
	}

	marker := offlineStyle.Render("○")
	switch {
	case ci.group:
		marker = groupStyle.Render("#")
	case ci.online:
		marker = onlineStyle.Render("●")
	}

	title := ci.title
	if ci.unreadCount > 0 {
		title = fmt.Sprintf("%s (%d)", ci.title, ci.unreadCount)
	}

	desc := ci.lastMessage

	isSelected := index == m.Index()
	// Account for the cursor and marker prefix in available width.
	contentWidth := m.Width() - 4
	if contentWidth < 1 {
		contentWidth = 1
	}

	titleStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1)
	descStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1).Foreground(lipgloss.Color("240"))

	cursor := "  "
	if isSelected {
		cursor = "> "
		titleStyle = titleStyle.Foreground(lipgloss.Color("170")).Bold(true)
		descStyle = descStyle.Foreground(lipgloss.Color("250"))
	}
	if ci.unreadCount > 0 {
		titleStyle = titleStyle.Bold(true)
	}

	fmt.Fprintf(w, "%s%s %s\n%s%s", cursor, marker, titleStyle.Render(title), "    ", descStyle.Render(desc))
}

// ChatListModel wraps bubbles/list for the conversation sidebar.
type ChatListModel struct {
	list    list.Model
	kind    domain.ConversationKind
	focused bool
	width   int
	height  int
}

func NewChatListModel() ChatListModel {
	delegate := conversationItemDelegate{}
	l := list.New(nil, delegate, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()

	return ChatListModel{list: l}
}

func (m ChatListModel) Update(msg tea.Msg) (ChatListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Only handle enter for selection when not filtering.
		if msg.String() == "enter" && m.list.FilterState() != list.Filtering {
			if item, ok := m.list.SelectedItem().(conversationItem); ok {
				return m, func() tea.Msg {
					return ConversationSelectedMsg{ID: item.id}
				}
			}
			return m, nil
		}
	}

	// Delegate all other keys (including j/k and filter '/') to the list
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m ChatListModel) View() string {
	contentH := m.height - 3
	if contentH < 0 {
		contentH = 0
	}

	header := headerStyle.Render(fmt.Sprintf("Chats · %s", m.kind))
	content := header + "\n" + truncateHeight(m.list.View(), contentH)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}

func (m ChatListModel) WithItems(items []conversationItem) ChatListModel {
	listItems := make([]list.Item, len(items))
	for i, it := range items {
		listItems[i] = it
	}
	m.list.SetItems(listItems)
	return m
}

// Kind is the conversation filter currently applied.
func (m ChatListModel) Kind() domain.ConversationKind {
	return m.kind
}

// CycleKind switches all -> direct -> group -> all.
func (m ChatListModel) CycleKind() ChatListModel {
	m.kind = (m.kind + 1) % 3
	m.list.Select(0)
	return m
}

func (m ChatListModel) SetKind(k domain.ConversationKind) ChatListModel {
	m.kind = k
	return m
}

func (m ChatListModel) SetSize(w, h int) ChatListModel {
	m.width = w
	m.height = h
	innerW := w - 2
	innerH := h - 3
	if innerW < 1 {
		innerW = 1
	}
	if innerH < 1 {
		innerH = 1
	}
	m.list.SetSize(innerW, innerH)
	return m
}

func (m ChatListModel) SetFocused(f bool) ChatListModel {
	m.focused = f
	return m
}
