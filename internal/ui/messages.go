package ui

import (
	tea "charm.land/bubbletea/v2"

	"github.com/danhigham/huddle/internal/domain"
)

// StoreUpdatedMsg signals that the store state has changed.
type StoreUpdatedMsg struct{}

// ConversationSelectedMsg is emitted when the user picks a conversation.
type ConversationSelectedMsg struct {
	ID string
}

// historyLoadedMsg reports the end of a SelectConversation call.
type historyLoadedMsg struct {
	ID  string
	Err error
}

// sendMessageMsg is emitted when the user presses Enter in the input.
type sendMessageMsg struct {
	text string
}

// sendResultMsg reports a send attempt. On failure text is restored.
type sendResultMsg struct {
	text string
	err  error
}

// connectResultMsg reports a Connect attempt.
type connectResultMsg struct {
	err error
}

// NotificationMsg announces a message queued for a conversation that is not
// being viewed.
type NotificationMsg struct {
	Notification domain.Notification
}

// SessionEndedMsg reports that the server rejected the session.
type SessionEndedMsg struct {
	Err error
}

// ErrorMsg surfaces a failed operation in the status bar.
type ErrorMsg struct {
	Err error
}

// SplashDoneMsg signals that the splash screen timeout has elapsed.
type SplashDoneMsg struct{}

// clockTickMsg triggers a status bar time refresh.
type clockTickMsg struct{}

// StoreUpdatedCmd returns a command that emits StoreUpdatedMsg.
func StoreUpdatedCmd() tea.Msg {
	return StoreUpdatedMsg{}
}
