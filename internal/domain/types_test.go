package domain_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danhigham/huddle/internal/domain"
)

func TestConversation_DisplayName(t *testing.T) {
	alice := domain.User{ID: "a", Name: "Alice"}
	bob := domain.User{ID: "b", Name: "Bob"}

	direct := domain.Conversation{ID: "c1", Participants: []domain.User{alice, bob}}
	assert.Equal(t, "Bob", direct.DisplayName("a"))
	assert.Equal(t, "Alice", direct.DisplayName("b"))

	group := domain.Conversation{ID: "c2", Name: "Team", IsGroup: true, Participants: []domain.User{alice, bob}}
	assert.Equal(t, "Team", group.DisplayName("a"))
	_, ok := group.Peer("a")
	assert.False(t, ok, "group conversation has no single peer")
}

func TestConversationKind(t *testing.T) {
	direct := domain.Conversation{ID: "1"}
	group := domain.Conversation{ID: "2", IsGroup: true}

	tests := []struct {
		in           string
		wantDirect   bool
		wantGroup    bool
		wantParsedOK bool
	}{
		{"", true, true, true},
		{"all", true, true, true},
		{"direct", true, false, true},
		{"single", true, false, true},
		{"group", false, true, true},
		{"bogus", true, true, false},
	}
	for _, tt := range tests {
		k, ok := domain.ParseConversationKind(tt.in)
		assert.Equal(t, tt.wantParsedOK, ok, "parse %q", tt.in)
		assert.Equal(t, tt.wantDirect, k.Match(direct), "kind %s on direct", k)
		assert.Equal(t, tt.wantGroup, k.Match(group), "kind %s on group", k)
	}
}

func TestIsValidation(t *testing.T) {
	assert.True(t, domain.IsValidation(fmt.Errorf("send: %w", domain.ErrEmptyContent)))
	assert.False(t, domain.IsValidation(domain.ErrUnauthorized))
}
