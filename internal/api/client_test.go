package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/huddle/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return New(server.URL+"/api", append([]Option{WithHTTPClient(server.Client())}, opts...)...)
}

func TestListConversationsSendsBearerToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/conversations", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"_id":"c1","chatName":"Team","isGroupChat":true,"users":[{"_id":"u1","name":"Alice","isOnline":true}]}]`))
	}, WithToken("tok"))

	convs, err := client.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)
	assert.True(t, convs[0].IsGroup)
	assert.Equal(t, "Team", convs[0].Name)
	require.Len(t, convs[0].Participants, 1)
	assert.True(t, convs[0].Participants[0].Online)
}

func TestFetchMessagesEscapesIDAndFillsConversation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/a%2Fb/messages", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`[{"_id":"m1","senderId":"u1","content":"first"},{"_id":"m2","senderId":"u2","content":"second"}]`))
	}, WithToken("tok"))

	msgs, err := client.FetchMessages(context.Background(), "a/b")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "a/b", msgs[1].ConversationID)
}

func TestSendMessagePostsBody(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c1", body.ConversationID)
		assert.Equal(t, "hello", body.Content)

		_ = json.NewEncoder(w).Encode(domain.Message{ID: "m9", ConversationID: "c1", SenderID: "u1", Content: "hello", CreatedAt: created})
	}, WithToken("tok"))

	msg, err := client.SendMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
	assert.True(t, created.Equal(msg.CreatedAt))
}

func TestUnauthorizedMapsToDomainError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not authorized, token failed"}`))
	}, WithToken("expired"))

	_, err := client.ListConversations(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Error(), "token failed")
}

func TestServerErrorIsNotUnauthorized(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithToken("tok"))

	_, err := client.SendMessage(context.Background(), "c1", "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrUnauthorized))
	assert.ErrorContains(t, err, "send message: http 500")
}

func TestAuthenticatedCallWithoutTokenMakesNoRequest(t *testing.T) {
	t.Parallel()

	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.FetchMessages(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.False(t, called)
}

func TestLoginStoresToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"_id":"u1","name":"Alice","email":"a@example.com","token":"fresh"}`))
		case "/api/auth/me":
			assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"_id":"u1","name":"Alice"}`))
		case "/api/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	session, err := client.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, domain.Session{UserID: "u1", Name: "Alice", Token: "fresh"}, session)

	me, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", me.ID)

	require.NoError(t, client.Logout(context.Background()))
	assert.Empty(t, client.Token())
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}, WithToken("tok"), WithTimeout(20*time.Millisecond))

	_, err := client.ListConversations(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "list conversations")
}
