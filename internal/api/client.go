package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/huddle/internal/domain"
)

const (
	maxResponseBytes      = 4 << 20
	defaultRequestTimeout = 15 * time.Second
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
}

// Unwrap maps 401 onto domain.ErrUnauthorized so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	return nil
}

// Client talks to the chat REST API with a bearer token.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *zap.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     http.DefaultClient,
		requestTimeout: defaultRequestTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Login exchanges credentials for a session and stores its token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (domain.Session, error) {
	if email == "" || password == "" {
		return domain.Session{}, errors.New("email and password are required")
	}

	var resp loginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", false, loginRequest{Email: email, Password: password}, &resp); err != nil {
		return domain.Session{}, err
	}
	if resp.ID == "" || resp.Token == "" {
		return domain.Session{}, errors.New("login: response missing user id or token")
	}

	c.SetToken(resp.Token)
	return domain.Session{UserID: resp.ID, Name: resp.Name, Token: resp.Token}, nil
}

// Logout revokes the token server side and always forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	defer c.SetToken("")
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", true, nil, nil)
}

// Me returns the user that owns the current token.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var u domain.User
	if err := c.do(ctx, "load user", http.MethodGet, "/auth/me", true, nil, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	if err := c.do(ctx, "list conversations", http.MethodGet, "/conversations", true, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// FetchMessages returns the history of a conversation, oldest first.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, domain.ErrNoConversation
	}

	var msgs []domain.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, "fetch messages", http.MethodGet, path, true, nil, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].ConversationID == "" {
			msgs[i].ConversationID = conversationID
		}
	}
	return msgs, nil
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// SendMessage persists a message and returns its canonical form.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (domain.Message, error) {
	var msg domain.Message
	req := sendMessageRequest{ConversationID: conversationID, Content: content}
	if err := c.do(ctx, "send message", http.MethodPost, "/messages", true, req, &msg); err != nil {
		return domain.Message{}, err
	}
	if msg.ID == "" {
		return domain.Message{}, errors.New("send message: response missing message id")
	}
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	return msg, nil
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, authed bool, body, out any) error {
	token := c.Token()
	if authed && token == "" {
		return fmt.Errorf("%s: %w", op, domain.ErrNoSession)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&e)
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: e.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}
