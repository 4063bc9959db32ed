package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/nestsync/internal/model"
)

// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, msg)
}

// Is makes a 404 match model.ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == model.ErrNotFound && e.Code == http.StatusNotFound
}

// Client talks to the marketplace messaging API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage submits a new message.
func (c *Client) SendMessage(ctx context.Context, req model.SendRequest) (*model.Message, error) {
	var out model.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConversation returns one page of the conversation between two users.
func (c *Client) GetConversation(ctx context.Context, userID1, userID2 string, q model.ConversationQuery) (*model.ConversationPage, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
	}
	if q.SortOrder != "" {
		params.Set("sortOrder", q.SortOrder)
	}
	if q.PropertyID != "" {
		params.Set("propertyId", q.PropertyID)
	}
	var out model.ConversationPage
	path := "/api/messages/conversation/" + url.PathEscape(userID1) + "/" + url.PathEscape(userID2)
	if err := c.do(ctx, http.MethodGet, path, params, nil, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []model.Message{}
	}
	return &out, nil
}

// MarkAsRead marks one message read.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) (*model.Message, error) {
	var out model.Message
	if err := c.do(ctx, http.MethodPatch, "/api/messages/"+url.PathEscape(messageID)+"/read", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkConversationAsRead marks every message from userID2 to userID1 read.
func (c *Client) MarkConversationAsRead(ctx context.Context, userID1, userID2 string) error {
	path := "/api/messages/conversation/" + url.PathEscape(userID1) + "/" + url.PathEscape(userID2) + "/read"
	return c.do(ctx, http.MethodPatch, path, nil, nil, nil)
}

// GetUnreadCount returns how many messages addressed to userID are unread.
func (c *Client) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	var out model.UnreadCount
	if err := c.do(ctx, http.MethodGet, "/api/messages/unread/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

// GetConversationsList returns the inbox of ownerID.
func (c *Client) GetConversationsList(ctx context.Context, ownerID string) (*model.ConversationList, error) {
	var out model.ConversationList
	if err := c.do(ctx, http.MethodGet, "/api/messages/conversations/"+url.PathEscape(ownerID), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Conversations == nil {
		out.Conversations = []model.Conversation{}
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return fmt.Errorf("%s %s: empty body: %w", method, path, ErrMalformedResponse)
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrMalformedResponse, err)
	}
	return nil
}

// errorMessage extracts {"message": "..."} or {"error": "..."} bodies.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return string(data)
}
