package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/matheus3301/nestsync/internal/api"
	"github.com/matheus3301/nestsync/internal/model"
	intsync "github.com/matheus3301/nestsync/internal/sync"
)

// ErrDaemonNotRunning is returned when nothing listens on the socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// APIError is a non-2xx control API response.
type APIError struct {
	Code    int
	Message string
	// Failed is the failed entry of a send or retry.
	Failed *model.Message
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// Client talks to a nestd daemon over its Unix socket.
type Client struct {
	socket string
	http   *http.Client
}

// New creates a client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	return &Client{
		socket: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: time.Minute,
		},
	}
}

func (c *Client) Status(ctx context.Context) (*api.Status, error) {
	var out api.Status
	return &out, c.do(ctx, http.MethodGet, "/status", nil, &out)
}

func (c *Client) Touch(ctx context.Context) (string, error) {
	var out api.ActivityResponse
	err := c.do(ctx, http.MethodPost, "/activity/touch", nil, &out)
	return string(out.State), err
}

func (c *Client) SetVisible(ctx context.Context, visible bool) (string, error) {
	var out api.ActivityResponse
	err := c.do(ctx, http.MethodPost, "/activity/visibility", api.VisibilityRequest{Visible: visible}, &out)
	return string(out.State), err
}

func (c *Client) Open(ctx context.Context, req api.OpenRequest) (*intsync.View, error) {
	var out intsync.View
	return &out, c.do(ctx, http.MethodPost, "/conversation/open", req, &out)
}

func (c *Client) Conversation(ctx context.Context) (*intsync.View, error) {
	var out intsync.View
	return &out, c.do(ctx, http.MethodGet, "/conversation", nil, &out)
}

func (c *Client) Send(ctx context.Context, content string) (*model.Message, error) {
	var out model.Message
	return &out, c.do(ctx, http.MethodPost, "/conversation/messages", api.SendRequest{Content: content}, &out)
}

func (c *Client) Retry(ctx context.Context, id string) (*model.Message, error) {
	var out model.Message
	return &out, c.do(ctx, http.MethodPost, "/conversation/messages/"+url.PathEscape(id)+"/retry", nil, &out)
}

// MarkRead marks one message read, or the whole conversation when id is empty.
func (c *Client) MarkRead(ctx context.Context, id string) (*intsync.View, error) {
	path := "/conversation/read"
	if id != "" {
		path = "/conversation/messages/" + url.PathEscape(id) + "/read"
	}
	var out intsync.View
	return &out, c.do(ctx, http.MethodPost, path, nil, &out)
}

func (c *Client) RefreshConversation(ctx context.Context) (*intsync.View, error) {
	var out intsync.View
	return &out, c.do(ctx, http.MethodPost, "/conversation/refresh", nil, &out)
}

func (c *Client) Inbox(ctx context.Context) (*intsync.InboxView, error) {
	var out intsync.InboxView
	return &out, c.do(ctx, http.MethodGet, "/inbox", nil, &out)
}

func (c *Client) RefreshInbox(ctx context.Context) (*intsync.InboxView, error) {
	var out intsync.InboxView
	return &out, c.do(ctx, http.MethodPost, "/inbox/refresh", nil, &out)
}

func (c *Client) MarkInboxRead(ctx context.Context, conversationID string) (*intsync.InboxView, error) {
	var out intsync.InboxView
	return &out, c.do(ctx, http.MethodPost, "/inbox/"+url.PathEscape(conversationID)+"/read", nil, &out)
}

// Metrics returns the Prometheus text exposition.
func (c *Client) Metrics(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://nestd/metrics", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	return string(data), err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	// The host is ignored; every request goes to the socket.
	req, err := http.NewRequestWithContext(ctx, method, "http://nestd"+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e api.Error
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Code: resp.StatusCode, Message: e.Error, Failed: e.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, fmt.Errorf("%w (socket %s)", ErrDaemonNotRunning, c.socket)
		}
		return nil, err
	}
	return resp, nil
}
