package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matheus3301/nestsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithToken("tok"), WithHTTPClient(srv.Client()))
}

func TestGetConversationRequest(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/messages/conversation/s1/l1", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "createdAt", q.Get("sortBy"))
		assert.Equal(t, "desc", q.Get("sortOrder"))
		assert.Equal(t, "p1", q.Get("propertyId"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","content":"hi","senderId":"l1","receiverId":"s1","createdAt":"2026-09-01T10:00:00Z","isRead":false}],"pagination":{"page":1,"totalPages":1,"total":1}}`))
	})

	page, err := c.GetConversation(context.Background(), "s1", "l1", model.ConversationQuery{
		Page: 1, Limit: 50, SortBy: "createdAt", SortOrder: "desc", PropertyID: "p1",
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].ID)
	assert.Equal(t, 2026, page.Messages[0].CreatedAt.Year())
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestSendMessageRequest(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req model.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Content)
		assert.Equal(t, "landlord", req.ReceiverType)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.Message{ID: "m9", Content: req.Content})
	})

	msg, err := c.SendMessage(context.Background(), model.SendRequest{
		SenderID: "s1", ReceiverID: "l1", Content: "hello", PropertyID: "p1", ReceiverType: "landlord",
	})
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"No messages found"}`))
	})

	_, err := c.GetUnreadCount(context.Background(), "u1")
	require.ErrorIs(t, err, model.ErrNotFound)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "No messages found", se.Body)
}

func TestServerErrorIsNotNotFound(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	err := c.MarkConversationAsRead(context.Background(), "s1", "l1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, err.Error(), "502")
}

func TestMalformedResponse(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"conversations": [`))
	})

	_, err := c.GetConversationsList(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/messages/unread/u1":
			_, _ = w.Write([]byte(`{"unreadCount":7}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/api/messages/m1/read":
			_, _ = w.Write([]byte(`{"id":"m1","isRead":true}`))
		default:
			http.NotFound(w, r)
		}
	})

	n, err := c.GetUnreadCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	msg, err := c.MarkAsRead(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, msg.IsRead)
}
