package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/nestsync/internal/api"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve starts h on a short-path Unix socket.
func serve(t *testing.T, h http.Handler) *Client {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "nestctl-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	sock := filepath.Join(dir, "d.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := &http.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return New(sock)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStatusOverSocket(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.Status{Profile: "main", UserID: "student-1", Timers: 4})
	})
	c := serve(t, r)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", st.Profile)
	assert.Equal(t, 4, st.Timers)
}

func TestSendFailureCarriesFailedMessage(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/conversation/messages", func(w http.ResponseWriter, r *http.Request) {
		var req api.SendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusBadGateway, api.Error{
			Error:   "http 500: boom",
			Message: &model.Message{ID: "temp_1_1", Content: req.Content, Status: model.StatusFailed},
		})
	})
	c := serve(t, r)

	_, err := c.Send(context.Background(), "hello")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Code)
	assert.Equal(t, "http 500: boom", apiErr.Message)
	require.NotNil(t, apiErr.Failed)
	assert.Equal(t, "hello", apiErr.Failed.Content)
}

func TestMarkReadPaths(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	r := chi.NewRouter()
	r.Post("/*", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	c := serve(t, r)

	_, err := c.MarkRead(context.Background(), "")
	require.NoError(t, err)
	_, err = c.MarkRead(context.Background(), "m1")
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/conversation/read", "/conversation/messages/m1/read"}, paths)
}

func TestErrorWithoutBody(t *testing.T) {
	c := serve(t, http.NotFoundHandler())

	_, err := c.Inbox(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestDaemonNotRunning(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}
