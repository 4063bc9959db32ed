package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/outbox"
	intsync "github.com/matheus3301/nestsync/internal/sync"
	"go.uber.org/zap"
)

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) handleTouch(w http.ResponseWriter, r *http.Request) {
	h.monitor.Touch()
	writeJSON(w, http.StatusOK, ActivityResponse{State: h.monitor.Current()})
}

func (h *Handler) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	h.monitor.SetVisible(req.Visible)
	writeJSON(w, http.StatusOK, ActivityResponse{State: h.monitor.Current()})
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	h.monitor.Touch()

	e, err := h.manager.Open(r.Context(), req.Peer())
	if err != nil {
		// The conversation stays open; the view carries the error.
		h.logger.Warn("initial conversation load failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	e, ok := h.active(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	e, ok := h.active(w)
	if !ok {
		return
	}
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	h.monitor.Touch()

	// The send finishes its retries even if the caller stops waiting.
	ctx, cancel := h.manager.Detach(r.Context())
	defer cancel()
	msg, err := e.SendMessage(ctx, req.Content)
	h.writeSendResult(w, msg, err)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	e, ok := h.active(w)
	if !ok {
		return
	}
	h.monitor.Touch()

	ctx, cancel := h.manager.Detach(r.Context())
	defer cancel()
	msg, err := e.RetryMessage(ctx, chi.URLParam(r, "id"))
	h.writeSendResult(w, msg, err)
}

func (h *Handler) writeSendResult(w http.ResponseWriter, msg model.Message, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, msg)
	case errors.Is(err, outbox.ErrInvalidMessage):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, intsync.ErrNotRetryable):
		writeError(w, http.StatusConflict, err)
	default:
		writeJSON(w, http.StatusBadGateway, Error{Error: err.Error(), Message: &msg})
	}
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	e, ok := h.active(w)
	if !ok {
		return
	}
	if err := e.MarkAsRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (h *Handler) handleMarkConversationRead(w http.ResponseWriter, r *http.Request) {
	e, ok := h.active(w)
	if !ok {
		return
	}
	if err := e.MarkConversationAsRead(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (h *Handler) handleRefreshConversation(w http.ResponseWriter, r *http.Request) {
	e, ok := h.active(w)
	if !ok {
		return
	}
	if err := e.FetchMessages(r.Context(), false); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	_ = e.RefreshUnreadCount(r.Context())
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (h *Handler) handleInbox(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Inbox().Snapshot())
}

func (h *Handler) handleRefreshInbox(w http.ResponseWriter, r *http.Request) {
	in := h.manager.Inbox()
	if err := in.Fetch(r.Context(), false); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, in.Snapshot())
}

func (h *Handler) handleInboxRead(w http.ResponseWriter, r *http.Request) {
	in := h.manager.Inbox()
	if err := in.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, in.Snapshot())
}

func (h *Handler) active(w http.ResponseWriter) (*intsync.Engine, bool) {
	e, err := h.manager.Active()
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return nil, false
	}
	return e, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, intsync.ErrNoConversation):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
