package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/store"
	"go.uber.org/zap"
)

const maxPageLimit = 100

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.UpsertUser(&store.User{ID: req.SenderID}); err != nil {
		s.internalError(w, "upsert sender", err)
		return
	}
	if err := s.db.UpsertUser(&store.User{ID: req.ReceiverID, Role: req.ReceiverType}); err != nil {
		s.internalError(w, "upsert receiver", err)
		return
	}
	if err := s.db.UpsertProperty(&store.Property{ID: req.PropertyID}); err != nil {
		s.internalError(w, "upsert property", err)
		return
	}

	m := store.Message{
		ID:         uuid.NewString(),
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		PropertyID: req.PropertyID,
		Content:    req.Content,
		CreatedAt:  s.now().UnixMilli(),
	}
	if err := s.db.InsertMessage(&m); err != nil {
		s.internalError(w, "insert message", err)
		return
	}
	writeJSON(w, http.StatusCreated, toModel(m))
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = 50
	}
	if sortBy := q.Get("sortBy"); sortBy != "" && sortBy != "createdAt" {
		writeError(w, http.StatusBadRequest, "unsupported sortBy "+sortBy)
		return
	}

	msgs, total, err := s.db.ConversationMessages(store.ConversationFilter{
		UserID1:    chi.URLParam(r, "userID1"),
		UserID2:    chi.URLParam(r, "userID2"),
		PropertyID: q.Get("propertyId"),
		Page:       page,
		Limit:      limit,
		Desc:       strings.EqualFold(q.Get("sortOrder"), "desc"),
	})
	if err != nil {
		s.internalError(w, "list conversation", err)
		return
	}
	if total == 0 {
		writeError(w, http.StatusNotFound, "No messages found")
		return
	}

	out := model.ConversationPage{
		Messages: make([]model.Message, 0, len(msgs)),
		Pagination: model.Pagination{
			Page:       page,
			TotalPages: max(1, (total+limit-1)/limit),
			Total:      total,
		},
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, toModel(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	m, err := s.db.MarkRead(chi.URLParam(r, "messageID"))
	if err != nil {
		s.internalError(w, "mark read", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	writeJSON(w, http.StatusOK, toModel(*m))
}

func (s *Server) handleMarkConversationRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.db.MarkConversationRead(chi.URLParam(r, "userID1"), chi.URLParam(r, "userID2"))
	if err != nil {
		s.internalError(w, "mark conversation read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	u, err := s.db.GetUser(userID)
	if err != nil {
		s.internalError(w, "get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	n, err := s.db.UnreadCount(userID)
	if err != nil {
		s.internalError(w, "unread count", err)
		return
	}
	writeJSON(w, http.StatusOK, model.UnreadCount{UnreadCount: n})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "userID")
	summaries, err := s.db.Conversations(owner)
	if err != nil {
		s.internalError(w, "list conversations", err)
		return
	}
	if len(summaries) == 0 {
		writeError(w, http.StatusNotFound, "No conversations found")
		return
	}

	me, err := s.user(owner)
	if err != nil {
		s.internalError(w, "get user", err)
		return
	}
	out := model.ConversationList{Conversations: make([]model.Conversation, 0, len(summaries))}
	for _, sum := range summaries {
		other, err := s.user(sum.CounterpartID)
		if err != nil {
			s.internalError(w, "get user", err)
			return
		}
		last := toModel(sum.Last)
		conv := model.Conversation{
			ID:           ConversationID(owner, sum.CounterpartID, sum.PropertyID),
			Participants: []model.User{me, other},
			LastMessage:  &last,
			UnreadCount:  sum.UnreadCount,
			UpdatedAt:    last.CreatedAt,
		}
		if sum.PropertyID != "" {
			ref := model.PropertyRef{ID: sum.PropertyID}
			p, err := s.db.GetProperty(sum.PropertyID)
			if err != nil {
				s.internalError(w, "get property", err)
				return
			}
			if p != nil {
				ref.Title = p.Title
			}
			conv.Property = &ref
		}
		out.Conversations = append(out.Conversations, conv)
		out.TotalUnreadCount += sum.UnreadCount
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) user(id string) (model.User, error) {
	u, err := s.db.GetUser(id)
	if err != nil {
		return model.User{}, err
	}
	if u == nil {
		return model.User{ID: id}, nil
	}
	return model.User{ID: u.ID, Name: u.Name, Role: u.Role}, nil
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// ConversationID is the stable id of the conversation between two users about
// one property, independent of who asks.
func ConversationID(a, b, propertyID string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b + "_" + propertyID
}

func toModel(m store.Message) model.Message {
	return model.Message{
		ID:         m.ID,
		Content:    m.Content,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		PropertyID: m.PropertyID,
		CreatedAt:  time.UnixMilli(m.CreatedAt).UTC(),
		IsRead:     m.IsRead,
		IsEdited:   m.IsEdited,
	}
}
