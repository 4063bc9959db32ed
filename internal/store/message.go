package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const messageColumns = `id, sender_id, receiver_id, property_id, content, is_read, is_edited, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var m Message
	err := s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.PropertyID, &m.Content, &m.IsRead, &m.IsEdited, &m.CreatedAt)
	return m, err
}

// InsertMessage stores a new message.
func (db *DB) InsertMessage(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.ReceiverID, m.PropertyID, m.Content, m.IsRead, m.IsEdited, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage returns the message with id, or nil if there is none.
func (db *DB) GetMessage(id string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ConversationMessages returns one page of the messages exchanged between
// two users, optionally limited to one property, and the total count.
func (db *DB) ConversationMessages(f ConversationFilter) ([]Message, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	where := `((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`
	args := []any{f.UserID1, f.UserID2, f.UserID2, f.UserID1}
	if f.PropertyID != "" {
		where += ` AND property_id = ?`
		args = append(args, f.PropertyID)
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversation: %w", err)
	}

	order := "ASC"
	if f.Desc {
		order = "DESC"
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE `+where+`
		ORDER BY created_at `+order+`, id `+order+`
		LIMIT ? OFFSET ?`,
		append(args, f.Limit, (f.Page-1)*f.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, m)
	}
	return msgs, total, rows.Err()
}

// MarkRead marks one message read and returns it, or nil if there is none.
func (db *DB) MarkRead(id string) (*Message, error) {
	res, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return db.GetMessage(id)
}

// MarkConversationRead marks every message sent by from to reader read and
// returns how many changed.
func (db *DB) MarkConversationRead(reader, from string) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages SET is_read = 1
		WHERE receiver_id = ? AND sender_id = ? AND is_read = 0`, reader, from)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return res.RowsAffected()
}

// UnreadCount returns how many messages addressed to userID are unread.
func (db *DB) UnreadCount(userID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0`, userID).Scan(&n)
	return n, err
}

// Conversations returns one summary per (counterpart, property) pair userID
// has exchanged messages in, most recent first.
func (db *DB) Conversations(userID string) ([]ConversationSummary, error) {
	rows, err := db.Query(`
		WITH mine AS (
			SELECT *,
				CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS counterpart
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
		),
		ranked AS (
			SELECT *,
				ROW_NUMBER() OVER (PARTITION BY counterpart, property_id ORDER BY created_at DESC, id DESC) AS rn
			FROM mine
		)
		SELECT r.counterpart, `+prefixed("r", messageColumns)+`,
			(SELECT COUNT(*) FROM mine u
			 WHERE u.counterpart = r.counterpart AND u.property_id = r.property_id
			   AND u.receiver_id = ? AND u.is_read = 0) AS unread
		FROM ranked r
		WHERE r.rn = 1
		ORDER BY r.created_at DESC, r.id DESC`, userID, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		m := &s.Last
		if err := rows.Scan(&s.CounterpartID, &m.ID, &m.SenderID, &m.ReceiverID, &m.PropertyID, &m.Content, &m.IsRead, &m.IsEdited, &m.CreatedAt, &s.UnreadCount); err != nil {
			return nil, err
		}
		s.PropertyID = m.PropertyID
		out = append(out, s)
	}
	return out, rows.Err()
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
