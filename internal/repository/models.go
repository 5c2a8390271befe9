package repository

import "time"

// Message is one persisted turn of a conversation. Rows are append-only: a
// turn is written exactly once, after it has fully resolved.
type Message struct {
	MessageID      string    `db:"message_id" json:"message_id"`
	GenieMessageID string    `db:"genie_message_id" json:"genie_message_id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Content        string    `db:"content" json:"content"`
	Role           string    `db:"role" json:"role"`
	Status         string    `db:"status" json:"status"`
	QueryText      *string   `db:"query_text" json:"query_text,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Session groups the messages of one conversation for one user. Created on
// the first message and never mutated afterwards except is_active.
type Session struct {
	SessionID      string    `db:"session_id" json:"session_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	FirstQuery     string    `db:"first_query" json:"first_query"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	IsActive       bool      `db:"is_active" json:"is_active"`
}

// SessionHistory is a session with its messages, oldest first, used to
// rehydrate UI state.
type SessionHistory struct {
	Session
	Messages []Message `json:"messages"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
