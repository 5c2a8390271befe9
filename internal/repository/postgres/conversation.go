package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/geniechat/geniechat-backend/internal/repository"
)

// ConversationRepository implements repository.ConversationStore using
// PostgreSQL. Every public method is exactly one transaction; failures roll
// back and surface to the caller (rating updates degrade to a bool instead).
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new PostgreSQL conversation store.
func NewConversationRepository(db *sqlx.DB) repository.ConversationStore {
	return &ConversationRepository{db: db}
}

// SaveMessage inserts the message and, when this is the first message of the
// session, the session row seeded with the message content as first_query.
// Both inserts share one transaction so a session without its message (or the
// reverse) is never observable.
func (r *ConversationRepository) SaveMessage(ctx context.Context, msg repository.Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.GetContext(ctx, &existing,
		`SELECT session_id FROM sessions WHERE session_id = $1 AND user_id = $2`,
		msg.SessionID, msg.UserID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if err == sql.ErrNoRows {
		logrus.WithFields(logrus.Fields{
			"session_id": msg.SessionID,
			"user_id":    msg.UserID,
		}).Info("Creating new session")

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (session_id, user_id, conversation_id, first_query, created_at, is_active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
		`, msg.SessionID, msg.UserID, msg.ConversationID, msg.Content, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO messages (
			message_id, genie_message_id, session_id, conversation_id, user_id,
			content, role, status, query_text, created_at
		) VALUES (
			:message_id, :genie_message_id, :session_id, :conversation_id, :user_id,
			:content, :role, 'COMPLETED', :query_text, :created_at
		)
	`, msg)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return tx.Commit()
}

// UpdateRating upserts or deletes the rating for (message_id, user_id). A nil
// rating removes the row; removing an absent row is not an error.
func (r *ConversationRepository) UpdateRating(ctx context.Context, messageID, userID string, rating *string) bool {
	var err error
	if rating == nil {
		_, err = r.db.ExecContext(ctx,
			`DELETE FROM ratings WHERE message_id = $1 AND user_id = $2`,
			messageID, userID)
	} else {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO ratings (message_id, user_id, rating)
			VALUES ($1, $2, $3)
			ON CONFLICT (message_id, user_id) DO UPDATE SET rating = EXCLUDED.rating
		`, messageID, userID, *rating)
	}

	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"message_id": messageID,
			"user_id":    userID,
		}).Error("Failed to update message rating")
		return false
	}
	return true
}

// GetRating returns the user's rating of a message, nil when unrated.
func (r *ConversationRepository) GetRating(ctx context.Context, messageID, userID string) (*string, error) {
	var rating string
	err := r.db.GetContext(ctx, &rating,
		`SELECT rating FROM ratings WHERE message_id = $1 AND user_id = $2`,
		messageID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	return &rating, nil
}

// GetChatHistory returns sessions newest-first, each with its messages
// oldest-first. An empty userID returns every session.
func (r *ConversationRepository) GetChatHistory(ctx context.Context, userID string) ([]repository.SessionHistory, error) {
	var sessions []repository.Session
	var err error
	if userID == "" {
		err = r.db.SelectContext(ctx, &sessions,
			`SELECT session_id, user_id, conversation_id, first_query, created_at, is_active
			 FROM sessions ORDER BY created_at DESC`)
	} else {
		err = r.db.SelectContext(ctx, &sessions,
			`SELECT session_id, user_id, conversation_id, first_query, created_at, is_active
			 FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	history := make([]repository.SessionHistory, 0, len(sessions))
	for _, session := range sessions {
		var messages []repository.Message
		err = r.db.SelectContext(ctx, &messages, `
			SELECT message_id, genie_message_id, session_id, conversation_id, user_id,
			       content, role, status, query_text, created_at
			FROM messages WHERE session_id = $1 ORDER BY created_at ASC
		`, session.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to list messages for session %s: %w", session.SessionID, err)
		}
		history = append(history, repository.SessionHistory{Session: session, Messages: messages})
	}

	return history, nil
}

// SessionIDForConversation returns the session already recorded for a
// conversation, or empty when the conversation has no local session yet.
func (r *ConversationRepository) SessionIDForConversation(ctx context.Context, conversationID, userID string) (string, error) {
	var sessionID string
	err := r.db.GetContext(ctx, &sessionID, `
		SELECT session_id FROM sessions
		WHERE conversation_id = $1 AND user_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, conversationID, userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up session for conversation: %w", err)
	}
	return sessionID, nil
}

// ClearSessions wipes a user's ratings, messages and sessions, children
// first, in one transaction.
func (r *ConversationRepository) ClearSessions(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM ratings WHERE message_id IN (
			SELECT message_id FROM messages WHERE user_id = $1
		)
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear ratings: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	logrus.WithField("user_id", userID).Info("Cleared chat history")
	return tx.Commit()
}
