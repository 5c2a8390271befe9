package repository

import "context"

// ConversationStore is the durable record of sessions, messages and ratings.
type ConversationStore interface {
	// SaveMessage inserts the message, creating its session first if no row
	// exists for (session_id, user_id). Both writes share one transaction.
	SaveMessage(ctx context.Context, msg Message) error

	// UpdateRating upserts the rating for (message_id, user_id); a nil rating
	// deletes it. Returns false instead of an error so a rating glitch never
	// blocks chat rendering.
	UpdateRating(ctx context.Context, messageID, userID string, rating *string) bool

	// GetRating returns the stored rating, or nil when the user has not
	// rated the message.
	GetRating(ctx context.Context, messageID, userID string) (*string, error)

	// GetChatHistory returns sessions newest-first with their messages
	// oldest-first. An empty userID returns every session (admin path).
	GetChatHistory(ctx context.Context, userID string) ([]SessionHistory, error)

	// SessionIDForConversation returns the session id already recorded for a
	// conversation, or empty when none exists yet.
	SessionIDForConversation(ctx context.Context, conversationID, userID string) (string, error)

	// ClearSessions removes a user's ratings, messages and sessions in one
	// transaction. Administrative operation.
	ClearSessions(ctx context.Context, userID string) error
}
