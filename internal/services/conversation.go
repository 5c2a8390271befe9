package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/geniechat/geniechat-backend/internal/genie"
	"github.com/geniechat/geniechat-backend/internal/repository"
)

// DefaultUserID identifies the single assumed user; there is no end-user
// authentication in this deployment.
const DefaultUserID = "default_user"

// User-facing failure messages. The orchestrator never lets an error reach
// the UI; every failure path resolves to one of these.
const (
	highDemandMessage = "Sorry, the system is currently experiencing high demand. " +
		"Please try again in a few moments."
	expiredConversationMessage = "Sorry, the previous conversation has expired. " +
		"Please try your query again to start a new conversation."
)

// ConversationClient is the slice of the remote client the orchestrator uses.
type ConversationClient interface {
	StartConversation(ctx context.Context, question string) (conversationID, messageID string, err error)
	SendMessage(ctx context.Context, conversationID, question string) (messageID string, err error)
}

// ResponseResolver turns a submitted remote message into a final result.
type ResponseResolver interface {
	Resolve(ctx context.Context, conversationID, messageID, sessionID, userID string) (genie.Result, *string, error)
}

// ConversationService is the entry point the UI calls: ask a fresh question
// or continue an existing conversation. It wires the remote client, the
// resolver and the store together and maps failures to readable text.
type ConversationService struct {
	client   ConversationClient
	resolver ResponseResolver
	store    repository.ConversationStore
	userID   string
}

// NewConversationService creates the orchestrator for the fixed user.
func NewConversationService(client ConversationClient, resolver ResponseResolver, store repository.ConversationStore) *ConversationService {
	return &ConversationService{
		client:   client,
		resolver: resolver,
		store:    store,
		userID:   DefaultUserID,
	}
}

// Ask starts a fresh remote conversation for the question, persists the user
// turn, waits for the answer and returns it. Each call is its own remote
// conversation; threading a conversation through the UI session is handled by
// Continue. Failures come back as readable text with nil provenance, never as
// an error.
func (s *ConversationService) Ask(ctx context.Context, question string) (genie.Result, *string, string) {
	sessionID := uuid.New().String()

	conversationID, messageID, err := s.client.StartConversation(ctx, question)
	if err != nil {
		logrus.WithError(err).Error("Failed to start conversation")
		return s.failure(err), nil, ""
	}

	if err := s.saveUserMessage(ctx, sessionID, conversationID, messageID, question); err != nil {
		logrus.WithError(err).Error("Failed to save user message")
		return s.failure(err), nil, ""
	}

	result, queryText, err := s.resolver.Resolve(ctx, conversationID, messageID, sessionID, s.userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to resolve response")
		return s.failure(err), nil, ""
	}

	return result, queryText, messageID
}

// Continue sends a follow-up question into an existing remote conversation.
// Known remote-state failures (rate limiting, expired conversation) map to
// dedicated messages; everything else falls back to the generic text.
func (s *ConversationService) Continue(ctx context.Context, conversationID, question string) (genie.Result, *string) {
	logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
	}).Info("Continuing conversation")

	messageID, err := s.client.SendMessage(ctx, conversationID, question)
	if err != nil {
		return s.continueFailure(err), nil
	}

	sessionID, err := s.store.SessionIDForConversation(ctx, conversationID, s.userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to look up session for conversation")
		return s.continueFailure(err), nil
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	if err := s.saveUserMessage(ctx, sessionID, conversationID, messageID, question); err != nil {
		logrus.WithError(err).Error("Failed to save user message")
		return s.continueFailure(err), nil
	}

	result, queryText, err := s.resolver.Resolve(ctx, conversationID, messageID, sessionID, s.userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to resolve follow-up response")
		return s.continueFailure(err), nil
	}

	return result, queryText
}

// SetRating records, changes or removes the user's thumbs rating of a
// message. Returns false on failure instead of an error so a rating glitch
// never blocks chat rendering.
func (s *ConversationService) SetRating(ctx context.Context, messageID, userID string, rating *string) bool {
	if userID == "" {
		userID = s.userID
	}
	return s.store.UpdateRating(ctx, messageID, userID, rating)
}

// GetRating returns the user's stored rating of a message, nil when unrated.
func (s *ConversationService) GetRating(ctx context.Context, messageID, userID string) (*string, error) {
	if userID == "" {
		userID = s.userID
	}
	return s.store.GetRating(ctx, messageID, userID)
}

// History returns the user's sessions newest-first with their messages.
func (s *ConversationService) History(ctx context.Context, userID string) ([]repository.SessionHistory, error) {
	return s.store.GetChatHistory(ctx, userID)
}

// ClearHistory wipes the user's persisted sessions. Administrative.
func (s *ConversationService) ClearHistory(ctx context.Context, userID string) error {
	if userID == "" {
		userID = s.userID
	}
	return s.store.ClearSessions(ctx, userID)
}

func (s *ConversationService) saveUserMessage(ctx context.Context, sessionID, conversationID, genieMessageID, content string) error {
	msg := repository.Message{
		MessageID:      uuid.New().String(),
		GenieMessageID: genieMessageID,
		SessionID:      sessionID,
		ConversationID: conversationID,
		UserID:         s.userID,
		Content:        content,
		Role:           repository.RoleUser,
		CreatedAt:      time.Now().UTC(),
	}
	return s.store.SaveMessage(ctx, msg)
}

func (s *ConversationService) failure(err error) genie.Result {
	return genie.Result{Text: fmt.Sprintf("Sorry, an error occurred: %v. Please try again.", err)}
}

func (s *ConversationService) continueFailure(err error) genie.Result {
	switch {
	case isRateLimited(err):
		return genie.Result{Text: highDemandMessage}
	case isConversationNotFound(err):
		return genie.Result{Text: expiredConversationMessage}
	default:
		return genie.Result{Text: fmt.Sprintf("Sorry, an error occurred: %v", err)}
	}
}

// isRateLimited matches HTTP 429 by status where the typed error survived,
// falling back to the response text the service is known to send.
func isRateLimited(err error) bool {
	var apiErr *genie.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	return strings.Contains(err.Error(), "429") || strings.Contains(err.Error(), "Too Many Requests")
}

// isConversationNotFound matches the expired-conversation condition, which
// the service reports only as body text.
func isConversationNotFound(err error) bool {
	return strings.Contains(err.Error(), "Conversation not found")
}
