package services

import (
	"github.com/geniechat/geniechat-backend/internal/repository"
)

// Services holds the service layer handed to the API surface.
type Services struct {
	Conversation *ConversationService
}

// NewServices wires the service layer together.
func NewServices(client ConversationClient, resolver ResponseResolver, store repository.ConversationStore) *Services {
	return &Services{
		Conversation: NewConversationService(client, resolver, store),
	}
}
