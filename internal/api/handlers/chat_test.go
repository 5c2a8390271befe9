package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geniechat/geniechat-backend/internal/genie"
	"github.com/geniechat/geniechat-backend/internal/repository"
	"github.com/geniechat/geniechat-backend/internal/services"
)

type stubClient struct{}

func (stubClient) StartConversation(ctx context.Context, question string) (string, string, error) {
	return "conv-1", "msg-1", nil
}

func (stubClient) SendMessage(ctx context.Context, conversationID, question string) (string, error) {
	return "msg-2", nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, conversationID, messageID, sessionID, userID string) (genie.Result, *string, error) {
	return genie.Result{Text: "resolved"}, nil, nil
}

type stubStore struct {
	ratings map[string]string
}

func (s *stubStore) SaveMessage(ctx context.Context, msg repository.Message) error { return nil }

func (s *stubStore) UpdateRating(ctx context.Context, messageID, userID string, rating *string) bool {
	if rating == nil {
		delete(s.ratings, messageID)
	} else {
		s.ratings[messageID] = *rating
	}
	return true
}

func (s *stubStore) GetRating(ctx context.Context, messageID, userID string) (*string, error) {
	if r, ok := s.ratings[messageID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *stubStore) GetChatHistory(ctx context.Context, userID string) ([]repository.SessionHistory, error) {
	return []repository.SessionHistory{}, nil
}

func (s *stubStore) SessionIDForConversation(ctx context.Context, conversationID, userID string) (string, error) {
	return "", nil
}

func (s *stubStore) ClearSessions(ctx context.Context, userID string) error { return nil }

func testApp() *fiber.App {
	svc := services.NewServices(stubClient{}, stubResolver{}, &stubStore{ratings: map[string]string{}})

	app := fiber.New()
	app.Post("/api/v1/ask", Ask(svc))
	app.Put("/api/v1/messages/:id/rating", UpdateRating(svc))
	app.Get("/api/v1/messages/:id/rating", GetRating(svc))
	return app
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAskHandler(t *testing.T) {
	app := testApp()

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/ask", `{"question":"how many rows?"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Result    genie.Result `json:"result"`
		MessageID string       `json:"message_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "resolved", body.Result.Text)
	assert.Equal(t, "msg-1", body.MessageID)
}

func TestAskHandler_RequiresQuestion(t *testing.T) {
	app := testApp()

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/ask", `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRatingHandler_RoundTrip(t *testing.T) {
	app := testApp()

	resp, err := app.Test(jsonRequest(http.MethodPut, "/api/v1/messages/msg-1/rating", `{"rating":"up"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/messages/msg-1/rating", nil))
	require.NoError(t, err)

	var body struct {
		Rating *string `json:"rating"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Rating)
	assert.Equal(t, "up", *body.Rating)
}

func TestRatingHandler_RejectsUnknownValue(t *testing.T) {
	app := testApp()

	resp, err := app.Test(jsonRequest(http.MethodPut, "/api/v1/messages/msg-1/rating", `{"rating":"sideways"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
