package genie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 2 * time.Second
	maxBackoffDelay    = 60 * time.Second
)

// TokenSource provides a valid bearer token. Implemented by auth.TokenMinter.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client wraps the REST surface of one conversation space. Every call fetches
// a fresh bearer token before dispatch (the token source does the caching)
// and retries transiently failing requests with exponential backoff and full
// jitter.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client

	maxAttempts int
	backoffBase time.Duration
	sleep       func(time.Duration)
}

// NewClient creates a client for the given workspace host and space id.
func NewClient(host, spaceID string, tokens TokenSource) *Client {
	base := strings.TrimRight(host, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Client{
		baseURL:     fmt.Sprintf("%s/api/2.0/genie/spaces/%s", base, spaceID),
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		sleep:       time.Sleep,
	}
}

// StartConversation opens a new remote conversation seeded with the question.
func (c *Client) StartConversation(ctx context.Context, question string) (conversationID, messageID string, err error) {
	logrus.WithField("question", truncate(question, 50)).Info("Starting conversation")

	var resp startConversationResponse
	url := c.baseURL + "/start-conversation"
	if err := c.do(ctx, http.MethodPost, url, startConversationRequest{Content: question}, &resp); err != nil {
		return "", "", err
	}
	return resp.ConversationID, resp.MessageID, nil
}

// SendMessage posts a follow-up question to an existing conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID, question string) (messageID string, err error) {
	var resp sendMessageResponse
	url := fmt.Sprintf("%s/conversations/%s/messages", c.baseURL, conversationID)
	if err := c.do(ctx, http.MethodPost, url, startConversationRequest{Content: question}, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// GetMessage fetches one turn, including its status and attachments.
func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	var msg Message
	url := fmt.Sprintf("%s/conversations/%s/messages/%s", c.baseURL, conversationID, messageID)
	if err := c.do(ctx, http.MethodGet, url, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetQueryResult fetches the materialized result of a query attachment and
// normalizes the nested statement_response shape.
func (c *Client) GetQueryResult(ctx context.Context, conversationID, messageID, attachmentID string) (*QueryResult, error) {
	var resp queryResultResponse
	url := fmt.Sprintf("%s/conversations/%s/messages/%s/attachments/%s/query-result",
		c.baseURL, conversationID, messageID, attachmentID)
	if err := c.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	return &QueryResult{
		DataArray: resp.StatementResponse.Result.DataArray,
		Schema:    resp.StatementResponse.Manifest.Schema,
	}, nil
}

// ExecuteQuery triggers server-side execution of a query attachment when its
// result is not already materialized.
func (c *Client) ExecuteQuery(ctx context.Context, conversationID, messageID, attachmentID string) error {
	url := fmt.Sprintf("%s/conversations/%s/messages/%s/attachments/%s/execute-query",
		c.baseURL, conversationID, messageID, attachmentID)
	return c.do(ctx, http.MethodPost, url, nil, nil)
}

// do dispatches one logical call with up to maxAttempts tries. Any failure
// (credential, network, non-2xx) counts as retryable at this layer; the
// orchestrator decides which exhausted failures mean what.
func (c *Client) do(ctx context.Context, method, url string, payload, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.doOnce(ctx, method, url, payload, out)
		if lastErr == nil {
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoffDelay(attempt)
		logrus.WithFields(logrus.Fields{
			"attempt": attempt,
			"url":     url,
			"error":   lastErr.Error(),
		}).Warnf("API request failed. Retrying in %.2f seconds (attempt %d)", delay.Seconds(), attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.sleep(delay)
	}
	return classify(lastErr)
}

// classify wraps plain transport failures as remote errors; typed credential
// and API errors pass through untouched.
func classify(err error) error {
	var kindErr *Error
	var apiErr *APIError
	if errors.As(err, &kindErr) || errors.As(err, &apiErr) {
		return err
	}
	return &Error{Kind: KindRemote, Err: err}
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &Error{Kind: KindCredential, Err: err}
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// backoffDelay computes an exponential delay with full jitter.
func (c *Client) backoffDelay(attempt int) time.Duration {
	ceiling := c.backoffBase << (attempt - 1)
	if ceiling > maxBackoffDelay {
		ceiling = maxBackoffDelay
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
