package genie

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/geniechat/geniechat-backend/internal/repository"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 300 * time.Second

	// noResponseText is returned (and persisted as an ordinary assistant
	// turn) when a completed message yields no content at all.
	noResponseText = "No response available"
)

// MessageFetcher is the slice of the client the resolver needs.
type MessageFetcher interface {
	GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error)
	GetQueryResult(ctx context.Context, conversationID, messageID, attachmentID string) (*QueryResult, error)
}

// Resolver polls a remote message until it reaches a terminal status, then
// extracts a normalized text or tabular result from its attachments and
// persists the assistant turn before returning it.
type Resolver struct {
	client MessageFetcher
	store  repository.ConversationStore

	pollInterval time.Duration
	timeout      time.Duration

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewResolver creates a resolver with the default 2s poll interval and 300s
// deadline.
func NewResolver(client MessageFetcher, store repository.ConversationStore) *Resolver {
	return &Resolver{
		client:       client,
		store:        store,
		pollInterval: defaultPollInterval,
		timeout:      defaultPollTimeout,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// Resolve blocks until the message completes or the deadline passes, then
// returns the extracted result, the SQL that produced it (nil for prose) and
// the remote message id. The assistant turn is durably recorded before any
// return.
func (r *Resolver) Resolve(ctx context.Context, conversationID, messageID, sessionID, userID string) (Result, *string, error) {
	msg, err := r.waitForCompletion(ctx, conversationID, messageID)
	if err != nil {
		return Result{}, nil, err
	}
	return r.extract(ctx, conversationID, messageID, sessionID, userID, msg)
}

// waitForCompletion polls until the message status is terminal or the
// deadline elapses. A deadline overrun is a timeout error, distinct from
// remote-service failures.
func (r *Resolver) waitForCompletion(ctx context.Context, conversationID, messageID string) (*Message, error) {
	start := r.now()
	for r.now().Sub(start) < r.timeout {
		msg, err := r.client.GetMessage(ctx, conversationID, messageID)
		if err != nil {
			return nil, err
		}

		switch msg.Status {
		case StatusCompleted, StatusError, StatusFailed:
			return msg, nil
		}

		r.sleep(r.pollInterval)
	}

	return nil, &Error{
		Kind: KindTimeout,
		Err:  fmt.Errorf("message processing timed out after %s", r.timeout),
	}
}

// extract walks the attachment list in order; the first attachment yielding
// text or non-empty tabular data wins. With no usable attachment the
// message's own content is the answer, and failing that a fixed literal.
func (r *Resolver) extract(ctx context.Context, conversationID, messageID, sessionID, userID string, msg *Message) (Result, *string, error) {
	for _, att := range msg.Attachments {
		if att.Text != nil && att.Text.Content != "" {
			content := att.Text.Content
			if err := r.persist(ctx, conversationID, messageID, sessionID, userID, content, nil); err != nil {
				return Result{}, nil, err
			}
			return Result{Text: content}, nil, nil
		}

		if att.Query != nil {
			queryText := att.Query.Query
			qr, err := r.client.GetQueryResult(ctx, conversationID, messageID, att.AttachmentID)
			if err != nil {
				return Result{}, nil, err
			}

			table := buildTable(qr)
			if table == nil {
				// schema but no rows: treat as no data, keep looking
				continue
			}

			content, err := json.Marshal(table)
			if err != nil {
				return Result{}, nil, err
			}
			if err := r.persist(ctx, conversationID, messageID, sessionID, userID, string(content), &queryText); err != nil {
				return Result{}, nil, err
			}
			return Result{Table: table}, &queryText, nil
		}
	}

	if msg.Content != "" {
		if err := r.persist(ctx, conversationID, messageID, sessionID, userID, msg.Content, nil); err != nil {
			return Result{}, nil, err
		}
		return Result{Text: msg.Content}, nil, nil
	}

	if err := r.persist(ctx, conversationID, messageID, sessionID, userID, noResponseText, nil); err != nil {
		return Result{}, nil, err
	}
	return Result{Text: noResponseText}, nil, nil
}

// buildTable shapes a query result into named columns over rows. Missing
// schema columns are synthesized positionally from the first row's width.
// Returns nil for an empty result set.
func buildTable(qr *QueryResult) *Table {
	if len(qr.DataArray) == 0 {
		return nil
	}

	columns := make([]string, 0, len(qr.Schema.Columns))
	for _, col := range qr.Schema.Columns {
		columns = append(columns, col.Name)
	}
	if len(columns) == 0 {
		for i := range qr.DataArray[0] {
			columns = append(columns, fmt.Sprintf("column_%d", i))
		}
	}

	return &Table{Columns: columns, Rows: qr.DataArray}
}

func (r *Resolver) persist(ctx context.Context, conversationID, genieMessageID, sessionID, userID, content string, queryText *string) error {
	msg := repository.Message{
		MessageID:      uuid.New().String(),
		GenieMessageID: genieMessageID,
		SessionID:      sessionID,
		ConversationID: conversationID,
		UserID:         userID,
		Content:        content,
		Role:           repository.RoleAssistant,
		CreatedAt:      r.now().UTC(),
		QueryText:      queryText,
	}
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		logrus.WithError(err).Error("Failed to save assistant message")
		return &Error{Kind: KindPersistence, Err: err}
	}
	return nil
}
