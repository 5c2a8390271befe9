package genie

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geniechat/geniechat-backend/internal/repository"
)

type fakeFetcher struct {
	messages    []*Message // returned in order; last one repeats
	queryResult *QueryResult
	queryErr    error
	getCalls    int
}

func (f *fakeFetcher) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	f.getCalls++
	idx := f.getCalls - 1
	if idx >= len(f.messages) {
		idx = len(f.messages) - 1
	}
	return f.messages[idx], nil
}

func (f *fakeFetcher) GetQueryResult(ctx context.Context, conversationID, messageID, attachmentID string) (*QueryResult, error) {
	return f.queryResult, f.queryErr
}

type recordingStore struct {
	saved   []repository.Message
	saveErr error
}

func (s *recordingStore) SaveMessage(ctx context.Context, msg repository.Message) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, msg)
	return nil
}

func (s *recordingStore) UpdateRating(ctx context.Context, messageID, userID string, rating *string) bool {
	return true
}

func (s *recordingStore) GetRating(ctx context.Context, messageID, userID string) (*string, error) {
	return nil, nil
}

func (s *recordingStore) GetChatHistory(ctx context.Context, userID string) ([]repository.SessionHistory, error) {
	return nil, nil
}

func (s *recordingStore) SessionIDForConversation(ctx context.Context, conversationID, userID string) (string, error) {
	return "", nil
}

func (s *recordingStore) ClearSessions(ctx context.Context, userID string) error {
	return nil
}

func newTestResolver(fetcher *fakeFetcher, store *recordingStore) *Resolver {
	r := NewResolver(fetcher, store)
	r.sleep = func(time.Duration) {}
	return r
}

func completed(attachments ...Attachment) *Message {
	return &Message{ID: "msg-1", Status: StatusCompleted, Attachments: attachments}
}

func TestResolver_TextAttachmentWinsOverQuery(t *testing.T) {
	fetcher := &fakeFetcher{
		messages: []*Message{completed(
			Attachment{AttachmentID: "att-1", Text: &TextAttachment{Content: "hi"}},
			Attachment{AttachmentID: "att-2", Query: &QueryAttachment{Query: "SELECT 1"}},
		)},
	}
	store := &recordingStore{}

	result, queryText, err := newTestResolver(fetcher, store).Resolve(
		context.Background(), "conv-1", "msg-1", "sess-1", "default_user")
	require.NoError(t, err)

	assert.Equal(t, "hi", result.Text)
	assert.False(t, result.IsTable())
	assert.Nil(t, queryText)

	require.Len(t, store.saved, 1)
	assert.Equal(t, repository.RoleAssistant, store.saved[0].Role)
	assert.Equal(t, "hi", store.saved[0].Content)
	assert.Nil(t, store.saved[0].QueryText)
	assert.Equal(t, "msg-1", store.saved[0].GenieMessageID)
	assert.Equal(t, "sess-1", store.saved[0].SessionID)
}

func TestResolver_TabularResultCapturesProvenance(t *testing.T) {
	fetcher := &fakeFetcher{
		messages: []*Message{completed(
			Attachment{AttachmentID: "att-1", Query: &QueryAttachment{Query: "SELECT id, label FROM t"}},
		)},
		queryResult: &QueryResult{
			DataArray: [][]any{{"1", "a"}, {"2", "b"}},
			Schema:    ResultSchema{Columns: []ColumnInfo{{Name: "id"}, {Name: "label"}}},
		},
	}
	store := &recordingStore{}

	result, queryText, err := newTestResolver(fetcher, store).Resolve(
		context.Background(), "conv-1", "msg-1", "sess-1", "default_user")
	require.NoError(t, err)

	require.True(t, result.IsTable())
	assert.Equal(t, []string{"id", "label"}, result.Table.Columns)
	assert.Len(t, result.Table.Rows, 2)
	require.NotNil(t, queryText)
	assert.Equal(t, "SELECT id, label FROM t", *queryText)

	require.Len(t, store.saved, 1)
	require.NotNil(t, store.saved[0].QueryText)
	assert.Equal(t, "SELECT id, label FROM t", *store.saved[0].QueryText)
}

func TestResolver_MissingSchemaSynthesizesColumns(t *testing.T) {
	fetcher := &fakeFetcher{
		messages: []*Message{completed(
			Attachment{AttachmentID: "att-1", Query: &QueryAttachment{Query: "SELECT * FROM t"}},
		)},
		queryResult: &QueryResult{
			DataArray: [][]any{{float64(1), "a"}, {float64(2), "b"}},
		},
	}
	store := &recordingStore{}

	result, _, err := newTestResolver(fetcher, store).Resolve(
		context.Background(), "conv-1", "msg-1", "sess-1", "default_user")
	require.NoError(t, err)

	require.True(t, result.IsTable())
	assert.Equal(t, []string{"column_0", "column_1"}, result.Table.Columns)
}

func TestResolver_EmptyResultFallsThroughToContent(t *testing.T) {
	msg := completed(
		Attachment{AttachmentID: "att-1", Query: &QueryAttachment{Query: "SELECT * FROM empty"}},
	)
	msg.Content = "I found no matching rows."
	fetcher := &fakeFetcher{
		messages: []*Message{msg},
		queryResult: &QueryResult{
			Schema: ResultSchema{Columns: []ColumnInfo{{Name: "id"}}},
		},
	}
	store := &recordingStore{}

	result, queryText, err := newTestResolver(fetcher, store).Resolve(
		context.Background(), "conv-1", "msg-1", "sess-1", "default_user")
	require.NoError(t, err)

	assert.Equal(t, "I found no matching rows.", result.Text)
	assert.Nil(t, queryText)
}

func TestResolver_NothingYieldsFixedLiteral(t *testing.T) {
	fetcher := &fakeFetcher{messages: []*Message{completed()}}
	store := &recordingStore{}

	result, queryText, err := newTestResolver(fetcher, store).Resolve(
		context.Background(), "conv-1", "msg-1", "sess-1", "default_user")
	require.NoError(t, err)

	assert.Equal(t, "No response available", result.Text)
	assert.Nil(t, queryText)

	// persisted as an ordinary assistant turn, not an error
	require.Len(t, store.saved, 1)
	assert.Equal(t, "No response available", store.saved[0].Content)
	assert.Equal(t, repository.RoleAssistant, store.saved[0].Role)
}

func TestResolver_TimesOutAtDeadline(t *testing.T) {
	fetcher := &fakeFetcher{
		messages: []*Message{{ID: "msg-1", Status: "RUNNING"}},
	}
	store := &recordingStore{}

	r := NewResolver(fetcher, store)
	r.pollInterval = 2 * time.Second
	r.timeout = 4 * time.Second

	clock := time.Unix(0, 0)
	r.now = func() time.Time { return clock }
	r.sleep = func(d time.Duration) { clock = clock.Add(d) }

	_, _, err := r.Resolve(context.Background(), "conv-1", "msg-1", "sess-1", "default_user")
	require.Error(t, err)

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindTimeout, gerr.Kind)

	// polled at t=0 and t=2, then the 4s deadline cut the loop; not earlier
	assert.Equal(t, 2, fetcher.getCalls)
	assert.Empty(t, store.saved)
}

func TestResolver_PollsUntilTerminalStatus(t *testing.T) {
	fetcher := &fakeFetcher{
		messages: []*Message{
			{ID: "msg-1", Status: "SUBMITTED"},
			{ID: "msg-1", Status: "EXECUTING_QUERY"},
			completed(Attachment{AttachmentID: "att-1", Text: &TextAttachment{Content: "done"}}),
		},
	}
	store := &recordingStore{}

	result, _, err := newTestResolver(fetcher, store).Resolve(
		context.Background(), "conv-1", "msg-1", "sess-1", "default_user")
	require.NoError(t, err)

	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 3, fetcher.getCalls)
}

func TestResolver_PersistenceFailurePropagates(t *testing.T) {
	fetcher := &fakeFetcher{
		messages: []*Message{completed(
			Attachment{AttachmentID: "att-1", Text: &TextAttachment{Content: "hi"}},
		)},
	}
	store := &recordingStore{saveErr: errors.New("insert failed")}

	_, _, err := newTestResolver(fetcher, store).Resolve(
		context.Background(), "conv-1", "msg-1", "sess-1", "default_user")
	require.Error(t, err)

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindPersistence, gerr.Kind)
}
