package genie

// Terminal message statuses. Anything else means the space is still working
// on the turn and the resolver keeps polling.
const (
	StatusCompleted = "COMPLETED"
	StatusError     = "ERROR"
	StatusFailed    = "FAILED"
)

// Message is one turn of a remote conversation as returned by the space.
type Message struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a polymorphic payload on a message: either inline text or a
// reference to a generated query whose result lives behind another endpoint.
type Attachment struct {
	AttachmentID string           `json:"attachment_id"`
	Text         *TextAttachment  `json:"text,omitempty"`
	Query        *QueryAttachment `json:"query,omitempty"`
}

// TextAttachment carries inline prose.
type TextAttachment struct {
	Content string `json:"content"`
}

// QueryAttachment references SQL the space generated for the question.
type QueryAttachment struct {
	Query       string `json:"query"`
	Description string `json:"description,omitempty"`
}

// QueryResult is the normalized shape of a materialized query result.
type QueryResult struct {
	DataArray [][]any      `json:"data_array"`
	Schema    ResultSchema `json:"schema"`
}

// ResultSchema describes the columns of a query result, in order.
type ResultSchema struct {
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo is a single column descriptor.
type ColumnInfo struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name,omitempty"`
	Position int    `json:"position,omitempty"`
}

// Table is an ordered tabular result: named columns over row-major values.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Result is what a resolved turn produces: prose or a table, never both.
type Result struct {
	Text  string `json:"text,omitempty"`
	Table *Table `json:"table,omitempty"`
}

// IsTable reports whether the result carries tabular data.
func (r Result) IsTable() bool {
	return r.Table != nil
}

// Wire shapes below mirror the REST payloads verbatim.

type startConversationRequest struct {
	Content string `json:"content"`
}

type startConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
}

type queryResultResponse struct {
	StatementResponse struct {
		Result struct {
			DataArray [][]any `json:"data_array"`
		} `json:"result"`
		Manifest struct {
			Schema ResultSchema `json:"schema"`
		} `json:"manifest"`
	} `json:"statement_response"`
}
