package genie

import "fmt"

// ErrorKind classifies a failure so callers can branch on what went wrong
// instead of string-matching error text.
type ErrorKind int

const (
	// KindCredential means the identity provider was unreachable or rejected
	// the client-credentials grant.
	KindCredential ErrorKind = iota
	// KindRemote means the conversation service failed after retries.
	KindRemote
	// KindTimeout means polling never saw a terminal status in time.
	KindTimeout
	// KindPersistence means the conversation store rejected a write.
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindCredential:
		return "credential"
	case KindRemote:
		return "remote"
	case KindTimeout:
		return "timeout"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error wraps a failure with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// APIError is a non-success HTTP response from the conversation service.
// The body is kept because the service reports conditions like an expired
// conversation only as text.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("genie API returned %d: %s", e.StatusCode, e.Body)
}
