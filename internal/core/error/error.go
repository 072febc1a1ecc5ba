package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can decide between a safe default,
// an abort of the in-flight question, or an infrastructure error.
type Kind string

const (
	// KindClassification marks unparsable or out-of-domain classifier output.
	KindClassification Kind = "classification_failure"
	// KindRetrieval marks index or web search failures.
	KindRetrieval Kind = "retrieval_failure"
	// KindGeneration marks language model call failures.
	KindGeneration Kind = "generation_failure"
	// KindCancelled marks a question aborted by context cancellation or deadline.
	KindCancelled Kind = "cancelled"
	// KindFatal marks failures with no safe default (misconfigured graph, run step overflow).
	KindFatal Kind = "fatal_workflow_error"
	// KindUnavailable marks infrastructure failures (Redis, Postgres, SQLite).
	KindUnavailable Kind = "dependency_unavailable"
	// KindNotFound marks a missing key or row.
	KindNotFound Kind = "not_found"
	// KindInvalid marks caller mistakes such as an empty question.
	KindInvalid Kind = "invalid_request"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// PostgresErrorMessage describes Postgres related failures.
	PostgresErrorMessage = "postgres operation failed"
)

var kindMessages = map[Kind]struct {
	status  int
	message string
}{
	KindClassification: {http.StatusBadGateway, "classifier returned an unusable decision"},
	KindRetrieval:      {http.StatusBadGateway, "evidence retrieval failed"},
	KindGeneration:     {http.StatusBadGateway, "answer generation failed"},
	KindCancelled:      {http.StatusRequestTimeout, "question processing was cancelled"},
	KindFatal:          {http.StatusInternalServerError, SystemErrorMessage},
	KindUnavailable:    {http.StatusBadGateway, "dependency unavailable"},
	KindNotFound:       {http.StatusNotFound, "not found"},
	KindInvalid:        {http.StatusBadRequest, "invalid request"},
}

// Error wraps an underlying error with a kind, the failing operation, an HTTP status and a safe message.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so bare kind
// markers such as &Error{Kind: KindRetrieval} work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New creates an Error with the status and message registered for kind.
func New(kind Kind, op string, err error) *Error {
	meta, ok := kindMessages[kind]
	if !ok {
		meta = kindMessages[KindFatal]
	}
	status := meta.status
	if kind == KindCancelled && errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err, Status: status, Message: meta.message}
}

// Classification wraps an unparsable classifier response.
func Classification(op string, err error) *Error { return New(KindClassification, op, err) }

// Retrieval wraps an Index or WebSearch failure.
func Retrieval(op string, err error) *Error { return New(KindRetrieval, op, err) }

// Generation wraps a language model failure.
func Generation(op string, err error) *Error { return New(KindGeneration, op, err) }

// Cancelled wraps ctx.Err() observed before entering a workflow state.
func Cancelled(op string, err error) *Error { return New(KindCancelled, op, err) }

// Fatal wraps an error that aborts the question with no safe default.
func Fatal(op string, err error) *Error { return New(KindFatal, op, err) }

// Invalid reports a caller error with a custom message.
func Invalid(op, message string) *Error {
	e := New(KindInvalid, op, nil)
	e.Message = message
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindFatal
// for foreign errors. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
