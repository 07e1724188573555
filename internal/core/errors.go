package core

import "fmt"

// Kind is the closed taxonomy of error kinds from spec §7. Every error the
// core surfaces to a caller carries exactly one Kind.
type Kind string

const (
	KindInvalidInput  Kind = "INVALID_INPUT"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindGitError      Kind = "GIT_ERROR"
	KindIoError       Kind = "IO_ERROR"
	KindFtsError      Kind = "FTS_ERROR"
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
)

// Error is the single error type surfaced by the core. It wraps an
// underlying cause (if any) and a Kind, plus a structured data payload
// used to render the `{error_code, suggestion?, context…}` block spec §6
// requires at the external boundary.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithData returns a copy of e with key set in its data payload.
func (e *Error) WithData(key string, value any) *Error {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Data: data, cause: e.cause}
}

// ToJSON renders the boundary error block named in spec §6.
func (e *Error) ToJSON() map[string]any {
	out := map[string]any{
		"error_code": string(e.Kind),
		"message":    e.Message,
	}
	for k, v := range e.Data {
		out[k] = v
	}
	return out
}

func newErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// InvalidInput reports malformed identifiers, unknown states, path
// traversal attempts, and similar caller mistakes. field names the
// offending field per spec §7.
func InvalidInput(field string, format string, args ...any) *Error {
	return newErr(KindInvalidInput, nil, format, args...).WithData("field", field)
}

// NotFound reports a missing project/agent/message/reservation, optionally
// attaching near-match suggestions (spec §6).
func NotFound(entity string, format string, args ...any) *Error {
	return newErr(KindNotFound, nil, format, args...).WithData("entity", entity)
}

// GitError wraps a repository I/O, commit, or worktree failure.
func GitError(cause error, format string, args ...any) *Error {
	return newErr(KindGitError, cause, format, args...)
}

// IoError wraps an underlying filesystem failure.
func IoError(cause error, format string, args ...any) *Error {
	return newErr(KindIoError, cause, format, args...)
}

// FtsError reports a malformed search query, naming the offending token.
func FtsError(token string, format string, args ...any) *Error {
	return newErr(KindFtsError, nil, format, args...).WithData("token", token)
}

// QuotaExceeded reports an inbox-count or attachment-bytes limit breach.
func QuotaExceeded(format string, args ...any) *Error {
	return newErr(KindQuotaExceeded, nil, format, args...)
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if ce, ok := err.(*Error); ok {
		e = ce
	} else {
		return false
	}
	return e.Kind == kind
}
