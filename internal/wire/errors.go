package wire

import (
	"errors"
	"fmt"
)

// DecodeErrorKind distinguishes envelope-level from record-level
// decode failures.
type DecodeErrorKind int

const (
	// MalformedEnvelope means the outer JSON envelope is unreadable or
	// carries an unknown action.
	MalformedEnvelope DecodeErrorKind = iota + 1
	// MalformedRecord means a positional record payload inside a
	// well-formed envelope is unreadable.
	MalformedRecord
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedEnvelope:
		return "malformed envelope"
	case MalformedRecord:
		return "malformed record"
	default:
		return fmt.Sprintf("decode error(%d)", int(k))
	}
}

// DecodeError is a typed decode failure. Callers treat any decode
// failure as "ask the sender to retry"; it is never a crash.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func malformedEnvelope(format string, args ...any) *DecodeError {
	return &DecodeError{Kind: MalformedEnvelope, Detail: fmt.Sprintf(format, args...)}
}

func malformedRecord(format string, args ...any) *DecodeError {
	return &DecodeError{Kind: MalformedRecord, Detail: fmt.Sprintf(format, args...)}
}

// DecodeKindOf extracts the decode error kind, or 0 if err is not a
// DecodeError.
func DecodeKindOf(err error) DecodeErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
