package ledger

import (
	"errors"
	"fmt"
)

// Code categorizes lifecycle errors.
type Code string

const (
	// CodeDuplicateClaim means the workerSign already exists (live or
	// tombstoned); issuing it twice would double-spend the escrow.
	CodeDuplicateClaim Code = "DUPLICATE_CLAIM"

	// CodeStaleCredential means the source letter or insurance is no
	// longer valid.
	CodeStaleCredential Code = "STALE_CREDENTIAL"

	// CodeAlreadyReimbursed means the insurance was already consumed
	// by a successful reimbursement.
	CodeAlreadyReimbursed Code = "ALREADY_REIMBURSED"

	// CodeRevokedCredential means a tombstone exists for the
	// credential; it must never be re-admitted.
	CodeRevokedCredential Code = "REVOKED_CREDENTIAL"

	// CodeSignatureInvalid means a signature does not verify against
	// the identity claimed inside the record.
	CodeSignatureInvalid Code = "SIGNATURE_VERIFICATION_FAILED"
)

// Error is a lifecycle failure with a stable code. Errors from locally
// initiated actions surface to the user; during foreign-batch ingest
// the same codes are tallied per record instead of being raised.
type Error struct {
	Code    Code
	Message string
	Detail  string // offending key material, for diagnostics
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, message, detail string) *Error {
	return &Error{Code: code, Message: message, Detail: detail}
}

// CodeOf extracts the lifecycle code from err, or "" if err is not a
// lifecycle error. Uses errors.As to handle wrapping.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsDuplicateClaim reports whether err is a duplicate workerSign.
func IsDuplicateClaim(err error) bool { return CodeOf(err) == CodeDuplicateClaim }

// IsStaleCredential reports whether err is a stale-credential failure.
func IsStaleCredential(err error) bool { return CodeOf(err) == CodeStaleCredential }

// IsAlreadyReimbursed reports whether err is a repeat reimbursement.
func IsAlreadyReimbursed(err error) bool { return CodeOf(err) == CodeAlreadyReimbursed }

// IsRevokedCredential reports whether err hit a tombstone.
func IsRevokedCredential(err error) bool { return CodeOf(err) == CodeRevokedCredential }
