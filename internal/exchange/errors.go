package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

// PeerTimeoutError means a channel was established but no data arrived
// within the receive window. Remedy: ask the sender to keep their page
// open and retry.
type PeerTimeoutError struct {
	Wait time.Duration
}

func (e *PeerTimeoutError) Error() string {
	return fmt.Sprintf("peer timeout: no data within %s", e.Wait)
}

// PeerInitializationError means the channel could not be established
// at all. Remedy: check connectivity. Distinct from a timeout because
// the user-facing instruction differs.
type PeerInitializationError struct {
	Cause error
}

func (e *PeerInitializationError) Error() string {
	return fmt.Sprintf("peer channel initialization failed: %v", e.Cause)
}

func (e *PeerInitializationError) Unwrap() error { return e.Cause }

// TargetMismatchError means the envelope names a different recipient.
// This is a UX guard against scanning the wrong code, not a security
// boundary.
type TargetMismatchError struct {
	Want record.PublicKey
	Got  record.PublicKey
}

func (e *TargetMismatchError) Error() string {
	return fmt.Sprintf("transfer addressed to %s, local identity is %s", e.Got, e.Want)
}

// IsPeerTimeout reports whether err is a receive-window timeout.
func IsPeerTimeout(err error) bool {
	var te *PeerTimeoutError
	return errors.As(err, &te)
}

// IsPeerInitialization reports whether err is a channel-establishment
// failure.
func IsPeerInitialization(err error) bool {
	var ie *PeerInitializationError
	return errors.As(err, &ie)
}

// IsTargetMismatch reports whether err is a recipient mismatch.
func IsTargetMismatch(err error) bool {
	var me *TargetMismatchError
	return errors.As(err, &me)
}
