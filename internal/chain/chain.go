// Package chain abstracts the ledger chain that settles reimbursement
// transactions. The core only needs an awaitable submission call; the
// real RPC machinery lives outside this repository.
package chain

import (
	"context"
	"sync"

	"github.com/slonigiraf/slonledger/internal/record"
)

// Result is the outcome of a chain submission.
type Result struct {
	TxHash string
	Err    error
}

// Ok reports whether the submission was accepted.
func (r Result) Ok() bool { return r.Err == nil }

// Submitter accepts a signed reimbursement transaction and blocks
// until the chain accepts or rejects it (or ctx is canceled).
type Submitter interface {
	Submit(ctx context.Context, r record.Reimbursement) Result
}

// Fake is an in-memory Submitter for tests and offline operation. It
// records every submission and answers with a configured outcome.
type Fake struct {
	mu        sync.Mutex
	submitted []record.Reimbursement

	// NextErr, when non-nil, is returned (as Result.Err) for the next
	// submissions until cleared.
	NextErr error
	// TxHash returned on success; defaults to "0xfake".
	TxHash string
}

// NewFake creates a Fake that accepts everything.
func NewFake() *Fake {
	return &Fake{TxHash: "0xfake"}
}

// Submit implements Submitter.
func (f *Fake) Submit(ctx context.Context, r record.Reimbursement) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, r)
	if f.NextErr != nil {
		return Result{Err: f.NextErr}
	}
	return Result{TxHash: f.TxHash}
}

// Submitted returns a copy of everything submitted so far.
func (f *Fake) Submitted() []record.Reimbursement {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]record.Reimbursement, len(f.submitted))
	copy(out, f.submitted)
	return out
}
