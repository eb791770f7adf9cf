package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/store"
)

// Batch is a set of credential records received from a peer.
type Batch struct {
	Letters    []record.Letter
	Insurances []record.Insurance
}

// Rejection explains why one record in a batch was refused.
type Rejection struct {
	Code   Code
	Detail string
}

// Report tallies the outcome of ingesting one batch.
type Report struct {
	Accepted int
	Rejected int
	Reasons  []Rejection
}

func (r *Report) reject(code Code, detail string) {
	r.Rejected++
	r.Reasons = append(r.Reasons, Rejection{Code: code, Detail: detail})
}

// IngestForeignRecords validates and merges a peer's batch. This is
// the anti-replay, anti-double-spend surface of the application: the
// peer is untrusted, so every record is independently verified against
// the identity keys embedded in it, checked against local duplicates,
// and checked against revocation tombstones. A bad record is skipped
// and tallied; it never aborts the rest of the batch and never
// panics. Only store I/O failures return an error.
//
// Records for the local identity itself are not special-cased: the
// same checks apply regardless of who the records concern.
func (e *Engine) IngestForeignRecords(ctx context.Context, batch Batch, local record.PublicKey) (Report, error) {
	var report Report

	for _, l := range batch.Letters {
		if err := record.VerifyReceipt(l); err != nil {
			report.reject(CodeSignatureInvalid, err.Error())
			continue
		}

		outcome, err := e.store.IngestLetter(ctx, l)
		if err != nil {
			return report, fmt.Errorf("ingest letter: %w", err)
		}
		switch outcome {
		case store.OutcomeInserted:
			report.Accepted++
		case store.OutcomeDuplicate:
			report.reject(CodeDuplicateClaim, string(l.SignOverReceipt))
		case store.OutcomeRevoked:
			report.reject(CodeRevokedCredential, string(l.SignOverReceipt))
		}
	}

	for _, ins := range batch.Insurances {
		if err := record.VerifyReceipt(ins.Letter); err != nil {
			report.reject(CodeSignatureInvalid, err.Error())
			continue
		}
		if err := record.VerifyCoSign(ins); err != nil {
			report.reject(CodeSignatureInvalid, err.Error())
			continue
		}

		outcome, err := e.store.IngestInsurance(ctx, ins)
		if err != nil {
			return report, fmt.Errorf("ingest insurance: %w", err)
		}
		switch outcome {
		case store.OutcomeInserted:
			report.Accepted++
		case store.OutcomeDuplicate:
			report.reject(CodeDuplicateClaim, string(ins.WorkerSign))
		case store.OutcomeRevoked:
			report.reject(CodeRevokedCredential, string(ins.WorkerSign))
		}
	}

	e.log.Info("batch ingested",
		zap.String("local", string(local)),
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", report.Rejected))
	return report, nil
}
