// Package ledger implements the credential lifecycle engine: issuing
// letters, binding them to employers as insurances, canceling,
// reimbursing, and ingesting foreign batches.
//
// The engine is the only writer of letter/insurance/reimbursement
// state transitions. Per credential the chain is:
//
//	issued (valid) → claimable (insurance, wasUsed=false)
//	  → settled (wasUsed=true, valid=false)    -- reimbursement accepted
//	  → void (valid=false)                     -- rejected, canceled, or failed reexam
//
// settled and void are terminal.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/slonigiraf/slonledger/internal/chain"
	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/store"
)

// Engine drives credential state transitions over a record store.
type Engine struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time
}

// New creates an engine. A nil logger disables logging.
func New(st *store.Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: st, log: log, now: time.Now}
}

// SetNow overrides the engine's clock; tests use this for
// deterministic timestamps.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

// Store exposes the underlying record store for read paths.
func (e *Engine) Store() *store.Store { return e.store }

// IssueLetterParams carries everything a referee needs to issue a
// diploma to a worker.
type IssueLetterParams struct {
	Referee     *record.Keypair
	Worker      record.PublicKey
	WorkerID    string
	KnowledgeID string
	CID         string
	Lesson      string
	Genesis     string
	Block       uint64
	Amount      *big.Int
}

// IssueLetter constructs, signs, and persists a new letter. The letter
// number is assigned monotonically per referee and never reused. An
// existing signOverReceipt is never overwritten.
func (e *Engine) IssueLetter(ctx context.Context, p IssueLetterParams) (record.Letter, error) {
	if p.Referee == nil {
		return record.Letter{}, fmt.Errorf("issue letter: nil referee keypair")
	}
	if p.Amount == nil || p.Amount.Sign() < 0 {
		return record.Letter{}, fmt.Errorf("issue letter: invalid amount")
	}

	num, err := e.store.NextLetterNumber(ctx, p.Referee.Public)
	if err != nil {
		return record.Letter{}, fmt.Errorf("issue letter: %w", err)
	}

	amount := record.AmountString(p.Amount)
	l := record.Letter{
		Valid:               true,
		Lesson:              p.Lesson,
		WorkerID:            p.WorkerID,
		KnowledgeID:         p.KnowledgeID,
		CID:                 p.CID,
		Genesis:             p.Genesis,
		LetterNumber:        num,
		Block:               p.Block,
		Referee:             p.Referee.Public,
		Worker:              p.Worker,
		Amount:              new(big.Int).Set(p.Amount),
		SignOverPrivateData: p.Referee.SignPrivateData(p.WorkerID, p.KnowledgeID, p.CID),
	}
	l.SignOverReceipt = p.Referee.SignReceipt(p.Genesis, num, p.Block, p.Worker, amount)

	inserted, err := e.store.InsertLetter(ctx, l)
	if err != nil {
		return record.Letter{}, fmt.Errorf("issue letter: %w", err)
	}
	if !inserted {
		return record.Letter{}, fmt.Errorf("issue letter: receipt already exists")
	}

	e.log.Info("letter issued",
		zap.String("referee", string(l.Referee)),
		zap.Uint32("letter_number", l.LetterNumber))
	return l, nil
}

// CoSignForEmployer binds a letter to one employer, producing the
// redeemable insurance. Fails with DuplicateClaim if workerSign was
// ever used (live or tombstoned), StaleCredential if the letter is no
// longer valid, and SignatureVerificationFailed if workerSign does not
// verify against the letter's worker key.
func (e *Engine) CoSignForEmployer(ctx context.Context, letter record.Letter, employer record.PublicKey, workerSign record.Signature, blockAllowed uint64) (record.Insurance, error) {
	stored, err := e.store.GetLetter(ctx, letter.SignOverReceipt)
	if err == nil {
		letter = stored
	} else if !errors.Is(err, store.ErrNotFound) {
		return record.Insurance{}, fmt.Errorf("co-sign: %w", err)
	}

	if !letter.Valid {
		return record.Insurance{}, newError(CodeStaleCredential,
			"source letter is no longer valid", string(letter.SignOverReceipt))
	}

	ins := record.Insurance{
		Letter:       letter,
		BlockAllowed: blockAllowed,
		Employer:     employer,
		WorkerSign:   workerSign,
	}
	if err := record.VerifyCoSign(ins); err != nil {
		return record.Insurance{}, newError(CodeSignatureInvalid,
			"worker co-signature does not verify", err.Error())
	}

	outcome, err := e.store.IngestInsurance(ctx, ins)
	if err != nil {
		return record.Insurance{}, fmt.Errorf("co-sign: %w", err)
	}
	switch outcome {
	case store.OutcomeDuplicate:
		return record.Insurance{}, newError(CodeDuplicateClaim,
			"worker sign already used", string(workerSign))
	case store.OutcomeRevoked:
		return record.Insurance{}, newError(CodeRevokedCredential,
			"credential was revoked", string(letter.SignOverReceipt))
	}

	e.log.Info("insurance created",
		zap.String("employer", string(employer)),
		zap.String("worker", string(letter.Worker)))
	return ins, nil
}

// CancelInsurance voids an insurance and writes its tombstone.
// Idempotent: canceling twice is a no-op, not an error.
func (e *Engine) CancelInsurance(ctx context.Context, workerSign record.Signature, canceledAt time.Time) error {
	if err := e.store.CancelInsurance(ctx, workerSign, canceledAt); err != nil {
		return fmt.Errorf("cancel insurance: %w", err)
	}
	return nil
}

// RequestReimbursement derives a payout request 1:1 from an insurance.
// Fails with AlreadyReimbursed if the insurance was consumed or a
// request for (referee, letterNumber) is already pending, and with
// StaleCredential if the insurance is void. The guards run against the
// stored row, not the caller's copy, so a stale struct from before a
// settlement cannot reopen a consumed claim.
func (e *Engine) RequestReimbursement(ctx context.Context, ins record.Insurance) (record.Reimbursement, error) {
	stored, err := e.store.GetInsurance(ctx, ins.WorkerSign)
	if err == nil {
		ins = stored
	} else if !errors.Is(err, store.ErrNotFound) {
		return record.Reimbursement{}, fmt.Errorf("request reimbursement: %w", err)
	}

	if ins.WasUsed {
		return record.Reimbursement{}, newError(CodeAlreadyReimbursed,
			"insurance already consumed", string(ins.WorkerSign))
	}
	if !ins.Valid {
		return record.Reimbursement{}, newError(CodeStaleCredential,
			"insurance is void", string(ins.WorkerSign))
	}

	r := record.Reimbursement{
		Genesis:         ins.Genesis,
		LetterNumber:    ins.LetterNumber,
		Block:           ins.Block,
		BlockAllowed:    ins.BlockAllowed,
		Referee:         ins.Referee,
		Worker:          ins.Worker,
		Amount:          new(big.Int).Set(ins.Amount),
		SignOverReceipt: ins.SignOverReceipt,
		Employer:        ins.Employer,
		WorkerSign:      ins.WorkerSign,
	}
	inserted, err := e.store.InsertReimbursement(ctx, r)
	if err != nil {
		return record.Reimbursement{}, fmt.Errorf("request reimbursement: %w", err)
	}
	if !inserted {
		return record.Reimbursement{}, newError(CodeAlreadyReimbursed,
			"reimbursement already requested", string(ins.WorkerSign))
	}
	return r, nil
}

// SubmitReimbursement submits a pending payout to the chain and folds
// the result back into the insurance. The submission is awaited; no
// callbacks.
func (e *Engine) SubmitReimbursement(ctx context.Context, sub chain.Submitter, r record.Reimbursement) (chain.Result, error) {
	res := sub.Submit(ctx, r)
	if err := e.ApplyChainResult(ctx, r, res); err != nil {
		return res, err
	}
	return res, nil
}

// ApplyChainResult folds a chain outcome into the insurance. Success
// settles it (wasUsed=true, valid=false). Failure voids it
// (valid=false, wasUsed stays false) so the claim is never retried
// into a double spend. Both outcomes consume the pending request.
func (e *Engine) ApplyChainResult(ctx context.Context, r record.Reimbursement, res chain.Result) error {
	if res.Ok() {
		if err := e.store.SettleInsurance(ctx, r.WorkerSign); err != nil {
			return fmt.Errorf("apply chain result: %w", err)
		}
		e.log.Info("reimbursement settled",
			zap.String("tx", res.TxHash),
			zap.Uint32("letter_number", r.LetterNumber))
	} else {
		if err := e.store.VoidInsurance(ctx, r.WorkerSign); err != nil {
			return fmt.Errorf("apply chain result: %w", err)
		}
		e.log.Warn("reimbursement rejected, insurance voided",
			zap.Uint32("letter_number", r.LetterNumber),
			zap.Error(res.Err))
	}

	if err := e.store.DeleteReimbursement(ctx, r.Referee, r.LetterNumber); err != nil {
		return fmt.Errorf("apply chain result: %w", err)
	}
	return nil
}

// GrantUsageRight lets the worker authorize one employer to redeem an
// insurance. Idempotent per (employer, workerSign).
func (e *Engine) GrantUsageRight(ctx context.Context, worker *record.Keypair, employer record.PublicKey, ins record.Insurance) (record.UsageRight, error) {
	r := record.UsageRight{
		PubSign:      worker.SignGrant(ins.WorkerSign, employer),
		Created:      e.now(),
		Employer:     employer,
		WorkerSign:   ins.WorkerSign,
		Referee:      ins.Referee,
		LetterNumber: ins.LetterNumber,
	}
	if _, err := e.store.InsertUsageRight(ctx, r); err != nil {
		return record.UsageRight{}, fmt.Errorf("grant usage right: %w", err)
	}
	return r, nil
}

// ConsumeUsageRight flips a grant's used flag; at most once.
func (e *Engine) ConsumeUsageRight(ctx context.Context, pubSign record.Signature) (bool, error) {
	consumed, err := e.store.ConsumeUsageRight(ctx, pubSign)
	if err != nil {
		return false, fmt.Errorf("consume usage right: %w", err)
	}
	return consumed, nil
}

// FoldReexamination applies a reexamination outcome. A failed reexam
// supersedes the insurance: it is canceled with a tombstone. A passed
// one bumps the reexam bookkeeping.
func (e *Engine) FoldReexamination(ctx context.Context, rx record.Reexamination) error {
	ins, err := e.store.InsuranceByLessonReceipt(ctx, rx.Lesson, rx.SignOverReceipt)
	if errors.Is(err, store.ErrNotFound) {
		return nil // nothing to fold into
	}
	if err != nil {
		return fmt.Errorf("fold reexamination: %w", err)
	}

	if !rx.Valid {
		if err := e.store.CancelInsurance(ctx, ins.WorkerSign, rx.LastExamined); err != nil {
			return fmt.Errorf("fold reexamination: %w", err)
		}
		e.log.Info("insurance voided by reexamination",
			zap.String("worker_sign", string(ins.WorkerSign)))
		return nil
	}

	if err := e.store.TouchInsuranceReexam(ctx, ins.WorkerSign, rx.LastExamined); err != nil {
		return fmt.Errorf("fold reexamination: %w", err)
	}
	return nil
}

// StartLesson creates or resumes the tutoring session between tutor
// and student over the given content. The deterministic id guarantees
// resumption reuses the existing row.
func (e *Engine) StartLesson(ctx context.Context, tutor, student record.PublicKey, cid string, toLearn, toReexamine int) (record.Lesson, error) {
	id := record.LessonID(tutor, student, cid)

	if existing, err := e.store.GetLesson(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return record.Lesson{}, fmt.Errorf("start lesson: %w", err)
	}

	l := record.Lesson{
		ID:               id,
		Created:          e.now(),
		CID:              cid,
		Tutor:            tutor,
		Student:          student,
		ToLearnCount:     toLearn,
		ToReexamineCount: toReexamine,
		DPrice:           big.NewInt(0),
		DWarranty:        big.NewInt(0),
	}
	if err := e.store.UpsertLesson(ctx, l); err != nil {
		return record.Lesson{}, fmt.Errorf("start lesson: %w", err)
	}
	return l, nil
}

// ApplyLessonAction records the tutor's decision and advances the
// session's step counters.
func (e *Engine) ApplyLessonAction(ctx context.Context, lessonID string, action record.LessonAction) (record.Lesson, error) {
	l, err := e.store.GetLesson(ctx, lessonID)
	if err != nil {
		return record.Lesson{}, fmt.Errorf("apply lesson action: %w", err)
	}

	l.LastAction = action
	switch action {
	case record.LessonActionValidate, record.LessonActionSkip,
		record.LessonActionMarkMastered, record.LessonActionMarkForRepeat:
		if l.LearnStep < l.ToLearnCount {
			l.LearnStep++
		}
	case record.LessonActionMarkMasteredStep, record.LessonActionMarkRepeatStep,
		record.LessonActionRevoke:
		if l.ReexamineStep < l.ToReexamineCount {
			l.ReexamineStep++
		}
	}

	if err := e.store.UpsertLesson(ctx, l); err != nil {
		return record.Lesson{}, fmt.Errorf("apply lesson action: %w", err)
	}
	return l, nil
}

// StakeLetter records the tutor's pending stake for a lesson step.
// The stake holds the amount at risk until the student countersigns;
// restaking the same (lesson, cid) updates the row.
func (e *Engine) StakeLetter(ctx context.Context, lessonID, cid string, isPenalty bool, amount *big.Int, signOverReceipt record.Signature) (record.LetterTemplate, error) {
	if amount == nil || amount.Sign() < 0 {
		return record.LetterTemplate{}, fmt.Errorf("stake letter: invalid amount")
	}
	t := record.LetterTemplate{
		Lesson:          lessonID,
		CID:             cid,
		Created:         e.now(),
		IsPenalty:       isPenalty,
		Amount:          new(big.Int).Set(amount),
		SignOverReceipt: signOverReceipt,
	}
	if err := e.store.UpsertLetterTemplate(ctx, t); err != nil {
		return record.LetterTemplate{}, fmt.Errorf("stake letter: %w", err)
	}
	return t, nil
}

// PromoteStakedLetter finalizes a staked letter once the student has
// countersigned: the letter is persisted and the stake row removed.
// The letter's receipt must match the stake it settles.
func (e *Engine) PromoteStakedLetter(ctx context.Context, l record.Letter) error {
	templates, err := e.store.LetterTemplatesByLesson(ctx, l.Lesson)
	if err != nil {
		return fmt.Errorf("promote staked letter: %w", err)
	}
	var stake *record.LetterTemplate
	for i := range templates {
		if templates[i].CID == l.CID {
			stake = &templates[i]
			break
		}
	}
	if stake == nil {
		return fmt.Errorf("promote staked letter: no stake for lesson %s cid %s", l.Lesson, l.CID)
	}
	if stake.SignOverReceipt != l.SignOverReceipt {
		return newError(CodeSignatureInvalid,
			"staked receipt does not match the countersigned letter",
			string(l.SignOverReceipt))
	}

	if _, err := e.store.InsertLetter(ctx, l); err != nil {
		return fmt.Errorf("promote staked letter: %w", err)
	}
	if err := e.store.DeleteLetterTemplate(ctx, l.Lesson, l.CID); err != nil {
		return fmt.Errorf("promote staked letter: %w", err)
	}
	e.log.Info("staked letter promoted",
		zap.String("lesson", l.Lesson), zap.String("cid", l.CID))
	return nil
}

// WithdrawStake removes a stake that was never countersigned, for
// example when the tutor revokes the step. Withdrawing a missing
// stake is a no-op.
func (e *Engine) WithdrawStake(ctx context.Context, lessonID, cid string) error {
	if err := e.store.DeleteLetterTemplate(ctx, lessonID, cid); err != nil {
		return fmt.Errorf("withdraw stake: %w", err)
	}
	return nil
}
