package record

import (
	"math/big"
	"time"
)

// Letter is an issued, not-yet-claimed diploma: a referee's signed
// claim that a worker learned a skill, backed by the referee's stake.
//
// SignOverReceipt is the letter's identity. LetterNumber is assigned
// monotonically per referee and never reused.
type Letter struct {
	Valid               bool      `json:"valid"`
	ReexamCount         int       `json:"reexam_count"`
	LastReexamined      time.Time `json:"last_reexamined"`
	Lesson              string    `json:"lesson"`
	WorkerID            string    `json:"worker_id"`
	KnowledgeID         string    `json:"knowledge_id"`
	CID                 string    `json:"cid"`
	Genesis             string    `json:"genesis"`
	LetterNumber        uint32    `json:"letter_number"`
	Block               uint64    `json:"block"`
	Referee             PublicKey `json:"referee"`
	Worker              PublicKey `json:"worker"`
	Amount              *big.Int  `json:"amount"`
	SignOverPrivateData Signature `json:"sign_over_private_data"`
	SignOverReceipt     Signature `json:"sign_over_receipt"`
}

// Insurance is a Letter co-signed by the worker for one specific
// employer, which makes the escrow claim redeemable.
//
// WorkerSign is the proof-of-claim and must be globally unique across
// live insurances and canceled-insurance tombstones; reissuing it for
// the same obligation would allow a double spend.
type Insurance struct {
	Letter

	BlockAllowed uint64    `json:"block_allowed"`
	Employer     PublicKey `json:"employer"`
	WorkerSign   Signature `json:"worker_sign"`
	WasUsed      bool      `json:"was_used"`
}

// CanceledLetter is an append-only tombstone preventing re-ingestion
// of a revoked letter. Created once, never mutated, never deleted.
type CanceledLetter struct {
	PubSign     Signature `json:"pub_sign"`
	Created     time.Time `json:"created"`
	Canceled    time.Time `json:"canceled"`
	WorkerID    string    `json:"worker_id"`
	KnowledgeID string    `json:"knowledge_id"`
	CID         string    `json:"cid"`
	Referee     PublicKey `json:"referee"`
}

// CanceledInsurance is the tombstone counterpart for insurances.
type CanceledInsurance struct {
	WorkerSign  Signature `json:"worker_sign"`
	Created     time.Time `json:"created"`
	Canceled    time.Time `json:"canceled"`
	WorkerID    string    `json:"worker_id"`
	KnowledgeID string    `json:"knowledge_id"`
	CID         string    `json:"cid"`
	Referee     PublicKey `json:"referee"`
	Employer    PublicKey `json:"employer"`
}

// Reimbursement is a pending payout request derived 1:1 from an
// Insurance and submitted to the ledger chain. Unique per
// (referee, letter_number).
type Reimbursement struct {
	Genesis         string    `json:"genesis"`
	LetterNumber    uint32    `json:"letter_number"`
	Block           uint64    `json:"block"`
	BlockAllowed    uint64    `json:"block_allowed"`
	Referee         PublicKey `json:"referee"`
	Worker          PublicKey `json:"worker"`
	Amount          *big.Int  `json:"amount"`
	SignOverReceipt Signature `json:"sign_over_receipt"`
	Employer        PublicKey `json:"employer"`
	WorkerSign      Signature `json:"worker_sign"`
}

// UsageRight authorizes one employer to redeem a worker's insurance.
// Used flips true at most once.
type UsageRight struct {
	PubSign      Signature `json:"pub_sign"`
	Used         bool      `json:"used"`
	Created      time.Time `json:"created"`
	Employer     PublicKey `json:"employer"`
	WorkerSign   Signature `json:"worker_sign"`
	Referee      PublicKey `json:"referee"`
	LetterNumber uint32    `json:"letter_number"`
}

// LessonAction records the tutor's last decision within a lesson.
type LessonAction string

const (
	LessonActionNone             LessonAction = ""
	LessonActionValidate         LessonAction = "validate"
	LessonActionRevoke           LessonAction = "revoke"
	LessonActionSkip             LessonAction = "skip"
	LessonActionMarkMastered     LessonAction = "mark_mastered"
	LessonActionMarkMasteredStep LessonAction = "mark_mastered_step"
	LessonActionMarkForRepeat    LessonAction = "mark_for_repeat"
	LessonActionMarkRepeatStep   LessonAction = "mark_for_repeat_step"
)

// Lesson is a tutoring session's persisted state machine. The id is
// derived deterministically from (tutor, student, cid) so a resumed
// session lands on the same row instead of duplicating it.
type Lesson struct {
	ID                string       `json:"id"`
	Created           time.Time    `json:"created"`
	CID               string       `json:"cid"`
	Tutor             PublicKey    `json:"tutor"`
	Student           PublicKey    `json:"student"`
	ToLearnCount      int          `json:"to_learn_count"`
	LearnStep         int          `json:"learn_step"`
	ToReexamineCount  int          `json:"to_reexamine_count"`
	ReexamineStep     int          `json:"reexamine_step"`
	DPrice            *big.Int     `json:"d_price"`
	DWarranty         *big.Int     `json:"d_warranty"`
	DValidity         uint64       `json:"d_validity"`
	WasPriceDiscussed bool         `json:"was_price_discussed"`
	IsPaid            bool         `json:"is_paid"`
	Sent              bool         `json:"sent"`
	LastAction        LessonAction `json:"last_action"`
}

// LetterTemplate tracks a tutor's stake-at-risk before the student
// countersigns. Keyed by (lesson, cid); promoted to a Letter on
// countersignature.
type LetterTemplate struct {
	Lesson          string    `json:"lesson"`
	CID             string    `json:"cid"`
	Created         time.Time `json:"created"`
	IsPenalty       bool      `json:"is_penalty"`
	Amount          *big.Int  `json:"amount"`
	SignOverReceipt Signature `json:"sign_over_receipt"`
}

// ReexamStage tracks progress through a reexamination session.
type ReexamStage int

const (
	ReexamStagePending ReexamStage = iota
	ReexamStageExamined
	ReexamStageFolded
)

// Reexamination is an ephemeral re-validation attempt. It is not
// persisted long-term; outcomes fold into insurance validity.
type Reexamination struct {
	Stage           ReexamStage `json:"stage"`
	LastExamined    time.Time   `json:"last_examined"`
	Valid           bool        `json:"valid"`
	Lesson          string      `json:"lesson"`
	CID             string      `json:"cid"`
	Amount          *big.Int    `json:"amount"`
	SignOverReceipt Signature   `json:"sign_over_receipt"`
}

// EventType distinguishes scheduled event kinds.
type EventType string

const (
	EventTypeLog EventType = "LOG"
	EventTypeBan EventType = "BAN"
)

// ScheduledEvent is a deferred side effect delivered at least once and
// deleted on acknowledgment.
type ScheduledEvent struct {
	ID       int64     `json:"id"`
	Type     EventType `json:"type"`
	Deadline time.Time `json:"deadline"`
	Data     string    `json:"data"`
}

// Pseudonym caches an identity's display name.
type Pseudonym struct {
	PublicKey PublicKey `json:"public_key"`
	Name      string    `json:"name"`
	Updated   time.Time `json:"updated"`
}

// Signer holds locally generated key material.
type Signer struct {
	PublicKey PublicKey `json:"public_key"`
	SecretKey string    `json:"secret_key"` // hex-encoded ed25519 seed
	Created   time.Time `json:"created"`
}

// Agreement caches content-addressed lesson/skill JSON by cid.
type Agreement struct {
	CID  string `json:"cid"`
	Data string `json:"data"`
}

// AmountString renders an amount for storage; nil is treated as zero.
func AmountString(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return a.String()
}

// ParseAmount parses a non-negative decimal amount.
func ParseAmount(s string) (*big.Int, bool) {
	a, ok := new(big.Int).SetString(s, 10)
	if !ok || a.Sign() < 0 {
		return nil, false
	}
	return a, true
}
