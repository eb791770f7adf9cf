package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

func TestInsertLetter_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	referee := testKeypair(t, 1)
	worker := testKeypair(t, 2)
	letter := testLetter(t, referee, worker, 1)

	inserted, err := s.InsertLetter(ctx, letter)
	if err != nil {
		t.Fatalf("InsertLetter() failed: %v", err)
	}
	if !inserted {
		t.Fatal("InsertLetter() reported not inserted for a fresh letter")
	}

	got, err := s.GetLetter(ctx, letter.SignOverReceipt)
	if err != nil {
		t.Fatalf("GetLetter() failed: %v", err)
	}
	if got.SignOverReceipt != letter.SignOverReceipt {
		t.Errorf("SignOverReceipt = %q, want %q", got.SignOverReceipt, letter.SignOverReceipt)
	}
	if got.Amount.Cmp(letter.Amount) != 0 {
		t.Errorf("Amount = %s, want %s", got.Amount, letter.Amount)
	}
	if !got.Valid {
		t.Error("stored letter lost its valid flag")
	}
}

func TestInsertLetter_DuplicateReceiptNotOverwritten(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	referee := testKeypair(t, 1)
	worker := testKeypair(t, 2)
	letter := testLetter(t, referee, worker, 1)

	if _, err := s.InsertLetter(ctx, letter); err != nil {
		t.Fatalf("first InsertLetter() failed: %v", err)
	}

	mutated := letter
	mutated.KnowledgeID = "something-else"
	inserted, err := s.InsertLetter(ctx, mutated)
	if err != nil {
		t.Fatalf("second InsertLetter() failed: %v", err)
	}
	if inserted {
		t.Error("duplicate receipt was reported inserted")
	}

	got, err := s.GetLetter(ctx, letter.SignOverReceipt)
	if err != nil {
		t.Fatalf("GetLetter() failed: %v", err)
	}
	if got.KnowledgeID != "knowledge-1" {
		t.Errorf("KnowledgeID = %q, original row was overwritten", got.KnowledgeID)
	}
}

func TestGetLetter_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetLetter(context.Background(), "deadbeef")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLetter() error = %v, want ErrNotFound", err)
	}
}

func TestNextLetterNumber_StartsAtOne(t *testing.T) {
	s := createTestStore(t)
	referee := testKeypair(t, 1)

	num, err := s.NextLetterNumber(context.Background(), referee.Public)
	if err != nil {
		t.Fatalf("NextLetterNumber() failed: %v", err)
	}
	if num != 1 {
		t.Errorf("NextLetterNumber() = %d, want 1 for empty store", num)
	}
}

func TestNextLetterNumber_CoversReimbursedNumbers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	referee := testKeypair(t, 1)
	worker := testKeypair(t, 2)

	letter := testLetter(t, referee, worker, 3)
	if _, err := s.InsertLetter(ctx, letter); err != nil {
		t.Fatalf("InsertLetter() failed: %v", err)
	}

	// A reimbursement for number 7 exists even though the letter row
	// is gone. The next number must still not reuse 7.
	reimb := record.Reimbursement{
		Referee:      referee.Public,
		LetterNumber: 7,
		Worker:       worker.Public,
		Employer:     testKeypair(t, 3).Public,
		WorkerSign:   "00",
	}
	if _, err := s.InsertReimbursement(ctx, reimb); err != nil {
		t.Fatalf("InsertReimbursement() failed: %v", err)
	}

	num, err := s.NextLetterNumber(ctx, referee.Public)
	if err != nil {
		t.Fatalf("NextLetterNumber() failed: %v", err)
	}
	if num != 8 {
		t.Errorf("NextLetterNumber() = %d, want 8", num)
	}

	// Other referees are unaffected.
	other, err := s.NextLetterNumber(ctx, worker.Public)
	if err != nil {
		t.Fatalf("NextLetterNumber() for other referee failed: %v", err)
	}
	if other != 1 {
		t.Errorf("NextLetterNumber() for other referee = %d, want 1", other)
	}
}

func TestCancelLetter_InvalidatesAndTombstones(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	referee := testKeypair(t, 1)
	worker := testKeypair(t, 2)
	letter := testLetter(t, referee, worker, 1)

	if _, err := s.InsertLetter(ctx, letter); err != nil {
		t.Fatalf("InsertLetter() failed: %v", err)
	}

	canceledAt := time.Now()
	if err := s.CancelLetter(ctx, letter.SignOverReceipt, canceledAt); err != nil {
		t.Fatalf("CancelLetter() failed: %v", err)
	}

	got, err := s.GetLetter(ctx, letter.SignOverReceipt)
	if err != nil {
		t.Fatalf("GetLetter() failed: %v", err)
	}
	if got.Valid {
		t.Error("canceled letter still valid")
	}

	tombstones, err := s.AllCanceledLetters(ctx)
	if err != nil {
		t.Fatalf("AllCanceledLetters() failed: %v", err)
	}
	if len(tombstones) != 1 {
		t.Fatalf("got %d tombstones, want 1", len(tombstones))
	}
	if tombstones[0].PubSign != letter.SignOverReceipt {
		t.Errorf("tombstone PubSign = %q, want %q", tombstones[0].PubSign, letter.SignOverReceipt)
	}

	// Cancel again: no error, no second tombstone.
	if err := s.CancelLetter(ctx, letter.SignOverReceipt, canceledAt); err != nil {
		t.Fatalf("second CancelLetter() failed: %v", err)
	}
	tombstones, err = s.AllCanceledLetters(ctx)
	if err != nil {
		t.Fatalf("AllCanceledLetters() failed: %v", err)
	}
	if len(tombstones) != 1 {
		t.Errorf("got %d tombstones after repeat cancel, want 1", len(tombstones))
	}
}

func TestLettersByWorker(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	referee := testKeypair(t, 1)
	workerA := testKeypair(t, 2)
	workerB := testKeypair(t, 3)

	for i, w := range []*record.Keypair{workerA, workerA, workerB} {
		letter := testLetter(t, referee, w, uint32(i+1))
		if _, err := s.InsertLetter(ctx, letter); err != nil {
			t.Fatalf("InsertLetter() %d failed: %v", i, err)
		}
	}

	got, err := s.LettersByWorker(ctx, workerA.Public)
	if err != nil {
		t.Fatalf("LettersByWorker() failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d letters for worker A, want 2", len(got))
	}
}
