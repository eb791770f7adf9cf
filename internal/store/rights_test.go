package store

import (
	"context"
	"testing"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

func testUsageRight(t *testing.T, worker *record.Keypair, employer record.PublicKey, workerSign record.Signature) record.UsageRight {
	t.Helper()
	return record.UsageRight{
		PubSign:      worker.SignGrant(workerSign, employer),
		Created:      time.Now(),
		Employer:     employer,
		WorkerSign:   workerSign,
		Referee:      testKeypair(t, 9).Public,
		LetterNumber: 1,
	}
}

func TestConsumeUsageRight_SingleUse(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	worker := testKeypair(t, 2)
	employer := testKeypair(t, 3)
	ins := testInsurance(t, testKeypair(t, 1), worker, employer.Public, 1)
	right := testUsageRight(t, worker, employer.Public, ins.WorkerSign)

	inserted, err := s.InsertUsageRight(ctx, right)
	if err != nil {
		t.Fatalf("InsertUsageRight() failed: %v", err)
	}
	if !inserted {
		t.Fatal("fresh usage right reported not inserted")
	}

	consumed, err := s.ConsumeUsageRight(ctx, right.PubSign)
	if err != nil {
		t.Fatalf("ConsumeUsageRight() failed: %v", err)
	}
	if !consumed {
		t.Fatal("first consume reported not consumed")
	}

	// Second redemption of the same right must fail.
	consumed, err = s.ConsumeUsageRight(ctx, right.PubSign)
	if err != nil {
		t.Fatalf("second ConsumeUsageRight() failed: %v", err)
	}
	if consumed {
		t.Error("usage right consumed twice")
	}

	got, err := s.GetUsageRight(ctx, right.PubSign)
	if err != nil {
		t.Fatalf("GetUsageRight() failed: %v", err)
	}
	if !got.Used {
		t.Error("consumed right not marked used")
	}
}

func TestInsertUsageRight_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	worker := testKeypair(t, 2)
	employer := testKeypair(t, 3)
	ins := testInsurance(t, testKeypair(t, 1), worker, employer.Public, 1)
	right := testUsageRight(t, worker, employer.Public, ins.WorkerSign)

	if _, err := s.InsertUsageRight(ctx, right); err != nil {
		t.Fatalf("InsertUsageRight() failed: %v", err)
	}
	inserted, err := s.InsertUsageRight(ctx, right)
	if err != nil {
		t.Fatalf("second InsertUsageRight() failed: %v", err)
	}
	if inserted {
		t.Error("duplicate usage right reported inserted")
	}

	rights, err := s.UsageRightsByEmployer(ctx, employer.Public)
	if err != nil {
		t.Fatalf("UsageRightsByEmployer() failed: %v", err)
	}
	if len(rights) != 1 {
		t.Errorf("got %d rights, want 1", len(rights))
	}
}
