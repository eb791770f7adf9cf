package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

func TestUpsertPseudonym_RefreshesName(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	key := testKeypair(t, 1).Public

	err := s.UpsertPseudonym(ctx, record.Pseudonym{PublicKey: key, Name: "Alice", Updated: time.Now()})
	if err != nil {
		t.Fatalf("UpsertPseudonym() failed: %v", err)
	}
	err = s.UpsertPseudonym(ctx, record.Pseudonym{PublicKey: key, Name: "Alice B.", Updated: time.Now()})
	if err != nil {
		t.Fatalf("second UpsertPseudonym() failed: %v", err)
	}

	got, err := s.GetPseudonym(ctx, key)
	if err != nil {
		t.Fatalf("GetPseudonym() failed: %v", err)
	}
	if got.Name != "Alice B." {
		t.Errorf("name = %q, want %q", got.Name, "Alice B.")
	}

	all, err := s.AllPseudonyms(ctx)
	if err != nil {
		t.Fatalf("AllPseudonyms() failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("pseudonym count = %d, want 1", len(all))
	}
}

func TestGetPseudonym_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetPseudonym(context.Background(), testKeypair(t, 1).Public)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPseudonym() error = %v, want ErrNotFound", err)
	}
}

func TestSettings_SetOverwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetSetting(ctx, "active_signer"); err != nil || ok {
		t.Fatalf("GetSetting() on empty store = ok=%v err=%v", ok, err)
	}

	if err := s.SetSetting(ctx, "active_signer", "aa"); err != nil {
		t.Fatalf("SetSetting() failed: %v", err)
	}
	if err := s.SetSetting(ctx, "active_signer", "bb"); err != nil {
		t.Fatalf("second SetSetting() failed: %v", err)
	}

	val, ok, err := s.GetSetting(ctx, "active_signer")
	if err != nil || !ok {
		t.Fatalf("GetSetting() = ok=%v err=%v", ok, err)
	}
	if val != "bb" {
		t.Errorf("setting = %q, want %q", val, "bb")
	}
}

func TestSigners_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	kp := testKeypair(t, 5)
	sg := kp.Signer(time.Now())

	if err := s.InsertSigner(ctx, sg); err != nil {
		t.Fatalf("InsertSigner() failed: %v", err)
	}

	got, err := s.GetSigner(ctx, kp.Public)
	if err != nil {
		t.Fatalf("GetSigner() failed: %v", err)
	}
	if got.SecretKey != sg.SecretKey {
		t.Error("secret key did not round-trip")
	}

	restored, err := record.KeypairFromSeed(got.SecretKey)
	if err != nil {
		t.Fatalf("KeypairFromSeed() failed: %v", err)
	}
	if restored.Public != kp.Public {
		t.Error("restored keypair has a different public key")
	}
}

func TestAgreements_PutGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := record.Agreement{CID: "cid-agree", Data: `{"skill":"addition"}`}
	if err := s.PutAgreement(ctx, a); err != nil {
		t.Fatalf("PutAgreement() failed: %v", err)
	}
	// Re-put with the same cid is harmless.
	if err := s.PutAgreement(ctx, a); err != nil {
		t.Fatalf("second PutAgreement() failed: %v", err)
	}

	got, err := s.GetAgreement(ctx, "cid-agree")
	if err != nil {
		t.Fatalf("GetAgreement() failed: %v", err)
	}
	if got.Data != a.Data {
		t.Errorf("agreement data = %q, want %q", got.Data, a.Data)
	}

	if _, err := s.GetAgreement(ctx, "cid-unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAgreement() on unknown cid = %v, want ErrNotFound", err)
	}
}
