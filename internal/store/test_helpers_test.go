package store

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/slonigiraf/slonledger/internal/record"
)

const testGenesis = "0x1111111111111111111111111111111111111111111111111111111111111111"

// testKeypair derives a deterministic keypair from a single seed byte.
func testKeypair(t *testing.T, seed byte) *record.Keypair {
	t.Helper()
	var s [32]byte
	for i := range s {
		s[i] = seed
	}
	kp, err := record.KeypairFromSeed(hex.EncodeToString(s[:]))
	if err != nil {
		t.Fatalf("KeypairFromSeed() failed: %v", err)
	}
	return kp
}

// testLetter builds a signed letter from referee to worker.
func testLetter(t *testing.T, referee, worker *record.Keypair, letterNumber uint32) record.Letter {
	t.Helper()
	l := record.Letter{
		Valid:        true,
		WorkerID:     string(worker.Public),
		KnowledgeID:  "knowledge-1",
		CID:          "cid-1",
		Genesis:      testGenesis,
		LetterNumber: letterNumber,
		Block:        100,
		Referee:      referee.Public,
		Worker:       worker.Public,
		Amount:       big.NewInt(1000),
	}
	l.SignOverReceipt = referee.SignReceipt(l.Genesis, l.LetterNumber, l.Block, l.Worker, record.AmountString(l.Amount))
	l.SignOverPrivateData = referee.SignPrivateData(l.WorkerID, l.KnowledgeID, l.CID)
	return l
}

// testInsurance binds a fixture letter to an employer.
func testInsurance(t *testing.T, referee, worker *record.Keypair, employer record.PublicKey, letterNumber uint32) record.Insurance {
	t.Helper()
	letter := testLetter(t, referee, worker, letterNumber)
	return record.Insurance{
		Letter:       letter,
		BlockAllowed: 200,
		Employer:     employer,
		WorkerSign:   worker.CoSign(letter.SignOverReceipt, employer),
	}
}
