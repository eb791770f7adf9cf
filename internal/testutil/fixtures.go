package testutil

import (
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slonigiraf/slonledger/internal/record"
)

// Genesis is the chain id used by fixture letters.
const Genesis = "0x1111111111111111111111111111111111111111111111111111111111111111"

// Keypair derives a deterministic keypair from a seed byte, so a test
// can name its actors ("referee is Keypair(t, 1)") and get the same
// keys on every run.
func Keypair(t *testing.T, seed byte) *record.Keypair {
	t.Helper()
	var s [32]byte
	for i := range s {
		s[i] = seed
	}
	kp, err := record.KeypairFromSeed(hex.EncodeToString(s[:]))
	require.NoError(t, err)
	return kp
}

// Letter builds a signed letter from referee to worker with sane
// defaults. The receipt signature verifies against the referee's key.
func Letter(t *testing.T, referee, worker *record.Keypair, letterNumber uint32) record.Letter {
	t.Helper()
	l := record.Letter{
		Valid:        true,
		WorkerID:     string(worker.Public),
		KnowledgeID:  "knowledge-1",
		CID:          "cid-1",
		Genesis:      Genesis,
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

// Insurance binds a fixture letter to an employer with the worker's
// co-signature.
func Insurance(t *testing.T, referee, worker *record.Keypair, employer record.PublicKey, letterNumber uint32) record.Insurance {
	t.Helper()
	letter := Letter(t, referee, worker, letterNumber)
	return record.Insurance{
		Letter:       letter,
		BlockAllowed: 200,
		Employer:     employer,
		WorkerSign:   worker.CoSign(letter.SignOverReceipt, employer),
	}
}

// Epoch is a fixed instant fixture clocks usually start from.
var Epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
