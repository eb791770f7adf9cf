package record

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func TestKeypairFromSeed_RoundTrip(t *testing.T) {
	kp := mustKeypair(t)

	restored, err := KeypairFromSeed(kp.Seed())
	require.NoError(t, err)
	assert.Equal(t, kp.Public, restored.Public)

	// Both must produce identical signatures.
	sig1 := kp.SignPrivateData("w", "k", "c")
	sig2 := restored.SignPrivateData("w", "k", "c")
	assert.Equal(t, sig1, sig2)
}

func TestKeypairFromSeed_RejectsBadSeed(t *testing.T) {
	_, err := KeypairFromSeed("deadbeef")
	assert.Error(t, err)

	_, err = KeypairFromSeed("not hex at all")
	assert.Error(t, err)
}

func signedLetter(t *testing.T, referee, worker *Keypair) Letter {
	t.Helper()
	l := Letter{
		Valid:        true,
		WorkerID:     string(worker.Public),
		KnowledgeID:  "k1",
		CID:          "c1",
		Genesis:      "0x11",
		LetterNumber: 1,
		Block:        100,
		Referee:      referee.Public,
		Worker:       worker.Public,
		Amount:       big.NewInt(500),
	}
	l.SignOverReceipt = referee.SignReceipt(l.Genesis, l.LetterNumber, l.Block, l.Worker, AmountString(l.Amount))
	l.SignOverPrivateData = referee.SignPrivateData(l.WorkerID, l.KnowledgeID, l.CID)
	return l
}

func TestVerifyReceipt(t *testing.T) {
	referee := mustKeypair(t)
	worker := mustKeypair(t)
	letter := signedLetter(t, referee, worker)

	assert.NoError(t, VerifyReceipt(letter))
}

func TestVerifyReceipt_RejectsTampering(t *testing.T) {
	referee := mustKeypair(t)
	worker := mustKeypair(t)

	tests := []struct {
		name   string
		mutate func(*Letter)
	}{
		{"amount changed", func(l *Letter) { l.Amount = big.NewInt(999999) }},
		{"letter number changed", func(l *Letter) { l.LetterNumber = 42 }},
		{"worker swapped", func(l *Letter) { l.Worker = mustKeypair(t).Public }},
		{"referee swapped", func(l *Letter) { l.Referee = mustKeypair(t).Public }},
		{"genesis changed", func(l *Letter) { l.Genesis = "0x22" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			letter := signedLetter(t, referee, worker)
			tt.mutate(&letter)
			assert.Error(t, VerifyReceipt(letter))
		})
	}
}

func TestVerifyCoSign(t *testing.T) {
	referee := mustKeypair(t)
	worker := mustKeypair(t)
	employer := mustKeypair(t)
	letter := signedLetter(t, referee, worker)

	ins := Insurance{
		Letter:       letter,
		BlockAllowed: 200,
		Employer:     employer.Public,
		WorkerSign:   worker.CoSign(letter.SignOverReceipt, employer.Public),
	}
	assert.NoError(t, VerifyCoSign(ins))

	// A co-sign for one employer must not verify for another.
	ins.Employer = mustKeypair(t).Public
	assert.Error(t, VerifyCoSign(ins))
}

func TestVerifyCoSign_RejectsForeignWorker(t *testing.T) {
	referee := mustKeypair(t)
	worker := mustKeypair(t)
	employer := mustKeypair(t)
	letter := signedLetter(t, referee, worker)

	// Signed by someone who is not the letter's worker.
	intruder := mustKeypair(t)
	ins := Insurance{
		Letter:       letter,
		BlockAllowed: 200,
		Employer:     employer.Public,
		WorkerSign:   intruder.CoSign(letter.SignOverReceipt, employer.Public),
	}
	assert.Error(t, VerifyCoSign(ins))
}

func TestVerifyGrant(t *testing.T) {
	worker := mustKeypair(t)
	employer := mustKeypair(t)
	workerSign := Signature("aa")

	right := UsageRight{
		PubSign:    worker.SignGrant(workerSign, employer.Public),
		Employer:   employer.Public,
		WorkerSign: workerSign,
	}
	assert.NoError(t, VerifyGrant(worker.Public, right))

	right.WorkerSign = Signature("bb")
	assert.Error(t, VerifyGrant(worker.Public, right))
}

func TestDigests_EmployerBindingIsDistinct(t *testing.T) {
	worker := mustKeypair(t)
	receipt := Signature("aa")

	sigA := worker.CoSign(receipt, mustKeypair(t).Public)
	sigB := worker.CoSign(receipt, mustKeypair(t).Public)
	assert.NotEqual(t, sigA, sigB, "co-signs for different employers must differ")
}

func TestSignPrivateData_OwnDomain(t *testing.T) {
	kp := mustKeypair(t)

	privSig := kp.SignPrivateData("worker-1", "knowledge-1", "cid-1")

	// ed25519 signatures are deterministic, so signing the same
	// fields under the receipt domain must yield a different value.
	// The two referee signatures live in disjoint domains.
	receiptDomainSig := kp.sign(hashWithDomain(domainReceipt,
		[]byte("worker-1"), []byte("knowledge-1"), []byte("cid-1")))
	assert.NotEqual(t, receiptDomainSig, privSig)

	// Re-signing in the private domain reproduces the signature.
	assert.Equal(t, privSig, kp.SignPrivateData("worker-1", "knowledge-1", "cid-1"))
}
