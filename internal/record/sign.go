package record

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Keypair is an in-memory signing identity.
type Keypair struct {
	Public PublicKey
	secret ed25519.PrivateKey
}

// GenerateKeypair creates a fresh ed25519 identity.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{
		Public: PublicKey(hex.EncodeToString(pub)),
		secret: priv,
	}, nil
}

// KeypairFromSeed restores an identity from a hex-encoded ed25519 seed,
// the form key material is persisted and backed up in.
func KeypairFromSeed(seedHex string) (*Keypair, error) {
	seed, err := decodeHex(seedHex)
	if err != nil {
		return nil, fmt.Errorf("keypair from seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keypair from seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		Public: PublicKey(hex.EncodeToString(pub)),
		secret: priv,
	}, nil
}

// Seed returns the hex-encoded seed for persistence.
func (k *Keypair) Seed() string {
	return hex.EncodeToString(k.secret.Seed())
}

// Signer converts the keypair to its persisted form.
func (k *Keypair) Signer(now time.Time) Signer {
	return Signer{PublicKey: k.Public, SecretKey: k.Seed(), Created: now}
}

func (k *Keypair) sign(digest []byte) Signature {
	return Signature(hex.EncodeToString(ed25519.Sign(k.secret, digest)))
}

// SignReceipt produces the referee's signature over a letter receipt.
func (k *Keypair) SignReceipt(genesis string, letterNumber uint32, block uint64, worker PublicKey, amount string) Signature {
	return k.sign(receiptDigest(genesis, letterNumber, block, k.Public, worker, amount))
}

// CoSign produces the worker's signature binding a letter to one
// employer. This signature is the proof-of-claim (workerSign).
func (k *Keypair) CoSign(signOverReceipt Signature, employer PublicKey) Signature {
	return k.sign(coSignDigest(signOverReceipt, employer))
}

// SignGrant authorizes an employer to redeem an existing insurance.
// The signature becomes the usage right's identity (pubSign).
func (k *Keypair) SignGrant(workerSign Signature, employer PublicKey) Signature {
	return k.sign(grantDigest(workerSign, employer))
}

// SignPrivateData signs the private (off-receipt) portion of a letter.
func (k *Keypair) SignPrivateData(workerID, knowledgeID, cid string) Signature {
	return k.sign(hashWithDomain(domainPrivate, []byte(workerID), []byte(knowledgeID), []byte(cid)))
}

func verify(key PublicKey, digest []byte, sig Signature) error {
	kb, err := key.Bytes()
	if err != nil {
		return fmt.Errorf("verify: bad key: %w", err)
	}
	if len(kb) != ed25519.PublicKeySize {
		return fmt.Errorf("verify: bad key length %d", len(kb))
	}
	sb, err := sig.Bytes()
	if err != nil {
		return fmt.Errorf("verify: bad signature: %w", err)
	}
	if len(sb) != ed25519.SignatureSize {
		return fmt.Errorf("verify: bad signature length %d", len(sb))
	}
	if !ed25519.Verify(ed25519.PublicKey(kb), digest, sb) {
		return fmt.Errorf("verify: signature does not match key")
	}
	return nil
}

// VerifyReceipt checks the referee's signature on a letter against the
// referee key embedded in the letter itself. Safe on untrusted input.
func VerifyReceipt(l Letter) error {
	digest := receiptDigest(l.Genesis, l.LetterNumber, l.Block, l.Referee, l.Worker, AmountString(l.Amount))
	if err := verify(l.Referee, digest, l.SignOverReceipt); err != nil {
		return fmt.Errorf("letter receipt: %w", err)
	}
	return nil
}

// VerifyCoSign checks the worker's employer-binding signature on an
// insurance against the worker key embedded in it.
func VerifyCoSign(ins Insurance) error {
	digest := coSignDigest(ins.SignOverReceipt, ins.Employer)
	if err := verify(ins.Worker, digest, ins.WorkerSign); err != nil {
		return fmt.Errorf("insurance co-sign: %w", err)
	}
	return nil
}

// VerifyGrant checks a usage right's authorizing signature against the
// worker key that issued it.
func VerifyGrant(worker PublicKey, r UsageRight) error {
	digest := grantDigest(r.WorkerSign, r.Employer)
	if err := verify(worker, digest, r.PubSign); err != nil {
		return fmt.Errorf("usage right grant: %w", err)
	}
	return nil
}
