package record

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Domain prefixes for derived identifiers. The null-byte separator in
// hashWithDomain prevents domain/data boundary ambiguity.
const (
	domainLesson  = "slonig/lesson/v1"
	domainContent = "slonig/content/v1"
	domainReceipt = "slonig/receipt/v1"
	domainCoSign  = "slonig/cosign/v1"
	domainGrant   = "slonig/grant/v1"
	domainPrivate = "slonig/private/v1"
)

func hashWithDomain(domain string, parts ...[]byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	for _, p := range parts {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return h.Sum(nil)
}

// LessonID derives the deterministic lesson identifier from the
// participants and the lesson content id. Resuming a session between
// the same tutor and student over the same content yields the same id.
func LessonID(tutor, student PublicKey, cid string) string {
	sum := hashWithDomain(domainLesson, []byte(tutor), []byte(student), []byte(cid))
	return hex.EncodeToString(sum)
}

// ContentID derives the content identifier for a blob.
func ContentID(data []byte) string {
	sum := hashWithDomain(domainContent, data)
	return hex.EncodeToString(sum)
}

// receiptDigest is the message a referee signs when issuing a letter.
// It binds the chain genesis, the per-referee letter number, the block
// of issue, both identities, and the staked amount.
func receiptDigest(genesis string, letterNumber uint32, block uint64, referee, worker PublicKey, amount string) []byte {
	var num [4]byte
	binary.BigEndian.PutUint32(num[:], letterNumber)
	var blk [8]byte
	binary.BigEndian.PutUint64(blk[:], block)
	return hashWithDomain(domainReceipt,
		[]byte(genesis), num[:], blk[:], []byte(referee), []byte(worker), []byte(amount))
}

// coSignDigest is the message a worker signs to make a letter
// redeemable by one specific employer.
func coSignDigest(signOverReceipt Signature, employer PublicKey) []byte {
	return hashWithDomain(domainCoSign, []byte(signOverReceipt), []byte(employer))
}

// grantDigest is the message a worker signs to authorize an employer
// to redeem an existing insurance.
func grantDigest(workerSign Signature, employer PublicKey) []byte {
	return hashWithDomain(domainGrant, []byte(workerSign), []byte(employer))
}
