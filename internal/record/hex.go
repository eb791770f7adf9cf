package record

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// PublicKey is a hex-encoded ed25519 public key identifying a
// participant (referee, worker, employer, tutor, student).
type PublicKey string

// Signature is a hex-encoded ed25519 signature.
type Signature string

// ParsePublicKey validates and normalizes a hex public key string.
// Keys are stored lowercase without a 0x prefix.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := decodeHex(s)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return "", fmt.Errorf("parse public key: want %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return PublicKey(hex.EncodeToString(b)), nil
}

// ParseSignature validates and normalizes a hex signature string.
func ParseSignature(s string) (Signature, error) {
	b, err := decodeHex(s)
	if err != nil {
		return "", fmt.Errorf("parse signature: %w", err)
	}
	if len(b) != ed25519.SignatureSize {
		return "", fmt.Errorf("parse signature: want %d bytes, got %d", ed25519.SignatureSize, len(b))
	}
	return Signature(hex.EncodeToString(b)), nil
}

// Bytes decodes the key. Panics only on keys that bypassed ParsePublicKey
// with invalid hex; callers at trust boundaries must parse first.
func (p PublicKey) Bytes() ([]byte, error) {
	return decodeHex(string(p))
}

func (p PublicKey) String() string { return string(p) }

// IsZero reports whether the key is unset.
func (p PublicKey) IsZero() bool { return p == "" }

// Bytes decodes the signature.
func (s Signature) Bytes() ([]byte, error) {
	return decodeHex(string(s))
}

func (s Signature) String() string { return string(s) }

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool { return s == "" }

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return nil, fmt.Errorf("empty hex string")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
