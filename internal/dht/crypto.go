package dht

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrBadSignature means the signature does not verify against the header.
	ErrBadSignature = errors.New("header signature does not verify")

	// ErrBadAuthorKey means the author field is not a usable public key.
	ErrBadAuthorKey = errors.New("author is not a valid ed25519 public key")
)

// KeyPair signs headers for one agent.
type KeyPair struct {
	Public  AgentPubKey
	private ed25519.PrivateKey
}

// GenerateKey creates a new agent key pair from rand.
func GenerateKey(rand io.Reader) (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key: %w", err)
	}
	return KeyPair{Public: AgentPubKey(hex.EncodeToString(pub)), private: priv}, nil
}

// KeyPairFromSeed derives a key pair deterministically from a 32 byte seed.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return KeyPair{Public: AgentPubKey(hex.EncodeToString(pub)), private: priv}, nil
}

// SignHeader signs the canonical bytes of h. The header's author must be
// this key pair's public key.
func (k KeyPair) SignHeader(h Header) (Signature, error) {
	if h.Author != k.Public {
		return nil, fmt.Errorf("sign header: author %s is not the signing key", h.Author)
	}
	return ed25519.Sign(k.private, MarshalCanonical(h)), nil
}

// VerifyHeaderSignature checks sig over h using h.Author as the public key.
func VerifyHeaderSignature(sig Signature, h Header) error {
	pub, err := hex.DecodeString(string(h.Author))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return ErrBadAuthorKey
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), MarshalCanonical(h), sig) {
		return ErrBadSignature
	}
	return nil
}
