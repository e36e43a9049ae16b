package dht

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainHeader = "sysval/header/v1"
	DomainEntry  = "sysval/entry/v1"
	DomainOp     = "sysval/op/v1"
)

// HeaderHash addresses a header.
type HeaderHash string

// EntryHash addresses an entry.
type EntryHash string

// OpHash is the identity of an Op in every limbo store.
type OpHash string

// AnyDhtHash is any address that can be resolved on the DHT or used as a basis.
type AnyDhtHash string

// AgentPubKey is the hex encoded ed25519 public key of a chain author.
type AgentPubKey string

// Signature is an ed25519 signature over a header's canonical bytes.
type Signature []byte

// Timestamp is microseconds since the Unix epoch.
type Timestamp int64

// Now returns the current wall-clock time as a Timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

// Time converts the Timestamp back to a UTC time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339Nano)
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func hashValue(domain string, v value) string {
	return hashWithDomain(domain, marshalCanonical(v))
}
