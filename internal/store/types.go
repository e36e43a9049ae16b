package store

import (
	"fmt"

	"github.com/roach88/sysval/internal/dht"
)

// Status is the position of an op in the validation limbo state machine.
type Status string

const (
	// StatusPending is the initial status: no attempt yet.
	StatusPending Status = "pending"
	// StatusAwaitingSysDeps means a dependency was missing at the last attempt.
	StatusAwaitingSysDeps Status = "awaiting_sys_deps"
	// StatusSysValidated means the op passed system validation.
	StatusSysValidated Status = "sys_validated"
	// StatusAwaitingAppDeps belongs to app validation. System validation
	// never writes it.
	StatusAwaitingAppDeps Status = "awaiting_app_deps"
)

// ParseStatus converts a stored status string back to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAwaitingSysDeps, StatusSysValidated, StatusAwaitingAppDeps:
		return st, nil
	}
	return "", fmt.Errorf("unknown limbo status %q", s)
}

// Eligible reports whether system validation should pick up an entry in this status.
func (s Status) Eligible() bool {
	return s == StatusPending || s == StatusAwaitingSysDeps
}

// LimboEntry is one op waiting in, or moving through, system validation.
// Its identity is Op.Hash().
type LimboEntry struct {
	Op        dht.Op         `json:"op"`
	Basis     dht.AnyDhtHash `json:"basis"`
	TimeAdded dht.Timestamp  `json:"time_added"`
	LastTry   *dht.Timestamp `json:"last_try,omitempty"`
	NumTries  uint32         `json:"num_tries"`
	Status    Status         `json:"status"`
}

// Hash returns the entry's key.
func (e LimboEntry) Hash() dht.OpHash {
	return e.Op.Hash()
}

// NewLimboEntry creates a pending entry for an op entering system validation.
func NewLimboEntry(op dht.Op, now dht.Timestamp) LimboEntry {
	return LimboEntry{
		Op:        op,
		Basis:     op.Basis(),
		TimeAdded: now,
		Status:    StatusPending,
	}
}

// IntegrationStatus is the verdict carried into the integration limbo.
type IntegrationStatus string

const (
	IntegrationValid    IntegrationStatus = "valid"
	IntegrationRejected IntegrationStatus = "rejected"
)

// IntegrationLimboValue is an op waiting for integration.
type IntegrationLimboValue struct {
	Op               dht.Op            `json:"op"`
	ValidationStatus IntegrationStatus `json:"validation_status"`
	TimeAdded        dht.Timestamp     `json:"time_added"`
}

// Scope selects between the authoritative vault and the network cache.
type Scope string

const (
	ScopeVault Scope = "vault"
	ScopeCache Scope = "cache"
)

// ActivityItem records that an author's chain holds a header at a sequence number.
type ActivityItem struct {
	Author     dht.AgentPubKey `json:"author"`
	Seq        uint32          `json:"header_seq"`
	HeaderHash dht.HeaderHash  `json:"header_hash"`
}

// LinkRecord indexes a create_link header under its base.
type LinkRecord struct {
	LinkAddHash   dht.HeaderHash `json:"link_add_hash"`
	BaseAddress   dht.EntryHash  `json:"base_address"`
	TargetAddress dht.EntryHash  `json:"target_address"`
	ZomeID        uint8          `json:"zome_id"`
	Tag           []byte         `json:"tag"`
}

// LinkRecordFor builds the index record for a create_link header.
func LinkRecordFor(h dht.Header) LinkRecord {
	return LinkRecord{
		LinkAddHash:   h.Hash(),
		BaseAddress:   h.BaseAddress,
		TargetAddress: h.TargetAddress,
		ZomeID:        h.ZomeID,
		Tag:           h.Tag,
	}
}

// RejectedOp is an op that failed system validation terminally.
type RejectedOp struct {
	Hash       dht.OpHash    `json:"op_hash"`
	Op         dht.Op        `json:"op"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	RejectedAt dht.Timestamp `json:"rejected_at"`
}
