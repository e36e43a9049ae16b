package sysvalidate

import (
	"context"
	"fmt"

	"github.com/roach88/sysval/internal/cascade"
	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/network"
	"github.com/roach88/sysval/internal/workspace"
)

// Validator runs the system checks for each op kind.
type Validator struct {
	defs         EntryDefLookup
	keys         AuthorKeys
	maxEntrySize int
	maxTagSize   int
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithAuthorKeys sets the author key capability. Default: AllKeysValid.
func WithAuthorKeys(keys AuthorKeys) ValidatorOption {
	return func(v *Validator) {
		v.keys = keys
	}
}

// WithLimits sets the entry and tag size limits in bytes.
// Non-positive values keep the defaults.
func WithLimits(maxEntrySize, maxTagSize int) ValidatorOption {
	return func(v *Validator) {
		if maxEntrySize > 0 {
			v.maxEntrySize = maxEntrySize
		}
		if maxTagSize > 0 {
			v.maxTagSize = maxTagSize
		}
	}
}

// NewValidator creates a validator that checks app entry types against defs.
// A nil defs rejects every app entry.
func NewValidator(defs EntryDefLookup, opts ...ValidatorOption) *Validator {
	v := &Validator{
		defs:         defs,
		keys:         AllKeysValid{},
		maxEntrySize: MaxEntrySize,
		maxTagSize:   MaxTagSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks one op against the workspace and, where the kind allows,
// the network. The returned op is the op to store back; it keeps its kind.
//
// The error is non-nil only for storage or transport faults, which abort
// the run.
func (v *Validator) Validate(ctx context.Context, op dht.Op, ws *workspace.Workspace, net network.Network) (Outcome, dht.Op, error) {
	outcome, err := outcomeOf(v.check(ctx, op, ws, net))
	if err != nil {
		return nil, op, fmt.Errorf("validate %s %s: %w", op.Kind, op.Hash(), err)
	}
	return outcome, op, nil
}

func (v *Validator) check(ctx context.Context, op dht.Op, ws *workspace.Workspace, net network.Network) error {
	if err := op.Validate(); err != nil {
		return &ValidationError{Code: CodeOpMalformed, Message: err.Error(), Err: err}
	}
	if err := checkSignature(op.Signature, op.Header); err != nil {
		return err
	}
	if err := checkAuthorKey(ctx, op.Header.Author, v.keys); err != nil {
		return err
	}

	h := op.Header
	switch op.Kind {
	case dht.OpRegisterAgentActivity:
		return v.registerAgentActivity(ctx, h, ws.Vault)
	case dht.OpStoreElement:
		return v.storeElement(ctx, op, ws.Cascade(net))
	case dht.OpStoreEntry:
		return v.storeEntry(ctx, h, *op.Entry, ws.Cascade(net))
	case dht.OpRegisterUpdatedBy:
		return v.registerUpdatedBy(ctx, h, ws.Vault)
	case dht.OpRegisterDeletedBy, dht.OpRegisterDeletedEntryHeader:
		return v.registerDeleted(ctx, h, ws.Vault)
	case dht.OpRegisterAddLink:
		return v.registerAddLink(ctx, h, ws.Vault, ws.Cascade(net))
	case dht.OpRegisterRemoveLink:
		return v.registerRemoveLink(ctx, h, ws.Vault)
	}
	return invalid(CodeOpMalformed, "unknown op kind %d", int(op.Kind))
}

func (v *Validator) registerAgentActivity(ctx context.Context, h dht.Header, vault VaultReader) error {
	if err := CheckPrevHeader(h); err != nil {
		return err
	}
	if err := CheckValidIfDna(ctx, h, vault); err != nil {
		return err
	}
	// A fork is terminal whether or not the previous header has arrived.
	if err := CheckChainRollback(ctx, h, vault); err != nil {
		return err
	}
	if !h.HasPrev() {
		return nil
	}
	prev, err := CheckHoldingPrevHeader(ctx, h.Author, h.PrevHeader, vault)
	if err != nil {
		return err
	}
	if err := CheckPrevTimestamp(h, prev.Header); err != nil {
		return err
	}
	return CheckPrevSeq(h, prev.Header)
}

// storeElement checks the header against its previous header only. Forks
// at a held sequence number are caught by the RegisterAgentActivity op of
// the same header.
func (v *Validator) storeElement(ctx context.Context, op dht.Op, c *cascade.Cascade) error {
	h := op.Header
	if err := CheckPrevHeader(h); err != nil {
		return err
	}
	if op.Entry != nil {
		if err := CheckEntryHash(h.EntryHash, *op.Entry); err != nil {
			return err
		}
	}
	if !h.HasPrev() {
		return nil
	}
	prev, err := CheckHeaderExists(ctx, h.PrevHeader, c)
	if err != nil {
		return err
	}
	if err := CheckPrevAuthor(h, prev.Header); err != nil {
		return err
	}
	if err := CheckPrevTimestamp(h, prev.Header); err != nil {
		return err
	}
	return CheckPrevSeq(h, prev.Header)
}

func (v *Validator) storeEntry(ctx context.Context, h dht.Header, entry dht.Entry, c *cascade.Cascade) error {
	et := *h.EntryType
	if err := CheckEntryType(et, entry); err != nil {
		return err
	}
	if app := et.App; app != nil {
		def, err := CheckAppEntryType(ctx, *app, v.defs)
		if err != nil {
			return err
		}
		if err := CheckNotPrivate(def); err != nil {
			return err
		}
	}
	if err := CheckEntryHash(h.EntryHash, entry); err != nil {
		return err
	}
	if err := CheckEntrySize(entry, v.maxEntrySize); err != nil {
		return err
	}

	if h.Type != dht.HeaderUpdate {
		return nil
	}
	original, err := CheckHeaderExists(ctx, h.OriginalHeader, c)
	if err != nil {
		return err
	}
	return updateCheck(h, original.Header)
}

func (v *Validator) registerUpdatedBy(ctx context.Context, h dht.Header, vault VaultReader) error {
	original, err := CheckHoldingElement(ctx, h.OriginalHeader, vault)
	if err != nil {
		return err
	}
	return updateCheck(h, original.Header)
}

func (v *Validator) registerDeleted(ctx context.Context, h dht.Header, vault VaultReader) error {
	deleted, err := CheckHoldingHeader(ctx, h.DeletesHeader, vault)
	if err != nil {
		return err
	}
	if err := CheckNewEntryHeader(deleted.Header); err != nil {
		return err
	}
	return CheckDeleteReference(h, deleted.Header)
}

func (v *Validator) registerAddLink(ctx context.Context, h dht.Header, vault VaultReader, c *cascade.Cascade) error {
	// The tag is checked first so an oversize tag is rejected even when the
	// base is missing.
	if err := CheckTagSize(h.Tag, v.maxTagSize); err != nil {
		return err
	}
	held, err := CheckHoldingEntry(ctx, h.BaseAddress, vault)
	if err != nil {
		return err
	}
	if held != nil {
		return nil
	}
	_, err = CheckEntryExists(ctx, h.BaseAddress, c)
	return err
}

func (v *Validator) registerRemoveLink(ctx context.Context, h dht.Header, vault VaultReader) error {
	linkAdd, err := CheckHoldingHeader(ctx, h.LinkAddAddress, vault)
	if err != nil {
		return err
	}
	if err := CheckLinkInMetadata(ctx, linkAdd.Header, h.LinkAddAddress, vault); err != nil {
		return err
	}
	if linkAdd.Header.BaseAddress != h.BaseAddress {
		return invalid(CodeReferenceInvalid, "link removal base %s differs from link base %s", h.BaseAddress, linkAdd.Header.BaseAddress)
	}
	return nil
}

func updateCheck(update, original dht.Header) error {
	if err := CheckNewEntryHeader(original); err != nil {
		return err
	}
	return CheckUpdateReference(update, original)
}
