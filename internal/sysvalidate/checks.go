package sysvalidate

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sysval/internal/appconfig"
	"github.com/roach88/sysval/internal/cascade"
	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
)

const (
	// MaxEntrySize is the default limit on an entry's serialized content, in bytes.
	MaxEntrySize = 16_000_000

	// MaxTagSize is the default limit on a link tag, in bytes.
	MaxTagSize = 400
)

// VaultReader is the read access checks need to the authoritative store.
// Implemented by workspace.Vault.
type VaultReader interface {
	cascade.Source
	Activity(ctx context.Context, author dht.AgentPubKey) ([]store.ActivityItem, error)
	ActivityAt(ctx context.Context, author dht.AgentPubKey, seq uint32) ([]store.ActivityItem, error)
	Link(ctx context.Context, linkAdd dht.HeaderHash) (*store.LinkRecord, error)
}

// EntryDefLookup answers whether an app entry type is declared, and how.
// Implemented by appconfig.Manifest.
type EntryDefLookup interface {
	EntryDef(ctx context.Context, t dht.AppEntryType) (appconfig.EntryDef, bool, error)
}

// Each check returns nil, a *ValidationError, or a storage/transport fault.

// CheckPrevHeader checks that only a dna header starts a chain.
func CheckPrevHeader(h dht.Header) error {
	if h.Type == dht.HeaderDna {
		if h.HasPrev() || h.Seq != 0 {
			return invalid(CodeChainInvalid, "dna header must be first in the chain (seq=%d)", h.Seq)
		}
		return nil
	}
	if !h.HasPrev() {
		return invalid(CodeChainInvalid, "%s header has no previous header", h.Type)
	}
	if h.Seq == 0 {
		return invalid(CodeChainInvalid, "%s header at sequence 0", h.Type)
	}
	return nil
}

// CheckValidIfDna checks that a dna header is only accepted for an author
// whose chain the vault does not already hold.
func CheckValidIfDna(ctx context.Context, h dht.Header, vault VaultReader) error {
	if h.Type != dht.HeaderDna {
		return nil
	}
	items, err := vault.Activity(ctx, h.Author)
	if err != nil {
		return err
	}
	self := h.Hash()
	for _, item := range items {
		if item.HeaderHash != self {
			return invalid(CodeChainInvalid, "dna header for author with existing chain activity")
		}
	}
	return nil
}

// CheckHoldingPrevHeader returns the previous header from the vault. It
// must appear in the author's activity and its element must be held.
func CheckHoldingPrevHeader(ctx context.Context, author dht.AgentPubKey, prev dht.HeaderHash, vault VaultReader) (*dht.SignedHeader, error) {
	items, err := vault.Activity(ctx, author)
	if err != nil {
		return nil, err
	}
	inActivity := false
	for _, item := range items {
		if item.HeaderHash == prev {
			inActivity = true
			break
		}
	}
	if !inActivity {
		return nil, dependencyMissing(prev, "previous header in author activity")
	}

	el, err := vault.GetElement(ctx, prev)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, dependencyMissing(prev, "previous header")
	}
	return &el.SignedHeader, nil
}

// CheckChainRollback rejects a header when the vault already holds a
// different header from the same author at the same sequence number.
func CheckChainRollback(ctx context.Context, h dht.Header, vault VaultReader) error {
	items, err := vault.ActivityAt(ctx, h.Author, h.Seq)
	if err != nil {
		return err
	}
	self := h.Hash()
	for _, item := range items {
		if item.HeaderHash != self {
			return invalid(CodeChainInvalid, "chain fork at sequence %d: already holding %s", h.Seq, item.HeaderHash)
		}
	}
	return nil
}

// CheckPrevAuthor checks that the previous header belongs to the same chain.
func CheckPrevAuthor(h, prev dht.Header) error {
	if h.Author != prev.Author {
		return invalid(CodeChainInvalid, "previous header authored by %s", prev.Author)
	}
	return nil
}

// CheckPrevTimestamp checks that timestamps strictly increase along the chain.
func CheckPrevTimestamp(h, prev dht.Header) error {
	if h.Timestamp <= prev.Timestamp {
		return invalid(CodeChainInvalid, "timestamp %d not after previous %d", h.Timestamp, prev.Timestamp)
	}
	return nil
}

// CheckPrevSeq checks that the sequence number follows the previous one by exactly one.
func CheckPrevSeq(h, prev dht.Header) error {
	if h.Seq != prev.Seq+1 {
		return invalid(CodeChainInvalid, "sequence %d does not follow previous %d", h.Seq, prev.Seq)
	}
	return nil
}

// CheckHeaderExists resolves a header through the cascade.
func CheckHeaderExists(ctx context.Context, hash dht.HeaderHash, c *cascade.Cascade) (*dht.SignedHeader, error) {
	sh, err := c.RetrieveHeader(ctx, hash)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, dependencyMissing(hash, "header")
	}
	return sh, nil
}

// CheckEntryExists resolves an entry through the cascade.
func CheckEntryExists(ctx context.Context, hash dht.EntryHash, c *cascade.Cascade) (*dht.Entry, error) {
	entry, err := c.RetrieveEntry(ctx, hash)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, dependencyMissing(hash, "entry")
	}
	return entry, nil
}

// CheckHoldingElement returns an element held in the vault.
func CheckHoldingElement(ctx context.Context, hash dht.HeaderHash, vault VaultReader) (*dht.Element, error) {
	el, err := vault.GetElement(ctx, hash)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, dependencyMissing(hash, "element in vault")
	}
	return el, nil
}

// CheckHoldingHeader returns a header held in the vault.
func CheckHoldingHeader(ctx context.Context, hash dht.HeaderHash, vault VaultReader) (*dht.SignedHeader, error) {
	el, err := CheckHoldingElement(ctx, hash, vault)
	if err != nil {
		return nil, err
	}
	return &el.SignedHeader, nil
}

// CheckHoldingEntry returns an entry held in the vault, or nil if the vault
// does not hold it. Absence here is not a failure by itself.
func CheckHoldingEntry(ctx context.Context, hash dht.EntryHash, vault VaultReader) (*dht.Entry, error) {
	return vault.GetEntry(ctx, hash)
}

// CheckEntryType checks that the entry's shape matches the declared type.
func CheckEntryType(et dht.EntryType, entry dht.Entry) error {
	if et.Kind != entry.Kind {
		return invalid(CodeEntryInvalid, "header declares %s entry, got %s", et, entry.Kind)
	}
	return nil
}

// CheckAppEntryType checks that an app entry type is declared in the
// application manifest with the visibility the header claims.
func CheckAppEntryType(ctx context.Context, t dht.AppEntryType, defs EntryDefLookup) (appconfig.EntryDef, error) {
	if defs == nil {
		return appconfig.EntryDef{}, invalid(CodeEntryInvalid, "no app manifest to check %s", t)
	}
	def, ok, err := defs.EntryDef(ctx, t)
	if err != nil {
		return appconfig.EntryDef{}, err
	}
	if !ok {
		return appconfig.EntryDef{}, invalid(CodeEntryInvalid, "entry type %s is not declared", t)
	}
	if def.Visibility != t.Visibility {
		return appconfig.EntryDef{}, invalid(CodeEntryInvalid, "entry type %s declared %s in manifest", t, def.Visibility)
	}
	return def, nil
}

// CheckNotPrivate rejects private entry types, which never go to the DHT.
func CheckNotPrivate(def appconfig.EntryDef) error {
	if def.Private() {
		return invalid(CodeEntryInvalid, "entry def %q is private", def.ID)
	}
	return nil
}

// CheckEntryHash checks the entry against the hash the header declares.
func CheckEntryHash(hash dht.EntryHash, entry dht.Entry) error {
	if got := entry.Hash(); got != hash {
		return invalid(CodeEntryInvalid, "entry hashes to %s, header declares %s", got, hash)
	}
	return nil
}

// CheckEntrySize checks the entry against the size limit.
func CheckEntrySize(entry dht.Entry, limit int) error {
	if entry.Size() > limit {
		return invalid(CodeEntryInvalid, "entry size %d exceeds limit %d", entry.Size(), limit)
	}
	return nil
}

// CheckNewEntryHeader checks that a referenced header created entry
// content: only create and update headers can be updated or deleted.
func CheckNewEntryHeader(h dht.Header) error {
	if !h.IsNewEntry() {
		return invalid(CodeReferenceInvalid, "referenced %s header is not a create or update", h.Type)
	}
	return nil
}

// CheckUpdateReference checks that an update keeps the original's entry
// type and names the original's entry.
func CheckUpdateReference(update, original dht.Header) error {
	if update.EntryType == nil || original.EntryType == nil || !update.EntryType.Equal(*original.EntryType) {
		return invalid(CodeReferenceInvalid, "update changes the entry type of %s", update.OriginalHeader)
	}
	if update.OriginalEntry != original.EntryHash {
		return invalid(CodeReferenceInvalid, "update names entry %s, original header has %s", update.OriginalEntry, original.EntryHash)
	}
	return nil
}

// CheckDeleteReference checks that a delete names the deleted header's entry.
func CheckDeleteReference(del, original dht.Header) error {
	if del.DeletesEntry != original.EntryHash {
		return invalid(CodeReferenceInvalid, "delete names entry %s, deleted header has %s", del.DeletesEntry, original.EntryHash)
	}
	return nil
}

// CheckTagSize checks a link tag against the size limit.
func CheckTagSize(tag []byte, limit int) error {
	if len(tag) > limit {
		return invalid(CodeEntryInvalid, "link tag size %d exceeds limit %d", len(tag), limit)
	}
	return nil
}

// CheckLinkInMetadata checks that a create_link header held in the vault
// is also in the vault's link index.
func CheckLinkInMetadata(ctx context.Context, linkAdd dht.Header, hash dht.HeaderHash, vault VaultReader) error {
	if linkAdd.Type != dht.HeaderCreateLink {
		return invalid(CodeReferenceInvalid, "link removal targets %s header %s", linkAdd.Type, hash)
	}
	rec, err := vault.Link(ctx, hash)
	if err != nil {
		return err
	}
	if rec == nil {
		return invalid(CodeReferenceInvalid, "link %s held but missing from the link index", hash)
	}
	if rec.BaseAddress != linkAdd.BaseAddress {
		return invalid(CodeReferenceInvalid, "link index base %s disagrees with header base %s", rec.BaseAddress, linkAdd.BaseAddress)
	}
	return nil
}

// checkSignature verifies the header signature and maps its failures.
func checkSignature(sig dht.Signature, h dht.Header) error {
	switch err := dht.VerifyHeaderSignature(sig, h); {
	case err == nil:
		return nil
	case errors.Is(err, dht.ErrBadAuthorKey):
		return &ValidationError{Code: CodeAuthorInvalid, Message: "author is not a valid public key", Err: err}
	default:
		return &ValidationError{Code: CodeSignatureInvalid, Message: "header signature does not verify", Err: err}
	}
}

// checkAuthorKey asks the key capability whether the author may still sign.
func checkAuthorKey(ctx context.Context, author dht.AgentPubKey, keys AuthorKeys) error {
	ok, err := keys.KeyValid(ctx, author)
	if err != nil {
		return fmt.Errorf("check author key: %w", err)
	}
	if !ok {
		return invalid(CodeAuthorInvalid, "author key %s is revoked", author)
	}
	return nil
}
