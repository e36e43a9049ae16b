package dht

import (
	"errors"
	"fmt"
)

// OpKind tags the variant of a DHT operation.
//
// The declaration order here carries no meaning. Processing order is defined
// by an explicit rank table in the sysvalidate package.
type OpKind int

const (
	OpStoreElement OpKind = iota + 1
	OpStoreEntry
	OpRegisterAgentActivity
	OpRegisterUpdatedBy
	OpRegisterDeletedBy
	OpRegisterDeletedEntryHeader
	OpRegisterAddLink
	OpRegisterRemoveLink
)

// AllOpKinds lists every kind, in declaration order.
var AllOpKinds = []OpKind{
	OpStoreElement,
	OpStoreEntry,
	OpRegisterAgentActivity,
	OpRegisterUpdatedBy,
	OpRegisterDeletedBy,
	OpRegisterDeletedEntryHeader,
	OpRegisterAddLink,
	OpRegisterRemoveLink,
}

var opKindNames = map[OpKind]string{
	OpStoreElement:               "StoreElement",
	OpStoreEntry:                 "StoreEntry",
	OpRegisterAgentActivity:      "RegisterAgentActivity",
	OpRegisterUpdatedBy:          "RegisterUpdatedBy",
	OpRegisterDeletedBy:          "RegisterDeletedBy",
	OpRegisterDeletedEntryHeader: "RegisterDeletedEntryHeader",
	OpRegisterAddLink:            "RegisterAddLink",
	OpRegisterRemoveLink:         "RegisterRemoveLink",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// ParseOpKind converts a kind name back to an OpKind.
func ParseOpKind(s string) (OpKind, error) {
	for k, name := range opKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown op kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k OpKind) MarshalText() ([]byte, error) {
	if _, ok := opKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown op kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OpKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOpKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ErrKindMismatch is returned when an op's header does not fit its kind.
var ErrKindMismatch = errors.New("op kind does not match header")

// Op is a unit of DHT-bound change derived from a signed header and,
// for StoreElement and StoreEntry, optionally its entry.
type Op struct {
	Kind      OpKind    `json:"kind"`
	Signature Signature `json:"signature"`
	Header    Header    `json:"header"`
	Entry     *Entry    `json:"entry,omitempty"`
}

// NewOp builds an op and checks the kind/header invariant.
func NewOp(kind OpKind, sig Signature, header Header, entry *Entry) (Op, error) {
	op := Op{Kind: kind, Signature: sig, Header: header, Entry: entry}
	if err := op.Validate(); err != nil {
		return Op{}, err
	}
	return op, nil
}

// Validate checks the header fields and that the header type is one the
// op kind can carry.
func (o Op) Validate() error {
	if err := o.Header.Validate(); err != nil {
		return err
	}
	h := o.Header
	switch o.Kind {
	case OpStoreElement, OpRegisterAgentActivity:
		if o.Entry != nil && !h.IsNewEntry() {
			return fmt.Errorf("%w: %s header carries no entry", ErrKindMismatch, h.Type)
		}
	case OpStoreEntry:
		if !h.IsNewEntry() {
			return fmt.Errorf("%w: StoreEntry requires a create or update header, got %s", ErrKindMismatch, h.Type)
		}
		if o.Entry == nil {
			return fmt.Errorf("%w: StoreEntry requires an entry", ErrKindMismatch)
		}
	case OpRegisterUpdatedBy:
		if h.Type != HeaderUpdate {
			return fmt.Errorf("%w: RegisterUpdatedBy requires an update header, got %s", ErrKindMismatch, h.Type)
		}
	case OpRegisterDeletedBy, OpRegisterDeletedEntryHeader:
		if h.Type != HeaderDelete {
			return fmt.Errorf("%w: %s requires a delete header, got %s", ErrKindMismatch, o.Kind, h.Type)
		}
	case OpRegisterAddLink:
		if h.Type != HeaderCreateLink {
			return fmt.Errorf("%w: RegisterAddLink requires a create_link header, got %s", ErrKindMismatch, h.Type)
		}
	case OpRegisterRemoveLink:
		if h.Type != HeaderDeleteLink {
			return fmt.Errorf("%w: RegisterRemoveLink requires a delete_link header, got %s", ErrKindMismatch, h.Type)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrKindMismatch, int(o.Kind))
	}
	if o.Kind != OpStoreElement && o.Kind != OpStoreEntry && o.Entry != nil {
		return fmt.Errorf("%w: %s carries no entry", ErrKindMismatch, o.Kind)
	}
	return nil
}

// Hash returns the op's identity.
func (o Op) Hash() OpHash {
	return OpHash(hashValue(DomainOp, o.canonical()))
}

// Basis returns the DHT address the op is routed to.
func (o Op) Basis() AnyDhtHash {
	h := o.Header
	switch o.Kind {
	case OpStoreElement:
		return AnyDhtHash(h.Hash())
	case OpStoreEntry:
		return AnyDhtHash(h.EntryHash)
	case OpRegisterAgentActivity:
		return AnyDhtHash(h.Author)
	case OpRegisterUpdatedBy:
		return AnyDhtHash(h.OriginalEntry)
	case OpRegisterDeletedBy:
		return AnyDhtHash(h.DeletesHeader)
	case OpRegisterDeletedEntryHeader:
		return AnyDhtHash(h.DeletesEntry)
	case OpRegisterAddLink, OpRegisterRemoveLink:
		return AnyDhtHash(h.BaseAddress)
	}
	return ""
}

// SignedHeader returns the op's header with its signature.
func (o Op) SignedHeader() SignedHeader {
	return SignedHeader{Header: o.Header, Signature: o.Signature}
}

func (o Op) canonical() value {
	obj := vobject{
		"kind":      vstring(o.Kind.String()),
		"signature": vbytes(o.Signature),
		"header":    o.Header.canonical(),
	}
	if o.Entry != nil {
		obj["entry"] = o.Entry.canonical()
	}
	return obj
}
