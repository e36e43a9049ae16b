package dht

import (
	"errors"
	"fmt"
)

// HeaderType tags the variant carried by a Header.
type HeaderType string

const (
	HeaderDna                HeaderType = "dna"
	HeaderAgentValidationPkg HeaderType = "agent_validation_pkg"
	HeaderCreate             HeaderType = "create"
	HeaderUpdate             HeaderType = "update"
	HeaderDelete             HeaderType = "delete"
	HeaderCreateLink         HeaderType = "create_link"
	HeaderDeleteLink         HeaderType = "delete_link"
)

// ErrMalformedHeader is returned by Header.Validate.
var ErrMalformedHeader = errors.New("malformed header")

// Header is one signed step of an agent's source chain.
//
// The common fields are always present. Which of the remaining fields are
// meaningful depends on Type:
//   - dna: DnaHash; no PrevHeader, Seq 0
//   - agent_validation_pkg: MembraneProof (optional)
//   - create: EntryType, EntryHash
//   - update: EntryType, EntryHash, OriginalHeader, OriginalEntry
//   - delete: DeletesHeader, DeletesEntry
//   - create_link: BaseAddress, TargetAddress, ZomeID, Tag
//   - delete_link: LinkAddAddress, BaseAddress
type Header struct {
	Type       HeaderType  `json:"type"`
	Author     AgentPubKey `json:"author"`
	Timestamp  Timestamp   `json:"timestamp"`
	Seq        uint32      `json:"header_seq"`
	PrevHeader HeaderHash  `json:"prev_header,omitempty"`

	DnaHash       string `json:"dna_hash,omitempty"`
	MembraneProof []byte `json:"membrane_proof,omitempty"`

	EntryType *EntryType `json:"entry_type,omitempty"`
	EntryHash EntryHash  `json:"entry_hash,omitempty"`

	OriginalHeader HeaderHash `json:"original_header_address,omitempty"`
	OriginalEntry  EntryHash  `json:"original_entry_address,omitempty"`

	DeletesHeader HeaderHash `json:"deletes_address,omitempty"`
	DeletesEntry  EntryHash  `json:"deletes_entry_address,omitempty"`

	BaseAddress    EntryHash  `json:"base_address,omitempty"`
	TargetAddress  EntryHash  `json:"target_address,omitempty"`
	ZomeID         uint8      `json:"zome_id,omitempty"`
	Tag            []byte     `json:"tag,omitempty"`
	LinkAddAddress HeaderHash `json:"link_add_address,omitempty"`
}

// HasPrev reports whether the header references a previous header.
func (h Header) HasPrev() bool {
	return h.PrevHeader != ""
}

// IsNewEntry reports whether the header creates entry content (create or update).
func (h Header) IsNewEntry() bool {
	return h.Type == HeaderCreate || h.Type == HeaderUpdate
}

// Hash returns the content address of the header.
func (h Header) Hash() HeaderHash {
	return HeaderHash(hashValue(DomainHeader, h.canonical()))
}

// Validate checks that the fields required by the header's type are present.
// It does not consult any store.
func (h Header) Validate() error {
	if h.Author == "" {
		return fmt.Errorf("%w: missing author", ErrMalformedHeader)
	}
	switch h.Type {
	case HeaderDna:
		if h.DnaHash == "" {
			return fmt.Errorf("%w: dna header missing dna_hash", ErrMalformedHeader)
		}
	case HeaderAgentValidationPkg:
	case HeaderCreate, HeaderUpdate:
		if h.EntryType == nil || h.EntryHash == "" {
			return fmt.Errorf("%w: %s header missing entry type or hash", ErrMalformedHeader, h.Type)
		}
		if !h.EntryType.Kind.Valid() {
			return fmt.Errorf("%w: unknown entry kind %q", ErrMalformedHeader, h.EntryType.Kind)
		}
		if (h.EntryType.Kind == EntryApp) != (h.EntryType.App != nil) {
			return fmt.Errorf("%w: app entry type must be set exactly for app entries", ErrMalformedHeader)
		}
		if h.Type == HeaderUpdate && (h.OriginalHeader == "" || h.OriginalEntry == "") {
			return fmt.Errorf("%w: update header missing original addresses", ErrMalformedHeader)
		}
	case HeaderDelete:
		if h.DeletesHeader == "" || h.DeletesEntry == "" {
			return fmt.Errorf("%w: delete header missing deleted addresses", ErrMalformedHeader)
		}
	case HeaderCreateLink:
		if h.BaseAddress == "" || h.TargetAddress == "" {
			return fmt.Errorf("%w: create_link header missing base or target", ErrMalformedHeader)
		}
	case HeaderDeleteLink:
		if h.LinkAddAddress == "" || h.BaseAddress == "" {
			return fmt.Errorf("%w: delete_link header missing link_add_address or base", ErrMalformedHeader)
		}
	default:
		return fmt.Errorf("%w: unknown header type %q", ErrMalformedHeader, h.Type)
	}
	return nil
}

func (h Header) canonical() value {
	obj := vobject{
		"type":       vstring(h.Type),
		"author":     vstring(h.Author),
		"timestamp":  vint(h.Timestamp),
		"header_seq": vint(h.Seq),
	}
	if h.PrevHeader != "" {
		obj["prev_header"] = vstring(h.PrevHeader)
	}
	switch h.Type {
	case HeaderDna:
		obj["dna_hash"] = vstring(h.DnaHash)
	case HeaderAgentValidationPkg:
		obj["membrane_proof"] = vbytes(h.MembraneProof)
	case HeaderCreate, HeaderUpdate:
		if h.EntryType != nil {
			obj["entry_type"] = h.EntryType.canonical()
		}
		obj["entry_hash"] = vstring(h.EntryHash)
		if h.Type == HeaderUpdate {
			obj["original_header_address"] = vstring(h.OriginalHeader)
			obj["original_entry_address"] = vstring(h.OriginalEntry)
		}
	case HeaderDelete:
		obj["deletes_address"] = vstring(h.DeletesHeader)
		obj["deletes_entry_address"] = vstring(h.DeletesEntry)
	case HeaderCreateLink:
		obj["base_address"] = vstring(h.BaseAddress)
		obj["target_address"] = vstring(h.TargetAddress)
		obj["zome_id"] = vint(h.ZomeID)
		obj["tag"] = vbytes(h.Tag)
	case HeaderDeleteLink:
		obj["link_add_address"] = vstring(h.LinkAddAddress)
		obj["base_address"] = vstring(h.BaseAddress)
	}
	return obj
}

// SignedHeader pairs a header with its author's signature.
type SignedHeader struct {
	Header    Header    `json:"header"`
	Signature Signature `json:"signature"`
}

// Element is a signed header and, for new-entry headers, its entry.
type Element struct {
	SignedHeader
	Entry *Entry `json:"entry,omitempty"`
}

// HeaderHash returns the address of the element's header.
func (e Element) HeaderHash() HeaderHash {
	return e.Header.Hash()
}
