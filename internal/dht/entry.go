package dht

import "fmt"

// EntryKind distinguishes the shapes an entry can take.
type EntryKind string

const (
	EntryAgent    EntryKind = "agent"
	EntryApp      EntryKind = "app"
	EntryCapClaim EntryKind = "cap_claim"
	EntryCapGrant EntryKind = "cap_grant"
)

// Valid reports whether k is one of the known entry kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryAgent, EntryApp, EntryCapClaim, EntryCapGrant:
		return true
	}
	return false
}

// Visibility controls whether an app entry may be published to the DHT.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// AppEntryType identifies an entry definition declared by the application:
// ID indexes the entry defs of the zome at ZomeID.
type AppEntryType struct {
	ZomeID     uint8      `json:"zome_id"`
	ID         uint8      `json:"id"`
	Visibility Visibility `json:"visibility"`
}

func (t AppEntryType) String() string {
	return fmt.Sprintf("app(zome=%d,id=%d,%s)", t.ZomeID, t.ID, t.Visibility)
}

// EntryType is the entry type declared by a create or update header.
// App is set only when Kind is EntryApp.
type EntryType struct {
	Kind EntryKind     `json:"kind"`
	App  *AppEntryType `json:"app,omitempty"`
}

// AppType returns an app entry type declaration.
func AppType(zomeID, id uint8, visibility Visibility) EntryType {
	return EntryType{Kind: EntryApp, App: &AppEntryType{ZomeID: zomeID, ID: id, Visibility: visibility}}
}

func (t EntryType) String() string {
	if t.App != nil {
		return t.App.String()
	}
	return string(t.Kind)
}

// Equal reports whether both declarations name the same type.
func (t EntryType) Equal(other EntryType) bool {
	if t.Kind != other.Kind {
		return false
	}
	if t.App == nil || other.App == nil {
		return t.App == nil && other.App == nil
	}
	return *t.App == *other.App
}

func (t EntryType) canonical() value {
	obj := vobject{"kind": vstring(t.Kind)}
	if t.App != nil {
		obj["app"] = vobject{
			"zome_id":    vint(t.App.ZomeID),
			"id":         vint(t.App.ID),
			"visibility": vstring(t.App.Visibility),
		}
	}
	return obj
}

// Entry is the content addressed by a create or update header.
type Entry struct {
	Kind    EntryKind `json:"kind"`
	Content []byte    `json:"content"`
}

// Size returns the serialized payload size used for the entry size limit.
func (e Entry) Size() int {
	return len(e.Content)
}

// Hash returns the content address of the entry.
func (e Entry) Hash() EntryHash {
	return EntryHash(hashValue(DomainEntry, e.canonical()))
}

func (e Entry) canonical() value {
	return vobject{
		"kind":    vstring(e.Kind),
		"content": vbytes(e.Content),
	}
}
