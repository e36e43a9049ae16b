package dht

import (
	"bytes"
	"encoding/hex"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// value is a sealed set of canonical JSON values.
// There is no float and no null: hashes must be stable across platforms.
type value interface {
	canonicalValue()
}

type vstring string
type vint int64
type vbool bool
type varray []value
type vobject map[string]value

func (vstring) canonicalValue() {}
func (vint) canonicalValue()    {}
func (vbool) canonicalValue()   {}
func (varray) canonicalValue()  {}
func (vobject) canonicalValue() {}

// vbytes encodes raw bytes as a lowercase hex string.
func vbytes(b []byte) vstring {
	return vstring(hex.EncodeToString(b))
}

// MarshalCanonical returns the RFC 8785 style canonical JSON of a header,
// entry or op. This is the only encoding used for hashing and signing.
func MarshalCanonical(v interface{ canonical() value }) []byte {
	return marshalCanonical(v.canonical())
}

func marshalCanonical(v value) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, v value) {
	switch val := v.(type) {
	case vstring:
		writeCanonicalString(buf, string(val))
	case vint:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case vbool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case varray:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, elem)
		}
		buf.WriteByte(']')
	case vobject:
		buf.WriteByte('{')
		for i, k := range sortedKeys(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			writeCanonical(buf, val[k])
		}
		buf.WriteByte('}')
	}
}

// writeCanonicalString writes an NFC normalized JSON string. Only the quote,
// the backslash and control characters are escaped; HTML characters and
// U+2028/U+2029 are written literally. Invalid UTF-8 becomes U+FFFD.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	const hexDigits = "0123456789abcdef"
	buf.WriteByte('"')
	for _, r := range norm.NFC.String(s) {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[r>>4])
			buf.WriteByte(hexDigits[r&0xf])
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// sortedKeys returns keys ordered by UTF-16 code units as RFC 8785 requires.
func sortedKeys(obj vobject) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
	})
	return keys
}
