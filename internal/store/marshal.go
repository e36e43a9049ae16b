package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/sysval/internal/dht"
)

// marshalOp converts an op to JSON TEXT for storage.
// The row key is the op's content hash, not this encoding.
func marshalOp(op dht.Op) (string, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return "", fmt.Errorf("marshal op: %w", err)
	}
	return string(data), nil
}

// unmarshalOp parses op JSON TEXT. The kind/header invariant is not checked
// here: a mismatched op is rejected by validation, not by the read path.
func unmarshalOp(data string) (dht.Op, error) {
	var op dht.Op
	if err := json.Unmarshal([]byte(data), &op); err != nil {
		return dht.Op{}, fmt.Errorf("unmarshal op: %w", err)
	}
	return op, nil
}

func marshalSignedHeader(sh dht.SignedHeader) (string, error) {
	data, err := json.Marshal(sh)
	if err != nil {
		return "", fmt.Errorf("marshal signed header: %w", err)
	}
	return string(data), nil
}

func unmarshalSignedHeader(data string) (dht.SignedHeader, error) {
	var sh dht.SignedHeader
	if err := json.Unmarshal([]byte(data), &sh); err != nil {
		return dht.SignedHeader{}, fmt.Errorf("unmarshal signed header: %w", err)
	}
	return sh, nil
}

func marshalEntry(e dht.Entry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	return string(data), nil
}

func unmarshalEntry(data string) (dht.Entry, error) {
	var e dht.Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return dht.Entry{}, fmt.Errorf("unmarshal entry: %w", err)
	}
	return e, nil
}

// nullableTimestamp maps an optional timestamp to a nullable column value.
func nullableTimestamp(ts *dht.Timestamp) any {
	if ts == nil {
		return nil
	}
	return int64(*ts)
}
