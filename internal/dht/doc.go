// Package dht defines the records that flow through system validation:
// headers, entries, elements and the DHT operations derived from them.
//
// This package contains type definitions, content hashing and signing only.
// Every other internal package imports dht; dht imports nothing internal.
//
// Key design constraints:
//   - Identity is content-addressed: every hash is SHA-256 over canonical
//     JSON with a domain prefix, never over encoding/json output
//   - NO float types anywhere - timestamps are int64 microseconds
//   - All JSON tags use snake_case
//   - An Op's header must agree with its kind (see Op.Validate)
package dht
