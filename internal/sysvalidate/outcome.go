package sysvalidate

import (
	"errors"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
)

// Outcome is the result of validating one op. It is one of Validated,
// AwaitingDeps or Rejected; no other implementations exist.
//
// System validation can only ever move an op to SysValidated or
// AwaitingSysDeps, or out of the limbo entirely. AwaitingAppDeps belongs
// to app validation and no Outcome maps to it.
type Outcome interface {
	// LimboStatus returns the status the op is put back with, or false if
	// the op leaves the validation limbo.
	LimboStatus() (store.Status, bool)

	sealed()
}

// Validated means the op passed every system check.
type Validated struct{}

// AwaitingDeps means a dependency could not be resolved. The op is retried.
type AwaitingDeps struct {
	Missing dht.AnyDhtHash
	Err     *ValidationError
}

// Rejected means the op failed a check terminally.
type Rejected struct {
	Err *ValidationError
}

func (Validated) LimboStatus() (store.Status, bool)    { return store.StatusSysValidated, true }
func (AwaitingDeps) LimboStatus() (store.Status, bool) { return store.StatusAwaitingSysDeps, true }
func (Rejected) LimboStatus() (store.Status, bool)     { return "", false }

func (Validated) sealed()    {}
func (AwaitingDeps) sealed() {}
func (Rejected) sealed()     {}

// outcomeOf maps a check result to an Outcome. Errors that are not
// validation failures are returned unchanged as faults.
func outcomeOf(err error) (Outcome, error) {
	if err == nil {
		return Validated{}, nil
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	if ve.Code.Retryable() {
		return AwaitingDeps{Missing: ve.Missing, Err: ve}, nil
	}
	return Rejected{Err: ve}, nil
}
