package sysvalidate

import (
	"github.com/roach88/sysval/internal/dht"
)

// Per-op outcomes recorded in a Report.
const (
	OutcomeSysValidated      = "sys_validated"
	OutcomeAwaitingDeps      = "awaiting_sys_deps"
	OutcomeRejected          = "rejected"
	OutcomeAlreadyIntegrated = "already_integrated"
	OutcomeAlreadyRejected   = "already_rejected"
)

// Stages a SysValidated op is handed to.
const (
	NextAppValidation = "app_validation"
	NextIntegration   = "integration"
)

// Report describes one workflow run.
type Report struct {
	RunID           string        `json:"run_id"`
	AttemptedAt     dht.Timestamp `json:"attempted_at"`
	Drained         int           `json:"drained"`
	Validated       int           `json:"sys_validated"`
	ToIntegration   int           `json:"sent_to_integration"`
	AwaitingDeps    int           `json:"awaiting_sys_deps"`
	Rejected        int           `json:"rejected"`
	Dropped         int           `json:"already_integrated"`
	AlreadyRejected int           `json:"already_rejected,omitempty"`
	Results         []OpResult    `json:"results"`
}

// OpResult is what happened to one op, in processing order.
type OpResult struct {
	Hash     dht.OpHash     `json:"op_hash"`
	Kind     dht.OpKind     `json:"kind"`
	Rank     int            `json:"rank"`
	Outcome  string         `json:"outcome"`
	Next     string         `json:"next,omitempty"`
	Code     ErrorCode      `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
	Missing  dht.AnyDhtHash `json:"missing,omitempty"`
	NumTries uint32         `json:"num_tries"`
}

// MinWaitingTries returns the fewest tries among ops left waiting on
// dependencies, or false if none are waiting.
func (r *Report) MinWaitingTries() (uint32, bool) {
	found := false
	var fewest uint32
	for _, res := range r.Results {
		if res.Outcome != OutcomeAwaitingDeps {
			continue
		}
		if !found || res.NumTries < fewest {
			fewest = res.NumTries
			found = true
		}
	}
	return fewest, found
}

func (r *Report) add(res OpResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeSysValidated:
		r.Validated++
		if res.Next == NextIntegration {
			r.ToIntegration++
		}
	case OutcomeAwaitingDeps:
		r.AwaitingDeps++
	case OutcomeRejected:
		r.Rejected++
	case OutcomeAlreadyIntegrated:
		r.Dropped++
	case OutcomeAlreadyRejected:
		r.AlreadyRejected++
	}
}
