package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/roach88/sysval/internal/store"
	"github.com/roach88/sysval/internal/sysvalidate"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Command ran but the node reported a failure (aborted run, rejected manifest)
	ExitCommandError = 2 // Command error (bad config, unreadable input, database not opened)
)

// Error codes carried in JSON error responses.
const (
	ErrCodeConfig   = "E_CONFIG"
	ErrCodeStore    = "E_STORE"
	ErrCodeInput    = "E_INPUT"
	ErrCodeManifest = "E_MANIFEST"
	ErrCodeRun      = "E_RUN"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
	RunID  string      `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
// In text mode data is printed with its default formatting.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "%s [%s]: %s\n", color.New(color.FgRed, color.Bold).Sprint("Error"), code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns it as an ExitError.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	detail := message
	if err != nil {
		detail = fmt.Sprintf("%s: %v", message, err)
	}
	_ = f.Error(code, detail, nil)
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

var outcomeColors = map[string]*color.Color{
	sysvalidate.OutcomeSysValidated:      color.New(color.FgGreen),
	sysvalidate.OutcomeAwaitingDeps:      color.New(color.FgYellow),
	sysvalidate.OutcomeRejected:          color.New(color.FgRed),
	sysvalidate.OutcomeAlreadyIntegrated: color.New(color.FgCyan),
	sysvalidate.OutcomeAlreadyRejected:   color.New(color.FgCyan),
	string(store.StatusPending):          color.New(color.FgBlue),
	string(store.StatusAwaitingAppDeps):  color.New(color.FgMagenta),
}

// paint colours an outcome or limbo status for text output.
// color.NoColor disables this when stdout is not a terminal.
func paint(outcome string) string {
	if c, ok := outcomeColors[outcome]; ok {
		return c.Sprint(outcome)
	}
	return outcome
}

// PrintReport writes a workflow report.
func (f *OutputFormatter) PrintReport(r *sysvalidate.Report) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: r, RunID: r.RunID})
	}

	w := f.Writer
	fmt.Fprintf(w, "run %s at %s\n", r.RunID, r.AttemptedAt)
	if r.Drained == 0 {
		fmt.Fprintln(w, "no ops waiting for system validation")
		return nil
	}
	fmt.Fprintf(w, "drained %d: %d %s (%d to integration), %d %s, %d %s, %d %s\n",
		r.Drained,
		r.Validated, paint(sysvalidate.OutcomeSysValidated), r.ToIntegration,
		r.AwaitingDeps, paint(sysvalidate.OutcomeAwaitingDeps),
		r.Rejected, paint(sysvalidate.OutcomeRejected),
		r.Dropped, paint(sysvalidate.OutcomeAlreadyIntegrated),
	)
	for _, res := range r.Results {
		fmt.Fprintf(w, "  %s %-26s %s", res.Hash, res.Kind, paint(res.Outcome))
		switch {
		case res.Next != "":
			fmt.Fprintf(w, " -> %s", res.Next)
		case res.Code != "":
			fmt.Fprintf(w, " %s: %s", res.Code, res.Message)
		}
		if res.Missing != "" {
			fmt.Fprintf(w, " (missing %s)", res.Missing)
		}
		if res.Outcome == sysvalidate.OutcomeAwaitingDeps {
			fmt.Fprintf(w, " tries=%d", res.NumTries)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// PrintLimbo writes validation limbo entries.
func (f *OutputFormatter) PrintLimbo(entries []store.LimboEntry) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: entries})
	}
	if len(entries) == 0 {
		fmt.Fprintln(f.Writer, "validation limbo is empty")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(f.Writer, "%s %-26s %s tries=%d added=%s\n",
			e.Hash(), e.Op.Kind, paint(string(e.Status)), e.NumTries, e.TimeAdded)
	}
	return nil
}

// PrintRejected writes rejected ops.
func (f *OutputFormatter) PrintRejected(rejected []store.RejectedOp) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: rejected})
	}
	if len(rejected) == 0 {
		fmt.Fprintln(f.Writer, "no rejected ops")
		return nil
	}
	for _, r := range rejected {
		fmt.Fprintf(f.Writer, "%s %-26s %s %s: %s\n",
			r.Hash, r.Op.Kind, paint(sysvalidate.OutcomeRejected), r.Code, r.Message)
	}
	return nil
}

// limboOrder is the order statuses are listed in.
var limboOrder = []store.Status{
	store.StatusPending,
	store.StatusAwaitingSysDeps,
	store.StatusSysValidated,
	store.StatusAwaitingAppDeps,
}

// PrintSummary outputs per-stage counts of a node's database.
func (f *OutputFormatter) PrintSummary(s store.Summary) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: s})
	}
	fmt.Fprintln(f.Writer, "validation limbo:")
	for _, st := range limboOrder {
		fmt.Fprintf(f.Writer, "  %-18s %d\n", st, s.Limbo[st])
	}
	fmt.Fprintf(f.Writer, "%-20s %d\n", "integration limbo", s.Integration)
	fmt.Fprintf(f.Writer, "%-20s %d\n", "integrated", s.Integrated)
	fmt.Fprintf(f.Writer, "%-20s %d\n", "rejected", s.Rejected)
	fmt.Fprintf(f.Writer, "%-20s %d vault, %d cache\n", "elements", s.VaultElements, s.CacheElements)
	return nil
}
