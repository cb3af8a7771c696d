package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolchainUnavailable marks a required external program as missing.
// Every *ToolchainError unwraps to it.
var ErrToolchainUnavailable = errors.New("toolchain unavailable")

// ToolchainError reports that no binary could be found for a toolchain
// role. It is fatal for the module being analyzed.
type ToolchainError struct {
	Role       string
	Candidates []string
}

func (e *ToolchainError) Error() string {
	return fmt.Sprintf("no %s found (searched: %s)", e.Role, strings.Join(e.Candidates, ", "))
}

func (e *ToolchainError) Unwrap() error { return ErrToolchainUnavailable }

// InvocationError reports that an external tool ran but failed or produced
// unusable output. Stderr carries the captured diagnostic stream so callers
// can surface it verbatim.
type InvocationError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s invocation failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Severity of a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Stage names the pipeline stage a diagnostic originated from.
type Stage string

const (
	StageConditional Stage = "conditional"
	StagePreprocess  Stage = "preprocess"
	StageASTIndex    Stage = "astindex"
	StageProbe       Stage = "probe"
	StageLink        Stage = "link"
	StageResolve     Stage = "resolve"
	StageScaffold    Stage = "scaffold"
)

// Diagnostic is a recoverable condition observed during analysis. It is
// accumulated alongside partial results rather than aborting a stage.
type Diagnostic struct {
	Stage    Stage    `json:"stage"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Detail   string   `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Stage, d.Severity, d.Message)
}
