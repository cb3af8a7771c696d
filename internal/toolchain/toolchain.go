// Package toolchain resolves and runs the external C toolchain binaries
// mockprobe depends on: a preprocessor, an AST dumper, and a linker driver.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/mockprobe/mockprobe/pkg/types"
)

// Roles of the three binaries mockprobe invokes.
const (
	RolePreprocessor = "preprocessor"
	RoleASTDumper    = "ast-dumper"
	RoleLinker       = "linker"
)

// defaultTimeout bounds a single tool invocation when no timeout is
// configured.
const defaultTimeout = 60 * time.Second

// PATH candidates tried per role when no override is configured.
var candidates = map[string][]string{
	RolePreprocessor: {"cpp", "gcc", "clang"},
	RoleASTDumper:    {"clang"},
	RoleLinker:       {"gcc", "clang"},
}

// Tool is one resolved toolchain binary.
type Tool struct {
	Role string
	Path string
}

// Toolchain holds the resolved binaries and the shared invocation timeout.
type Toolchain struct {
	Preprocessor Tool
	ASTDumper    Tool
	Linker       Tool
	Timeout      time.Duration
}

// Options configures toolchain discovery. Empty override fields fall back
// to PATH lookup over the role's candidate list.
type Options struct {
	Preprocessor string
	ASTDumper    string
	Linker       string
	Timeout      time.Duration
}

// Discover resolves all three toolchain roles or reports which role could
// not be satisfied.
func Discover(opts Options) (*Toolchain, error) {
	tc := &Toolchain{Timeout: opts.Timeout}
	if tc.Timeout <= 0 {
		tc.Timeout = defaultTimeout
	}

	var err error
	if tc.Preprocessor, err = Resolve(RolePreprocessor, opts.Preprocessor); err != nil {
		return nil, err
	}
	if tc.ASTDumper, err = Resolve(RoleASTDumper, opts.ASTDumper); err != nil {
		return nil, err
	}
	if tc.Linker, err = Resolve(RoleLinker, opts.Linker); err != nil {
		return nil, err
	}
	return tc, nil
}

// Resolve finds the binary for a role, preferring the override when set.
func Resolve(role, override string) (Tool, error) {
	if override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return Tool{}, &types.ToolchainError{Role: role, Candidates: []string{override}}
		}
		return Tool{Role: role, Path: path}, nil
	}

	names := candidates[role]
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return Tool{Role: role, Path: path}, nil
		}
	}
	return Tool{}, &types.ToolchainError{Role: role, Candidates: names}
}

// Result captures one external invocation.
type Result struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// Run executes a tool with the given arguments under the toolchain timeout.
// A non-zero exit status is returned in Result, not as an error; err is
// non-nil only when the process could not run or was killed by the timeout.
func (tc *Toolchain) Run(ctx context.Context, tool Tool, args ...string) (*Result, error) {
	return tc.RunInput(ctx, tool, nil, args...)
}

// RunInput is Run with data piped to the tool's standard input.
func (tc *Toolchain) RunInput(ctx context.Context, tool Tool, stdin []byte, args ...string) (*Result, error) {
	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, tool.Path, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.String(),
	}

	if err != nil {
		// A timed-out process is killed and surfaces as an ExitError;
		// the context error has to be checked first to tell the two apart.
		if runCtx.Err() != nil {
			err = runCtx.Err()
		} else {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitCode()
				return res, nil
			}
		}
		return res, &types.InvocationError{
			Tool:     tool.Path,
			ExitCode: -1,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}
	return res, nil
}

// Version runs the tool with --version and returns the first output line,
// or an empty string when the probe fails.
func (tc *Toolchain) Version(ctx context.Context, tool Tool) string {
	res, err := tc.Run(ctx, tool, "--version")
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	line := string(res.Stdout)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
