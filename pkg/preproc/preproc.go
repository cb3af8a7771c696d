// Package preproc produces the two preprocessed views of a C source file:
// the normal view, preprocessed as-is, and the function-visible view,
// preprocessed after conditional directives are blanked so that guarded
// function definitions survive into the output.
package preproc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mockprobe/mockprobe/internal/toolchain"
	"github.com/mockprobe/mockprobe/pkg/types"
)

// Defines that neutralize constructs clang rejects once conditionals are
// blanked. Applied to the function-visible pass only.
var flattenCompatDefines = []string{
	"_Atomic(x)=x",
	"__packed=",
	"_Static_assert(...)=",
}

// Options configure a Normalizer. Defines and Includes carry the platform
// baseline plus any caller extras, already merged in order.
type Options struct {
	Toolchain *toolchain.Toolchain
	Defines   []string
	Includes  []string
}

// Result holds both preprocessed views and the paths of the artifacts
// written into the scratch directory.
type Result struct {
	Normal        []byte
	Visible       []byte
	NormalPath    string
	VisiblePath   string
	FlattenedPath string
}

// Normalizer runs the external preprocessor over a source file.
type Normalizer struct {
	tc       *toolchain.Toolchain
	defines  []string
	includes []string
}

func New(opts Options) *Normalizer {
	return &Normalizer{
		tc:       opts.Toolchain,
		defines:  opts.Defines,
		includes: opts.Includes,
	}
}

// Normalize preprocesses sourcePath twice and writes the flattened copy and
// both preprocessed views under dir. A preprocessor failure surfaces as a
// *types.InvocationError carrying the captured stderr.
func (n *Normalizer) Normalize(ctx context.Context, sourcePath, dir string) (*Result, error) {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))

	res := &Result{
		FlattenedPath: filepath.Join(dir, base+".flat.c"),
		NormalPath:    filepath.Join(dir, base+".norm.i"),
		VisiblePath:   filepath.Join(dir, base+".vis.i"),
	}

	if err := FlattenFile(sourcePath, res.FlattenedPath); err != nil {
		return nil, fmt.Errorf("flattening %s: %w", sourcePath, err)
	}

	var err error
	if res.Normal, err = n.run(ctx, sourcePath, nil); err != nil {
		return nil, err
	}
	if res.Visible, err = n.run(ctx, res.FlattenedPath, flattenCompatDefines); err != nil {
		return nil, err
	}

	if err := os.WriteFile(res.NormalPath, res.Normal, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", res.NormalPath, err)
	}
	if err := os.WriteFile(res.VisiblePath, res.Visible, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", res.VisiblePath, err)
	}
	return res, nil
}

// run invokes the preprocessor over one input file and returns its stdout.
func (n *Normalizer) run(ctx context.Context, input string, extraDefines []string) ([]byte, error) {
	tool := n.tc.Preprocessor

	args := modeArgs(tool)
	for _, inc := range n.includes {
		args = append(args, "-I"+inc)
	}
	for _, def := range n.defines {
		args = append(args, "-D"+def)
	}
	for _, def := range extraDefines {
		args = append(args, "-D"+def)
	}
	args = append(args, input)

	res, err := n.tc.Run(ctx, tool, args...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &types.InvocationError{
			Tool:     tool.Path,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}
	return res.Stdout, nil
}

// modeArgs puts a general compiler into preprocess-only mode; a dedicated
// cpp needs no flag.
func modeArgs(tool toolchain.Tool) []string {
	switch base := filepath.Base(tool.Path); {
	case strings.HasPrefix(base, "cpp"):
		return nil
	case strings.HasPrefix(base, "clang"):
		return []string{"--preprocess"}
	default:
		return []string{"-E"}
	}
}
