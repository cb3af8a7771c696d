// Package linkoracle discovers a module's external dependencies by
// construction: the probe entry point is appended to the normally
// preprocessed source and the result is handed to the linker. Every
// undefined-reference diagnostic names a symbol the module needs but does
// not define.
package linkoracle

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/mockprobe/mockprobe/internal/toolchain"
	"github.com/mockprobe/mockprobe/pkg/types"
)

// linkArgs matches the probe build invocation: the guard define for probe
// builds and an unlimited error count so every missing symbol is reported,
// not just the first few.
var linkArgs = []string{"-DBUILD_PREPROC_MOCK_MAIN", "-fmax-errors=0"}

// Undefined-symbol phrasings of the two linker families in circulation.
var (
	undefinedRefRe = regexp.MustCompile("undefined reference to `(.+?)'")
	undefinedSymRe = regexp.MustCompile(`undefined symbol: (\S+)`)
)

// ExtractUndefined scrapes linker diagnostics for undefined-symbol names
// and returns them as a sorted, de-duplicated set. Unrecognized formats
// simply yield no matches.
func ExtractUndefined(stderr string) []string {
	seen := make(map[string]bool)
	for _, m := range undefinedRefRe.FindAllStringSubmatch(stderr, -1) {
		seen[m[1]] = true
	}
	for _, m := range undefinedSymRe.FindAllStringSubmatch(stderr, -1) {
		seen[m[1]] = true
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Options configure an Oracle.
type Options struct {
	Toolchain *toolchain.Toolchain
}

// Oracle runs the link probe.
type Oracle struct {
	tc *toolchain.Toolchain
}

func New(opts Options) *Oracle {
	return &Oracle{tc: opts.Toolchain}
}

// Probe writes normal+probeText as one translation unit under dir and
// attempts a full link. An empty undefined set with a non-zero exit is
// ambiguous (compilation may have failed before linking), so the full
// diagnostic stream is surfaced as a warning and Linked stays false.
func (o *Oracle) Probe(ctx context.Context, normal []byte, probeText, dir, base string) (*types.LinkReport, []types.Diagnostic, error) {
	unit := filepath.Join(dir, base+".link.i")
	binary := filepath.Join(dir, base+".probe")

	combined := normal
	if len(combined) > 0 && !bytes.HasSuffix(combined, []byte("\n")) {
		combined = append(combined, '\n')
	}
	combined = append(combined, probeText...)
	if err := os.WriteFile(unit, combined, 0o644); err != nil {
		return nil, nil, fmt.Errorf("writing %s: %w", unit, err)
	}

	args := append(append([]string{}, linkArgs...), "-o", binary, unit)
	res, err := o.tc.Run(ctx, o.tc.Linker, args...)
	if err != nil {
		return nil, nil, err
	}

	report := &types.LinkReport{
		Undefined: ExtractUndefined(res.Stderr),
		ExitCode:  res.ExitCode,
		Linked:    res.ExitCode == 0,
		Stderr:    res.Stderr,
	}

	var diags []types.Diagnostic
	if len(report.Undefined) == 0 && res.ExitCode != 0 {
		diags = append(diags, types.Diagnostic{
			Stage:    types.StageLink,
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("no undefined references extracted and the linker exited with status %d; compilation may have failed before linking", res.ExitCode),
			Detail:   res.Stderr,
		})
	}
	return report, diags, nil
}
