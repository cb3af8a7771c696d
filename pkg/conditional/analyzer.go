// Package conditional scans C sources for preprocessor conditionals,
// extracts the CONFIG_ flags their guards reference, and determines which
// flag subsets make each guard true. Its report is advisory; the
// mock-resolution chain does not depend on it.
package conditional

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/mockprobe/mockprobe/pkg/cache"
	"github.com/mockprobe/mockprobe/pkg/types"
)

var (
	flagRe         = regexp.MustCompile(`CONFIG_\w+`)
	blockCommentRe = regexp.MustCompile(`/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`//.*$`)
)

// Options configures an Analyzer.
type Options struct {
	// Evaluator decides guard satisfiability. Defaults to the built-in
	// preprocessor-backed evaluator.
	Evaluator Evaluator

	// MaxGuardFlags caps the distinct flags considered per guard; guards
	// above the cap are reported without satisfiability. Default 8.
	MaxGuardFlags int

	// Cache, when set, memoizes satisfiability results across files and runs.
	Cache *cache.GuardCache
}

// Analyzer scans source text for conditional structure.
type Analyzer struct {
	eval     Evaluator
	maxFlags int
	cache    *cache.GuardCache
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	a := &Analyzer{
		eval:     opts.Evaluator,
		maxFlags: opts.MaxGuardFlags,
		cache:    opts.Cache,
	}
	if a.eval == nil {
		a.eval = NewCCEvaluator()
	}
	if a.maxFlags <= 0 {
		a.maxFlags = 8
	}
	return a
}

// AnalyzeFile scans the file at path.
func (a *Analyzer) AnalyzeFile(path string) (*types.ConditionalReport, []types.Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return a.Analyze(path, f)
}

// Analyze scans source text line by line. Malformed nesting is reported as
// a warning (once per direction) and scanning continues best-effort.
func (a *Analyzer) Analyze(path string, r io.Reader) (*types.ConditionalReport, []types.Diagnostic, error) {
	report := &types.ConditionalReport{
		Path:      path,
		FlagLines: make(map[string][]int),
	}
	var diags []types.Diagnostic

	var open []int // indexes into report.Blocks, innermost last
	underflowWarned := false

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := StripComments(sc.Text())

		flags := extractFlags(line)
		for _, flag := range flags {
			report.FlagLines[flag] = append(report.FlagLines[flag], lineNo)
		}

		kind, rest, ok := classify(line)
		if !ok {
			continue
		}
		report.DirectiveLines = append(report.DirectiveLines, lineNo)

		switch kind {
		case types.DirectiveIf:
			block := types.ConditionalBlock{
				Kind:      types.DirectiveIf,
				Depth:     len(open) + 1,
				StartLine: lineNo,
				Flags:     flags,
			}
			block.Satisfying = a.solve(strings.TrimSpace(line), flags, path, lineNo, &diags)
			report.Blocks = append(report.Blocks, block)
			open = append(open, len(report.Blocks)-1)

		case types.DirectiveElif:
			if len(open) == 0 {
				underflowWarned = warnUnderflow(path, lineNo, underflowWarned, &diags)
				continue
			}
			top := open[len(open)-1]
			report.Blocks[top].EndLine = lineNo
			block := types.ConditionalBlock{
				Kind:      types.DirectiveElif,
				Depth:     report.Blocks[top].Depth,
				StartLine: lineNo + 1,
				Flags:     flags,
			}
			// An #elif guard is evaluated in isolation by restating it
			// as an #if of its own expression.
			block.Satisfying = a.solve("#if"+rest, flags, path, lineNo, &diags)
			report.Blocks = append(report.Blocks, block)
			open[len(open)-1] = len(report.Blocks) - 1

		case types.DirectiveElse:
			if len(open) == 0 {
				underflowWarned = warnUnderflow(path, lineNo, underflowWarned, &diags)
				continue
			}
			top := open[len(open)-1]
			report.Blocks[top].EndLine = lineNo
			// The else branch is the negation of all prior siblings; no
			// satisfiability is computed for it.
			block := types.ConditionalBlock{
				Kind:      types.DirectiveElse,
				Depth:     report.Blocks[top].Depth,
				StartLine: lineNo + 1,
				Flags:     flags,
			}
			report.Blocks = append(report.Blocks, block)
			open[len(open)-1] = len(report.Blocks) - 1

		case types.DirectiveEndif:
			if len(open) == 0 {
				underflowWarned = warnUnderflow(path, lineNo, underflowWarned, &diags)
				continue
			}
			top := open[len(open)-1]
			report.Blocks[top].EndLine = lineNo
			open = open[:len(open)-1]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, diags, fmt.Errorf("reading %s: %w", path, err)
	}

	if len(open) > 0 {
		diags = append(diags, types.Diagnostic{
			Stage:    types.StageConditional,
			Severity: types.SeverityWarning,
			Message:  "conditional nesting invalid, too few #endifs",
			Detail:   fmt.Sprintf("%s: %d unclosed conditional(s) at end of file", path, len(open)),
		})
	}

	return report, diags, nil
}

// warnUnderflow emits the too-many-closers warning once per file.
func warnUnderflow(path string, lineNo int, warned bool, diags *[]types.Diagnostic) bool {
	if warned {
		return true
	}
	*diags = append(*diags, types.Diagnostic{
		Stage:    types.StageConditional,
		Severity: types.SeverityWarning,
		Message:  "conditional nesting invalid, too many #endifs",
		Detail:   fmt.Sprintf("%s:%d", path, lineNo),
	})
	return true
}

// solve enumerates flag subsets for one guard and returns the minimal
// satisfying ones. Guards over the flag cap are skipped with a warning.
func (a *Analyzer) solve(condition string, flags []string, path string, lineNo int, diags *[]types.Diagnostic) [][]string {
	if len(flags) > a.maxFlags {
		*diags = append(*diags, types.Diagnostic{
			Stage:    types.StageConditional,
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("guard references %d flags, cap is %d, skipping satisfiability", len(flags), a.maxFlags),
			Detail:   fmt.Sprintf("%s:%d: %s", path, lineNo, condition),
		})
		return nil
	}

	key := cache.Key(condition, flags, nil)
	if a.cache != nil {
		if res, ok := a.cache.Get(key); ok {
			return res.Subsets
		}
	}

	var satisfying [][]string
	for _, subset := range enumerate(flags) {
		ok, err := a.eval.Satisfies(condition, subset)
		if err != nil {
			// An unevaluable guard counts as unsatisfied for this subset.
			continue
		}
		if ok {
			satisfying = append(satisfying, subset)
		}
	}
	satisfying = minimal(satisfying)

	if a.cache != nil {
		a.cache.Set(key, cache.GuardResult{
			Satisfiable: len(satisfying) > 0,
			Subsets:     satisfying,
		})
	}
	return satisfying
}

// StripComments removes // and single-line /* */ comments. Block comments
// spanning multiple lines are not tracked; each line is treated on its own.
func StripComments(line string) string {
	line = blockCommentRe.ReplaceAllString(line, "")
	return lineCommentRe.ReplaceAllString(line, "")
}

// IsDirective reports whether line is a conditional preprocessor directive
// once comments are stripped.
func IsDirective(line string) bool {
	_, _, ok := classify(StripComments(line))
	return ok
}

// extractFlags returns the CONFIG_ tokens on a line, deduplicated in
// first-appearance order.
func extractFlags(line string) []string {
	matches := flagRe.FindAllString(line, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	flags := matches[:0]
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			flags = append(flags, m)
		}
	}
	return flags
}

// classify identifies a conditional directive, tolerating leading
// whitespace and space between '#' and the keyword. rest is the text after
// the keyword. #if covers #ifdef and #ifndef.
func classify(line string) (types.DirectiveKind, string, bool) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "#") {
		return "", "", false
	}
	s = strings.TrimLeft(s[1:], " \t")

	for _, kw := range []struct {
		prefix string
		kind   types.DirectiveKind
	}{
		{"elif", types.DirectiveElif},
		{"else", types.DirectiveElse},
		{"endif", types.DirectiveEndif},
		{"if", types.DirectiveIf},
	} {
		if strings.HasPrefix(s, kw.prefix) {
			return kw.kind, s[len(kw.prefix):], true
		}
	}
	return "", "", false
}

// enumerate returns all subsets of flags in bitmask order: the empty
// subset first, the full set last. Flag order within a subset follows the
// input order.
func enumerate(flags []string) [][]string {
	n := len(flags)
	subsets := make([][]string, 0, 1<<uint(n))
	for i := 0; i < 1<<uint(n); i++ {
		var subset []string
		for pos := 0; pos < n; pos++ {
			if i&(1<<uint(pos)) != 0 {
				subset = append(subset, flags[pos])
			}
		}
		subsets = append(subsets, subset)
	}
	return subsets
}

// minimal drops every satisfying subset that strictly contains another
// satisfying subset, preserving enumeration order.
func minimal(subsets [][]string) [][]string {
	if len(subsets) <= 1 {
		return subsets
	}
	var out [][]string
	for i, s := range subsets {
		dominated := false
		for j, t := range subsets {
			if i == j || len(t) >= len(s) {
				continue
			}
			if isSubset(t, s) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, s)
		}
	}
	return out
}

// isSubset reports whether every element of t is in s.
func isSubset(t, s []string) bool {
	if len(t) == 0 {
		return true
	}
	in := make(map[string]bool, len(s))
	for _, e := range s {
		in[e] = true
	}
	for _, e := range t {
		if !in[e] {
			return false
		}
	}
	return true
}
