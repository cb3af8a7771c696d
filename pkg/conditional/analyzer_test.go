package conditional

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockprobe/mockprobe/pkg/cache"
	"github.com/mockprobe/mockprobe/pkg/types"
)

// fakeEvaluator satisfies a guard when the subset defines every flag the
// guard mentions (AND semantics), which keeps structure tests independent
// of the real preprocessor.
type fakeEvaluator struct {
	calls int
}

func (f *fakeEvaluator) Satisfies(directive string, defined []string) (bool, error) {
	f.calls++
	in := make(map[string]bool, len(defined))
	for _, d := range defined {
		in[d] = true
	}
	for _, needed := range extractFlags(directive) {
		if !in[needed] {
			return false, nil
		}
	}
	return true, nil
}

func TestAnalyzeStructure(t *testing.T) {
	src := strings.Join([]string{
		"#include <stub.h>",
		"",
		"#ifdef CONFIG_A",
		"int a(void);",
		"#elif defined(CONFIG_B)",
		"int b(void);",
		"#else",
		"int c(void);",
		"#endif",
		"",
		"#if defined(CONFIG_C) && defined(CONFIG_D)",
		"#ifdef CONFIG_E",
		"int e(void);",
		"#endif",
		"#endif",
		"",
	}, "\n")

	a := New(Options{Evaluator: &fakeEvaluator{}})
	report, diags, err := a.Analyze("sample.c", strings.NewReader(src))
	require.NoError(t, err)
	assert.Empty(t, diags)

	require.Len(t, report.Blocks, 5)

	ifA := report.Blocks[0]
	assert.Equal(t, types.DirectiveIf, ifA.Kind)
	assert.Equal(t, 1, ifA.Depth)
	assert.Equal(t, 3, ifA.StartLine)
	assert.Equal(t, 5, ifA.EndLine)
	assert.Equal(t, []string{"CONFIG_A"}, ifA.Flags)
	assert.Equal(t, [][]string{{"CONFIG_A"}}, ifA.Satisfying)

	elifB := report.Blocks[1]
	assert.Equal(t, types.DirectiveElif, elifB.Kind)
	assert.Equal(t, 1, elifB.Depth)
	assert.Equal(t, 6, elifB.StartLine)
	assert.Equal(t, 7, elifB.EndLine)
	assert.Equal(t, [][]string{{"CONFIG_B"}}, elifB.Satisfying)

	elseC := report.Blocks[2]
	assert.Equal(t, types.DirectiveElse, elseC.Kind)
	assert.Equal(t, 8, elseC.StartLine)
	assert.Equal(t, 9, elseC.EndLine)
	assert.Nil(t, elseC.Satisfying)

	ifCD := report.Blocks[3]
	assert.Equal(t, types.DirectiveIf, ifCD.Kind)
	assert.Equal(t, 1, ifCD.Depth)
	assert.Equal(t, 11, ifCD.StartLine)
	assert.Equal(t, 15, ifCD.EndLine)
	assert.Equal(t, []string{"CONFIG_C", "CONFIG_D"}, ifCD.Flags)
	assert.Equal(t, [][]string{{"CONFIG_C", "CONFIG_D"}}, ifCD.Satisfying)

	ifE := report.Blocks[4]
	assert.Equal(t, 2, ifE.Depth)
	assert.Equal(t, 12, ifE.StartLine)
	assert.Equal(t, 14, ifE.EndLine)

	assert.Equal(t, []int{3, 5, 7, 9, 11, 12, 14, 15}, report.DirectiveLines)
	assert.Equal(t, []int{3}, report.FlagLines["CONFIG_A"])
	assert.Equal(t, []int{5}, report.FlagLines["CONFIG_B"])
	assert.Equal(t, []int{11}, report.FlagLines["CONFIG_C"])
	assert.Equal(t, []int{11}, report.FlagLines["CONFIG_D"])
	assert.Equal(t, []int{12}, report.FlagLines["CONFIG_E"])
}

func TestAnalyzeFlagLinesOutsideDirectives(t *testing.T) {
	src := "int x = CONFIG_BT_ID_MAX;\n// CONFIG_IN_COMMENT\nint y = CONFIG_BT_ID_MAX;\n"

	a := New(Options{Evaluator: &fakeEvaluator{}})
	report, _, err := a.Analyze("sample.c", strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, report.FlagLines["CONFIG_BT_ID_MAX"])
	assert.NotContains(t, report.FlagLines, "CONFIG_IN_COMMENT")
	assert.Empty(t, report.DirectiveLines)
}

func TestAnalyzeTooManyEndifs(t *testing.T) {
	src := "#endif\n#endif\n#else\n"

	a := New(Options{Evaluator: &fakeEvaluator{}})
	report, diags, err := a.Analyze("sample.c", strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, diags, 1, "underflow is warned once per file")
	assert.Contains(t, diags[0].Message, "too many #endifs")
	assert.Equal(t, types.SeverityWarning, diags[0].Severity)
	assert.Empty(t, report.Blocks)
	assert.Equal(t, []int{1, 2, 3}, report.DirectiveLines)
}

func TestAnalyzeTooFewEndifs(t *testing.T) {
	src := "#ifdef CONFIG_A\n#ifdef CONFIG_B\n#endif\n"

	a := New(Options{Evaluator: &fakeEvaluator{}})
	report, diags, err := a.Analyze("sample.c", strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "too few #endifs")

	require.Len(t, report.Blocks, 2)
	assert.Equal(t, 0, report.Blocks[0].EndLine, "unclosed block keeps zero end line")
	assert.Equal(t, 3, report.Blocks[1].EndLine)
}

func TestAnalyzeFlagCap(t *testing.T) {
	src := "#if defined(CONFIG_A) || defined(CONFIG_B) || defined(CONFIG_C)\n#endif\n"

	eval := &fakeEvaluator{}
	a := New(Options{Evaluator: eval, MaxGuardFlags: 2})
	report, diags, err := a.Analyze("sample.c", strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "cap is 2")
	require.Len(t, report.Blocks, 1)
	assert.Nil(t, report.Blocks[0].Satisfying)
	assert.Equal(t, 0, eval.calls, "capped guards are not evaluated")
}

func TestAnalyzeUsesCache(t *testing.T) {
	src := "#ifdef CONFIG_A\n#endif\n"

	eval := &fakeEvaluator{}
	c := cache.New(0)
	a := New(Options{Evaluator: eval, Cache: c})

	_, _, err := a.Analyze("sample.c", strings.NewReader(src))
	require.NoError(t, err)
	firstCalls := eval.calls
	assert.Equal(t, 2, firstCalls, "two subsets for one flag")

	report, _, err := a.Analyze("sample.c", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, firstCalls, eval.calls, "second run is served from cache")
	assert.Equal(t, [][]string{{"CONFIG_A"}}, report.Blocks[0].Satisfying)
}

func TestAnalyzeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod.c")
	require.NoError(t, os.WriteFile(path, []byte("#ifdef CONFIG_X\nint x;\n#endif\n"), 0o644))

	a := New(Options{Evaluator: &fakeEvaluator{}})
	report, _, err := a.AnalyzeFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, report.Path)
	require.Len(t, report.Blocks, 1)

	_, _, err = a.AnalyzeFile(filepath.Join(t.TempDir(), "absent.c"))
	assert.Error(t, err)
}

func TestAnalyzeSampleModule(t *testing.T) {
	path := filepath.Join("..", "..", "testdata", "c", "bt_id_sample.c")

	a := New(Options{})
	report, diags, err := a.AnalyzeFile(path)
	require.NoError(t, err)
	assert.Empty(t, diags)

	require.Len(t, report.Blocks, 7)

	kinds := make([]types.DirectiveKind, 0, len(report.Blocks))
	depths := make([]int, 0, len(report.Blocks))
	for _, b := range report.Blocks {
		kinds = append(kinds, b.Kind)
		depths = append(depths, b.Depth)
	}
	assert.Equal(t, []types.DirectiveKind{
		types.DirectiveIf, types.DirectiveIf, types.DirectiveElif, types.DirectiveElse,
		types.DirectiveIf, types.DirectiveIf, types.DirectiveElse,
	}, kinds)
	assert.Equal(t, []int{1, 1, 1, 1, 1, 2, 2}, depths)

	assert.Equal(t, 12, report.Blocks[0].StartLine)
	assert.Equal(t, 14, report.Blocks[0].EndLine)
	assert.Equal(t, 42, report.Blocks[4].EndLine)

	// The && guard needs both flags; the elif restated alone needs one.
	assert.Equal(t, [][]string{{"CONFIG_BT_PRIVACY", "CONFIG_BT_SMP"}}, report.Blocks[1].Satisfying)
	assert.Equal(t, [][]string{{"CONFIG_BT_SMP"}}, report.Blocks[2].Satisfying)
	assert.Nil(t, report.Blocks[3].Satisfying)

	// An ifndef is satisfied by defining nothing.
	require.Len(t, report.Blocks[5].Satisfying, 1)
	assert.Empty(t, report.Blocks[5].Satisfying[0])

	// Flags are recorded wherever they appear, directive line or not.
	assert.Equal(t, []int{10, 13}, report.FlagLines["CONFIG_BT_ID_MAX"])
	assert.Contains(t, report.FlagLines, "CONFIG_BT_EXT_ADV_MAX_ADV_SET")
	assert.Len(t, report.FlagLines, 6)
	assert.Len(t, report.DirectiveLines, 11)
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"int x; // trailing", "int x; "},
		{"a /* mid */ b", "a  b"},
		{"/* whole line */", ""},
		{"plain", "plain"},
		{"a /* unterminated", "a /* unterminated"},
		{"// /* both */", ""},
		{"#ifdef CONFIG_A /* guard */", "#ifdef CONFIG_A "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripComments(tt.in), "input: %q", tt.in)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		kind types.DirectiveKind
		ok   bool
	}{
		{"#if defined(CONFIG_A)", types.DirectiveIf, true},
		{"#ifdef CONFIG_A", types.DirectiveIf, true},
		{"#ifndef CONFIG_A", types.DirectiveIf, true},
		{"  #elif CONFIG_B", types.DirectiveElif, true},
		{"# else", types.DirectiveElse, true},
		{"#endif", types.DirectiveEndif, true},
		{"# if 0", types.DirectiveIf, true},
		{"#include <x.h>", "", false},
		{"#define FOO 1", "", false},
		{"int x;", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		kind, _, ok := classify(tt.line)
		assert.Equal(t, tt.ok, ok, "line: %q", tt.line)
		if tt.ok {
			assert.Equal(t, tt.kind, kind, "line: %q", tt.line)
		}
	}
}

func TestExtractFlags(t *testing.T) {
	flags := extractFlags("#if defined(CONFIG_A) && CONFIG_A > CONFIG_B")
	assert.Equal(t, []string{"CONFIG_A", "CONFIG_B"}, flags, "duplicates collapse, order kept")

	assert.Nil(t, extractFlags("no flags here"))
}

func TestMinimal(t *testing.T) {
	tests := []struct {
		name string
		in   [][]string
		want [][]string
	}{
		{"single empty", [][]string{nil}, [][]string{nil}},
		{"superset dropped", [][]string{{"A"}, {"A", "B"}}, [][]string{{"A"}}},
		{"two minimal kept", [][]string{{"A"}, {"B"}, {"A", "B"}}, [][]string{{"A"}, {"B"}}},
		{"disjoint kept", [][]string{{"C"}, {"A", "B"}}, [][]string{{"C"}, {"A", "B"}}},
		{"empty dominates", [][]string{nil, {"A"}}, [][]string{nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, minimal(tt.in))
		})
	}
}
