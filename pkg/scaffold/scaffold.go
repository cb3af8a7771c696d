// Package scaffold lays out the on-disk test skeleton for an analyzed
// module: one test directory per public function (test-case metadata plus
// minimal build files) and FFF mock skeletons for every resolved mock
// group. Existing files are preserved; generation fills gaps rather than
// overwriting work.
package scaffold

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mockprobe/mockprobe/pkg/types"
)

// nonMacroRe matches characters that cannot appear in a C macro name.
var nonMacroRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// Options configure a Scaffolder.
type Options struct {
	// TestRoot is the directory receiving per-function test directories.
	// Defaults to the current directory.
	TestRoot string

	// MocksDir is the mock output directory relative to TestRoot.
	// Defaults to "mocks".
	MocksDir string

	// Regen overwrites previously generated mock skeletons. Build files
	// and test-case metadata are never overwritten, only merged.
	Regen bool

	// GitStage stages every created file with git add.
	GitStage bool
}

// Report lists what one generation pass did.
type Report struct {
	Created []string
	Skipped []string
}

// Scaffolder writes test skeletons from pipeline results.
type Scaffolder struct {
	testRoot string
	mocksDir string
	regen    bool
	gitStage bool
}

func New(opts Options) *Scaffolder {
	s := &Scaffolder{
		testRoot: opts.TestRoot,
		mocksDir: opts.MocksDir,
		regen:    opts.Regen,
		gitStage: opts.GitStage,
	}
	if s.testRoot == "" {
		s.testRoot = "."
	}
	if s.mocksDir == "" {
		s.mocksDir = "mocks"
	}
	return s
}

// Generate writes the test skeleton for one analyzed module: a directory
// per public function with testcase.yaml, CMakeLists.txt, prj.conf, and a
// suite stub, plus one mock header/source pair per resolved mock group.
// Unresolved symbols never reach mock files.
func (s *Scaffolder) Generate(ctx context.Context, res *types.Result) (*Report, []types.Diagnostic, error) {
	if res == nil || res.Index == nil {
		return nil, nil, fmt.Errorf("no function index to scaffold from")
	}

	rep := &Report{}
	var diags []types.Diagnostic

	locals := append([]*types.FunctionRecord(nil), res.Index.Local()...)
	sort.Slice(locals, func(i, j int) bool { return locals[i].Name < locals[j].Name })

	flags := satisfiableFlags(res.Conditional)
	sourceBase := filepath.Base(res.Module)

	for _, fn := range locals {
		dir := filepath.Join(s.testRoot, fn.Name)
		if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
			return rep, diags, fmt.Errorf("creating test dir for %s: %w", fn.Name, err)
		}

		if err := s.ensureTestcase(dir, sourceBase, rep, &diags); err != nil {
			return rep, diags, err
		}
		if err := s.writeIfAbsent(filepath.Join(dir, "CMakeLists.txt"), cmakeLists(fn.Name), rep); err != nil {
			return rep, diags, err
		}
		if err := s.writeIfAbsent(filepath.Join(dir, "prj.conf"), prjConf(flags), rep); err != nil {
			return rep, diags, err
		}
		if err := s.writeIfAbsent(filepath.Join(dir, "src", "main.c"), suiteStub(fn.Name), rep); err != nil {
			return rep, diags, err
		}
	}

	if res.Resolution != nil {
		if err := s.writeMocks(res.Resolution, rep); err != nil {
			return rep, diags, err
		}
	}

	if s.gitStage && len(rep.Created) > 0 {
		s.stage(ctx, rep.Created, &diags)
	}

	return rep, diags, nil
}

// ensureTestcase merges the required sections into testcase.yaml, creating
// it when missing. User-added keys survive; the file is rewritten only when
// a required section was absent.
func (s *Scaffolder) ensureTestcase(dir, sourceBase string, rep *Report, diags *[]types.Diagnostic) error {
	path := filepath.Join(dir, "testcase.yaml")

	doc := map[string]any{}
	existed := false
	if data, err := os.ReadFile(path); err == nil {
		existed = true
		if uerr := yaml.Unmarshal(data, &doc); uerr != nil {
			*diags = append(*diags, types.Diagnostic{
				Stage:    types.StageScaffold,
				Severity: types.SeverityWarning,
				Message:  "testcase.yaml unreadable, regenerating",
				Detail:   fmt.Sprintf("%s: %v", path, uerr),
			})
			doc = map[string]any{}
		}
		if doc == nil {
			doc = map[string]any{}
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	changed := !existed
	if _, ok := doc["common"]; !ok {
		doc["common"] = map[string]any{
			"tags": "test_framework bluetooth host testing " + sourceBase,
		}
		changed = true
	}
	if _, ok := doc["tests"]; !ok {
		doc["tests"] = []any{}
		changed = true
	}
	if !changed {
		rep.Skipped = append(rep.Skipped, path)
		return nil
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	rep.Created = append(rep.Created, path)
	return nil
}

// writeMocks emits one header/source pair per mock group.
func (s *Scaffolder) writeMocks(resolution *types.Resolution, rep *Report) error {
	groups := resolution.ByGroup()
	if len(groups) == 0 {
		return nil
	}

	dir := filepath.Join(s.testRoot, s.mocksDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating mocks dir: %w", err)
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	for _, g := range names {
		as := groups[g]
		if err := s.writeGenerated(filepath.Join(dir, g+".h"), mockHeader(g, as), rep); err != nil {
			return err
		}
		if err := s.writeGenerated(filepath.Join(dir, g+".c"), s.mockSource(g, as), rep); err != nil {
			return err
		}
	}
	return nil
}

// writeIfAbsent creates path with content unless it already exists.
func (s *Scaffolder) writeIfAbsent(path, content string, rep *Report) error {
	if _, err := os.Stat(path); err == nil {
		rep.Skipped = append(rep.Skipped, path)
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	rep.Created = append(rep.Created, path)
	return nil
}

// writeGenerated is writeIfAbsent with regeneration support for files the
// scaffolder owns outright.
func (s *Scaffolder) writeGenerated(path, content string, rep *Report) error {
	if !s.regen {
		if _, err := os.Stat(path); err == nil {
			rep.Skipped = append(rep.Skipped, path)
			return nil
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	rep.Created = append(rep.Created, path)
	return nil
}

// stage runs git add over the created paths. Staging failure is a warning;
// the files themselves are already in place.
func (s *Scaffolder) stage(ctx context.Context, paths []string, diags *[]types.Diagnostic) {
	args := append([]string{"add", "--"}, paths...)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.testRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		*diags = append(*diags, types.Diagnostic{
			Stage:    types.StageScaffold,
			Severity: types.SeverityWarning,
			Message:  "git add failed",
			Detail:   strings.TrimSpace(fmt.Sprintf("%v: %s", err, out)),
		})
	}
}

// satisfiableFlags collects every flag appearing in a satisfying subset of
// any conditional block, sorted.
func satisfiableFlags(rep *types.ConditionalReport) []string {
	if rep == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, b := range rep.Blocks {
		for _, subset := range b.Satisfying {
			for _, flag := range subset {
				seen[flag] = true
			}
		}
	}
	flags := make([]string, 0, len(seen))
	for f := range seen {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags
}

func cmakeLists(name string) string {
	return fmt.Sprintf(`cmake_minimum_required(VERSION 3.20.0)
find_package(Zephyr REQUIRED HINTS $ENV{ZEPHYR_BASE})
project(%s_test)

target_sources(app PRIVATE src/main.c)
target_include_directories(app PRIVATE ${CMAKE_CURRENT_SOURCE_DIR})
`, name)
}

func prjConf(flags []string) string {
	var b strings.Builder
	b.WriteString("CONFIG_ZTEST=y\n")
	for _, f := range flags {
		b.WriteString(f + "=y\n")
	}
	return b.String()
}

func suiteStub(name string) string {
	return fmt.Sprintf(`#include <zephyr/ztest.h>

ZTEST_SUITE(%[1]s, NULL, NULL, NULL, NULL, NULL);

ZTEST(%[1]s, test_%[1]s)
{
	ztest_test_skip();
}
`, name)
}

// mockHeader renders the declaration side of one mock group: the fakes
// list macro the test runner resets between cases, then one DECLARE line
// per symbol.
func mockHeader(group string, as []types.MockAssignment) string {
	var b strings.Builder
	b.WriteString("#include <zephyr/kernel.h>\n")
	b.WriteString("#include <zephyr/fff.h>\n\n")
	b.WriteString("/* List of fakes used by this unit tester */\n")
	fmt.Fprintf(&b, "#define %s_FFF_FAKES_LIST(FAKE) \\\n", macroPrefix(group))
	for i, a := range as {
		b.WriteString("\t\tFAKE(" + a.Symbol + ")")
		if i < len(as)-1 {
			b.WriteString(" \\")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for _, a := range as {
		b.WriteString(fakeMacro("DECLARE", a) + "\n")
	}
	return b.String()
}

// mockSource renders the definition side of one mock group.
func (s *Scaffolder) mockSource(group string, as []types.MockAssignment) string {
	var b strings.Builder
	b.WriteString("#include <zephyr/kernel.h>\n")
	fmt.Fprintf(&b, "#include \"%s/%s.h\"\n\n", s.mocksDir, group)
	b.WriteString("DEFINE_FFF_GLOBALS;\n\n")
	for _, a := range as {
		b.WriteString(fakeMacro("DEFINE", a) + "\n")
	}
	return b.String()
}

// fakeMacro renders one FFF DECLARE_/DEFINE_ line from a decoded
// signature. Void returns use the VOID variant, trailing "..." the VARARG
// one, and a bare void parameter list renders as zero arguments.
func fakeMacro(verb string, a types.MockAssignment) string {
	rec := a.Record

	params := make([]string, 0, len(rec.Params))
	for _, p := range rec.Params {
		if p == "void" {
			continue
		}
		params = append(params, p)
	}
	variadic := len(params) > 0 && params[len(params)-1] == "..."

	macro := verb + "_FAKE_VALUE_FUNC"
	args := []string{rec.ReturnType, a.Symbol}
	if rec.ReturnType == "void" || rec.ReturnType == "" {
		macro = verb + "_FAKE_VOID_FUNC"
		args = []string{a.Symbol}
	}
	if variadic {
		macro += "_VARARG"
	}
	args = append(args, params...)

	return fmt.Sprintf("%s(%s);", macro, strings.Join(args, ", "))
}

// macroPrefix turns a mock group name into a macro-safe uppercase prefix.
func macroPrefix(group string) string {
	return strings.ToUpper(nonMacroRe.ReplaceAllString(group, "_"))
}
