// Package astdump builds a FunctionIndex from the JSON parse tree an
// external compiler front-end emits for a preprocessed source file. The
// walk is shape-tolerant: nodes missing expected fields are skipped, so a
// partial tree still yields a usable index.
package astdump

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mockprobe/mockprobe/internal/toolchain"
	"github.com/mockprobe/mockprobe/pkg/types"
)

// dumpArgs puts the front-end into parse-tree emission mode without
// running codegen. The error limit is raised so a noisy translation unit
// still dumps every declaration.
var dumpArgs = []string{"-Xclang", "-ast-dump=json", "-fsyntax-only", "-ferror-limit=65536"}

var stripExtRe = regexp.MustCompile(`(?i)\.(c|cpp|cxx|h|hpp|i)$`)

// MockGroup derives the mock group name from a source path: the base name
// with its C-family extension stripped.
func MockGroup(path string) string {
	if path == "" {
		return types.DefaultMockGroup
	}
	g := stripExtRe.ReplaceAllString(filepath.Base(path), "")
	if g == "" {
		return types.DefaultMockGroup
	}
	return g
}

// Options configure an Indexer.
type Options struct {
	Toolchain *toolchain.Toolchain

	// KeepDump writes the raw parse-tree JSON to <input>.ast.json before
	// walking it, so a malformed tree can still be inspected.
	KeepDump bool
}

// Indexer runs the external AST dumper and walks its output.
type Indexer struct {
	tc       *toolchain.Toolchain
	keepDump bool
}

func New(opts Options) *Indexer {
	return &Indexer{tc: opts.Toolchain, keepDump: opts.KeepDump}
}

// Index dumps the parse tree for path and collects every function
// declaration in it. A non-zero dumper exit is tolerated as long as the
// tree parses; the partial index is returned with a warning.
func (ix *Indexer) Index(ctx context.Context, path string) (*types.FunctionIndex, []types.Diagnostic, error) {
	args := append(append([]string{}, dumpArgs...), path)
	res, err := ix.tc.Run(ctx, ix.tc.ASTDumper, args...)
	if err != nil {
		return nil, nil, err
	}

	var diags []types.Diagnostic
	if ix.keepDump {
		if werr := os.WriteFile(path+".ast.json", res.Stdout, 0o644); werr != nil {
			diags = append(diags, types.Diagnostic{
				Stage:    types.StageASTIndex,
				Severity: types.SeverityWarning,
				Message:  "could not persist parse tree JSON",
				Detail:   werr.Error(),
			})
		}
	}

	var root any
	if uerr := json.Unmarshal(res.Stdout, &root); uerr != nil {
		return nil, diags, &types.InvocationError{
			Tool:     ix.tc.ASTDumper.Path,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      fmt.Errorf("parse tree is not valid JSON: %w", uerr),
		}
	}

	if res.ExitCode != 0 {
		diags = append(diags, types.Diagnostic{
			Stage:    types.StageASTIndex,
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("AST dumper exited with status %d, indexing the partial parse tree", res.ExitCode),
			Detail:   firstLine(res.Stderr),
		})
	}

	idx, walkDiags := IndexTree(root)
	return idx, append(diags, walkDiags...), nil
}

// IndexTree walks an already-decoded parse tree and builds the index.
func IndexTree(root any) (*types.FunctionIndex, []types.Diagnostic) {
	w := &walker{}
	w.walk(root)

	var diags []types.Diagnostic
	if w.skipped > 0 {
		diags = append(diags, types.Diagnostic{
			Stage:    types.StageASTIndex,
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("skipped %d function node(s) lacking a name", w.skipped),
		})
	}
	return types.NewFunctionIndex(w.records), diags
}

// position is the source location in effect when a node was reached.
type position struct {
	file     string
	included string
	line     int
}

// walker traverses the tree carrying the dumper's delta-encoded location
// state: a location omits its file (and sometimes line) when unchanged
// from the previously emitted one, so the current file, includer, and line
// are tracked across the walk.
type walker struct {
	records []*types.FunctionRecord
	skipped int

	curFile     string
	curIncluded string
	curLine     int
}

func (w *walker) walk(node any) {
	switch v := node.(type) {
	case map[string]any:
		w.walkMap(v)
	case []any:
		for _, e := range v {
			w.walk(e)
		}
	}
}

func (w *walker) walkMap(m map[string]any) {
	w.consumeLoc(m["loc"])
	pos := position{file: w.curFile, included: w.curIncluded, line: w.curLine}

	// The range's endpoints advance the delta state past the node's body.
	if r, ok := m["range"].(map[string]any); ok {
		w.consumeLoc(r["begin"])
		w.consumeLoc(r["end"])
	}

	if kind, _ := m["kind"].(string); kind == "FunctionDecl" {
		w.record(m, pos)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		if k == "loc" || k == "range" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.walk(m[k])
	}
}

// consumeLoc folds one location object into the delta state. Macro
// locations carry a spelling/expansion pair; the expansion site is where
// the node textually lives, so it is consumed last.
func (w *walker) consumeLoc(v any) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return
	}
	if sp, ok := m["spellingLoc"]; ok {
		w.consumeLoc(sp)
	}
	if ex, ok := m["expansionLoc"]; ok {
		w.consumeLoc(ex)
		return
	}
	if f, ok := m["file"].(string); ok {
		w.curFile = f
		w.curIncluded = includerOf(m)
	}
	if f, ok := m["presumedFile"].(string); ok {
		w.curFile = f
		w.curIncluded = includerOf(m)
	}
	if n, ok := locInt(m["line"]); ok {
		w.curLine = n
	}
	if n, ok := locInt(m["presumedLine"]); ok {
		w.curLine = n
	}
}

func includerOf(m map[string]any) string {
	inc, ok := m["includedFrom"].(map[string]any)
	if !ok {
		return ""
	}
	f, _ := inc["file"].(string)
	return f
}

func locInt(v any) (int, bool) {
	f, ok := v.(float64)
	return int(f), ok
}

// record turns one function node into a FunctionRecord. Nodes without a
// name are counted and skipped.
func (w *walker) record(m map[string]any, pos position) {
	name, _ := m["name"].(string)
	if name == "" {
		w.skipped++
		return
	}

	rec := &types.FunctionRecord{
		Name:       name,
		ReturnType: "void",
		MockGroup:  types.DefaultMockGroup,
	}

	if loc, ok := m["loc"].(map[string]any); ok && len(loc) > 0 {
		rec.HasLocation = true
		rec.File = pos.file
		rec.Line = pos.line
		rec.IncludedFrom = pos.included
		if pos.file != "" {
			rec.MockGroup = MockGroup(pos.file)
		}
	}

	switch sc, _ := m["storageClass"].(string); sc {
	case "static":
		rec.Storage = types.StorageStatic
	case "extern":
		rec.Storage = types.StorageExtern
	}

	if inner, ok := m["inner"].([]any); ok {
		for _, child := range inner {
			cm, ok := child.(map[string]any)
			if ok && cm["kind"] == "CompoundStmt" {
				rec.HasBody = true
				break
			}
		}
	}

	if typ, ok := m["type"].(map[string]any); ok {
		if qt, ok := typ["qualType"].(string); ok && qt != "" {
			rec.Signature = qt
			rec.ReturnType, rec.Params = DecodeSignature(qt)
		}
	}

	w.records = append(w.records, rec)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
