// Package types defines the data model shared by the analysis pipeline.
// It includes conditional-compilation blocks, discovered function records,
// the partitioned function index, link results, and mock assignments.
package types

import (
	"encoding/json"
	"sort"
)

// DirectiveKind classifies a preprocessor conditional directive.
type DirectiveKind string

const (
	// DirectiveIf covers #if, #ifdef and #ifndef.
	DirectiveIf    DirectiveKind = "if"
	DirectiveElif  DirectiveKind = "elif"
	DirectiveElse  DirectiveKind = "else"
	DirectiveEndif DirectiveKind = "endif"
)

// ConditionalBlock is one conditional region: the segment of source opened
// by an #if/#ifdef/#elif/#else directive and closed by the next directive at
// the same depth. Satisfying holds the minimal flag subsets that make the
// guard true; it is nil for #else segments and for guards whose
// satisfiability search was skipped.
type ConditionalBlock struct {
	Kind       DirectiveKind `json:"kind"`
	Depth      int           `json:"depth"`
	StartLine  int           `json:"start_line"`
	EndLine    int           `json:"end_line"`
	Flags      []string      `json:"flags,omitempty"`
	Satisfying [][]string    `json:"satisfying,omitempty"`
}

// ConditionalReport is the advisory output of the conditional analyzer for
// one source file.
type ConditionalReport struct {
	Path           string             `json:"path"`
	Blocks         []ConditionalBlock `json:"blocks"`
	FlagLines      map[string][]int   `json:"flag_lines,omitempty"`
	DirectiveLines []int              `json:"directive_lines,omitempty"`
}

// StorageClass is the storage class a declaration was parsed with.
type StorageClass string

const (
	StorageNone   StorageClass = ""
	StorageStatic StorageClass = "static"
	StorageExtern StorageClass = "extern"
)

// FunctionRecord is one discovered function declaration. Identity is purely
// nominal: two declarations sharing a name are treated as one canonical
// record, a deliberate simplification that holds because the analyzed
// language has no overloading.
type FunctionRecord struct {
	Name         string       `json:"name"`
	ReturnType   string       `json:"return_type"`
	Params       []string     `json:"params,omitempty"`
	Signature    string       `json:"signature,omitempty"`
	File         string       `json:"file,omitempty"`
	Line         int          `json:"line,omitempty"`
	IncludedFrom string       `json:"included_from,omitempty"`
	Storage      StorageClass `json:"storage,omitempty"`
	HasBody      bool         `json:"has_body,omitempty"`
	HasLocation  bool         `json:"-"`
	MockGroup    string       `json:"mock_group,omitempty"`
}

// DefaultMockGroup is assigned to records whose originating file could not
// be determined.
const DefaultMockGroup = "default_mocks"

// isLocalCandidate reports whether the record originates in the module's own
// text with a visible body. Storage class decides which local partition it
// lands in.
func (r *FunctionRecord) isLocalCandidate() bool {
	return r.HasLocation && r.IncludedFrom == "" && r.HasBody
}

// FunctionIndex holds three partitioned, read-only views over the function
// records discovered in one parse: every record, module-local exported
// functions, and module-local static functions. Partition membership is
// decided once at construction; the index is immutable afterwards.
type FunctionIndex struct {
	all     []*FunctionRecord
	byName  map[string]*FunctionRecord
	local   []*FunctionRecord
	statics []*FunctionRecord
}

// NewFunctionIndex builds an index from records in discovery order.
// Duplicate names collapse into the first record seen; a later sighting only
// fills fields the first left empty (nominal identity, no overloads).
func NewFunctionIndex(records []*FunctionRecord) *FunctionIndex {
	idx := &FunctionIndex{byName: make(map[string]*FunctionRecord, len(records))}
	for _, r := range records {
		if prev, ok := idx.byName[r.Name]; ok {
			mergeRecord(prev, r)
			continue
		}
		idx.byName[r.Name] = r
		idx.all = append(idx.all, r)
	}
	for _, r := range idx.all {
		if !r.isLocalCandidate() {
			continue
		}
		if r.Storage == StorageStatic {
			idx.statics = append(idx.statics, r)
		} else {
			idx.local = append(idx.local, r)
		}
	}
	return idx
}

// mergeRecord fills gaps in the canonical record from a later sighting of
// the same name. A definition sighting upgrades body presence so a
// declaration-then-definition pair still classifies as local.
func mergeRecord(dst, src *FunctionRecord) {
	if src.HasBody {
		dst.HasBody = true
	}
	if !dst.HasLocation && src.HasLocation {
		dst.HasLocation = true
		dst.File = src.File
		dst.Line = src.Line
		dst.IncludedFrom = src.IncludedFrom
	}
	if dst.Signature == "" && src.Signature != "" {
		dst.Signature = src.Signature
		dst.ReturnType = src.ReturnType
		dst.Params = src.Params
	}
	if dst.MockGroup == DefaultMockGroup && src.MockGroup != DefaultMockGroup {
		dst.MockGroup = src.MockGroup
	}
	if dst.Storage == StorageNone && src.Storage != StorageNone {
		dst.Storage = src.Storage
	}
}

// All returns every indexed record in discovery order.
func (idx *FunctionIndex) All() []*FunctionRecord { return idx.all }

// Local returns module-local functions with external linkage: the module's
// public surface, which the probe program calls.
func (idx *FunctionIndex) Local() []*FunctionRecord { return idx.local }

// StaticLocal returns module-local functions with static storage.
func (idx *FunctionIndex) StaticLocal() []*FunctionRecord { return idx.statics }

// Lookup finds a record by name.
func (idx *FunctionIndex) Lookup(name string) (*FunctionRecord, bool) {
	r, ok := idx.byName[name]
	return r, ok
}

// Len is the number of distinct function names indexed.
func (idx *FunctionIndex) Len() int { return len(idx.all) }

// MarshalJSON renders the three views with local partitions by name only,
// keeping reports compact.
func (idx *FunctionIndex) MarshalJSON() ([]byte, error) {
	names := func(rs []*FunctionRecord) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.Name)
		}
		sort.Strings(out)
		return out
	}
	return json.Marshal(struct {
		All    []*FunctionRecord `json:"all"`
		Local  []string          `json:"local"`
		Static []string          `json:"static"`
	}{idx.all, names(idx.local), names(idx.statics)})
}

// ProbeProgram is the synthetic translation unit that calls every local
// function once. It is regenerated per analysis run and never cached.
type ProbeProgram struct {
	Text         string `json:"-"`
	Placeholders int    `json:"placeholders"`
	Calls        int    `json:"calls"`
}

// LinkReport is the outcome of one probe link attempt. Undefined holds the
// distinct unresolved symbol names in sorted order; Linked records whether
// the toolchain process exited cleanly, which disambiguates a genuinely
// empty set from a compilation that never reached the linker.
type LinkReport struct {
	Undefined []string `json:"undefined"`
	ExitCode  int      `json:"exit_code"`
	Linked    bool     `json:"linked"`
	Stderr    string   `json:"-"`
}

// MockAssignment maps one undefined symbol to its matched declaration, if
// any. Record is nil for symbols absent from the index; such entries are
// kept so that no symbol silently disappears.
type MockAssignment struct {
	Symbol    string          `json:"symbol"`
	Record    *FunctionRecord `json:"record,omitempty"`
	MockGroup string          `json:"mock_group,omitempty"`
}

// Resolution joins the undefined-symbol set against the function index.
type Resolution struct {
	Assignments []MockAssignment `json:"assignments"`
	Unresolved  []string         `json:"unresolved,omitempty"`
}

// Matched returns only the assignments that found a declaration, grouped
// order preserved.
func (r *Resolution) Matched() []MockAssignment {
	out := make([]MockAssignment, 0, len(r.Assignments))
	for _, a := range r.Assignments {
		if a.Record != nil {
			out = append(out, a)
		}
	}
	return out
}

// ByGroup partitions matched assignments by mock group, each group's
// assignments sorted by symbol for stable generation.
func (r *Resolution) ByGroup() map[string][]MockAssignment {
	groups := make(map[string][]MockAssignment)
	for _, a := range r.Matched() {
		groups[a.MockGroup] = append(groups[a.MockGroup], a)
	}
	for _, as := range groups {
		sort.Slice(as, func(i, j int) bool { return as[i].Symbol < as[j].Symbol })
	}
	return groups
}

// Outcome is the per-module verdict of a pipeline run.
type Outcome string

const (
	// OutcomeResolved: at least one mock assignment was derived.
	OutcomeResolved Outcome = "resolved"
	// OutcomeZeroDependencies: the probe linked cleanly with no undefined
	// references; the module is self-contained.
	OutcomeZeroDependencies Outcome = "zero-dependencies"
	// OutcomeIndeterminate: no undefined references were extracted but the
	// toolchain did not exit cleanly, so compilation may have failed before
	// the link stage.
	OutcomeIndeterminate Outcome = "indeterminate"
	// OutcomeFailed: a toolchain or invocation error aborted the module.
	OutcomeFailed Outcome = "failed"
)

// Result is everything one module's run produced. Err is non-nil only for
// OutcomeFailed; recoverable conditions land in Diagnostics instead.
type Result struct {
	Module      string             `json:"module"`
	RunID       string             `json:"run_id"`
	Outcome     Outcome            `json:"outcome"`
	Conditional *ConditionalReport `json:"conditional,omitempty"`
	Index       *FunctionIndex     `json:"index,omitempty"`
	Probe       *ProbeProgram      `json:"probe,omitempty"`
	Link        *LinkReport        `json:"link,omitempty"`
	Resolution  *Resolution        `json:"resolution,omitempty"`
	Diagnostics []Diagnostic       `json:"diagnostics,omitempty"`
	Err         error              `json:"-"`
}

// Warn appends a warning-severity diagnostic to the result.
func (res *Result) Warn(stage Stage, msg, detail string) {
	res.Diagnostics = append(res.Diagnostics, Diagnostic{
		Stage:    stage,
		Severity: SeverityWarning,
		Message:  msg,
		Detail:   detail,
	})
}
