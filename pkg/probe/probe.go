// Package probe synthesizes the translation unit that exercises a module's
// public surface: one placeholder value per non-void parameter and one call
// per local function. Linking it against the module exposes every external
// dependency as an undefined reference.
package probe

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mockprobe/mockprobe/pkg/types"
)

// Generate builds the probe entry point for the local functions in idx.
// Functions are emitted in lexicographic name order so the artifact is
// stable across runs; placeholder numbering is global, so no two calls
// share a placeholder.
func Generate(idx *types.FunctionIndex, sourceName string) *types.ProbeProgram {
	funcs := append([]*types.FunctionRecord{}, idx.Local()...)
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Name < funcs[j].Name })

	var sb strings.Builder
	fmt.Fprintf(&sb, "// Synthetic entry point for %s: calls every public function once.\n\n", sourceName)
	sb.WriteString("int main(void) {\n")

	prog := &types.ProbeProgram{Calls: len(funcs)}
	tempIndex := 1
	args := make(map[string][]string, len(funcs))

	for _, f := range funcs {
		var temps []string
		for _, p := range f.Params {
			if p == "void" || p == "..." {
				continue
			}
			name := fmt.Sprintf("temp_%d", tempIndex)
			tempIndex++
			fmt.Fprintf(&sb, "    %s;\n", declarePlaceholder(p, name))
			temps = append(temps, name)
			prog.Placeholders++
		}
		args[f.Name] = temps
	}

	sb.WriteString("\n")
	for _, f := range funcs {
		fmt.Fprintf(&sb, "    %s(%s);\n", f.Name, strings.Join(args[f.Name], ", "))
	}
	sb.WriteString("\n    return 0;\n}\n")

	prog.Text = sb.String()
	return prog
}

// declarePlaceholder renders a declaration of name with type typ, placing
// the name inside function-pointer and array declarators.
func declarePlaceholder(typ, name string) string {
	if i := strings.Index(typ, "(*)"); i >= 0 {
		return typ[:i+2] + name + typ[i+2:]
	}
	if i := strings.Index(typ, "["); i >= 0 {
		return strings.TrimSpace(typ[:i]) + " " + name + typ[i:]
	}
	return typ + " " + name
}

// Emit writes the probe text to path and returns it. An existing file is
// reused, not overwritten, unless regen is set; the caller is expected to
// surface the reuse so a stale probe is never a silent surprise.
func Emit(path string, prog *types.ProbeProgram, regen bool) (text string, reused bool, err error) {
	if !regen {
		if data, rerr := os.ReadFile(path); rerr == nil {
			return string(data), true, nil
		}
	}
	if err := os.WriteFile(path, []byte(prog.Text), 0o644); err != nil {
		return "", false, err
	}
	return prog.Text, false, nil
}
