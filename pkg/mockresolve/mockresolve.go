// Package mockresolve joins the undefined-symbol set from the link probe
// against the function index, assigning each symbol the declaration and
// mock group it should be mocked from.
package mockresolve

import (
	"fmt"

	"github.com/mockprobe/mockprobe/pkg/types"
)

// Resolve looks every undefined symbol up in the index's full view. A
// symbol with no declaration is never dropped and never given a fabricated
// signature: it is carried as an unresolved entry and reported as a
// warning naming it.
func Resolve(undefined []string, idx *types.FunctionIndex) (*types.Resolution, []types.Diagnostic) {
	res := &types.Resolution{}
	var diags []types.Diagnostic

	for _, sym := range undefined {
		rec, ok := idx.Lookup(sym)
		if !ok {
			res.Assignments = append(res.Assignments, types.MockAssignment{Symbol: sym})
			res.Unresolved = append(res.Unresolved, sym)
			diags = append(diags, types.Diagnostic{
				Stage:    types.StageResolve,
				Severity: types.SeverityWarning,
				Message:  fmt.Sprintf("cannot find declaration for mocked-up function %s", sym),
			})
			continue
		}
		res.Assignments = append(res.Assignments, types.MockAssignment{
			Symbol:    sym,
			Record:    rec,
			MockGroup: rec.MockGroup,
		})
	}
	return res, diags
}
