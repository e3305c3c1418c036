// Package indgv implements the indirect-global-variable pass (spec.md §4.E,
// tag "indgv"): direct references to eligible global variables are
// replaced with a page-table decrypt chain over a shuffled array of
// global pointers.
package indgv

import (
	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/passes/indirect"
	"github.com/arkari/irobf/internal/rng"
)

// Result reports what the pass did, for the pipeline's summary/logging.
type Result struct {
	ObjectCount   int
	RewriteCount  int
	FunctionCount int
}

// eligibleGlobals collects the module's candidate objects: every global
// that is not noobf-tagged (spec.md §3: noobf globals are never
// candidates for any pass, including the ones this pass itself emits), nor
// thread-local nor DLL-imported — a page table can't safely stand in for
// either, since thread-local storage has no single runtime address and a
// DLL-imported symbol isn't resolved until the loader binds it.
func eligibleGlobals(m *ir.Module) []ir.Value {
	var out []ir.Value
	for _, g := range m.Globals {
		if g.NoObf || g.ThreadLocal || g.DLLImport {
			continue
		}
		out = append(out, g)
	}
	return out
}

// Run applies the pass across m. bundle carries the module-level default
// for the "indgv" tag; per-function annotations can enable/disable or set
// an enhancement level on top of that default.
func Run(m *ir.Module, bundle *config.OptionsBundle, src *rng.Source) (*Result, error) {
	option := bundle.Get(config.TagIndGV)
	objects := eligibleGlobals(m)
	if !option.Enable || len(objects) == 0 {
		return &Result{}, nil
	}

	enhancedLevels := make(map[*ir.Function]int)
	for _, fn := range m.Functions {
		if !fn.Eligible() {
			continue
		}
		eff, err := config.ResolveAnnotations(config.TagIndGV, option, fn.Annotations, fn.Name, true)
		if err != nil {
			return nil, err
		}
		if eff.Enable {
			enhancedLevels[fn] = eff.Level
		}
	}

	plan, err := indirect.BuildPlan(m, "IndirectGlobalVariable", objects, enhancedLevels, option.Level, src)
	if err != nil {
		return nil, err
	}

	result := &Result{ObjectCount: len(objects)}
	for _, fn := range m.Functions {
		if !fn.Eligible() {
			continue
		}
		if _, enabled := enhancedLevels[fn]; !enabled {
			continue
		}
		// Expand constant expressions before scanning (spec.md §4.E), the
		// same ordering internal/passes/constenc uses: a global reference
		// folded into a constant expression (e.g. a bitcast/GEP constant)
		// must be unfolded before it can surface as a scannable operand.
		ir.ExpandConstantExprs(fn)

		n, err := indirect.RewriteOperandUses(m, plan, fn)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			result.FunctionCount++
			result.RewriteCount += n
		}
	}
	return result, nil
}
