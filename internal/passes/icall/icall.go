// Package icall implements the indirect-call pass (spec.md §4.E, tag
// "icall"): a direct call's callee operand is replaced with a page-table
// decrypt chain over a shuffled array of function pointers, and the call
// instruction itself becomes an indirect call.
package icall

import (
	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/passes/indirect"
	"github.com/arkari/irobf/internal/rng"
)

type Result struct {
	ObjectCount  int
	RewriteCount int
}

// calleeOperandIndex is where the callee sits among a call instruction's
// operands — operand 0, the way this module models OpCall and
// OpIndirectCall.
const calleeOperandIndex = 0

// directCallees collects every distinct *ir.Function directly called
// anywhere in m, the candidate object set for this pass. Intrinsics are
// never registered (spec.md §4.E: "register the callee function; skip
// intrinsics") since a call to one can't be safely redirected through a
// page table.
func directCallees(m *ir.Module) []ir.Value {
	seen := make(map[*ir.Function]bool)
	var out []ir.Value
	for _, fn := range m.Functions {
		for _, bb := range fn.Blocks {
			for _, in := range bb.Instrs {
				if in.Op != ir.OpCall || len(in.Operands) == 0 {
					continue
				}
				callee, ok := in.Operands[calleeOperandIndex].(*ir.Function)
				if !ok || callee.IsIntrinsic || seen[callee] {
					continue
				}
				seen[callee] = true
				out = append(out, callee)
			}
		}
	}
	return out
}

// Run applies the pass across m.
func Run(m *ir.Module, bundle *config.OptionsBundle, src *rng.Source) (*Result, error) {
	option := bundle.Get(config.TagICall)
	objects := directCallees(m)
	if !option.Enable || len(objects) == 0 {
		return &Result{}, nil
	}

	enhancedLevels := make(map[*ir.Function]int)
	for _, fn := range m.Functions {
		if !fn.Eligible() {
			continue
		}
		eff, err := config.ResolveAnnotations(config.TagICall, option, fn.Annotations, fn.Name, true)
		if err != nil {
			return nil, err
		}
		if eff.Enable {
			enhancedLevels[fn] = eff.Level
		}
	}

	plan, err := indirect.BuildPlan(m, "IndirectCall", objects, enhancedLevels, option.Level, src)
	if err != nil {
		return nil, err
	}

	result := &Result{ObjectCount: len(objects)}
	isCallee := make(map[ir.Value]bool, len(objects))
	for _, o := range objects {
		isCallee[o] = true
	}

	for _, fn := range m.Functions {
		if !fn.Eligible() {
			continue
		}
		if _, enabled := enhancedLevels[fn]; !enabled {
			continue
		}
		for _, bb := range fn.Blocks {
			for _, in := range append([]*ir.Instruction{}, bb.Instrs...) {
				if in.Op != ir.OpCall || len(in.Operands) == 0 {
					continue
				}
				callee := in.Operands[calleeOperandIndex]
				if !isCallee[callee] {
					continue
				}
				b := ir.NewBuilderAt(bb, in)
				repl, err := indirect.RewriteReference(b, m, plan, fn, callee, callee.ValueType())
				if err != nil {
					return nil, err
				}
				in.Operands[calleeOperandIndex] = repl
				in.Op = ir.OpIndirectCall
				result.RewriteCount++
			}
		}
	}
	return result, nil
}
