// Package indbr implements the indirect-branch pass (spec.md §4.E, tag
// "indbr"): a branch terminator (a multi-way switch, or a two-way
// conditional) is lowered into an indirectbr whose target address comes
// from a page-table decrypt chain over the terminator's own successors.
package indbr

import (
	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/passes/indirect"
	"github.com/arkari/irobf/internal/rng"
)

type Result struct {
	SwitchesRewritten int
}

// branchSite is one eligible terminator to indirect, with its successor
// set captured as page-table objects in a fixed, known order: objects[i]
// is always the destination the table resolves to when the runtime
// discriminant selects index i.
type branchSite struct {
	bb      *ir.BasicBlock
	objects []ir.Value
}

// branchSites collects, across m, one object set per eligible branch
// terminator — a multi-way switch or a two-way conditional branch — keyed
// by the block that holds it.
func branchSites(m *ir.Module) []branchSite {
	var out []branchSite
	for _, fn := range m.Functions {
		if !fn.Eligible() || fn.ContainsInvoke() {
			continue
		}
		for _, bb := range fn.Blocks {
			if bb.Term == nil {
				continue
			}
			switch {
			case bb.Term.Op == ir.OpSwitch && len(bb.Term.Cases) >= 2:
				objs := make([]ir.Value, len(bb.Term.Cases))
				for i, c := range bb.Term.Cases {
					objs[i] = &ir.BlockAddress{Block: c.Dest}
				}
				out = append(out, branchSite{bb: bb, objects: objs})
			case bb.Term.Op == ir.OpCondBr && len(bb.Term.Succs) == 2:
				objs := []ir.Value{
					&ir.BlockAddress{Block: bb.Term.Succs[0]},
					&ir.BlockAddress{Block: bb.Term.Succs[1]},
				}
				out = append(out, branchSite{bb: bb, objects: objs})
			}
		}
	}
	return out
}

// Run applies the pass across m. Every function containing an eligible
// branch terminator gets its own module-scale object set (one page-table
// chain per rewritten terminator, since each terminator has a distinct
// destination set), with per-function annotations controlling an optional
// enhancement layer exactly as the other indirection passes do.
func Run(m *ir.Module, bundle *config.OptionsBundle, src *rng.Source) (*Result, error) {
	option := bundle.Get(config.TagIndBr)
	if !option.Enable {
		return &Result{}, nil
	}

	sites := branchSites(m)
	result := &Result{}

	for _, site := range sites {
		bb := site.bb
		fn := bb.Func
		eff, err := config.ResolveAnnotations(config.TagIndBr, option, fn.Annotations, fn.Name, fn.Eligible())
		if err != nil {
			return nil, err
		}
		if !eff.Enable {
			continue
		}

		plan, _, err := indirect.BuildUniformPlan(m, "IndirectBr", site.objects, eff.Level, option.Level, src)
		if err != nil {
			return nil, err
		}

		term := bb.Term
		b := ir.NewBuilderAtEnd(bb)

		indexOf := plan.Module.IndexOf
		if enh := plan.Enhanced[nil]; enh != nil {
			indexOf = enh.IndexOf
		}

		var startIndex ir.Value
		var dests []*ir.BasicBlock
		if term.Op == ir.OpSwitch {
			startIndex = buildSwitchIndex(b, term.Operands[0], term.Cases, site.objects, indexOf)
			dests = make([]*ir.BasicBlock, len(term.Cases))
			for i, c := range term.Cases {
				dests[i] = c.Dest
			}
		} else {
			idxT := indexOf[site.objects[0]]
			idxF := indexOf[site.objects[1]]
			startIndex = b.Select(term.Operands[0], ir.NewConstInt(32, uint64(idxT)), ir.NewConstInt(32, uint64(idxF)))
			dests = []*ir.BasicBlock{term.Succs[0], term.Succs[1]}
		}

		live, err := indirect.RewriteReferenceFromValue(b, m, plan, startIndex, ir.TypePtr)
		if err != nil {
			return nil, err
		}

		bb.Term = &ir.Instruction{Op: ir.OpIndirectBr, Operands: []ir.Value{live}, Succs: dests}
		ir.Link(bb, dests...)

		result.SwitchesRewritten++
	}

	return result, nil
}

// buildSwitchIndex constructs, at b's insertion point, a chain of equality
// comparisons between cmp and each case's own compile-time value, selecting
// the module table index of the matching case's destination object. A
// switch's case values are not themselves valid page-table indices — for
// the flattener's own dispatcher they are its keyed-scramble case ids
// (flatten.go's caseID, a v1^v2 XOR of two large state cells) — so the
// index has to be re-derived case by case rather than decrypted starting
// from cmp directly. The last case is the fallthrough: a well-formed
// switch's cmp always matches exactly one case, so it is never reached by
// any other branch of the chain.
func buildSwitchIndex(b *ir.Builder, cmp ir.Value, cases []ir.SwitchCase, objects []ir.Value, indexOf map[ir.Value]int) ir.Value {
	width := cmp.ValueType().IntWidth
	acc := ir.NewConstInt(32, uint64(indexOf[objects[len(objects)-1]]))
	for i := len(cases) - 2; i >= 0; i-- {
		eq := b.ICmp(cmp, ir.NewConstInt(width, cases[i].Value))
		lit := ir.NewConstInt(32, uint64(indexOf[objects[i]]))
		acc = b.Select(eq, lit, acc)
	}
	return acc
}
