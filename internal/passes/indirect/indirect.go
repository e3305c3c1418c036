// Package indirect holds the shared machinery behind the three
// indirection passes (indirect global variables, indirect calls, indirect
// branches): build one module-wide page-table chain over a set of
// objects, optionally layer a per-function enhanced chain on top, and
// rewrite a use of one of those objects into a decrypt chain ending in a
// GEP+load from the shuffled object array.
package indirect

import (
	"fmt"

	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/pagetable"
	"github.com/arkari/irobf/internal/rng"
)

// Plan bundles the module-wide table plus, per function, an optional
// enhanced table layered on top of it (spec.md §4.C "Enhancement").
type Plan struct {
	Objects      []ir.Value
	Module       *pagetable.Descriptor
	ModuleKeys   map[ir.Value]pagetable.ObjKey
	Enhanced     map[*ir.Function]*pagetable.Descriptor
	EnhancedKeys map[*ir.Function]map[ir.Value]pagetable.ObjKey
}

// BuildPlan constructs the module chain over objects, then, for every
// function with a positive enhancement level (per enhancedLevels), a
// per-function chain seeded from the module's final index map (spec.md
// §4.C: "builds on top of the module table's shuffle rather than starting
// over").
func BuildPlan(m *ir.Module, namePrefix string, objects []ir.Value, enhancedLevels map[*ir.Function]int, loopCount int, src *rng.Source) (*Plan, error) {
	if len(objects) == 0 {
		return nil, fmt.Errorf("indirect: %s has no eligible objects", namePrefix)
	}

	moduleKeys := make(map[ir.Value]pagetable.ObjKey, len(objects))
	for _, o := range objects {
		moduleKeys[o] = pagetable.ObjKey{Low: uint32(src.GetUint64()), High: uint32(src.GetUint64())}
	}

	modDesc, err := pagetable.BuildModuleTable(m, "M_"+namePrefix, objects, moduleKeys, loopCount, src)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Objects:      objects,
		Module:       modDesc,
		ModuleKeys:   moduleKeys,
		Enhanced:     make(map[*ir.Function]*pagetable.Descriptor),
		EnhancedKeys: make(map[*ir.Function]map[ir.Value]pagetable.ObjKey),
	}

	for fn, level := range enhancedLevels {
		if level <= 0 {
			continue
		}
		fnKeys := make(map[ir.Value]pagetable.ObjKey, len(objects))
		for _, o := range objects {
			fnKeys[o] = pagetable.ObjKey{Low: uint32(src.GetUint64()), High: uint32(src.GetUint64())}
		}
		enhDesc, err := pagetable.BuildEnhancedTable(m, "MF_"+namePrefix, objects, fnKeys, level, modDesc.IndexOf, src)
		if err != nil {
			return nil, err
		}
		plan.Enhanced[fn] = enhDesc
		plan.EnhancedKeys[fn] = fnKeys
	}

	return plan, nil
}

// RewriteReference emits, at b's insertion point, the decrypt chain that
// recovers obj (as finalType) from plan, layering fn's enhanced chain (if
// any) on top of the module chain — the per-use substitution spec.md §4.E
// describes for indirect globals, calls, and branches alike.
func RewriteReference(b *ir.Builder, m *ir.Module, plan *Plan, fn *ir.Function, obj ir.Value, finalType ir.Type) (ir.Value, error) {
	idx, ok := plan.Module.IndexOf[obj]
	if !ok {
		return nil, fmt.Errorf("indirect: object not present in module table")
	}
	literal := uint32(idx)

	enhanced := plan.Enhanced[fn]
	var enhKey pagetable.ObjKey
	if enhanced != nil {
		enhKey = plan.EnhancedKeys[fn][obj]
		literal = uint32(enhanced.IndexOf[obj])
	}
	modKey := plan.ModuleKeys[obj]

	return pagetable.BuildDecryptIR(b, m, nil, &literal, enhanced, plan.Module, enhKey, modKey, finalType)
}

// BuildUniformPlan is BuildPlan for callers that must decrypt towards an
// object whose identity isn't known until runtime (the indirect-branch
// pass's switch dispatch): every object in the table shares a single key,
// since no per-object key can be selected without already knowing which
// object the chain resolves to.
func BuildUniformPlan(m *ir.Module, namePrefix string, objects []ir.Value, level int, loopCount int, src *rng.Source) (*Plan, ir.Value, error) {
	if len(objects) == 0 {
		return nil, nil, fmt.Errorf("indirect: %s has no eligible objects", namePrefix)
	}
	key := pagetable.ObjKey{Low: uint32(src.GetUint64()), High: uint32(src.GetUint64())}
	moduleKeys := make(map[ir.Value]pagetable.ObjKey, len(objects))
	for _, o := range objects {
		moduleKeys[o] = key
	}

	modDesc, err := pagetable.BuildModuleTable(m, "M_"+namePrefix, objects, moduleKeys, loopCount, src)
	if err != nil {
		return nil, nil, err
	}

	plan := &Plan{
		Objects:      objects,
		Module:       modDesc,
		ModuleKeys:   moduleKeys,
		Enhanced:     make(map[*ir.Function]*pagetable.Descriptor),
		EnhancedKeys: make(map[*ir.Function]map[ir.Value]pagetable.ObjKey),
	}

	var enhKeyVal ir.Value
	if level > 0 {
		enhKey := pagetable.ObjKey{Low: uint32(src.GetUint64()), High: uint32(src.GetUint64())}
		enhKeys := make(map[ir.Value]pagetable.ObjKey, len(objects))
		for _, o := range objects {
			enhKeys[o] = enhKey
		}
		enhDesc, err := pagetable.BuildEnhancedTable(m, "MF_"+namePrefix, objects, enhKeys, level, modDesc.IndexOf, src)
		if err != nil {
			return nil, nil, err
		}
		plan.Enhanced[nil] = enhDesc
		plan.EnhancedKeys[nil] = enhKeys
	}
	return plan, enhKeyVal, nil
}

// RewriteReferenceFromValue is RewriteReference for a uniform-keyed plan
// (see BuildUniformPlan) where the starting index into the chain is
// already a runtime value rather than a constant known at plan-build
// time — for the indirect-branch pass, a select chain over the branch
// condition (or the switch's compare operand) that picks the table index
// of the destination the chain resolves to.
func RewriteReferenceFromValue(b *ir.Builder, m *ir.Module, plan *Plan, startIndex ir.Value, finalType ir.Type) (ir.Value, error) {
	key := plan.ModuleKeys[plan.Objects[0]]
	enhanced := plan.Enhanced[nil]
	var enhKey pagetable.ObjKey
	if enhanced != nil {
		enhKey = plan.EnhancedKeys[nil][plan.Objects[0]]
	}
	return pagetable.BuildDecryptIR(b, m, startIndex, nil, enhanced, plan.Module, enhKey, key, finalType)
}

// RewriteOperandUses walks every instruction in fn and replaces any
// operand that is one of plan's objects with the result of
// RewriteReference, inserting the decrypt chain immediately before the
// using instruction. Returns the number of operands rewritten.
func RewriteOperandUses(m *ir.Module, plan *Plan, fn *ir.Function) (int, error) {
	isObject := make(map[ir.Value]bool, len(plan.Objects))
	for _, o := range plan.Objects {
		isObject[o] = true
	}

	count := 0
	for _, bb := range fn.Blocks {
		for _, in := range append([]*ir.Instruction{}, bb.Instrs...) {
			for i, operand := range in.Operands {
				if !isObject[operand] {
					continue
				}
				b := ir.NewBuilderAt(bb, in)
				repl, err := RewriteReference(b, m, plan, fn, operand, operand.ValueType())
				if err != nil {
					return count, err
				}
				in.Operands[i] = repl
				count++
			}
		}
	}
	return count, nil
}
