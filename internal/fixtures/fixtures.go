// Package fixtures builds small, self-contained *ir.Module values that
// stand in for the module a real host compiler would hand the pipeline
// manager (spec.md §1 lists the host compiler framework as an
// out-of-scope external collaborator). DemoModule exercises one candidate
// object of every kind the passes look for — a global variable, a direct
// call, a conditional branch, scalar int/FP constants, and an RTTI
// type-descriptor global — so `irobf run` and the package tests both have
// something concrete to drive the pipeline against without a real
// frontend.
//
// DemoModule deliberately contains no multi-way switch of its own:
// spec.md's Non-goals assume switch lowering already ran upstream (an
// out-of-scope IR utility), and the control-flow flattener refuses any
// function that still has one (spec.md §4.F step 1). The only switch the
// pipeline ever sees here is the one the flattener itself builds, which
// indirect-branch obfuscation then indirects in turn — the ordering
// internal/pipeline documents.
package fixtures

import "github.com/arkari/irobf/internal/ir"

// DemoModule returns a freshly built module named "Demo" with two
// functions: Demo_helper (a leaf function combining its two parameters)
// and Demo_main (which calls Demo_helper, loads a global, and branches on
// a condition derived from both), plus one plain global and one RTTI
// type-descriptor global.
func DemoModule() *ir.Module {
	m := ir.NewModule("Demo")

	counter := &ir.GlobalVariable{
		Name:    "Demo_counter",
		Typ:     ir.TypeI32,
		Linkage: ir.LinkagePrivate,
		Init:    ir.NewConstInt(32, 0),
	}
	m.Globals = append(m.Globals, counter)

	rttiName := &ir.ConstDataArray{Bytes: append([]byte(".?AVWidget@@"), 0)}
	rttiStruct := &ir.ConstStruct{
		TypeName: "rtti.TypeDescriptor",
		Fields:   []ir.Value{ir.NewConstInt(32, 0), ir.NewConstInt(32, 0), rttiName},
	}
	m.Globals = append(m.Globals, &ir.GlobalVariable{
		Name:    "??_R0?AVWidget@@@8",
		Typ:     ir.TypePtr,
		Linkage: ir.LinkagePrivate,
		Init:    rttiStruct,
	})

	helper := buildHelper()
	m.AddFunction(helper)
	m.AddFunction(buildMain(helper, counter))

	return m
}

func buildHelper() *ir.Function {
	fn := &ir.Function{
		Name:   "Demo_helper",
		Params: []*ir.Param{{Name: "a", Typ: ir.TypeI32}, {Name: "b", Typ: ir.TypeI32}},
	}
	entry := fn.NewBasicBlock("entry")
	b := ir.NewBuilderAtEnd(entry)
	sum := b.Add(fn.Params[0], fn.Params[1])
	entry.Term = &ir.Instruction{Op: ir.OpRet, Operands: []ir.Value{sum}}
	return fn
}

// buildMain wires up entry -> {onTrue, onFalse} -> exit: entry calls
// helper and loads counter to derive a branch condition, so icall, indgv,
// and constenc each have a candidate, and the two-successor terminator
// gives the flattener something to rewrite into dispatcher cases.
func buildMain(helper *ir.Function, counter *ir.GlobalVariable) *ir.Function {
	fn := &ir.Function{Name: "Demo_main"}

	entry := fn.NewBasicBlock("entry")
	onTrue := fn.NewBasicBlock("onTrue")
	onFalse := fn.NewBasicBlock("onFalse")
	exit := fn.NewBasicBlock("exit")

	eb := ir.NewBuilderAtEnd(entry)
	callResult := &ir.Instruction{Op: ir.OpCall, Typ: ir.TypeI32, Operands: []ir.Value{helper, ir.NewConstInt(32, 42), ir.NewConstInt(32, 7)}}
	entry.Instrs = append(entry.Instrs, callResult)
	loaded := eb.Load(counter, ir.TypeI32, false, 4)
	cond := eb.ICmp(callResult, loaded)
	entry.Term = &ir.Instruction{Op: ir.OpCondBr, Operands: []ir.Value{cond}, Succs: []*ir.BasicBlock{onTrue, onFalse}}
	ir.Link(entry, onTrue, onFalse)

	tb := ir.NewBuilderAtEnd(onTrue)
	tb.Mul(loaded, ir.NewConstInt(32, 3))
	onTrue.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{exit}}
	ir.Link(onTrue, exit)

	fb := ir.NewBuilderAtEnd(onFalse)
	fb.Sub(loaded, ir.NewConstInt(32, 5))
	onFalse.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{exit}}
	ir.Link(onFalse, exit)

	exit.Term = &ir.Instruction{Op: ir.OpRet, Operands: []ir.Value{&ir.ConstFP{Width: 32, Bits: 0x3f800000}}}
	return fn
}
