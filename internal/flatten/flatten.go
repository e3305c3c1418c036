// Package flatten implements the Control-Flow Flattener of spec.md §4.F,
// tag "fla": a function's CFG is restructured into a dispatcher-driven
// state machine whose state is XOR-masked across two stack cells, with
// case identifiers drawn from a keyed scramble permutation
// (internal/rng.Scramble32/64) rather than their natural block order —
// the same "reorder before you reveal" idea this lineage's statement
// shuffler applies to statement lists, lifted from AST statements to basic
// blocks and made keyed/reversible instead of merely randomized.
package flatten

import (
	"fmt"

	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

// Result reports whether fn was flattened and how many original blocks
// became dispatcher cases.
type Result struct {
	Flattened bool
	CaseCount int
}

const (
	switchVarName    = "switchVar"
	switchXorVarName = "switchXorVar"
)

// Flatten applies the flattener to fn (spec.md §4.F). It returns
// Result{Flattened: false} with zero mutations for every mandatory skip
// condition: intrinsics, a single basic block, or any function containing
// an invoke (spec.md §7: "the invoke check runs before any mutation").
// use64 selects 64-bit state (host pointer size 64) vs 32-bit (spec.md §4.F
// step 4).
func Flatten(fn *ir.Function, use64 bool, src *rng.Source) (*Result, error) {
	if fn.IsIntrinsic || fn.IsDeclaration || len(fn.Blocks) < 2 {
		return &Result{}, nil
	}
	if fn.ContainsInvoke() {
		return &Result{}, nil
	}
	for _, bb := range fn.Blocks {
		if bb.Term != nil && bb.Term.Op == ir.OpSwitch {
			return nil, fmt.Errorf("flatten: %s: switch terminator present, run switch lowering first", fn.Name)
		}
	}

	entry := fn.Blocks[0]
	rest := append([]*ir.BasicBlock{}, fn.Blocks[1:]...)

	// Step 2: move the entry's whole instruction list and terminator into
	// its own "first case" block so the entry itself can become a plain
	// jump to the dispatcher. The remaining blocks are shuffled; the first
	// case always stays at index 0.
	firstCase := splitEntry(fn, entry)

	src.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	cases := append([]*ir.BasicBlock{firstCase}, rest...)

	scramblingKey := src.NewScrambleKey()
	stateWidth := 32
	if use64 {
		stateWidth = 64
	}
	stateTyp := ir.IntType(stateWidth)

	scramble := func(idx int) uint64 {
		if use64 {
			return rng.Scramble64(uint64(idx), scramblingKey)
		}
		return uint64(rng.Scramble32(uint32(idx), scramblingKey))
	}

	caseID := make(map[*ir.BasicBlock]uint64, len(cases))
	for i, bb := range cases {
		caseID[bb] = scramble(i)
	}
	entryXor := src.GetUint64() & widthMask(stateWidth)

	loopEntry := fn.NewBasicBlock(fn.Name + ".loopEntry")
	loopEnd := fn.NewBasicBlock(fn.Name + ".loopEnd")
	switchDefault := fn.NewBasicBlock(fn.Name + ".switchDefault")

	switchVar := fn.NewAlloca(switchVarName, stateTyp)
	switchXorVar := fn.NewAlloca(switchXorVarName, stateTyp)

	// Step 5: initialize the two cells. switchVar starts holding
	// entryXor ^ scramble(0) so loopEntry's first decode lands on case 0
	// (the entry's own split-off tail), switchXorVar starts at entryXor.
	eb := ir.NewBuilderAtEnd(entry)
	initVal := entryXor ^ scramble(0)
	eb.Store(ir.NewConstInt(stateWidth, initVal), switchVar, true, 1)
	eb.Store(ir.NewConstInt(stateWidth, entryXor), switchXorVar, true, 1)
	entry.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{loopEntry}}
	ir.Link(entry, loopEntry)

	// Step 6: dispatcher. loopEntry loads both cells, XORs them, and
	// switches on the result to the case carrying that id.
	lb := ir.NewBuilderAtEnd(loopEntry)
	v1 := lb.Load(switchVar, stateTyp, true, 1)
	v2 := lb.Load(switchXorVar, stateTyp, true, 1)
	cond := lb.Xor(v1, v2)
	swCases := make([]ir.SwitchCase, len(cases))
	for i, bb := range cases {
		swCases[i] = ir.SwitchCase{Value: caseID[bb], Dest: bb}
	}
	loopEntry.Term = &ir.Instruction{Op: ir.OpSwitch, Operands: []ir.Value{cond}, Cases: swCases, Succs: append(append([]*ir.BasicBlock{}, dests(swCases)...), switchDefault)}
	ir.Link(loopEntry, append(dests(swCases), switchDefault)...)

	switchDefault.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{loopEnd}}
	ir.Link(switchDefault, loopEnd)
	loopEnd.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{loopEntry}}
	ir.Link(loopEnd, loopEntry)

	lastCaseID := caseID[cases[len(cases)-1]]
	for _, bb := range cases {
		if err := rewriteTerminator(fn, bb, loopEnd, caseID, lastCaseID, stateWidth, switchVar, switchXorVar, src); err != nil {
			return nil, err
		}
	}

	demoteEscapingValues(fn, cases)

	return &Result{Flattened: true, CaseCount: len(cases)}, nil
}

func dests(cases []ir.SwitchCase) []*ir.BasicBlock {
	out := make([]*ir.BasicBlock, len(cases))
	for i, c := range cases {
		out[i] = c.Dest
	}
	return out
}

func widthMask(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(w)) - 1
}

// splitEntry moves entry's entire instruction list and its terminator into
// a freshly created block that becomes dispatcher case 0, leaving entry
// itself empty of everything but the stores and loopEntry jump that
// Flatten installs afterward. No instructions are left behind in entry.
func splitEntry(fn *ir.Function, entry *ir.BasicBlock) *ir.BasicBlock {
	tail := fn.NewBasicBlock(fn.Name + ".entry.case0")
	tail.Instrs = entry.Instrs
	tail.Term = entry.Term
	for _, s := range tail.Term.Succs {
		for i, p := range s.Preds {
			if p == entry {
				s.Preds[i] = tail
			}
		}
	}
	tail.Succs = entry.Term.Succs
	entry.Instrs = nil
	entry.Term = nil
	return tail
}

// rewriteTerminator implements spec.md §4.F step 7: rewrite bb's original
// terminator into a state update plus an unconditional jump to loopEnd,
// dispatched on bb's successor count.
func rewriteTerminator(fn *ir.Function, bb *ir.BasicBlock, loopEnd *ir.BasicBlock, caseID map[*ir.BasicBlock]uint64, lastCaseID uint64, stateWidth int, switchVar, switchXorVar *ir.Alloca, src *rng.Source) error {
	term := bb.Term
	if term == nil {
		return fmt.Errorf("flatten: %s: block %s has no terminator", fn.Name, bb.Name)
	}

	switch len(term.Succs) {
	case 0:
		// Return/unreachable: left alone (spec.md §4.F step 7).
		return nil
	case 1:
		succ := term.Succs[0]
		numToCase, ok := caseID[succ]
		if !ok {
			numToCase = lastCaseID
		}
		b := ir.NewBuilderAt(bb, term)
		randomXor := src.GetUint64() & widthMask(stateWidth)
		b.Store(ir.NewConstInt(stateWidth, randomXor^numToCase), switchVar, true, 1)
		b.Store(ir.NewConstInt(stateWidth, randomXor), switchXorVar, true, 1)
		ir.RetargetTo(bb, loopEnd)
		return nil
	case 2:
		succT, succF := term.Succs[0], term.Succs[1]
		numToCaseT, ok := caseID[succT]
		if !ok {
			numToCaseT = lastCaseID
		}
		numToCaseF, ok := caseID[succF]
		if !ok {
			numToCaseF = lastCaseID
		}
		condVal := term.Operands[0]
		b := ir.NewBuilderAt(bb, term)
		randomXor := src.GetUint64() & widthMask(stateWidth)
		xorT := ir.NewConstInt(stateWidth, randomXor^numToCaseT)
		xorF := ir.NewConstInt(stateWidth, randomXor^numToCaseF)
		sel := b.Select(condVal, xorT, xorF)
		b.Store(sel, switchVar, true, 1)
		b.Store(ir.NewConstInt(stateWidth, randomXor), switchXorVar, true, 1)
		ir.RetargetTo(bb, loopEnd)
		return nil
	default:
		// Switches were lowered before this pass ran (spec.md §4.F step 1),
		// so no terminator can reach this pass with more than 2 successors.
		return fmt.Errorf("flatten: %s: block %s has %d successors, switch lowering was not run", fn.Name, bb.Name, len(term.Succs))
	}
}

// demoteEscapingValues implements spec.md §4.F step 8: any SSA value
// defined in one dispatcher case and used in another must be demoted to a
// stack slot, since the cases no longer execute in their original
// control-flow adjacency. This toolkit's IR has no SSA dominance checker,
// so it takes the conservative stance the spec explicitly allows (reg2mem
// is assumed available as a utility): demote every instruction result that
// is used by an instruction outside its own defining block.
func demoteEscapingValues(fn *ir.Function, cases []*ir.BasicBlock) {
	inCase := make(map[*ir.BasicBlock]bool, len(cases))
	for _, bb := range cases {
		inCase[bb] = true
	}

	defBlock := make(map[*ir.Instruction]*ir.BasicBlock)
	for _, bb := range cases {
		for _, in := range bb.Instrs {
			defBlock[in] = bb
		}
	}

	slots := make(map[*ir.Instruction]*ir.Alloca)
	for _, bb := range cases {
		for _, in := range bb.Instrs {
			for _, user := range cases {
				for _, uin := range append(append([]*ir.Instruction{}, user.Instrs...), user.Term) {
					if uin == in || uin == nil {
						continue
					}
					for _, operand := range uin.Operands {
						if operand == ir.Value(in) && defBlock[in] != user {
							ensureSlot(fn, in, slots)
						}
					}
				}
			}
		}
	}

	for def, slot := range slots {
		bb := defBlock[def]
		b := ir.NewBuilderAt(bb, nextAfter(bb, def))
		b.Store(def, slot, true, 1)
	}

	for _, bb := range cases {
		for _, uin := range append(append([]*ir.Instruction{}, bb.Instrs...), bb.Term) {
			if uin == nil {
				continue
			}
			for i, operand := range uin.Operands {
				if in, ok := operand.(*ir.Instruction); ok {
					if slot, ok := slots[in]; ok && defBlock[in] != bb {
						b := ir.NewBuilderAt(bb, uin)
						uin.Operands[i] = b.Load(slot, in.Typ, true, 1)
					}
				}
			}
		}
	}
}

func ensureSlot(fn *ir.Function, def *ir.Instruction, slots map[*ir.Instruction]*ir.Alloca) {
	if _, ok := slots[def]; ok {
		return
	}
	slots[def] = fn.NewAlloca("demoted", def.Typ)
}

// nextAfter returns the instruction immediately following def in bb, or
// bb's terminator if def was the last plain instruction.
func nextAfter(bb *ir.BasicBlock, def *ir.Instruction) *ir.Instruction {
	for i, in := range bb.Instrs {
		if in == def {
			if i+1 < len(bb.Instrs) {
				return bb.Instrs[i+1]
			}
			return bb.Term
		}
	}
	return bb.Term
}
