package ir

import "fmt"

// Opcode enumerates the instruction/terminator shapes the passes emit or
// inspect. Most map 1:1 onto the mask-cipher primitives of spec.md §4.C and
// the constant-encryption arithmetic of §4.D.
type Opcode int

const (
	OpLoad Opcode = iota
	OpAlloca
	OpStore
	OpXor
	OpAdd
	OpSub
	OpMul
	OpNeg
	OpNot
	OpShl
	OpLshr
	OpAnd
	OpRotl // funnel-shift-left idiom: rotate-left by dynamic amount
	OpRotr
	OpByteSwap
	OpSelect
	OpGEP
	OpBitcast
	OpICmp
	OpPhi
	OpCall
	OpIndirectCall
	// Terminators
	OpRet
	OpBr
	OpCondBr
	OpIndirectBr
	OpSwitch
	OpUnreachable
	OpInvoke
)

// Instruction is a single IR operation. Terminators are Instructions too,
// reachable via BasicBlock.Term.
type Instruction struct {
	ID       int
	Op       Opcode
	Typ      Type
	Operands []Value
	Name     string
	Volatile bool
	Align    int
	ElemType Type // GEP source element type (spec.md §4.D struct-source skip rule)

	// Terminator-only fields.
	Succs []*BasicBlock // branch targets, in order
	Cases []SwitchCase  // for OpSwitch
}

type SwitchCase struct {
	Value uint64
	Dest  *BasicBlock
}

func (i *Instruction) ValueType() Type { return i.Typ }
func (*Instruction) valueMarker()      {}

// BasicBlock is a straight-line instruction list ending in a terminator.
type BasicBlock struct {
	Name   string
	Func   *Function
	Instrs []*Instruction
	Term   *Instruction

	Preds []*BasicBlock
	Succs []*BasicBlock
}

// NumSuccessors reports how many successors Term has, mirroring the original
// pass's dispatch on 0/1/2 successors (spec.md §4.F step 7).
func (b *BasicBlock) NumSuccessors() int {
	if b.Term == nil {
		return 0
	}
	return len(b.Term.Succs)
}

// Alloca is a function-local stack slot address, the stand-in for the host
// framework's alloca instruction (spec.md §4.F step 5, "two alloca cells
// switchVar and switchXorVar"). Like a GlobalVariable, it is a Value in its
// own right rather than an Instruction's result.
type Alloca struct {
	Name string
	Typ  Type
}

func (a *Alloca) ValueType() Type { return TypePtr }
func (*Alloca) valueMarker()      {}

// Param is a function argument value.
type Param struct {
	Name string
	Typ  Type
}

func (p *Param) ValueType() Type { return p.Typ }
func (*Param) valueMarker()      {}

// Function is a CFG of basic blocks plus the metadata the obfuscation
// decision model and indirection passes need: declaration/linkage status,
// intrinsic-ness, and the raw per-function annotation strings (spec.md
// §4.A).
type Function struct {
	Name          string
	Params        []*Param
	Blocks        []*BasicBlock
	Linkage       Linkage
	IsDeclaration bool
	IsIntrinsic   bool
	Annotations   []string // raw strings from the module's annotation metadata
	Allocas       []*Alloca

	allocaSeq int
}

// NewAlloca allocates and registers a new function-local stack slot.
func (f *Function) NewAlloca(name string, typ Type) *Alloca {
	a := &Alloca{Name: fmt.Sprintf("%s.%d", name, f.allocaSeq), Typ: typ}
	f.allocaSeq++
	f.Allocas = append(f.Allocas, a)
	return a
}

func (f *Function) ValueType() Type { return TypeFunc }
func (*Function) valueMarker()      {}

// ContainsInvoke reports whether any block in f terminates with an invoke,
// the flattener's mandatory skip condition (spec.md §4.F, §7).
func (f *Function) ContainsInvoke() bool {
	for _, b := range f.Blocks {
		if b.Term != nil && b.Term.Op == OpInvoke {
			return true
		}
	}
	return false
}

// Eligible reports whether f may be considered by any obfuscation pass at
// all (spec.md §3 invariant: "every obfuscation is skipped on intrinsic
// functions, declarations, and functions with AvailableExternally linkage").
func (f *Function) Eligible() bool {
	return !f.IsDeclaration && !f.IsIntrinsic && f.Linkage != LinkageAvailableExternally
}

// NewBasicBlock appends and returns a new block owned by f.
func (f *Function) NewBasicBlock(name string) *BasicBlock {
	b := &BasicBlock{Name: name, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Link records b -> succs as both Term.Succs and the Preds/Succs adjacency,
// keeping the two in sync (the host framework would normally derive Preds
// from terminators; this stand-in keeps them explicit for simplicity).
func Link(b *BasicBlock, succs ...*BasicBlock) {
	b.Succs = succs
	for _, s := range succs {
		s.Preds = append(s.Preds, b)
	}
}
