package ir

// Builder inserts instructions into a basic block at a cursor position,
// standing in for the host framework's IRBuilder (spec.md §1 "out of
// scope"). Every pass in this toolkit emits IR exclusively through a
// Builder so insertion order and operand wiring stay in one place.
type Builder struct {
	bb  *BasicBlock
	pos int // insert before Instrs[pos]; pos == len(Instrs) means "at end, before Term"
	seq *int
}

// NewBuilderAt returns a Builder that inserts immediately before instr in
// its owning block.
func NewBuilderAt(bb *BasicBlock, before *Instruction) *Builder {
	pos := len(bb.Instrs)
	for i, in := range bb.Instrs {
		if in == before {
			pos = i
			break
		}
	}
	seq := 0
	return &Builder{bb: bb, pos: pos, seq: &seq}
}

// NewBuilderAtEnd inserts before the block's terminator.
func NewBuilderAtEnd(bb *BasicBlock) *Builder {
	seq := 0
	return &Builder{bb: bb, pos: len(bb.Instrs), seq: &seq}
}

func (b *Builder) insert(op Opcode, typ Type, operands ...Value) *Instruction {
	instr := &Instruction{ID: *b.seq, Op: op, Typ: typ, Operands: operands}
	*b.seq++
	tail := append([]*Instruction{}, b.bb.Instrs[b.pos:]...)
	b.bb.Instrs = append(b.bb.Instrs[:b.pos], instr)
	b.bb.Instrs = append(b.bb.Instrs, tail...)
	b.pos++
	return instr
}

func (b *Builder) Load(ptr Value, typ Type, volatile bool, align int) *Instruction {
	in := b.insert(OpLoad, typ, ptr)
	in.Volatile = volatile
	in.Align = align
	return in
}

func (b *Builder) Store(val, ptr Value, volatile bool, align int) *Instruction {
	in := b.insert(OpStore, Type{Kind: TStruct}, val, ptr)
	in.Volatile = volatile
	in.Align = align
	return in
}

func (b *Builder) Xor(a, c Value) *Instruction    { return b.insert(OpXor, a.ValueType(), a, c) }
func (b *Builder) Add(a, c Value) *Instruction    { return b.insert(OpAdd, a.ValueType(), a, c) }
func (b *Builder) Sub(a, c Value) *Instruction    { return b.insert(OpSub, a.ValueType(), a, c) }
func (b *Builder) Mul(a, c Value) *Instruction    { return b.insert(OpMul, a.ValueType(), a, c) }
func (b *Builder) And(a, c Value) *Instruction    { return b.insert(OpAnd, a.ValueType(), a, c) }
func (b *Builder) Neg(a Value) *Instruction       { return b.insert(OpNeg, a.ValueType(), a) }
func (b *Builder) Not(a Value) *Instruction       { return b.insert(OpNot, a.ValueType(), a) }
func (b *Builder) ByteSwap(a Value) *Instruction  { return b.insert(OpByteSwap, a.ValueType(), a) }
func (b *Builder) Rotl(a, amt Value) *Instruction { return b.insert(OpRotl, a.ValueType(), a, amt) }
func (b *Builder) Rotr(a, amt Value) *Instruction { return b.insert(OpRotr, a.ValueType(), a, amt) }

func (b *Builder) Select(cond, t, f Value) *Instruction {
	return b.insert(OpSelect, t.ValueType(), cond, t, f)
}

func (b *Builder) GEP(base Value, idx Value, elemTyp Type) *Instruction {
	in := b.insert(OpGEP, TypePtr, base, idx)
	in.ElemType = elemTyp
	return in
}

func (b *Builder) Bitcast(v Value, to Type) *Instruction {
	return b.insert(OpBitcast, to, v)
}

// ICmp emits an integer comparison, typed as a 1-bit result so its output
// can feed a conditional branch or select directly.
func (b *Builder) ICmp(a, c Value) *Instruction {
	return b.insert(OpICmp, Type{Kind: TInt, IntWidth: 1}, a, c)
}

// Alloca allocates a new stack slot owned by b's function (spec.md §4.F
// step 5). Allocas are not themselves instructions in this model (like
// GlobalVariable, they are addresses materialized by the surrounding
// container), so this does not touch the block's instruction list.
func (b *Builder) Alloca(name string, typ Type) *Alloca {
	return b.bb.Func.NewAlloca(name, typ)
}

// RetargetTo rewrites bb's terminator to an unconditional branch to dest,
// used by the flattener (spec.md §4.F step 7).
func RetargetTo(bb *BasicBlock, dest *BasicBlock) {
	bb.Term = &Instruction{Op: OpBr, Succs: []*BasicBlock{dest}}
	Link(bb, dest)
}
