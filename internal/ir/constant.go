package ir

// ConstInt is an arbitrary-width integer constant, stored widened into a
// uint64 and masked to Width bits.
type ConstInt struct {
	Width int
	Val   uint64
}

func NewConstInt(width int, val uint64) *ConstInt {
	return &ConstInt{Width: width, Val: maskWidth(val, width)}
}

func (c *ConstInt) ValueType() Type { return IntType(c.Width) }
func (*ConstInt) valueMarker()      {}

func maskWidth(v uint64, width int) uint64 {
	if width >= 64 {
		return v
	}
	return v & ((uint64(1) << uint(width)) - 1)
}

// ConstFP is a floating-point constant, carried as the raw bit pattern of
// its Width (32 or 64), so the constant encryptor can treat it exactly like
// an integer of the same width (spec.md §4.D operates on the bitcast).
type ConstFP struct {
	Width int
	Bits  uint64
}

func (c *ConstFP) ValueType() Type { return Type{Kind: TFloat, IntWidth: c.Width} }
func (*ConstFP) valueMarker()      {}

// ConstDataArray is a NUL-terminated byte string constant, used for RTTI
// type-descriptor names.
type ConstDataArray struct {
	Bytes []byte
}

func (c *ConstDataArray) ValueType() Type { return Type{Kind: TArray} }
func (*ConstDataArray) valueMarker()      {}

// BlockAddress is the address of a basic block, the object kind registered
// by the indirect-branch pass.
type BlockAddress struct {
	Block *BasicBlock
}

func (b *BlockAddress) ValueType() Type { return TypePtr }
func (*BlockAddress) valueMarker()      {}

// ConstExpr models the handful of constant-expression forms the spec needs
// expanded to instructions before scanning (spec.md §4.D, §4.E "Global
// variable"): it wraps another constant behind an opcode such as a bitcast
// or GEP so that passes can detect "this operand is still a constant
// expression, not yet an instruction."
type ConstExpr struct {
	Op  Opcode
	Typ Type
	Ops []Value
}

func (c *ConstExpr) ValueType() Type { return c.Typ }
func (*ConstExpr) valueMarker()      {}

// ConstPointerArray is the "objects" global of spec.md §4.C step 2: a
// shuffled array of pointers (bit-cast to a uniform pointer type) to the
// real program entities a page table hides.
type ConstPointerArray struct {
	Elems []Value
}

func (c *ConstPointerArray) ValueType() Type { return Type{Kind: TArray} }
func (*ConstPointerArray) valueMarker()      {}

// ConstIntArray is one generated page (spec.md §4.C step 3c): an array of
// 32-bit ciphertext indices.
type ConstIntArray struct {
	Elems []uint32
}

func (c *ConstIntArray) ValueType() Type { return Type{Kind: TArray} }
func (*ConstIntArray) valueMarker()      {}

// ConstStruct is a constant struct initializer, named by TypeName (e.g.
// "rtti.TypeDescriptor" per spec.md §4.H), used to model the host
// framework's typed struct constants closely enough for the RTTI scrambler
// to find and replace one field of a global's initializer.
type ConstStruct struct {
	TypeName string
	Fields   []Value
}

func (c *ConstStruct) ValueType() Type { return Type{Kind: TStruct} }
func (*ConstStruct) valueMarker()      {}
