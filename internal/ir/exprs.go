package ir

// ExpandConstantExprs implements the "expandConstantExpr" IR utility
// (spec.md §4.B "constant-expression expansion", §4.D "Prior to scanning,
// all constant expressions in the function must be expanded to
// instructions so that the scanner sees them as operand constants it can
// replace", §4.E "Global variable": "first expand constant expressions in
// every function"). Every *ConstExpr operand anywhere in fn is rewritten
// into an equivalent chain of ordinary instructions inserted immediately
// before the instruction that used it, and the use is redirected to the
// instruction's result. Returns the number of operands rewritten.
//
// A ConstExpr can itself wrap another ConstExpr (e.g. a GEP over a
// bitcast); expand is recursive so nested expressions are fully lowered
// before the outer one is built.
func ExpandConstantExprs(fn *Function) int {
	count := 0
	cache := make(map[*ConstExpr]Value)
	for _, bb := range fn.Blocks {
		for _, in := range append(append([]*Instruction{}, bb.Instrs...), bb.Term) {
			if in == nil {
				continue
			}
			for i, operand := range in.Operands {
				ce, ok := operand.(*ConstExpr)
				if !ok {
					continue
				}
				b := NewBuilderAt(bb, in)
				in.Operands[i] = expandOne(b, ce, cache)
				count++
			}
		}
	}
	return count
}

func expandOne(b *Builder, ce *ConstExpr, cache map[*ConstExpr]Value) Value {
	if v, ok := cache[ce]; ok {
		return v
	}
	ops := make([]Value, len(ce.Ops))
	for i, o := range ce.Ops {
		if nested, ok := o.(*ConstExpr); ok {
			ops[i] = expandOne(b, nested, cache)
		} else {
			ops[i] = o
		}
	}

	var result Value
	switch ce.Op {
	case OpBitcast:
		result = b.Bitcast(ops[0], ce.Typ)
	case OpGEP:
		result = b.GEP(ops[0], ops[1], ce.Typ)
	default:
		// No other constant-expression opcode is produced by this toolkit's
		// own IR emission; fall back to a bitcast-shaped identity instruction
		// so callers always see an instruction, never a bare constant.
		result = b.Bitcast(ops[0], ce.Typ)
	}
	cache[ce] = result
	return result
}
