package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandConstantExprsRewritesBitcast(t *testing.T) {
	fn := &Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	ce := &ConstExpr{Op: OpBitcast, Typ: TypeI64, Ops: []Value{NewConstInt(32, 1)}}
	use := &Instruction{Op: OpAdd, Typ: TypeI64, Operands: []Value{ce, NewConstInt(64, 2)}}
	bb.Instrs = append(bb.Instrs, use)
	bb.Term = &Instruction{Op: OpRet}

	n := ExpandConstantExprs(fn)
	require.Equal(t, 1, n)

	require.Len(t, bb.Instrs, 2)
	assert.Equal(t, OpBitcast, bb.Instrs[0].Op)
	assert.Same(t, bb.Instrs[0], use.Operands[0])
}

func TestExpandConstantExprsHandlesNestedExpressions(t *testing.T) {
	fn := &Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	inner := &ConstExpr{Op: OpBitcast, Typ: TypePtr, Ops: []Value{NewConstInt(64, 0)}}
	outer := &ConstExpr{Op: OpGEP, Typ: TypePtr, Ops: []Value{inner, NewConstInt(32, 1)}}
	use := &Instruction{Op: OpLoad, Typ: TypeI32, Operands: []Value{outer}}
	bb.Instrs = append(bb.Instrs, use)
	bb.Term = &Instruction{Op: OpRet}

	n := ExpandConstantExprs(fn)
	require.Equal(t, 1, n)
	require.Len(t, bb.Instrs, 3)
	assert.Equal(t, OpBitcast, bb.Instrs[0].Op)
	assert.Equal(t, OpGEP, bb.Instrs[1].Op)
	assert.Same(t, bb.Instrs[1], use.Operands[0])
}

func TestExpandConstantExprsCachesRepeatedExpression(t *testing.T) {
	fn := &Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	ce := &ConstExpr{Op: OpBitcast, Typ: TypeI64, Ops: []Value{NewConstInt(32, 9)}}
	use1 := &Instruction{Op: OpAdd, Typ: TypeI64, Operands: []Value{ce, NewConstInt(64, 1)}}
	use2 := &Instruction{Op: OpAdd, Typ: TypeI64, Operands: []Value{ce, NewConstInt(64, 2)}}
	bb.Instrs = append(bb.Instrs, use1, use2)
	bb.Term = &Instruction{Op: OpRet}

	n := ExpandConstantExprs(fn)
	assert.Equal(t, 2, n)
	assert.Same(t, use1.Operands[0], use2.Operands[0])
}
