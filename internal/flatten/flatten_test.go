package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

// buildDiamond builds entry -> {left, right} -> join, a minimal function
// with a 2-successor terminator and a 1-successor terminator, enough to
// exercise both branches of rewriteTerminator.
func buildDiamond() *ir.Function {
	fn := &ir.Function{Name: "f"}
	entry := fn.NewBasicBlock("entry")
	left := fn.NewBasicBlock("left")
	right := fn.NewBasicBlock("right")
	join := fn.NewBasicBlock("join")

	cond := ir.NewConstInt(1, 1)
	entry.Term = &ir.Instruction{Op: ir.OpCondBr, Operands: []ir.Value{cond}, Succs: []*ir.BasicBlock{left, right}}
	ir.Link(entry, left, right)

	left.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{join}}
	ir.Link(left, join)
	right.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{join}}
	ir.Link(right, join)

	join.Term = &ir.Instruction{Op: ir.OpRet}
	return fn
}

func TestFlattenSkipsSingleBlockFunctions(t *testing.T) {
	fn := &ir.Function{Name: "leaf"}
	bb := fn.NewBasicBlock("entry")
	bb.Term = &ir.Instruction{Op: ir.OpRet}

	src := rng.NewSource([32]byte{1})
	result, err := Flatten(fn, true, src)
	require.NoError(t, err)
	assert.False(t, result.Flattened)
}

func TestFlattenSkipsFunctionsContainingInvoke(t *testing.T) {
	fn := &ir.Function{Name: "f"}
	a := fn.NewBasicBlock("a")
	b := fn.NewBasicBlock("b")
	a.Term = &ir.Instruction{Op: ir.OpInvoke, Succs: []*ir.BasicBlock{b}}
	ir.Link(a, b)
	b.Term = &ir.Instruction{Op: ir.OpRet}

	src := rng.NewSource([32]byte{2})
	result, err := Flatten(fn, true, src)
	require.NoError(t, err)
	assert.False(t, result.Flattened)
}

func TestFlattenRejectsPreexistingSwitch(t *testing.T) {
	fn := &ir.Function{Name: "f"}
	a := fn.NewBasicBlock("a")
	b := fn.NewBasicBlock("b")
	c := fn.NewBasicBlock("c")
	a.Term = &ir.Instruction{Op: ir.OpSwitch, Cases: []ir.SwitchCase{{Value: 0, Dest: b}, {Value: 1, Dest: c}}, Succs: []*ir.BasicBlock{b, c}}
	ir.Link(a, b, c)
	b.Term = &ir.Instruction{Op: ir.OpRet}
	c.Term = &ir.Instruction{Op: ir.OpRet}

	src := rng.NewSource([32]byte{3})
	_, err := Flatten(fn, true, src)
	assert.Error(t, err)
}

func TestFlattenProducesOneCasePerOriginalBlock(t *testing.T) {
	fn := buildDiamond()
	numOriginalBlocks := len(fn.Blocks)

	src := rng.NewSource([32]byte{4})
	result, err := Flatten(fn, true, src)
	require.NoError(t, err)
	require.True(t, result.Flattened)
	assert.Equal(t, numOriginalBlocks, result.CaseCount)

	entry := fn.Blocks[0]
	require.NotNil(t, entry.Term)
	assert.Equal(t, ir.OpBr, entry.Term.Op)

	var dispatcher *ir.BasicBlock
	for _, bb := range fn.Blocks {
		if bb.Term != nil && bb.Term.Op == ir.OpSwitch {
			dispatcher = bb
		}
	}
	require.NotNil(t, dispatcher, "flattening must install a dispatcher switch")
	assert.GreaterOrEqual(t, len(dispatcher.Term.Cases), 2)
	assert.Len(t, fn.Allocas, 2)
}

func TestFlattenIs32BitWhenUse64False(t *testing.T) {
	fn := buildDiamond()
	src := rng.NewSource([32]byte{5})
	_, err := Flatten(fn, false, src)
	require.NoError(t, err)

	for _, a := range fn.Allocas {
		assert.Equal(t, 32, a.Typ.IntWidth)
	}
}
