package constenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

func buildFunctionWithConstants() (*ir.Module, *ir.Function) {
	m := ir.NewModule("M")
	fn := &ir.Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	b := ir.NewBuilderAtEnd(bb)
	b.Add(ir.NewConstInt(32, 7), ir.NewConstInt(32, 9))
	bb.Term = &ir.Instruction{Op: ir.OpRet}
	m.AddFunction(fn)
	return m, fn
}

func TestRunIntDisabledIsNoop(t *testing.T) {
	m, _ := buildFunctionWithConstants()
	bundle := config.DefaultConfig()
	src := rng.NewSource([32]byte{1})

	result, err := RunInt(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RewriteCount)
}

func TestRunIntRewritesScalarConstants(t *testing.T) {
	m, _ := buildFunctionWithConstants()
	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagCIE]
	opt.Enable = true
	opt.Level = 2
	bundle.Options[config.TagCIE] = opt
	src := rng.NewSource([32]byte{2})

	result, err := RunInt(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RewriteCount)
	assert.Equal(t, 1, result.FunctionCount)

	add := m.Functions[0].Blocks[0].Instrs[len(m.Functions[0].Blocks[0].Instrs)-1]
	for _, op := range add.Operands {
		_, stillConst := op.(*ir.ConstInt)
		assert.False(t, stillConst)
	}
	assert.Len(t, m.Globals, 2)
}

func TestRunFPRewritesFloatConstants(t *testing.T) {
	m := ir.NewModule("M")
	fn := &ir.Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	b := ir.NewBuilderAtEnd(bb)
	b.Add(&ir.ConstFP{Width: 64, Bits: 0x3ff0000000000000}, &ir.ConstFP{Width: 64, Bits: 0x4000000000000000})
	bb.Term = &ir.Instruction{Op: ir.OpRet}
	m.AddFunction(fn)

	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagCFE]
	opt.Enable = true
	bundle.Options[config.TagCFE] = opt
	src := rng.NewSource([32]byte{3})

	result, err := RunFP(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RewriteCount)
}

func TestRunIntSkipsIneligibleFunctions(t *testing.T) {
	m := ir.NewModule("M")
	fn := &ir.Function{Name: "intrinsic", IsIntrinsic: true}
	bb := fn.NewBasicBlock("entry")
	b := ir.NewBuilderAtEnd(bb)
	b.Add(ir.NewConstInt(32, 1), ir.NewConstInt(32, 2))
	bb.Term = &ir.Instruction{Op: ir.OpRet}
	m.AddFunction(fn)

	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagCIE]
	opt.Enable = true
	bundle.Options[config.TagCIE] = opt
	src := rng.NewSource([32]byte{4})

	result, err := RunInt(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RewriteCount)
}
