package fla

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

func buildDiamondModule() *ir.Module {
	m := ir.NewModule("M")
	fn := &ir.Function{Name: "f"}
	entry := fn.NewBasicBlock("entry")
	left := fn.NewBasicBlock("left")
	right := fn.NewBasicBlock("right")
	join := fn.NewBasicBlock("join")

	entry.Term = &ir.Instruction{Op: ir.OpCondBr, Operands: []ir.Value{ir.NewConstInt(1, 1)}, Succs: []*ir.BasicBlock{left, right}}
	ir.Link(entry, left, right)
	left.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{join}}
	ir.Link(left, join)
	right.Term = &ir.Instruction{Op: ir.OpBr, Succs: []*ir.BasicBlock{join}}
	ir.Link(right, join)
	join.Term = &ir.Instruction{Op: ir.OpRet}

	m.AddFunction(fn)
	return m
}

func TestRunDisabledIsNoop(t *testing.T) {
	m := buildDiamondModule()
	bundle := config.DefaultConfig()
	src := rng.NewSource([32]byte{1})

	result, err := Run(m, bundle, 64, src)
	require.NoError(t, err)
	assert.Equal(t, 0, result.FunctionsFlattened)
}

func TestRunFlattensEligibleFunctions(t *testing.T) {
	m := buildDiamondModule()
	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagFla]
	opt.Enable = true
	bundle.Options[config.TagFla] = opt
	src := rng.NewSource([32]byte{2})

	result, err := Run(m, bundle, 64, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FunctionsFlattened)
	assert.Equal(t, 4, result.TotalCases)
}

func TestRunSkipsAnnotatedFunctions(t *testing.T) {
	m := buildDiamondModule()
	m.Functions[0].Annotations = []string{"-fla"}
	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagFla]
	opt.Enable = true
	bundle.Options[config.TagFla] = opt
	src := rng.NewSource([32]byte{3})

	result, err := Run(m, bundle, 64, src)
	require.NoError(t, err)
	assert.Equal(t, 0, result.FunctionsFlattened)
}
