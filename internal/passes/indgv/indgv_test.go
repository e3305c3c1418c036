package indgv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

func buildModuleWithGlobal(noObf bool) (*ir.Module, *ir.GlobalVariable, *ir.Instruction) {
	m := ir.NewModule("M")
	g := &ir.GlobalVariable{Name: "g", Typ: ir.TypeI32, Init: ir.NewConstInt(32, 1), NoObf: noObf}
	m.Globals = append(m.Globals, g)

	fn := &ir.Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	b := ir.NewBuilderAtEnd(bb)
	load := b.Load(g, ir.TypeI32, false, 4)
	bb.Term = &ir.Instruction{Op: ir.OpRet, Operands: []ir.Value{load}}
	m.AddFunction(fn)
	return m, g, load
}

func TestRunDisabledIsNoop(t *testing.T) {
	m, _, _ := buildModuleWithGlobal(false)
	bundle := config.DefaultConfig()
	src := rng.NewSource([32]byte{1})

	result, err := Run(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RewriteCount)
}

func TestRunRewritesEligibleGlobalUses(t *testing.T) {
	m, g, load := buildModuleWithGlobal(false)
	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagIndGV]
	opt.Enable = true
	bundle.Options[config.TagIndGV] = opt
	src := rng.NewSource([32]byte{2})

	result, err := Run(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ObjectCount)
	assert.Equal(t, 1, result.RewriteCount)
	assert.NotEqual(t, ir.Value(g), load.Operands[0])
}

func TestRunSkipsNoObfGlobals(t *testing.T) {
	m, _, _ := buildModuleWithGlobal(true)
	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagIndGV]
	opt.Enable = true
	bundle.Options[config.TagIndGV] = opt
	src := rng.NewSource([32]byte{3})

	result, err := Run(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ObjectCount)
}

func TestRunSkipsThreadLocalAndDLLImportGlobals(t *testing.T) {
	m := ir.NewModule("M")
	tl := &ir.GlobalVariable{Name: "tl", Typ: ir.TypeI32, Init: ir.NewConstInt(32, 1), ThreadLocal: true}
	dll := &ir.GlobalVariable{Name: "dll", Typ: ir.TypeI32, Init: ir.NewConstInt(32, 2), DLLImport: true}
	m.Globals = append(m.Globals, tl, dll)

	fn := &ir.Function{Name: "f"}
	fn.NewBasicBlock("entry").Term = &ir.Instruction{Op: ir.OpRet}
	m.AddFunction(fn)

	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagIndGV]
	opt.Enable = true
	bundle.Options[config.TagIndGV] = opt
	src := rng.NewSource([32]byte{4})

	result, err := Run(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ObjectCount)
}

func TestRunExpandsConstantExprsBeforeScanning(t *testing.T) {
	m := ir.NewModule("M")
	g := &ir.GlobalVariable{Name: "g", Typ: ir.TypeI32, Init: ir.NewConstInt(32, 1)}
	m.Globals = append(m.Globals, g)

	fn := &ir.Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	ce := &ir.ConstExpr{Op: ir.OpBitcast, Typ: ir.TypePtr, Ops: []ir.Value{g}}
	use := &ir.Instruction{Op: ir.OpLoad, Typ: ir.TypeI32, Operands: []ir.Value{ce}}
	bb.Instrs = append(bb.Instrs, use)
	bb.Term = &ir.Instruction{Op: ir.OpRet}
	m.AddFunction(fn)

	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagIndGV]
	opt.Enable = true
	bundle.Options[config.TagIndGV] = opt
	src := rng.NewSource([32]byte{5})

	result, err := Run(m, bundle, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RewriteCount)

	var bitcast *ir.Instruction
	for _, in := range bb.Instrs {
		if in.Op == ir.OpBitcast {
			bitcast = in
		}
	}
	require.NotNil(t, bitcast)
	assert.Same(t, bitcast, use.Operands[0])
	assert.NotEqual(t, ir.Value(g), bitcast.Operands[0])
}
