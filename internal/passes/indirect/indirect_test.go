package indirect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

func TestBuildPlanRejectsEmptyObjectSet(t *testing.T) {
	m := ir.NewModule("M")
	src := rng.NewSource([32]byte{1})
	_, err := BuildPlan(m, "Empty", nil, nil, 1, src)
	assert.Error(t, err)
}

func TestBuildPlanAndRewriteReferenceRoundTrips(t *testing.T) {
	m := ir.NewModule("M")
	src := rng.NewSource([32]byte{2})

	g1 := m.NewGlobal("g1", ir.TypeI32, ir.NewConstInt(32, 1))
	g2 := m.NewGlobal("g2", ir.TypeI32, ir.NewConstInt(32, 2))
	objects := []ir.Value{g1, g2}

	fn := &ir.Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	bb.Term = &ir.Instruction{Op: ir.OpRet}
	m.AddFunction(fn)

	plan, err := BuildPlan(m, "Test", objects, nil, 1, src)
	require.NoError(t, err)
	require.NotNil(t, plan.Module)

	b := ir.NewBuilderAt(bb, bb.Term)
	result, err := RewriteReference(b, m, plan, fn, g1, ir.TypePtr)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.NotEmpty(t, bb.Instrs)
}

func TestBuildPlanWithEnhancedLevel(t *testing.T) {
	m := ir.NewModule("M")
	src := rng.NewSource([32]byte{3})

	g1 := m.NewGlobal("g1", ir.TypeI32, ir.NewConstInt(32, 1))
	objects := []ir.Value{g1}

	fn := &ir.Function{Name: "f"}
	fn.NewBasicBlock("entry")

	plan, err := BuildPlan(m, "Test", objects, map[*ir.Function]int{fn: 2}, 1, src)
	require.NoError(t, err)
	assert.NotNil(t, plan.Enhanced[fn])
}

func TestRewriteOperandUsesReplacesEveryUse(t *testing.T) {
	m := ir.NewModule("M")
	src := rng.NewSource([32]byte{4})

	g1 := m.NewGlobal("g1", ir.TypeI32, ir.NewConstInt(32, 1))
	objects := []ir.Value{g1}

	fn := &ir.Function{Name: "f"}
	bb := fn.NewBasicBlock("entry")
	b := ir.NewBuilderAtEnd(bb)
	load := b.Load(g1, ir.TypeI32, false, 4)
	bb.Term = &ir.Instruction{Op: ir.OpRet, Operands: []ir.Value{load}}
	m.AddFunction(fn)

	plan, err := BuildPlan(m, "Test", objects, nil, 1, src)
	require.NoError(t, err)

	n, err := RewriteOperandUses(m, plan, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, op := range load.Operands {
		assert.NotEqual(t, ir.Value(g1), op)
	}
}

func TestBuildUniformPlanAndRewriteFromValue(t *testing.T) {
	m := ir.NewModule("M")
	src := rng.NewSource([32]byte{5})

	fn := &ir.Function{Name: "f"}
	a := fn.NewBasicBlock("a")
	target := fn.NewBasicBlock("target")
	target.Term = &ir.Instruction{Op: ir.OpRet}
	objects := []ir.Value{&ir.BlockAddress{Block: target}}

	plan, _, err := BuildUniformPlan(m, "Test", objects, 1, 1, src)
	require.NoError(t, err)

	b := ir.NewBuilderAtEnd(a)
	idx := ir.NewConstInt(32, 0)
	result, err := RewriteReferenceFromValue(b, m, plan, idx, ir.TypePtr)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.NotEmpty(t, a.Instrs)
}
