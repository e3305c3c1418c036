package pagetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

func sampleObjects(n int) []ir.Value {
	objs := make([]ir.Value, n)
	for i := 0; i < n; i++ {
		objs[i] = ir.NewConstInt(64, uint64(i)) // stand-ins for real objects; identity is pointer identity
	}
	return objs
}

func TestBuildModuleTable_IndexMapBijection(t *testing.T) {
	m := ir.NewModule("test")
	src := rng.NewSource([32]byte{1, 2, 3})
	objs := sampleObjects(10)

	keys := make(map[ir.Value]ObjKey, len(objs))
	for _, o := range objs {
		keys[o] = ObjKey{Low: uint32(src.GetUint64()), High: uint32(src.GetUint64())}
	}

	desc, err := BuildModuleTable(m, "M_IndirectBr", objs, keys, 3, src)
	require.NoError(t, err)
	assert.True(t, desc.IndexMapIsBijection())
	assert.Len(t, desc.Pages, 3)
	assert.NotNil(t, desc.ObjectsGlobal)
	assert.True(t, desc.ObjectsGlobal.NoObf)
	assert.Equal(t, ir.LinkageInternal, desc.ObjectsGlobal.Linkage)
	for _, p := range desc.Pages {
		assert.True(t, p.NoObf)
		assert.Equal(t, ir.LinkageInternal, p.Linkage)
		assert.True(t, m.CompilerUsed.Contains(p.Name))
	}
}

func TestBuildModuleTable_EmptyObjectsIsError(t *testing.T) {
	m := ir.NewModule("test")
	src := rng.NewSource([32]byte{9})
	_, err := BuildModuleTable(m, "M_Empty", nil, map[ir.Value]ObjKey{}, 1, src)
	assert.Error(t, err)
}

func TestBuildEnhancedTable_LevelZeroIsNil(t *testing.T) {
	m := ir.NewModule("test")
	src := rng.NewSource([32]byte{4})
	objs := sampleObjects(4)
	keys := make(map[ir.Value]ObjKey, len(objs))
	for _, o := range objs {
		keys[o] = ObjKey{Low: uint32(src.GetUint64()), High: uint32(src.GetUint64())}
	}
	desc, err := BuildEnhancedTable(m, "MF_IndirectBr", objs, keys, 0, map[ir.Value]int{}, src)
	require.NoError(t, err)
	assert.Nil(t, desc)
}

func TestBuildEnhancedTable_ChainLengthEqualsLevel(t *testing.T) {
	m := ir.NewModule("test")
	src := rng.NewSource([32]byte{5})
	objs := sampleObjects(6)
	moduleKeys := make(map[ir.Value]ObjKey, len(objs))
	fnKeys := make(map[ir.Value]ObjKey, len(objs))
	for _, o := range objs {
		moduleKeys[o] = ObjKey{Low: uint32(src.GetUint64()), High: uint32(src.GetUint64())}
		fnKeys[o] = ObjKey{Low: uint32(src.GetUint64()), High: uint32(src.GetUint64())}
	}
	modDesc, err := BuildModuleTable(m, "M_IndirectBr", objs, moduleKeys, 2, src)
	require.NoError(t, err)

	level := 3
	enhDesc, err := BuildEnhancedTable(m, "MF_IndirectBr", objs, fnKeys, level, modDesc.IndexOf, src)
	require.NoError(t, err)
	require.NotNil(t, enhDesc)
	assert.Len(t, enhDesc.Pages, level)
	assert.Equal(t, 4*level, enhDesc.Rounds)
	assert.Equal(t, 2, enhDesc.BitsPerRound)
	assert.True(t, enhDesc.IndexMapIsBijection())
	assert.Equal(t, ir.LinkagePrivate, enhDesc.ObjectsGlobal.Linkage)
	for _, p := range enhDesc.Pages {
		assert.Equal(t, ir.LinkagePrivate, p.Linkage)
	}
}
