package rtti

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
)

func moduleWithOneDescriptor() *ir.Module {
	m := ir.NewModule("M")
	arr := &ir.ConstDataArray{Bytes: append([]byte(".?AVWidget@@"), 0)}
	cs := &ir.ConstStruct{TypeName: "rtti.TypeDescriptor", Fields: []ir.Value{ir.NewConstInt(32, 0), ir.NewConstInt(32, 0), arr}}
	m.Globals = append(m.Globals, &ir.GlobalVariable{Name: "??_R0?AVWidget@@@8", Typ: ir.TypePtr, Init: cs})
	return m
}

func TestRunDisabledIsNoop(t *testing.T) {
	m := moduleWithOneDescriptor()
	bundle := config.DefaultConfig()

	result, err := Run(m, bundle)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scrambled)
}

func TestRunRequiresNonEmptySeedWhenEnabled(t *testing.T) {
	m := moduleWithOneDescriptor()
	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagRTTI]
	opt.Enable = true
	bundle.Options[config.TagRTTI] = opt

	_, err := Run(m, bundle)
	assert.Error(t, err)
}

func TestRunScramblesWithSeed(t *testing.T) {
	m := moduleWithOneDescriptor()
	bundle := config.DefaultConfig()
	opt := bundle.Options[config.TagRTTI]
	opt.Enable = true
	bundle.Options[config.TagRTTI] = opt
	bundle.RandomSeed = [32]byte{42}

	result, err := Run(m, bundle)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scrambled)
	assert.NotNil(t, m.RTTIContext)
}
