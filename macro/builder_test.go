/*
Copyright 2026 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package macro_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goarrg.com/rhi/mex/macro"
)

func em200() macro.DeviceInfo {
	return macro.DeviceInfo{Class: macro.ClassEM200}
}

func TestBuilderSimpleProgram(t *testing.T) {
	b := macro.NewBuilder(em200())
	x := b.Load()
	y := b.Load()
	b.Mthd(0x0200)
	b.Emit(b.Add(x, y))
	blob, err := b.Finish()
	require.NoError(t, err)

	insts, err := macro.DecodeProgram(blob)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(insts), 2)
	// terminator pair: flagged nop plus trailing nop
	assert.True(t, insts[len(insts)-2].EndNext)
	assert.Equal(t, macro.Inst{EndNext: true}, insts[len(insts)-2])
	assert.Equal(t, macro.Inst{}, insts[len(insts)-1])
}

func TestRegisterExhaustion(t *testing.T) {
	b := macro.NewBuilder(em200())
	for i := 0; i < macro.NumRegs; i++ {
		v := b.AllocReg()
		require.True(t, v.IsReg(), "alloc %d", i)
	}
	require.NoError(t, b.Err())

	v := b.AllocReg()
	assert.False(t, v.IsReg())
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})

	_, err := b.Finish()
	assert.ErrorIs(t, err, &macro.BuildError{})
}

func TestRegisterReuseAfterFree(t *testing.T) {
	b := macro.NewBuilder(em200())
	regs := make([]macro.Value, macro.NumRegs)
	for i := range regs {
		regs[i] = b.AllocReg()
	}
	b.FreeReg(regs[5])
	v := b.AllocReg()
	require.True(t, v.IsReg())
	require.NoError(t, b.Err())
}

func TestDoubleFree(t *testing.T) {
	b := macro.NewBuilder(em200())
	v := b.AllocReg()
	b.FreeReg(v)
	require.NoError(t, b.Err())
	b.FreeReg(v)
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
}

func TestUseAfterFree(t *testing.T) {
	b := macro.NewBuilder(em200())
	v := b.AllocReg()
	b.FreeReg(v)
	b.Add(v, macro.Imm(1))
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
}

func TestALUToNonRegisterDestination(t *testing.T) {
	b := macro.NewBuilder(em200())
	b.ALUTo(macro.Imm(1), macro.OpAdd, macro.Zero(), macro.Zero())
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})

	b = macro.NewBuilder(em200())
	b.ALUTo(macro.Zero(), macro.OpAdd, macro.Zero(), macro.Zero())
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
}

func TestUnbalancedControlFlow(t *testing.T) {
	b := macro.NewBuilder(em200())
	x := b.Load()
	b.StartIf(macro.CmpNe, x, macro.Zero())
	_, err := b.Finish()
	assert.ErrorIs(t, err, &macro.BuildError{})

	b = macro.NewBuilder(em200())
	b.EndIf()
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
}

func TestMismatchedControlFlow(t *testing.T) {
	b := macro.NewBuilder(em200())
	x := b.Load()
	b.StartIf(macro.CmpNe, x, macro.Zero())
	b.EndLoop()
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
}

func TestEM100RejectsMultiply(t *testing.T) {
	b := macro.NewBuilder(macro.DeviceInfo{Class: macro.ClassEM100})
	x := b.Load()
	b.UMul(x, x)
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
}

func TestEM100SingleSlotStillBuilds(t *testing.T) {
	b := macro.NewBuilder(macro.DeviceInfo{Class: macro.ClassEM100})
	x := b.Load()
	y := b.Load()
	b.Mthd(0x0200)
	b.Emit(b.Add(x, y))
	_, err := b.Finish()
	assert.NoError(t, err)
}

func TestInstructionOverflow(t *testing.T) {
	b := macro.NewBuilder(em200())
	v := b.AllocReg()
	b.MovTo(v, macro.Zero())
	for i := 0; i < macro.MaxInsts*2; i++ {
		// distinct immediates defeat slot sharing, forcing new bundles
		b.ALUTo(v, macro.OpAdd, v, macro.Imm(uint32(i)<<16|1))
	}
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
	_, err := b.Finish()
	assert.ErrorIs(t, err, &macro.BuildError{})
}

func TestMergeParameterValidation(t *testing.T) {
	tests := []struct {
		name   string
		dstPos uint8
		bits   uint8
		srcPos uint8
	}{
		{"zero width", 0, 0, 0},
		{"width 32", 0, 32, 0},
		{"dst overflow", 24, 16, 0},
		{"src overflow", 0, 16, 24},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := macro.NewBuilder(em200())
			x := b.Load()
			b.Merge(x, x, test.dstPos, test.bits, test.srcPos)
			assert.ErrorIs(t, b.Err(), &macro.BuildError{})
		})
	}
}

func TestStateRequiresWordAlignment(t *testing.T) {
	b := macro.NewBuilder(em200())
	b.State(0x0202)
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})

	b = macro.NewBuilder(em200())
	b.Mthd(0x0202)
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
}

func TestStrictChecksRejectEmitWithoutMethod(t *testing.T) {
	b := macro.NewBuilder(em200())
	b.StrictChecks = true
	b.Emit(macro.Imm(1))
	assert.ErrorIs(t, b.Err(), &macro.BuildError{})
}

func TestBuilderStickyError(t *testing.T) {
	b := macro.NewBuilder(em200())
	b.FreeReg(b.Load())
	b.FreeReg(macro.Value{}) // no-op for non-registers
	require.NoError(t, b.Err())

	b.EndWhile(macro.CmpNe, macro.Zero(), macro.Zero())
	first := b.Err()
	require.Error(t, first)

	// later violations do not replace the first
	b.AllocReg()
	b.EndIf()
	assert.Equal(t, first, b.Err())
}
