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

package sim_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goarrg.com/rhi/mex/macro"
	"goarrg.com/rhi/mex/macro/sim"
)

type methodCall struct {
	addr uint16
	data uint32
}

type recordEngine struct {
	shadow map[uint16]uint32
	calls  []methodCall
}

func newRecordEngine() *recordEngine {
	return &recordEngine{shadow: map[uint16]uint32{}}
}

func (e *recordEngine) Method(addr uint16, data uint32) {
	e.calls = append(e.calls, methodCall{addr, data})
	e.shadow[addr] = data
}

func (e *recordEngine) State(addr uint16) uint32 {
	return e.shadow[addr]
}

func runMacro(t *testing.T, params []uint32, build func(*macro.Builder)) (*sim.Simulator, *recordEngine) {
	t.Helper()
	b := macro.NewBuilder(macro.DeviceInfo{Class: macro.ClassEM200})
	build(b)
	blob, err := b.Finish()
	require.NoError(t, err)

	e := newRecordEngine()
	s := sim.New(e)
	require.NoError(t, s.Run(blob, params))
	return s, e
}

func TestAddEndToEnd(t *testing.T) {
	_, e := runMacro(t, []uint32{25, 138}, func(b *macro.Builder) {
		x := b.Load()
		y := b.Load()
		b.Mthd(0x0200)
		b.Emit(b.Add(x, y))
	})
	require.Len(t, e.calls, 1)
	assert.Equal(t, methodCall{0x0200, 163}, e.calls[0])
}

func TestEmitAutoIncrement(t *testing.T) {
	_, e := runMacro(t, nil, func(b *macro.Builder) {
		b.Mthd(0x0200)
		b.Emit(macro.Imm(1))
		b.Emit(macro.Imm(2))
		b.MthdArr(0x0200, macro.Imm(3))
		b.Emit(macro.Imm(4))
	})
	assert.Equal(t, []methodCall{
		{0x0200, 1},
		{0x0204, 2},
		{0x020C, 4},
	}, e.calls)
}

func TestLoopTripCounts(t *testing.T) {
	for _, n := range []uint32{0, 1, 5, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			_, e := runMacro(t, []uint32{n}, func(b *macro.Builder) {
				count := b.Load()
				acc := b.AllocReg()
				b.MovTo(acc, macro.Zero())
				b.Loop(count, func() {
					b.AddTo(acc, acc, macro.Imm(1))
				})
				b.Mthd(0x0200)
				b.Emit(acc)
			})
			require.NotEmpty(t, e.calls)
			assert.Equal(t, methodCall{0x0200, n}, e.calls[len(e.calls)-1])
		})
	}
}

func TestNestedLoops(t *testing.T) {
	_, e := runMacro(t, []uint32{3, 4}, func(b *macro.Builder) {
		outer := b.Load()
		inner := b.Load()
		acc := b.AllocReg()
		b.MovTo(acc, macro.Zero())
		b.Loop(outer, func() {
			b.Loop(inner, func() {
				b.AddTo(acc, acc, macro.Imm(1))
			})
		})
		b.Mthd(0x0200)
		b.Emit(acc)
	})
	assert.Equal(t, methodCall{0x0200, 12}, e.calls[len(e.calls)-1])
}

func TestEmptyLoopBody(t *testing.T) {
	_, e := runMacro(t, []uint32{7}, func(b *macro.Builder) {
		count := b.Load()
		b.Loop(count, func() {})
		b.Mthd(0x0200)
		b.Emit(macro.Imm(1))
	})
	assert.Equal(t, methodCall{0x0200, 1}, e.calls[len(e.calls)-1])
}

func TestDoWhileExecutesAtLeastOnce(t *testing.T) {
	body := func(b *macro.Builder) {
		x := b.Load()
		n := b.AllocReg()
		b.MovTo(n, macro.Zero())
		b.DoWhile(macro.CmpNe, x, macro.Zero(), func() {
			b.AddTo(n, n, macro.Imm(1))
			b.SubTo(x, x, macro.Imm(1))
		})
		b.Mthd(0x0200)
		b.Emit(n)
	}

	// a false condition still runs the body once, x: 0 - 1 wraps
	_, e := runMacro(t, []uint32{0}, body)
	assert.Equal(t, methodCall{0x0200, 1}, e.calls[len(e.calls)-1])

	_, e = runMacro(t, []uint32{4}, body)
	assert.Equal(t, methodCall{0x0200, 4}, e.calls[len(e.calls)-1])
}

func TestIfBranch(t *testing.T) {
	body := func(b *macro.Builder) {
		x := b.Load()
		b.If(macro.CmpEq, x, macro.Imm(5), func() {
			b.Mthd(0x0200)
			b.Emit(macro.Imm(1))
		})
		b.Mthd(0x0204)
		b.Emit(macro.Imm(2))
	}

	_, e := runMacro(t, []uint32{5}, body)
	assert.Equal(t, []methodCall{{0x0200, 1}, {0x0204, 2}}, e.calls)

	_, e = runMacro(t, []uint32{4}, body)
	assert.Equal(t, []methodCall{{0x0204, 2}}, e.calls)
}

func TestIfComparisons(t *testing.T) {
	tests := []struct {
		cmp   macro.Cmp
		x, y  uint32
		taken bool
	}{
		{macro.CmpLt, 0xFFFFFFFF, 1, true},  // signed -1 < 1
		{macro.CmpLtU, 0xFFFFFFFF, 1, false},
		{macro.CmpLe, 7, 7, true},
		{macro.CmpLeU, 8, 7, false},
		{macro.CmpEq, 7, 7, true},
		{macro.CmpNe, 7, 7, false},
		{macro.CmpGe, 1, 0xFFFFFFFF, true},
		{macro.CmpGeU, 1, 0xFFFFFFFF, false},
		{macro.CmpGt, 0, 0xFFFFFFFF, true},
		{macro.CmpGtU, 0xFFFFFFFF, 0, true},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("case=%d", i), func(t *testing.T) {
			_, e := runMacro(t, []uint32{test.x, test.y}, func(b *macro.Builder) {
				x := b.Load()
				y := b.Load()
				b.If(test.cmp, x, y, func() {
					b.Mthd(0x0200)
					b.Emit(macro.Imm(1))
				})
			})
			if test.taken {
				assert.Equal(t, []methodCall{{0x0200, 1}}, e.calls)
			} else {
				assert.Empty(t, e.calls)
			}
		})
	}
}

func TestAdd64Carry(t *testing.T) {
	tests := []struct {
		x, y uint64
	}{
		{0xFFFFFFFF, 1},
		{0xFFFFFFFFFFFFFFFF, 2},
		{0x00000001FFFFFFFF, 0x0000000300000001},
		{0, 0},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("0x%X+0x%X", test.x, test.y), func(t *testing.T) {
			_, e := runMacro(t, nil, func(b *macro.Builder) {
				r := b.Add64(macro.Imm64(test.x), macro.Imm64(test.y))
				b.Mthd(0x0200)
				b.Emit(r.Lo)
				b.Emit(r.Hi)
			})
			want := test.x + test.y
			assert.Equal(t, []methodCall{
				{0x0200, uint32(want)},
				{0x0204, uint32(want >> 32)},
			}, e.calls)
		})
	}
}

func TestSub64Borrow(t *testing.T) {
	tests := []struct {
		x, y uint64
	}{
		{0, 1},
		{0x100000000, 1},
		{0xFFFFFFFF00000000, 0xFFFFFFFF},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("0x%X-0x%X", test.x, test.y), func(t *testing.T) {
			_, e := runMacro(t, nil, func(b *macro.Builder) {
				r := b.Sub64(macro.Imm64(test.x), macro.Imm64(test.y))
				b.Mthd(0x0200)
				b.Emit(r.Lo)
				b.Emit(r.Hi)
			})
			want := test.x - test.y
			assert.Equal(t, []methodCall{
				{0x0200, uint32(want)},
				{0x0204, uint32(want >> 32)},
			}, e.calls)
		})
	}
}

func TestMultiply(t *testing.T) {
	_, e := runMacro(t, []uint32{0xFFFFFFFD, 5}, func(b *macro.Builder) {
		x := b.Load()
		y := b.Load()
		r := b.IMul(x, y) // -3 * 5
		b.Mthd(0x0200)
		b.Emit(r.Lo)
		b.Emit(r.Hi)
		u := b.UMul(x, x)
		b.Mthd(0x0210)
		b.Emit(u.Lo)
		b.Emit(u.Hi)
	})
	assert.Equal(t, []methodCall{
		{0x0200, 0xFFFFFFF1},
		{0x0204, 0xFFFFFFFF},
		{0x0210, 0x00000009}, // 0xFFFFFFFD^2 = 0xFFFFFFFA00000009
		{0x0214, 0xFFFFFFFA},
	}, e.calls)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		x      uint32
		y      uint32
		dstPos uint8
		bits   uint8
		srcPos uint8
		want   uint32
	}{
		{0xFFFFFFFF, 0xABCD1234, 8, 16, 4, 0xFFD123FF},
		{0, 0x80000000, 0, 1, 31, 1},
		{0, 1, 31, 1, 0, 0x80000000},
		{0x12345678, 0, 4, 24, 0, 0x10000008},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("case=%d", i), func(t *testing.T) {
			_, e := runMacro(t, []uint32{test.x, test.y}, func(b *macro.Builder) {
				x := b.Load()
				y := b.Load()
				b.Mthd(0x0200)
				b.Emit(b.Merge(x, y, test.dstPos, test.bits, test.srcPos))
			})
			assert.Equal(t, []methodCall{{0x0200, test.want}}, e.calls)
		})
	}
}

func TestShiftAndClz(t *testing.T) {
	_, e := runMacro(t, []uint32{0x00010000}, func(b *macro.Builder) {
		x := b.Load()
		b.Mthd(0x0200)
		b.Emit(b.Clz(x))
		b.Emit(b.Sll(x, macro.Imm(4)))
		b.Emit(b.Srl(x, macro.Imm(4)))
		b.Emit(b.Sra(macro.Imm(0x80000000), macro.Imm(4)))
	})
	assert.Equal(t, []methodCall{
		{0x0200, 15},
		{0x0204, 0x00100000},
		{0x0208, 0x00001000},
		{0x020C, 0xF8000000},
	}, e.calls)
}

func TestStateRead(t *testing.T) {
	b := macro.NewBuilder(macro.DeviceInfo{Class: macro.ClassEM200})
	v := b.State(0x0204)
	b.Mthd(0x0200)
	b.Emit(v)
	blob, err := b.Finish()
	require.NoError(t, err)

	e := newRecordEngine()
	e.shadow[0x0204] = 77
	s := sim.New(e)
	require.NoError(t, s.Run(blob, nil))
	assert.Equal(t, []methodCall{{0x0200, 77}}, e.calls)
}

func TestDataRAM(t *testing.T) {
	s, e := runMacro(t, []uint32{10, 123}, func(b *macro.Builder) {
		idx := b.Load()
		val := b.Load()
		b.DWrite(idx, val)
		b.Mthd(0x0200)
		b.Emit(b.DRead(idx))
	})
	assert.Equal(t, []methodCall{{0x0200, 123}}, e.calls)
	assert.Equal(t, uint32(123), s.DataRAM[10])
}

func TestDataRAMBounds(t *testing.T) {
	b := macro.NewBuilder(macro.DeviceInfo{Class: macro.ClassEM200})
	b.DWrite(macro.Imm(sim.DataRAMWords), macro.Imm(1))
	blob, err := b.Finish()
	require.NoError(t, err)

	s := sim.New(newRecordEngine())
	assert.Error(t, s.Run(blob, nil))
}

func TestParameterOverrun(t *testing.T) {
	s, e := runMacro(t, []uint32{42}, func(b *macro.Builder) {
		x := b.Load()
		y := b.Load()
		b.Mthd(0x0200)
		b.Emit(x)
		b.Emit(y)
	})
	assert.Equal(t, 1, s.Overruns)
	assert.Equal(t, []methodCall{{0x0200, 42}, {0x0204, 0}}, e.calls)
}

func TestStepLimit(t *testing.T) {
	b := macro.NewBuilder(macro.DeviceInfo{Class: macro.ClassEM200})
	b.DoWhile(macro.CmpEq, macro.Zero(), macro.Zero(), func() {})
	blob, err := b.Finish()
	require.NoError(t, err)

	s := sim.New(newRecordEngine())
	s.MaxSteps = 1000
	assert.Error(t, s.Run(blob, nil))
}
