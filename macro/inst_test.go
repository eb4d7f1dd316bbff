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

package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstEncodeDecode(t *testing.T) {
	tests := []Inst{
		{},
		{EndNext: true},
		{
			Parts: PartALU0 | PartImm0,
			ALU: [2]ALUSlot{
				{Op: OpAdd, Dst: srcReg(3), Src: [2]Source{srcReg(0), SrcImm0}},
			},
			Imm: [2]uint16{0xBEEF, 0},
		},
		{
			Parts: PartALU0 | PartALU1 | PartImm0 | PartImm1,
			ALU: [2]ALUSlot{
				{Op: OpMerge, Dst: srcReg(1), Src: [2]Source{srcReg(1), srcReg(2)}, ImmSel: 1},
				{Op: OpBlt, Src: [2]Source{srcReg(4), SrcZero}, ImmSel: 2, Inv: true},
			},
			Imm: [2]uint16{0x0123, 0xFFF8},
		},
		{
			Parts: PartLoad0 | PartLoad1 | PartALU0 | PartMthd0 | PartEmit0 | PartMthd1 | PartEmit1,
			ALU: [2]ALUSlot{
				{Op: OpAdd, Dst: srcReg(0), Src: [2]Source{SrcLoad0, SrcLoad1}},
			},
			Mthd: [2]MthdSlot{
				{Addr: 0x0180 >> 2, Index: SrcZero},
				{Addr: 0x01A0 >> 2, Index: srcReg(5)},
			},
			Emit: [2]Source{srcReg(0), SrcZero},
		},
	}
	for i, in := range tests {
		got := DecodeInst(in.Encode())
		assert.Equal(t, in, got, "bundle %d", i)
	}
}

func TestEncodeProgramRoundTrip(t *testing.T) {
	insts := []Inst{
		{Parts: PartALU0 | PartImm0, ALU: [2]ALUSlot{{Op: OpAdd, Dst: srcReg(0), Src: [2]Source{SrcImm0, SrcZero}}}, Imm: [2]uint16{42, 0}},
		{EndNext: true},
		{},
	}
	blob := EncodeProgram(insts)
	require.Len(t, blob, len(insts)*InstWords*4)

	got, err := DecodeProgram(blob)
	require.NoError(t, err)
	assert.Equal(t, insts, got)
}

func TestDecodeProgramBadLength(t *testing.T) {
	_, err := DecodeProgram(make([]byte, InstWords*4-1))
	assert.Error(t, err)
	_, err = DecodeProgram(nil)
	assert.Error(t, err)
}

func TestImmPairEncoding(t *testing.T) {
	in := Inst{
		Parts: PartALU0 | PartImm0 | PartImm1,
		ALU:   [2]ALUSlot{{Op: OpAdd, Dst: srcReg(2), Src: [2]Source{SrcImmPair, SrcZero}}},
		Imm:   [2]uint16{0xDEAD, 0xBEEF},
	}
	got := DecodeInst(in.Encode())
	require.Equal(t, in, got)

	// imm0 occupies the low half of the immediate word
	w := in.Encode()
	assert.Equal(t, uint32(0xDEAD)|uint32(0xBEEF)<<16, w[3])
}
