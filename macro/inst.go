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
	"encoding/binary"
	"fmt"
	"strings"

	"goarrg.com/debug"
)

// Source selects where a micro-op reads an operand from.
type Source uint8

const (
	SrcZero Source = 0
	// 1..23 name registers r0..r22.
	SrcImm0    Source = 56
	SrcImm1    Source = 57
	SrcImmPair Source = 58
	SrcLoad0   Source = 59
	SrcLoad1   Source = 60
)

func srcReg(r uint8) Source {
	return Source(r + 1)
}

func (s Source) String() string {
	switch {
	case s == SrcZero:
		return "zero"
	case s >= 1 && s <= NumRegs:
		return fmt.Sprintf("r%d", s-1)
	case s == SrcImm0:
		return "imm0"
	case s == SrcImm1:
		return "imm1"
	case s == SrcImmPair:
		return "immpair"
	case s == SrcLoad0:
		return "load0"
	case s == SrcLoad1:
		return "load1"
	default:
		return fmt.Sprintf("Source(%d)", uint8(s))
	}
}

// Bundle part bits, w0[0:10].
const (
	PartImm0 uint16 = 1 << iota
	PartImm1
	PartLoad0
	PartLoad1
	PartALU0
	PartALU1
	PartMthd0
	PartMthd1
	PartEmit0
	PartEmit1
)

const endNextBit uint32 = 1 << 10

// Intra-bundle execution positions. Packing never places a micro-op at or
// before the position of one already in the bundle.
var (
	loadPos = [2]int8{0, 1}
	aluPos  = [2]int8{2, 3}
	mthdPos = [2]int8{4, 6}
	emitPos = [2]int8{5, 7}

	loadParts = [2]uint16{PartLoad0, PartLoad1}
	aluParts  = [2]uint16{PartALU0, PartALU1}
	mthdParts = [2]uint16{PartMthd0, PartMthd1}
	emitParts = [2]uint16{PartEmit0, PartEmit1}
)

// ALUSlot is one of a bundle's up to two arithmetic micro-ops.
// For branch ops Inv selects branch-if-false and ImmSel names the imm16
// field holding the signed instruction delta; for merge ImmSel names the
// field holding the packed (dstPos, bits, srcPos) control word.
type ALUSlot struct {
	Op     ALUOp
	Dst    Source // SrcZero means discard
	Src    [2]Source
	ImmSel uint8 // 0 none, 1 imm0, 2 imm1
	Inv    bool
}

// MthdSlot selects the hardware method the following emits write to.
// Addr is a method word index (byte address / 4).
type MthdSlot struct {
	Addr  uint16
	Index Source
}

// InstWords is the fixed bundle width in 32-bit words.
const InstWords = 6

// Inst is one decoded instruction bundle.
type Inst struct {
	Parts   uint16
	EndNext bool
	ALU     [2]ALUSlot
	Imm     [2]uint16
	Mthd    [2]MthdSlot
	Emit    [2]Source
}

func encodeALU(a ALUSlot) uint32 {
	w := uint32(a.Op) & 0x3f
	w |= (uint32(a.Dst) & 0x3f) << 6
	w |= (uint32(a.Src[0]) & 0x3f) << 12
	w |= (uint32(a.Src[1]) & 0x3f) << 18
	w |= (uint32(a.ImmSel) & 0x3) << 24
	if a.Inv {
		w |= 1 << 26
	}
	return w
}

func decodeALU(w uint32) ALUSlot {
	return ALUSlot{
		Op:     ALUOp(w & 0x3f),
		Dst:    Source((w >> 6) & 0x3f),
		Src:    [2]Source{Source((w >> 12) & 0x3f), Source((w >> 18) & 0x3f)},
		ImmSel: uint8((w >> 24) & 0x3),
		Inv:    w&(1<<26) != 0,
	}
}

// Encode packs the bundle into its six word wire form.
func (in *Inst) Encode() [InstWords]uint32 {
	var w [InstWords]uint32
	w[0] = uint32(in.Parts) & 0x3ff
	if in.EndNext {
		w[0] |= endNextBit
	}
	w[1] = encodeALU(in.ALU[0])
	w[2] = encodeALU(in.ALU[1])
	w[3] = uint32(in.Imm[0]) | uint32(in.Imm[1])<<16
	for i := 0; i < 2; i++ {
		w[4+i] = uint32(in.Mthd[i].Addr) & 0x3fff
		w[4+i] |= (uint32(in.Mthd[i].Index) & 0x3f) << 14
		w[4+i] |= (uint32(in.Emit[i]) & 0x3f) << 20
	}
	return w
}

// DecodeInst unpacks one bundle from its wire form.
func DecodeInst(w [InstWords]uint32) Inst {
	in := Inst{
		Parts:   uint16(w[0] & 0x3ff),
		EndNext: w[0]&endNextBit != 0,
		ALU:     [2]ALUSlot{decodeALU(w[1]), decodeALU(w[2])},
		Imm:     [2]uint16{uint16(w[3]), uint16(w[3] >> 16)},
	}
	for i := 0; i < 2; i++ {
		in.Mthd[i] = MthdSlot{
			Addr:  uint16(w[4+i] & 0x3fff),
			Index: Source((w[4+i] >> 14) & 0x3f),
		}
		in.Emit[i] = Source((w[4+i] >> 20) & 0x3f)
	}
	return in
}

// EncodeProgram serializes bundles into the little-endian blob the macro
// RAM loader consumes.
func EncodeProgram(insts []Inst) []byte {
	out := make([]byte, 0, len(insts)*InstWords*4)
	for i := range insts {
		w := insts[i].Encode()
		for _, v := range w {
			out = binary.LittleEndian.AppendUint32(out, v)
		}
	}
	return out
}

// DecodeProgram is the inverse of EncodeProgram.
func DecodeProgram(blob []byte) ([]Inst, error) {
	if len(blob) == 0 || len(blob)%(InstWords*4) != 0 {
		return nil, debug.Errorf("macro blob size %d is not a multiple of %d", len(blob), InstWords*4)
	}
	insts := make([]Inst, len(blob)/(InstWords*4))
	for i := range insts {
		var w [InstWords]uint32
		for j := range w {
			w[j] = binary.LittleEndian.Uint32(blob[(i*InstWords+j)*4:])
		}
		insts[i] = DecodeInst(w)
	}
	return insts, nil
}

func (in Inst) String() string {
	var sb strings.Builder
	sep := func() {
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
	}
	for i := 0; i < 2; i++ {
		if in.Parts&loadParts[i] != 0 {
			sep()
			fmt.Fprintf(&sb, "load%d", i)
		}
	}
	for i := 0; i < 2; i++ {
		if in.Parts&aluParts[i] == 0 {
			continue
		}
		sep()
		a := in.ALU[i]
		if a.Inv {
			fmt.Fprintf(&sb, "!%s", a.Op)
		} else {
			sb.WriteString(a.Op.String())
		}
		fmt.Fprintf(&sb, " %s, %s, %s", a.Dst, a.Src[0], a.Src[1])
		if a.ImmSel != 0 {
			fmt.Fprintf(&sb, " [imm%d=0x%X]", a.ImmSel-1, in.Imm[a.ImmSel-1])
		}
	}
	for i := 0; i < 2; i++ {
		if in.Parts&mthdParts[i] != 0 {
			sep()
			fmt.Fprintf(&sb, "mthd 0x%04X[%s]", in.Mthd[i].Addr<<2, in.Mthd[i].Index)
		}
		if in.Parts&emitParts[i] != 0 {
			sep()
			fmt.Fprintf(&sb, "emit %s", in.Emit[i])
		}
	}
	if sb.Len() == 0 {
		sb.WriteString("nop")
	}
	if in.Parts&(PartImm0|PartImm1) != 0 {
		fmt.Fprintf(&sb, " {imm0=0x%04X imm1=0x%04X}", in.Imm[0], in.Imm[1])
	}
	if in.EndNext {
		sb.WriteString(" <end-next>")
	}
	return sb.String()
}
