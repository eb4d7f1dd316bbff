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

/*
Package sim executes serialized macro programs in software. It consumes the
same blob the macro RAM loader does plus a parameter stream, and reproduces
the engine's method and memory side effects, so builder output can be
validated without hardware.
*/
package sim

import (
	"math/bits"

	"goarrg.com/debug"
	"goarrg.com/rhi/mex/macro"
)

// Engine receives the side effects of a macro run.
type Engine interface {
	// Method is called for every emitted data word, addr being the
	// hardware method byte address.
	Method(addr uint16, data uint32)
	// State returns the shadowed value of the method at byte address addr.
	State(addr uint16) uint32
}

const (
	// DataRAMWords sizes the engine's scratch data RAM.
	DataRAMWords = 1024

	defaultMaxSteps = 1 << 20
)

/*
Simulator runs macro blobs against an Engine. The zero value is not usable;
call New. A Simulator is not safe for concurrent use. DataRAM persists
across runs the way the hardware's does.
*/
type Simulator struct {
	engine Engine

	// MaxSteps bounds one run so a buggy macro cannot spin forever.
	MaxSteps int

	// DataRAM is the engine scratch memory addressed by dread/dwrite.
	DataRAM [DataRAMWords]uint32

	// Overruns counts parameter loads past the supplied stream; hardware
	// would latch stale data, the simulator latches zero and counts.
	Overruns int
}

func New(engine Engine) *Simulator {
	return &Simulator{engine: engine, MaxSteps: defaultMaxSteps}
}

type loopFrame struct {
	start int
	last  int
	n     uint32
}

type runState struct {
	regs    [macro.NumRegs]uint32
	latch   [2]uint32
	carry   uint32
	curMthd uint32
	params  []uint32
	next    int
	loops   []loopFrame
}

func (s *Simulator) loadParam(st *runState) uint32 {
	if st.next >= len(st.params) {
		s.Overruns++
		return 0
	}
	v := st.params[st.next]
	st.next++
	return v
}

func srcValue(st *runState, in *macro.Inst, s macro.Source) uint32 {
	switch {
	case s >= 1 && s <= macro.NumRegs:
		return st.regs[s-1]
	case s == macro.SrcImm0:
		return uint32(in.Imm[0])
	case s == macro.SrcImm1:
		return uint32(in.Imm[1])
	case s == macro.SrcImmPair:
		return uint32(in.Imm[0])<<16 | uint32(in.Imm[1])
	case s == macro.SrcLoad0:
		return st.latch[0]
	case s == macro.SrcLoad1:
		return st.latch[1]
	default:
		return 0
	}
}

func mergeWord(x, y uint32, ctrl uint16) uint32 {
	dstPos := uint32(ctrl) & 31
	nb := (uint32(ctrl) >> 5) & 31
	srcPos := (uint32(ctrl) >> 10) & 31
	mask := uint32(1)<<nb - 1
	return x&^(mask<<dstPos) | (y>>srcPos&mask)<<dstPos
}

// alu executes one ALU slot. It returns the branch target when the slot
// redirects execution, -1 otherwise.
func (s *Simulator) alu(st *runState, in *macro.Inst, slot int, pc int) (int, error) {
	a := in.ALU[slot]
	x := srcValue(st, in, a.Src[0])
	y := srcValue(st, in, a.Src[1])
	aux := uint16(0)
	if a.ImmSel != 0 {
		aux = in.Imm[a.ImmSel-1]
	}

	var r uint32
	switch a.Op {
	case macro.OpAdd:
		t := uint64(x) + uint64(y)
		r, st.carry = uint32(t), uint32(t>>32)
	case macro.OpAddC:
		t := uint64(x) + uint64(y) + uint64(st.carry)
		r, st.carry = uint32(t), uint32(t>>32)
	case macro.OpSub:
		r = x - y
		st.carry = boolWord(x < y)
	case macro.OpSubB:
		b := st.carry
		r = x - y - b
		st.carry = boolWord(uint64(x) < uint64(y)+uint64(b))
	case macro.OpMul:
		r = uint32(int64(int32(x)) * int64(int32(y)))
	case macro.OpMulH:
		r = uint32(uint64(int64(int32(x))*int64(int32(y))) >> 32)
	case macro.OpMulU:
		r = uint32(uint64(x) * uint64(y))
	case macro.OpMulUH:
		r = uint32(uint64(x) * uint64(y) >> 32)
	case macro.OpClz:
		r = uint32(bits.LeadingZeros32(x))
	case macro.OpSll:
		r = x << (y & 31)
	case macro.OpSrl:
		r = x >> (y & 31)
	case macro.OpSra:
		r = uint32(int32(x) >> (y & 31))
	case macro.OpAnd:
		r = x & y
	case macro.OpNand:
		r = ^(x & y)
	case macro.OpOr:
		r = x | y
	case macro.OpXor:
		r = x ^ y
	case macro.OpMerge:
		r = mergeWord(x, y, aux)
	case macro.OpSlt:
		r = boolWord(int32(x) < int32(y))
	case macro.OpSltU:
		r = boolWord(x < y)
	case macro.OpSle:
		r = boolWord(int32(x) <= int32(y))
	case macro.OpSleU:
		r = boolWord(x <= y)
	case macro.OpSeq:
		r = boolWord(x == y)
	case macro.OpState:
		r = s.engine.State(uint16(x+y) << 2)
	case macro.OpDRead:
		idx := x + y
		if idx >= DataRAMWords {
			return -1, debug.Errorf("pc %d: dread index %d out of range", pc, idx)
		}
		r = s.DataRAM[idx]
	case macro.OpDWrite:
		if x >= DataRAMWords {
			return -1, debug.Errorf("pc %d: dwrite index %d out of range", pc, x)
		}
		s.DataRAM[x] = y
		return -1, nil
	case macro.OpBlt, macro.OpBltU, macro.OpBle, macro.OpBleU, macro.OpBeq:
		var cond bool
		switch a.Op {
		case macro.OpBlt:
			cond = int32(x) < int32(y)
		case macro.OpBltU:
			cond = x < y
		case macro.OpBle:
			cond = int32(x) <= int32(y)
		case macro.OpBleU:
			cond = x <= y
		case macro.OpBeq:
			cond = x == y
		}
		if cond != a.Inv {
			return pc + int(int16(aux)), nil
		}
		return -1, nil
	case macro.OpLoop:
		delta := int(int16(aux))
		if x == 0 {
			return pc + delta, nil
		}
		st.loops = append(st.loops, loopFrame{start: pc + 1, last: pc + delta - 1, n: x})
		return -1, nil
	default:
		return -1, debug.Errorf("pc %d: unknown op %d", pc, uint8(a.Op))
	}

	if a.Dst >= 1 && a.Dst <= macro.NumRegs {
		st.regs[a.Dst-1] = r
	}
	return -1, nil
}

// Run executes blob against params until the end-of-program marker.
func (s *Simulator) Run(blob []byte, params []uint32) error {
	insts, err := macro.DecodeProgram(blob)
	if err != nil {
		return debug.ErrorWrapf(err, "invalid macro blob")
	}
	st := runState{params: params}
	pc, steps := 0, 0
	end := false

	for {
		if pc < 0 || pc >= len(insts) {
			return debug.Errorf("pc %d escapes the program (%d instructions)", pc, len(insts))
		}
		if steps++; steps > s.MaxSteps {
			return debug.Errorf("step limit %d exceeded", s.MaxSteps)
		}
		in := &insts[pc]
		next := pc + 1

		// micro-ops run in their fixed intra-bundle order
		if in.Parts&macro.PartLoad0 != 0 {
			st.latch[0] = s.loadParam(&st)
		}
		if in.Parts&macro.PartLoad1 != 0 {
			st.latch[1] = s.loadParam(&st)
		}
		for slot := 0; slot < 2; slot++ {
			aluPart := macro.PartALU0 << slot
			if in.Parts&aluPart != 0 {
				target, err := s.alu(&st, in, slot, pc)
				if err != nil {
					return err
				}
				if target >= 0 {
					next = target
				}
			}
		}
		for slot := 0; slot < 2; slot++ {
			if in.Parts&(macro.PartMthd0<<slot) != 0 {
				m := in.Mthd[slot]
				st.curMthd = uint32(m.Addr) + srcValue(&st, in, m.Index)
			}
			if in.Parts&(macro.PartEmit0<<slot) != 0 {
				s.engine.Method(uint16(st.curMthd)<<2, srcValue(&st, in, in.Emit[slot]))
				st.curMthd++
			}
		}

		// loop regions close when execution crosses their final
		// instruction; nested regions may share it
		for len(st.loops) > 0 {
			top := &st.loops[len(st.loops)-1]
			if next <= top.last {
				break
			}
			if top.n--; top.n > 0 {
				next = top.start
				break
			}
			st.loops = st.loops[:len(st.loops)-1]
		}

		if end {
			return nil
		}
		end = in.EndNext
		pc = next
	}
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
