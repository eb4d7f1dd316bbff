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
	"goarrg.com/rhi/mex/internal/container"
	"goarrg.com/rhi/mex/internal/util"
)

// MaxInsts is the macro RAM's per-program instruction capacity, including
// the terminator the Builder appends.
const MaxInsts = 128

/*
Builder assembles one macro program. Emission calls lower to instruction
bundles packed greedily in program order; Finish resolves branch targets and
serializes.

The first contract violation (register exhaustion, unbalanced control flow,
instruction overflow, out of range parameters) makes the Builder sticky:
every later emission is a no-op and Finish returns the recorded BuildError
instead of a truncated program.
*/
type Builder struct {
	noCopy util.NoCopy
	info   DeviceInfo

	// StrictChecks enables validation of preconditions that are normally
	// documented only, currently emit/method pairing. Set it before the
	// first emission call.
	StrictChecks bool

	err     *BuildError
	insts   []Inst
	cur     Inst
	lastPos int8
	regs    regAlloc
	cf      container.Stack[cfFrame]
	patches []patch
	mthds   int
}

// NewBuilder returns a Builder targeting the given device.
func NewBuilder(info DeviceInfo) *Builder {
	switch info.Class {
	case ClassEM100, ClassEM200:
	default:
		abort("NewBuilder: unknown device class %s", info.Class)
	}
	b := &Builder{info: info, lastPos: -1}
	b.noCopy.Init()
	return b
}

// Info returns the device the builder targets, for class gating inside
// build functions.
func (b *Builder) Info() DeviceInfo {
	return b.info
}

// Err returns the sticky build error, if any. Finish reports it too; Err
// exists so long build functions can bail out early.
func (b *Builder) Err() error {
	if b.err == nil {
		return nil
	}
	return b.err
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = buildErrorf(format, args...)
	}
}

func (b *Builder) appendInst(in Inst) {
	// two slots stay reserved for the terminator Finish appends
	if len(b.insts) >= MaxInsts-2 {
		b.fail("instruction buffer overflow (max %d)", MaxInsts)
		return
	}
	b.insts = append(b.insts, in)
}

func (b *Builder) flush() {
	if b.cur.Parts != 0 {
		b.appendInst(b.cur)
		b.cur = Inst{}
	}
	b.lastPos = -1
}

func (b *Builder) freeImmSlots() int {
	n := 0
	if !util.HasBits(b.cur.Parts, PartImm0) {
		n++
	}
	if !util.HasBits(b.cur.Parts, PartImm1) {
		n++
	}
	return n
}

/*
claimSlot reserves a micro-op slot of one family plus room for immNeed
imm16 fields (or both imm fields when needPair), flushing the pending
bundle when it cannot hold them. A micro-op never lands at or before the
intra-bundle position of one already claimed, so bundle contents always
execute in program order.
*/
func (b *Builder) claimSlot(parts [2]uint16, pos [2]int8, immNeed int, needPair bool) int {
	slot := -1
	for i := 0; i < b.info.slotsPerFamily(); i++ {
		if util.HasBits(b.cur.Parts, parts[i]) || pos[i] <= b.lastPos {
			continue
		}
		if needPair {
			if b.cur.Parts&(PartImm0|PartImm1) != 0 {
				break
			}
		} else if b.freeImmSlots() < immNeed {
			break
		}
		slot = i
		break
	}
	if slot < 0 {
		b.flush()
		slot = 0
	}
	b.cur.Parts |= parts[slot]
	b.lastPos = pos[slot]
	return slot
}

func (b *Builder) placeImm(v uint16) Source {
	if !util.HasBits(b.cur.Parts, PartImm0) {
		b.cur.Parts |= PartImm0
		b.cur.Imm[0] = v
		return SrcImm0
	}
	b.cur.Parts |= PartImm1
	b.cur.Imm[1] = v
	return SrcImm1
}

func (b *Builder) placeImmPair(v uint32) Source {
	b.cur.Parts |= PartImm0 | PartImm1
	b.cur.Imm[0] = uint16(v >> 16)
	b.cur.Imm[1] = uint16(v)
	return SrcImmPair
}

func immSelOf(s Source) uint8 {
	if s == SrcImm0 {
		return 1
	}
	return 2
}

func immNeedOf(v Value) (int, bool) {
	if v.kind != valueImm {
		return 0, false
	}
	if v.imm >= 1<<16 {
		return 2, true
	}
	return 1, false
}

func (b *Builder) operandSrc(v Value) Source {
	switch v.kind {
	case valueReg:
		if !b.regs.live(v.reg) {
			b.fail("use of unallocated register r%d", v.reg)
		}
		return srcReg(v.reg)
	case valueImm:
		if v.imm >= 1<<16 {
			return b.placeImmPair(v.imm)
		}
		return b.placeImm(uint16(v.imm))
	default:
		return SrcZero
	}
}

/*
emitALU lowers one arithmetic micro-op. Immediate operands the bundle
cannot hold alongside each other (or alongside the aux imm16) are demoted
to scratch registers via an extra mov first. Returns the claimed ALU slot,
-1 on a sticky error.
*/
func (b *Builder) emitALU(dst Source, op ALUOp, x, y Value, aux bool, auxVal uint16, inv bool) int {
	b.noCopy.Check()
	if b.err != nil {
		return -1
	}
	if !b.info.opSupported(op) {
		b.fail("op %s is not supported on class %s", op, b.info.Class)
		return -1
	}
	var tmps []uint8
	mat := func(v Value) Value {
		t := b.AllocReg()
		if b.err != nil {
			return t
		}
		s := b.claimSlot(aluParts, aluPos, 0, true)
		b.cur.ALU[s] = ALUSlot{Op: OpAdd, Dst: srcReg(t.reg), Src: [2]Source{b.placeImmPair(v.imm), SrcZero}}
		tmps = append(tmps, t.reg)
		return t
	}
	for b.err == nil {
		xw, xp := immNeedOf(x)
		yw, yp := immNeedOf(y)
		switch {
		case aux && xp:
			x = mat(x)
		case aux && yp:
			y = mat(y)
		case aux && xw+yw > 1:
			x = mat(x)
		case xp && yw > 0:
			y = mat(y)
		case yp && xw > 0:
			x = mat(x)
		default:
			goto claim
		}
	}
claim:
	if b.err != nil {
		return -1
	}
	xw, xp := immNeedOf(x)
	yw, yp := immNeedOf(y)
	need := xw + yw
	if aux {
		need++
	}
	slot := b.claimSlot(aluParts, aluPos, need, xp || yp)
	a := ALUSlot{Op: op, Dst: dst, Inv: inv}
	a.Src[0] = b.operandSrc(x)
	a.Src[1] = b.operandSrc(y)
	if aux {
		a.ImmSel = immSelOf(b.placeImm(auxVal))
	}
	b.cur.ALU[slot] = a
	for _, r := range tmps {
		b.regs.free(r)
	}
	return slot
}

// AllocReg reserves the lowest free register. Exhaustion is a sticky build
// error; the returned Value is then the zero source.
func (b *Builder) AllocReg() Value {
	b.noCopy.Check()
	if b.err != nil {
		return Value{}
	}
	r, ok := b.regs.alloc()
	if !ok {
		b.fail("register file exhausted (%d registers)", NumRegs)
		return Value{}
	}
	return Value{kind: valueReg, reg: r}
}

// AllocReg64 reserves two registers as a 64-bit pair.
func (b *Builder) AllocReg64() Value64 {
	return Value64{Lo: b.AllocReg(), Hi: b.AllocReg()}
}

// FreeReg releases a register Value. Freeing the zero source or an
// immediate is a no-op; releasing a register twice is a build error.
func (b *Builder) FreeReg(v Value) {
	b.noCopy.Check()
	if v.kind != valueReg || b.err != nil {
		return
	}
	if !b.regs.free(v.reg) {
		b.fail("double free of r%d", v.reg)
	}
}

func (b *Builder) FreeReg64(v Value64) {
	b.FreeReg(v.Lo)
	b.FreeReg(v.Hi)
}

// ALUTo writes op(x, y) into the caller-supplied register dst.
func (b *Builder) ALUTo(dst Value, op ALUOp, x, y Value) {
	if b.err != nil {
		return
	}
	if dst.kind != valueReg {
		b.fail("ALUTo: destination %s is not a register", dst)
		return
	}
	if op.isBranch() {
		b.fail("ALUTo: %s is a control-flow op", op)
		return
	}
	if !op.hasResult() {
		b.fail("ALUTo: %s does not produce a result", op)
		return
	}
	b.emitALU(srcReg(dst.reg), op, x, y, false, 0, false)
}

// ALU computes op(x, y) into a newly allocated register.
func (b *Builder) ALU(op ALUOp, x, y Value) Value {
	dst := b.AllocReg()
	b.ALUTo(dst, op, x, y)
	return dst
}

func (b *Builder) Mov(x Value) Value     { return b.ALU(OpAdd, x, Zero()) }
func (b *Builder) MovTo(dst, x Value)    { b.ALUTo(dst, OpAdd, x, Zero()) }
func (b *Builder) Add(x, y Value) Value  { return b.ALU(OpAdd, x, y) }
func (b *Builder) AddTo(dst, x, y Value) { b.ALUTo(dst, OpAdd, x, y) }
func (b *Builder) Sub(x, y Value) Value  { return b.ALU(OpSub, x, y) }
func (b *Builder) SubTo(dst, x, y Value) { b.ALUTo(dst, OpSub, x, y) }
func (b *Builder) Clz(x Value) Value     { return b.ALU(OpClz, x, Zero()) }
func (b *Builder) Sll(x, y Value) Value  { return b.ALU(OpSll, x, y) }
func (b *Builder) Srl(x, y Value) Value  { return b.ALU(OpSrl, x, y) }
func (b *Builder) Sra(x, y Value) Value  { return b.ALU(OpSra, x, y) }
func (b *Builder) And(x, y Value) Value  { return b.ALU(OpAnd, x, y) }
func (b *Builder) AndTo(dst, x, y Value) { b.ALUTo(dst, OpAnd, x, y) }
func (b *Builder) Nand(x, y Value) Value { return b.ALU(OpNand, x, y) }
func (b *Builder) Or(x, y Value) Value   { return b.ALU(OpOr, x, y) }
func (b *Builder) OrTo(dst, x, y Value)  { b.ALUTo(dst, OpOr, x, y) }
func (b *Builder) Xor(x, y Value) Value  { return b.ALU(OpXor, x, y) }
func (b *Builder) Slt(x, y Value) Value  { return b.ALU(OpSlt, x, y) }
func (b *Builder) SltU(x, y Value) Value { return b.ALU(OpSltU, x, y) }
func (b *Builder) Sle(x, y Value) Value  { return b.ALU(OpSle, x, y) }
func (b *Builder) SleU(x, y Value) Value { return b.ALU(OpSleU, x, y) }
func (b *Builder) Seq(x, y Value) Value  { return b.ALU(OpSeq, x, y) }

// Mov64 copies both halves into fresh registers.
func (b *Builder) Mov64(x Value64) Value64 {
	return Value64{Lo: b.Mov(x.Lo), Hi: b.Mov(x.Hi)}
}

func (b *Builder) demoteWideImm(v Value) Value {
	if _, pair := immNeedOf(v); !pair {
		return v
	}
	return b.Mov(v)
}

// Add64To computes x + y with carry propagation between the halves.
// dst.Lo must not alias a high half of either operand; the low add would
// clobber it before the high add reads it.
func (b *Builder) Add64To(dst Value64, x, y Value64) {
	if b.err != nil {
		return
	}
	if dst.Lo == x.Hi || dst.Lo == y.Hi {
		b.fail("Add64To: dst.Lo aliases an operand's high half")
		return
	}
	// wide-immediate high halves would demote via a carry-clobbering mov
	// between the two adds, so demote them up front
	x.Hi = b.demoteWideImm(x.Hi)
	y.Hi = b.demoteWideImm(y.Hi)
	b.ALUTo(dst.Lo, OpAdd, x.Lo, y.Lo)
	b.ALUTo(dst.Hi, OpAddC, x.Hi, y.Hi)
}

func (b *Builder) Add64(x, y Value64) Value64 {
	dst := b.AllocReg64()
	b.Add64To(dst, x, y)
	return dst
}

// Sub64To computes x - y with borrow propagation between the halves.
func (b *Builder) Sub64To(dst Value64, x, y Value64) {
	if b.err != nil {
		return
	}
	if dst.Lo == x.Hi || dst.Lo == y.Hi {
		b.fail("Sub64To: dst.Lo aliases an operand's high half")
		return
	}
	x.Hi = b.demoteWideImm(x.Hi)
	y.Hi = b.demoteWideImm(y.Hi)
	b.ALUTo(dst.Lo, OpSub, x.Lo, y.Lo)
	b.ALUTo(dst.Hi, OpSubB, x.Hi, y.Hi)
}

func (b *Builder) Sub64(x, y Value64) Value64 {
	dst := b.AllocReg64()
	b.Sub64To(dst, x, y)
	return dst
}

// IMul computes the signed 32x32 -> 64 product.
func (b *Builder) IMul(x, y Value) Value64 {
	x = b.demoteWideImm(x)
	y = b.demoteWideImm(y)
	return Value64{Lo: b.ALU(OpMul, x, y), Hi: b.ALU(OpMulH, x, y)}
}

// UMul computes the unsigned 32x32 -> 64 product.
func (b *Builder) UMul(x, y Value) Value64 {
	x = b.demoteWideImm(x)
	y = b.demoteWideImm(y)
	return Value64{Lo: b.ALU(OpMulU, x, y), Hi: b.ALU(OpMulUH, x, y)}
}

// MergeTo inserts bits bits of y, read starting at srcPos, into x at
// dstPos, leaving the rest of x intact, and writes the result to dst.
func (b *Builder) MergeTo(dst, x, y Value, dstPos, bits, srcPos uint8) {
	if b.err != nil {
		return
	}
	if dst.kind != valueReg {
		b.fail("MergeTo: destination %s is not a register", dst)
		return
	}
	if bits == 0 || bits >= 32 || dstPos >= 32 || srcPos >= 32 ||
		uint(dstPos)+uint(bits) > 32 || uint(srcPos)+uint(bits) > 32 {
		b.fail("merge field out of range: dstPos=%d bits=%d srcPos=%d", dstPos, bits, srcPos)
		return
	}
	ctrl := uint16(dstPos) | uint16(bits)<<5 | uint16(srcPos)<<10
	b.emitALU(srcReg(dst.reg), OpMerge, x, y, true, ctrl, false)
}

func (b *Builder) Merge(x, y Value, dstPos, bits, srcPos uint8) Value {
	dst := b.AllocReg()
	b.MergeTo(dst, x, y, dstPos, bits, srcPos)
	return dst
}

// State reads the shadowed copy of the hardware method at byte address
// addr, which must be word aligned.
func (b *Builder) State(addr uint16) Value {
	return b.StateArr(addr, Zero())
}

// StateArr reads the shadowed method at addr plus index words.
func (b *Builder) StateArr(addr uint16, index Value) Value {
	if b.err != nil {
		return Value{}
	}
	if addr%4 != 0 {
		b.fail("state address 0x%04X is not word aligned", addr)
		return Value{}
	}
	return b.ALU(OpState, Imm(uint32(addr>>2)), index)
}

// DRead reads data RAM word idx.
func (b *Builder) DRead(idx Value) Value {
	return b.ALU(OpDRead, idx, Zero())
}

// DWrite stores val to data RAM word idx.
func (b *Builder) DWrite(idx, val Value) {
	if b.err != nil {
		return
	}
	b.emitALU(SrcZero, OpDWrite, idx, val, false, 0, false)
}

// LoadTo pulls the next parameter word into the caller-supplied register.
// Each call consumes one word of the invocation's parameter stream; loading
// past the supplied parameters yields stale data, not an error.
func (b *Builder) LoadTo(dst Value) {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	if dst.kind != valueReg {
		b.fail("LoadTo: destination %s is not a register", dst)
		return
	}
	if !b.regs.live(dst.reg) {
		b.fail("use of unallocated register r%d", dst.reg)
		return
	}
	slot := b.claimSlot(loadParts, loadPos, 0, false)
	// the load latch is only addressable within its own bundle; the ALU
	// slot is free here since a load claim lands in a bundle holding at
	// most earlier loads
	as := b.claimSlot(aluParts, aluPos, 0, false)
	b.cur.ALU[as] = ALUSlot{Op: OpAdd, Dst: srcReg(dst.reg), Src: [2]Source{SrcLoad0 + Source(slot), SrcZero}}
}

// Load pulls the next parameter word into a fresh register.
func (b *Builder) Load() Value {
	dst := b.AllocReg()
	b.LoadTo(dst)
	return dst
}

// LoadAddr64 pulls a 64-bit address pushed high word first.
func (b *Builder) LoadAddr64() Value64 {
	hi := b.Load()
	lo := b.Load()
	return Value64{Lo: lo, Hi: hi}
}

// Mthd selects the hardware method, given as a byte address, that
// subsequent Emit calls write to. Emits auto-increment the method.
func (b *Builder) Mthd(addr uint16) {
	b.MthdArr(addr, Zero())
}

// MthdArr selects a method inside an array, addr plus index words.
func (b *Builder) MthdArr(addr uint16, index Value) {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	if addr%4 != 0 {
		b.fail("method address 0x%04X is not word aligned", addr)
		return
	}
	iw, ip := immNeedOf(index)
	if ip {
		index = b.Mov(index)
		iw = 0
	}
	slot := b.claimSlot(mthdParts, mthdPos, iw, false)
	b.cur.Mthd[slot] = MthdSlot{Addr: addr >> 2, Index: b.operandSrc(index)}
	b.mthds++
}

// Emit writes v as the next data word of the most recently selected
// method. Emitting without a method selected produces garbage hardware
// commands; that precondition is only validated under StrictChecks.
func (b *Builder) Emit(v Value) {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	if b.StrictChecks && b.mthds == 0 {
		b.fail("emit before any method select")
		return
	}
	vw, vp := immNeedOf(v)
	slot := b.claimSlot(emitParts, emitPos, vw, vp)
	b.cur.Emit[slot] = b.operandSrc(v)
}

/*
Finish resolves recorded branch patches, appends the terminator and
serializes the program. The control-flow stack must be empty. The Builder
is dead afterwards; further use trips the copy guard.
*/
func (b *Builder) Finish() ([]byte, error) {
	b.noCopy.Check()
	if b.err != nil {
		return nil, b.err
	}
	if !b.cf.Empty() {
		return nil, buildErrorf("unbalanced control flow: %d construct(s) still open", b.cf.Len())
	}
	b.flush()
	if b.err != nil {
		return nil, b.err
	}
	for _, p := range b.patches {
		b.insts[p.inst].Imm[p.immSel-1] = uint16(p.delta)
	}
	// the end-of-program flag marks the *next* instruction as the last
	// one executed, so terminate with a flagged nop plus a trailing nop
	b.insts = append(b.insts, Inst{EndNext: true}, Inst{})
	blob := EncodeProgram(b.insts)
	b.noCopy.Close()
	return blob, nil
}
