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

// maxCFDepth is the engine's control-flow nesting limit.
const maxCFDepth = 8

type cfKind uint8

const (
	cfIf cfKind = iota
	cfLoop
	cfWhile
)

func (k cfKind) String() string {
	switch k {
	case cfIf:
		return "if"
	case cfLoop:
		return "loop"
	default:
		return "while"
	}
}

type cfFrame struct {
	kind cfKind
	// branch instruction index for if/loop, first body index for while
	start  int
	immSel uint8
}

// patch is a pending branch-delta write, resolved when the construct
// closes and applied in one pass by Finish.
type patch struct {
	inst   int
	immSel uint8
	delta  int16
}

/*
branchInst lowers a comparison into a standalone branch bundle and returns
its instruction index plus the imm16 field that carries its delta. Branches
never share a bundle; patching stays index-based that way.
*/
func (b *Builder) branchInst(c Cmp, x, y Value, invert bool) (int, uint8) {
	op, inv, swap := c.branch()
	if invert {
		inv = !inv
	}
	if swap {
		x, y = y, x
	}
	b.flush()
	slot := b.emitALU(SrcZero, op, x, y, true, 0, inv)
	b.flush()
	if b.err != nil {
		return -1, 0
	}
	idx := len(b.insts) - 1
	return idx, b.insts[idx].ALU[slot].ImmSel
}

func (b *Builder) pushCF(f cfFrame) {
	if b.cf.Len() >= maxCFDepth {
		b.fail("control-flow stack overflow (max depth %d)", maxCFDepth)
		return
	}
	b.cf.Push(f)
}

func (b *Builder) popCF(kind cfKind) (cfFrame, bool) {
	if b.cf.Empty() {
		b.fail("end-%s without a matching start", kind)
		return cfFrame{}, false
	}
	if f := b.cf.Peek(); f.kind != kind {
		b.fail("end-%s closes an open %s", kind, f.kind)
		return cfFrame{}, false
	}
	return b.cf.Pop(), true
}

// StartIf opens a conditional: the body runs when c(x, y) holds. Must be
// closed by a matching EndIf.
func (b *Builder) StartIf(c Cmp, x, y Value) {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	// skip the body when the condition fails
	idx, sel := b.branchInst(c, x, y, true)
	if b.err != nil {
		return
	}
	b.pushCF(cfFrame{kind: cfIf, start: idx, immSel: sel})
}

func (b *Builder) EndIf() {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	f, ok := b.popCF(cfIf)
	if !ok {
		return
	}
	b.flush()
	b.patches = append(b.patches, patch{f.start, f.immSel, int16(len(b.insts) - f.start)})
}

/*
StartLoop opens a counted loop executing the body count times. A zero
count skips the body entirely. The engine tracks the iteration bounds
itself; EndLoop only closes the region, it emits no back edge.
*/
func (b *Builder) StartLoop(count Value) {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	b.flush()
	slot := b.emitALU(SrcZero, OpLoop, count, Zero(), true, 0, false)
	b.flush()
	if b.err != nil {
		return
	}
	idx := len(b.insts) - 1
	b.pushCF(cfFrame{kind: cfLoop, start: idx, immSel: b.insts[idx].ALU[slot].ImmSel})
}

func (b *Builder) EndLoop() {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	f, ok := b.popCF(cfLoop)
	if !ok {
		return
	}
	b.flush()
	if len(b.insts) == f.start+1 {
		// the loop region must span at least one instruction
		b.appendInst(Inst{})
	}
	b.patches = append(b.patches, patch{f.start, f.immSel, int16(len(b.insts) - f.start)})
}

/*
StartWhile opens a bottom-tested loop; it emits nothing, it only marks the
body start. EndWhile emits the conditional back edge, so the body always
executes at least once even when the condition is false on entry. Callers
rely on the do-while behavior; guard with an If when a zero-trip case
exists.
*/
func (b *Builder) StartWhile() {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	b.flush()
	b.pushCF(cfFrame{kind: cfWhile, start: len(b.insts)})
}

// EndWhile closes a StartWhile, looping back while c(x, y) holds.
func (b *Builder) EndWhile(c Cmp, x, y Value) {
	b.noCopy.Check()
	if b.err != nil {
		return
	}
	f, ok := b.popCF(cfWhile)
	if !ok {
		return
	}
	idx, sel := b.branchInst(c, x, y, false)
	if b.err != nil {
		return
	}
	b.patches = append(b.patches, patch{idx, sel, int16(f.start - idx)})
}

// If runs body emission inside a StartIf/EndIf pair.
func (b *Builder) If(c Cmp, x, y Value, body func()) {
	b.StartIf(c, x, y)
	body()
	b.EndIf()
}

// Loop runs body emission inside a StartLoop/EndLoop pair.
func (b *Builder) Loop(count Value, body func()) {
	b.StartLoop(count)
	body()
	b.EndLoop()
}

// DoWhile runs body emission inside a StartWhile/EndWhile pair.
func (b *Builder) DoWhile(c Cmp, x, y Value, body func()) {
	b.StartWhile()
	body()
	b.EndWhile(c, x, y)
}
