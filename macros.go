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

package mex

import (
	"goarrg.com/debug"
	"goarrg.com/rhi/mex/macro"
)

/*
MacroID is a macro call table slot. The builtin macros occupy the low
slots; Register accepts any slot below MaxMacroSlots so callers can add
their own alongside.
*/
type MacroID uint8

const (
	MacroClearViews MacroID = iota
	MacroDraw
	MacroDrawIndexed
	MacroDrawIndirect
	MacroDrawIndexedIndirect
	MacroDispatchIndirect
	MacroAddCSInvocations
	MacroWriteCSInvocations
	MacroCopyQueries

	macroCount
)

func (id MacroID) String() string {
	names := [macroCount]string{
		"ClearViews",
		"Draw",
		"DrawIndexed",
		"DrawIndirect",
		"DrawIndexedIndirect",
		"DispatchIndirect",
		"AddCSInvocations",
		"WriteCSInvocations",
		"CopyQueries",
	}
	if id < macroCount {
		return names[id]
	}
	return "Macro(" + jsonString(uint8(id)) + ")"
}

// MacroFn records a macro's instructions into b. Parameter words are
// consumed in Load order; the first parameter is the word written to the
// call method itself.
type MacroFn func(b *macro.Builder)

// Registry maps macro slots to their build functions. A queue uploads
// every registered macro to the engine's macro RAM at creation.
type Registry struct {
	builders map[MacroID]MacroFn
}

// NewRegistry returns a registry preloaded with the builtin macros.
func NewRegistry() *Registry {
	return &Registry{builders: map[MacroID]MacroFn{
		MacroClearViews:          buildClearViews,
		MacroDraw:                buildDraw,
		MacroDrawIndexed:         buildDrawIndexed,
		MacroDrawIndirect:        buildDrawIndirect,
		MacroDrawIndexedIndirect: buildDrawIndexedIndirect,
		MacroDispatchIndirect:    buildDispatchIndirect,
		MacroAddCSInvocations:    buildAddCSInvocations,
		MacroWriteCSInvocations:  buildWriteCSInvocations,
		MacroCopyQueries:         buildCopyQueries,
	}}
}

// Register installs fn at slot id, replacing any builtin already there.
func (r *Registry) Register(id MacroID, fn MacroFn) {
	if int(id) >= MaxMacroSlots {
		abort("macro slot %d out of range", id)
	}
	if fn == nil {
		abort("nil builder for macro %s", id)
	}
	r.builders[id] = fn
}

// Build assembles the macro at slot id for the given device.
func (r *Registry) Build(info macro.DeviceInfo, id MacroID) ([]byte, error) {
	fn := r.builders[id]
	if fn == nil {
		return nil, debug.Errorf("no builder registered for macro slot %d", id)
	}
	b := macro.NewBuilder(info)
	fn(b)
	blob, err := b.Finish()
	if err != nil {
		return nil, debug.ErrorWrapf(err, "Failed to build macro %s", id)
	}
	return blob, nil
}

// semStore programs the report semaphore and releases a 32-bit payload at
// a GPU virtual address.
func semStore(b *macro.Builder, addr macro.Value64, payload macro.Value) {
	b.Mthd(MthdSemaphoreA)
	b.Emit(addr.Hi)
	b.Emit(addr.Lo)
	b.Emit(payload)
	b.Emit(macro.Imm(SemRelease))
}

// incrementScratch bumps a shadow scratch counter by delta.
func incrementScratch(b *macro.Builder, idx int, delta macro.Value) {
	v := b.State(MthdScratch(idx))
	b.AddTo(v, v, delta)
	b.Mthd(MthdScratch(idx))
	b.Emit(v)
	b.FreeReg(v)
}

// addCSInvocations adds a 64-bit delta to the shadow invocation counter.
func addCSInvocations(b *macro.Builder, delta macro.Value64) {
	cur := macro.Value64{
		Lo: b.State(MthdScratch(ScratchCSInvocationsLo)),
		Hi: b.State(MthdScratch(ScratchCSInvocationsHi)),
	}
	b.Add64To(cur, cur, delta)
	b.Mthd(MthdScratch(ScratchCSInvocationsLo))
	b.Emit(cur.Lo)
	b.Emit(cur.Hi)
	b.FreeReg64(cur)
}

// Parameters: topology, vertexFirst, vertexCount, instanceFirst,
// instanceCount.
func buildDraw(b *macro.Builder) {
	topology := b.Load()
	vertexFirst := b.Load()
	vertexCount := b.Load()
	instanceFirst := b.Load()
	instanceCount := b.Load()

	b.Mthd(MthdDrawBegin)
	b.Emit(topology)
	b.Emit(vertexFirst)
	b.Emit(vertexCount)
	b.Emit(instanceFirst)
	b.Emit(instanceCount)
	b.Mthd(MthdDrawEnd)
	b.Emit(macro.Zero())

	incrementScratch(b, ScratchDrawCount, macro.Imm(1))
}

// Parameters: topology, indexFirst, indexCount, baseVertex, instanceFirst,
// instanceCount.
func buildDrawIndexed(b *macro.Builder) {
	topology := b.Load()
	indexFirst := b.Load()
	indexCount := b.Load()
	baseVertex := b.Load()
	instanceFirst := b.Load()
	instanceCount := b.Load()

	b.Mthd(MthdDrawBegin)
	b.Emit(topology)
	b.Mthd(MthdDrawIndexFirst)
	b.Emit(indexFirst)
	b.Emit(indexCount)
	b.Emit(baseVertex)
	b.Mthd(MthdDrawInstanceFirst)
	b.Emit(instanceFirst)
	b.Emit(instanceCount)
	b.Mthd(MthdDrawEnd)
	b.Emit(macro.Zero())

	incrementScratch(b, ScratchDrawCount, macro.Imm(1))
}

// Parameters: topology, drawCount, then per draw the four words of a
// VkDrawIndirectCommand: vertexCount, instanceCount, firstVertex,
// firstInstance.
func buildDrawIndirect(b *macro.Builder) {
	topology := b.Load()
	count := b.Load()

	b.Mthd(MthdDrawBegin)
	b.Emit(topology)
	b.Loop(count, func() {
		vertexCount := b.Load()
		instanceCount := b.Load()
		vertexFirst := b.Load()
		instanceFirst := b.Load()

		b.Mthd(MthdDrawVertexFirst)
		b.Emit(vertexFirst)
		b.Emit(vertexCount)
		b.Mthd(MthdDrawInstanceFirst)
		b.Emit(instanceFirst)
		b.Emit(instanceCount)
		b.Mthd(MthdDrawEnd)
		b.Emit(macro.Zero())
		incrementScratch(b, ScratchDrawCount, macro.Imm(1))

		b.FreeReg(vertexCount)
		b.FreeReg(instanceCount)
		b.FreeReg(vertexFirst)
		b.FreeReg(instanceFirst)
	})
}

// Parameters: topology, drawCount, then per draw the five words of a
// VkDrawIndexedIndirectCommand: indexCount, instanceCount, firstIndex,
// vertexOffset, firstInstance.
func buildDrawIndexedIndirect(b *macro.Builder) {
	topology := b.Load()
	count := b.Load()

	b.Mthd(MthdDrawBegin)
	b.Emit(topology)
	b.Loop(count, func() {
		indexCount := b.Load()
		instanceCount := b.Load()
		indexFirst := b.Load()
		baseVertex := b.Load()
		instanceFirst := b.Load()

		b.Mthd(MthdDrawIndexFirst)
		b.Emit(indexFirst)
		b.Emit(indexCount)
		b.Emit(baseVertex)
		b.Mthd(MthdDrawInstanceFirst)
		b.Emit(instanceFirst)
		b.Emit(instanceCount)
		b.Mthd(MthdDrawEnd)
		b.Emit(macro.Zero())
		incrementScratch(b, ScratchDrawCount, macro.Imm(1))

		b.FreeReg(indexCount)
		b.FreeReg(instanceCount)
		b.FreeReg(indexFirst)
		b.FreeReg(baseVertex)
		b.FreeReg(instanceFirst)
	})
}

// Parameters: groupsX, groupsY, groupsZ, threadsPerGroup. The invocation
// statistic needs the multiplier ops and is skipped on devices without
// them; the caller pushes all four parameters either way.
func buildDispatchIndirect(b *macro.Builder) {
	x := b.Load()
	y := b.Load()
	z := b.Load()

	b.Mthd(MthdDispatchGroupsX)
	b.Emit(x)
	b.Emit(y)
	b.Emit(z)
	b.Emit(macro.Zero())

	if b.Info().Class >= macro.ClassEM200 {
		threads := b.Load()
		xy := b.UMul(x, y)
		xyz := b.UMul(xy.Lo, z)
		b.FreeReg64(xy)
		total := b.UMul(xyz.Lo, threads)
		b.FreeReg64(xyz)
		b.FreeReg(threads)
		addCSInvocations(b, total)
		b.FreeReg64(total)
	}
}

// Parameters: deltaLo, deltaHi.
func buildAddCSInvocations(b *macro.Builder) {
	delta := macro.Value64{Lo: b.Load()}
	delta.Hi = b.Load()
	addCSInvocations(b, delta)
	b.FreeReg64(delta)
}

// Parameters: addrHi, addrLo. Stores the 64-bit invocation counter at the
// given GPU virtual address, low word first.
func buildWriteCSInvocations(b *macro.Builder) {
	addr := b.LoadAddr64()
	lo := b.State(MthdScratch(ScratchCSInvocationsLo))
	hi := b.State(MthdScratch(ScratchCSInvocationsHi))
	semStore(b, addr, lo)
	b.Add64To(addr, addr, macro.Imm64(4))
	semStore(b, addr, hi)
}

// Parameters: viewMask. Clears each set layer, lowest bit first.
func buildClearViews(b *macro.Builder) {
	mask := b.Load()
	b.If(macro.CmpNe, mask, macro.Zero(), func() {
		b.DoWhile(macro.CmpNe, mask, macro.Zero(), func() {
			neg := b.Sub(macro.Zero(), mask)
			bit := b.And(mask, neg)
			b.FreeReg(neg)
			clz := b.Clz(bit)
			layer := b.Sub(macro.Imm(31), clz)
			b.FreeReg(clz)

			b.Mthd(MthdClearLayerID)
			b.Emit(layer)
			b.Emit(macro.Zero())

			b.ALUTo(mask, macro.OpXor, mask, bit)
			b.FreeReg(bit)
			b.FreeReg(layer)
		})
	})
}

// Parameters: addrHi, addrLo, first, count. Copies count words of data RAM
// starting at index first to the given GPU virtual address.
func buildCopyQueries(b *macro.Builder) {
	addr := b.LoadAddr64()
	first := b.Load()
	count := b.Load()

	b.Loop(count, func() {
		v := b.DRead(first)
		semStore(b, addr, v)
		b.FreeReg(v)
		b.Add64To(addr, addr, macro.Imm64(4))
		b.AddTo(first, first, macro.Imm(1))
	})
}
