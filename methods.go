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

// Engine class method byte addresses. The FIFO carries (method, data) word
// pairs; macros emit to the same address space.
const (
	MthdNop uint16 = 0x0100

	// Report semaphore: program a GPU virtual address and payload, then
	// write the trigger to MthdSemaphoreD to store the payload.
	MthdSemaphoreA uint16 = 0x0110 // address hi
	MthdSemaphoreB uint16 = 0x0114 // address lo
	MthdSemaphoreC uint16 = 0x0118 // payload
	MthdSemaphoreD uint16 = 0x011c // trigger

	// SemRelease written to MthdSemaphoreD stores the 32-bit payload at
	// the programmed address.
	SemRelease uint32 = 0x10000000

	// Macro RAM loader: set the word pointer, then stream instruction
	// words through the auto-advancing data method. The start table maps
	// a macro call slot to its first instruction index.
	MthdMacroInstRAMPointer  uint16 = 0x0120
	MthdMacroInstRAMData     uint16 = 0x0124
	MthdMacroStartRAMPointer uint16 = 0x0128
	MthdMacroStartRAMData    uint16 = 0x012c

	// Shader local memory area.
	MthdLocalMemAddrHi    uint16 = 0x0140
	MthdLocalMemAddrLo    uint16 = 0x0144
	MthdLocalMemSizePerMP uint16 = 0x0148

	// Descriptor tables.
	MthdImageTableAddrHi   uint16 = 0x0150
	MthdImageTableAddrLo   uint16 = 0x0154
	MthdImageTableSize     uint16 = 0x0158
	MthdSamplerTableAddrHi uint16 = 0x0160
	MthdSamplerTableAddrLo uint16 = 0x0164
	MthdSamplerTableSize   uint16 = 0x0168

	// Draw state plus launch trigger.
	MthdDrawBegin         uint16 = 0x0180 // topology
	MthdDrawVertexFirst   uint16 = 0x0184
	MthdDrawVertexCount   uint16 = 0x0188
	MthdDrawInstanceFirst uint16 = 0x018c
	MthdDrawInstanceCount uint16 = 0x0190
	MthdDrawIndexFirst    uint16 = 0x0194
	MthdDrawIndexCount    uint16 = 0x0198
	MthdDrawBaseVertex    uint16 = 0x019c
	MthdDrawEnd           uint16 = 0x01a0

	// Per-layer clears.
	MthdClearLayerID uint16 = 0x01b0
	MthdClearTrigger uint16 = 0x01b4

	// Compute dispatch.
	MthdDispatchGroupsX uint16 = 0x01c0
	MthdDispatchGroupsY uint16 = 0x01c4
	MthdDispatchGroupsZ uint16 = 0x01c8
	MthdDispatchLaunch  uint16 = 0x01cc
)

// NumScratch is the number of shadow scratch registers. Macros keep
// counters there since shadowed state survives across invocations.
const NumScratch = 64

// Scratch register assignments.
const (
	ScratchCSInvocationsLo = 0
	ScratchCSInvocationsHi = 1
	ScratchDrawCount       = 2
)

// MthdScratch returns the method byte address of scratch register i.
func MthdScratch(i int) uint16 {
	if i < 0 || i >= NumScratch {
		abort("scratch register %d out of range", i)
	}
	return uint16(0x0200 + i*4)
}

// MaxMacroSlots is the size of the macro call table.
const MaxMacroSlots = 64

// MthdCallMacro returns the method that invokes macro slot i; the written
// word is the macro's first parameter.
func MthdCallMacro(i int) uint16 {
	if i < 0 || i >= MaxMacroSlots {
		abort("macro slot %d out of range", i)
	}
	return uint16(0x0400 + i*8)
}

// MthdCallMacroData returns the parameter method paired with macro slot i;
// every written word extends the invocation's parameter stream.
func MthdCallMacroData(i int) uint16 {
	return MthdCallMacro(i) + 4
}
