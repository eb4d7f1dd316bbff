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
Package soft is an in-process software channel: it executes submitted
FIFO streams immediately, including macro RAM loads and macro calls,
against a shadow copy of the engine state. It exists so the submission
path can run without a GPU.
*/
package soft

import (
	"sync"

	"goarrg.com/debug"
	"goarrg.com/rhi/mex"
	"goarrg.com/rhi/mex/macro"
	"goarrg.com/rhi/mex/macro/sim"
)

var instance = struct {
	logger *debug.Logger
}{
	logger: debug.NewLogger("mex", "soft"),
}

func abort(fmt string, args ...any) {
	instance.logger.EPrintf(fmt, args...)
	panic("Fatal Error")
}

type allocation struct {
	addr    uint64
	size    uint64
	backing []uint32
}

/*
Channel implements mex.Channel entirely on the CPU. Execution is
synchronous: Submit returns after every method of every push segment has
been applied, so WaitIdle is a no-op.
*/
type Channel struct {
	mutex      sync.Mutex
	info       mex.DeviceInfo
	lost       bool
	nextHandle uint32
	nextAddr   uint64
	allocs     map[uint32]*allocation

	shadow   map[uint16]uint32
	macroRAM [mex.MacroRAMWords]uint32
	starts   [mex.MaxMacroSlots]uint32
	ramPtr   int
	startPtr int

	sim *sim.Simulator

	// macro invocation being accumulated off the FIFO
	macroPending bool
	macroSlot    int
	macroParams  []uint32
}

var _ mex.Channel = (*Channel)(nil)

func New(info mex.DeviceInfo) *Channel {
	if info.MPCount <= 0 {
		abort("MPCount %d must be positive", info.MPCount)
	}
	c := &Channel{
		info:       info,
		nextHandle: 1,
		nextAddr:   1 << 20,
		allocs:     map[uint32]*allocation{},
		shadow:     map[uint16]uint32{},
	}
	c.sim = sim.New(engine{c})
	return c
}

func (c *Channel) Info() mex.DeviceInfo {
	return c.info
}

func (c *Channel) NewBuffer(size uint64, domain mex.Domain) (*mex.BufferObject, error) {
	if size == 0 || size%4 != 0 {
		return nil, debug.Errorf("buffer size 0x%X is not a positive word multiple", size)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// 40-bit virtual address space, the allocator never reuses ranges
	if c.nextAddr+size > 1<<40 {
		return nil, mex.ErrorOutOfDeviceMemory{}
	}
	handle := c.nextHandle
	c.nextHandle++
	addr := c.nextAddr
	c.nextAddr += (size + 0xfff) &^ uint64(0xfff)

	a := &allocation{addr: addr, size: size, backing: make([]uint32, size/4)}
	c.allocs[handle] = a

	// only gart placements get a cpu mapping, vram stays device-private
	var words []uint32
	if domain.HasBits(mex.DomainGART) {
		words = a.backing
	}
	return mex.NewBufferObject(handle, size, addr, domain, words, func(*mex.BufferObject) {
		c.mutex.Lock()
		delete(c.allocs, handle)
		c.mutex.Unlock()
	}), nil
}

func (c *Channel) Submit(req *mex.SubmitRequest) error {
	if err := req.Validate(); err != nil {
		return debug.ErrorWrapf(err, "Invalid submit request")
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// a channel that faulted is dead, nothing executes on it again
	if c.lost {
		return mex.ErrorChannelLost{}
	}
	for i, p := range req.Pushes {
		a := c.allocs[req.Buffers[p.Buffer].BO.Handle()]
		if a == nil {
			c.lost = true
			return debug.Errorf("push segment %d references an unknown buffer", i)
		}
		if err := c.runPush(a.backing[p.Offset/4 : (p.Offset+p.Length)/4]); err != nil {
			c.lost = true
			return debug.ErrorWrapf(err, "push segment %d", i)
		}
	}
	c.flushMacro()
	return nil
}

func (c *Channel) WaitIdle() error {
	return nil
}

// DataRAM exposes the engine data RAM so tests can seed and inspect query
// results.
func (c *Channel) DataRAM() *[sim.DataRAMWords]uint32 {
	return &c.sim.DataRAM
}

// ShadowState returns the shadow copy of the method at the given byte
// address.
func (c *Channel) ShadowState(addr uint16) uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.shadow[addr]
}

const (
	fifoTypeMask   uint32 = 0xe0000000
	fifoCountShift        = 16
	fifoCountMask  uint32 = 0x1fff
	fifoMthdMask   uint32 = 0x1fff
)

func (c *Channel) runPush(words []uint32) error {
	for i := 0; i < len(words); {
		hdr := words[i]
		mthd := uint16(hdr&fifoMthdMask) << 2
		count := int(hdr >> fifoCountShift & fifoCountMask)
		switch hdr & fifoTypeMask {
		case mex.FifoHdrImmd:
			c.method(mthd, uint32(count))
			i++
		case mex.FifoHdrInc, mex.FifoHdrNonInc, mex.FifoHdrOneInc:
			if count == 0 || i+1+count > len(words) {
				return debug.Errorf("word %d: malformed method run", i)
			}
			for j := 0; j < count; j++ {
				c.method(mthd, words[i+1+j])
				switch {
				case hdr&fifoTypeMask == mex.FifoHdrInc,
					hdr&fifoTypeMask == mex.FifoHdrOneInc && j == 0:
					mthd += 4
				}
			}
			i += 1 + count
		default:
			return debug.Errorf("word %d: unknown header type 0x%08X", i, hdr&fifoTypeMask)
		}
	}
	return nil
}

/*
method routes one FIFO (method, data) pair. Writes to a macro call slot
accumulate an invocation's parameter stream; the invocation executes when
the stream provably ended, at the next unrelated method or the end of the
submission.
*/
func (c *Channel) method(mthd uint16, data uint32) {
	if mthd >= mex.MthdCallMacro(0) && mthd < mex.MthdCallMacro(mex.MaxMacroSlots-1)+8 {
		slot := int(mthd-mex.MthdCallMacro(0)) / 8
		if mthd%8 == 0 {
			// call method, starts a fresh invocation
			c.flushMacro()
			c.macroPending = true
			c.macroSlot = slot
			c.macroParams = append(c.macroParams[:0], data)
			return
		}
		if !c.macroPending || c.macroSlot != slot {
			abort("parameter write to macro slot %d without a call", slot)
		}
		c.macroParams = append(c.macroParams, data)
		return
	}
	c.flushMacro()
	c.apply(mthd, data)
}

// apply executes one method against the shadow state.
func (c *Channel) apply(mthd uint16, data uint32) {
	switch mthd {
	case mex.MthdMacroInstRAMPointer:
		c.ramPtr = int(data)
	case mex.MthdMacroInstRAMData:
		if c.ramPtr >= len(c.macroRAM) {
			abort("macro instruction ram overflow at word %d", c.ramPtr)
		}
		c.macroRAM[c.ramPtr] = data
		c.ramPtr++
	case mex.MthdMacroStartRAMPointer:
		c.startPtr = int(data)
	case mex.MthdMacroStartRAMData:
		if c.startPtr >= len(c.starts) {
			abort("macro start ram overflow at slot %d", c.startPtr)
		}
		c.starts[c.startPtr] = data
	case mex.MthdSemaphoreD:
		c.shadow[mthd] = data
		if data == mex.SemRelease {
			va := uint64(c.shadow[mex.MthdSemaphoreA])<<32 | uint64(c.shadow[mex.MthdSemaphoreB])
			c.writeWord(va, c.shadow[mex.MthdSemaphoreC])
		}
	default:
		c.shadow[mthd] = data
	}
}

func (c *Channel) writeWord(va uint64, v uint32) {
	for _, a := range c.allocs {
		if va >= a.addr && va+4 <= a.addr+a.size {
			a.backing[(va-a.addr)/4] = v
			return
		}
	}
	abort("semaphore release to unmapped address 0x%X", va)
}

func (c *Channel) flushMacro() {
	if !c.macroPending {
		return
	}
	c.macroPending = false

	start := int(c.starts[c.macroSlot])
	if start >= len(c.macroRAM) || start%macro.InstWords != 0 {
		abort("macro slot %d start %d is not a valid instruction boundary", c.macroSlot, start)
	}
	blob := make([]byte, 0, (len(c.macroRAM)-start)*4)
	for _, w := range c.macroRAM[start:] {
		blob = append(blob, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	if err := c.sim.Run(blob, c.macroParams); err != nil {
		abort("macro slot %d: %s", c.macroSlot, err)
	}
	if c.sim.Overruns > 0 {
		instance.logger.WPrintf("macro slot %d read %d words past its parameters", c.macroSlot, c.sim.Overruns)
		c.sim.Overruns = 0
	}
}

// engine adapts the channel to the macro simulator: emitted methods feed
// back into the shadow state, reads come out of it.
type engine struct {
	c *Channel
}

var _ sim.Engine = engine{}

func (e engine) Method(addr uint16, data uint32) {
	e.c.apply(addr, data)
}

func (e engine) State(addr uint16) uint32 {
	return e.c.shadow[addr]
}
