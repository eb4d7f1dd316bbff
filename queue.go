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
	"encoding/binary"

	"goarrg.com/debug"
	"goarrg.com/rhi/mex/internal/util"
)

// MacroRAMWords is the engine's macro instruction RAM capacity.
const MacroRAMWords = 6 * 1024

// queueState caches the device state the queue last bound, so the state
// setup stream is only rebuilt when a table grew or the slm area moved.
type queueState struct {
	imagesBO      *BufferObject
	imagesGen     uint32
	imagesCount   int
	samplersBO    *BufferObject
	samplersGen   uint32
	samplersCount int
	slmBO         *BufferObject
	slmPerMP      uint64
}

/*
Queue is a submission stream over the device's channel. Creating one
uploads the device's macro registry to the engine's macro RAM; every
Submit prepends the state setup stream binding the current descriptor
tables and shader local memory area.
*/
type Queue struct {
	noCopy    noCopy
	dev       *Device
	state     queueState
	statePush Push
}

// macroUploadPush assembles the stream loading every registered macro into
// instruction RAM and pointing its call slot at it.
func (d *Device) macroUploadPush() (*Push, error) {
	p := &Push{}
	pos := 0
	err := mapRunFuncSorted(d.macros.builders, func(id MacroID, _ MacroFn) error {
		blob, err := d.blobCache.createOrRetrieveBlob(d.macros, d.info.Chip, id)
		if err != nil {
			return err
		}
		words := make([]uint32, 0, 1+len(blob)/4)
		words = append(words, uint32(pos))
		for i := 0; i < len(blob); i += 4 {
			words = append(words, binary.LittleEndian.Uint32(blob[i:]))
		}
		if pos+len(words)-1 > MacroRAMWords {
			return debug.Errorf("macro ram overflow uploading macro %s at word %d", id, pos)
		}
		p.OneInc(MthdMacroInstRAMPointer, words...)
		p.Inc(MthdMacroStartRAMPointer, uint32(id), uint32(pos))
		pos += len(words) - 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewQueue creates a queue and uploads the macro registry through it.
func (d *Device) NewQueue() (*Queue, error) {
	d.noCopy.check()
	q := &Queue{dev: d}
	q.noCopy.init()

	up, err := d.macroUploadPush()
	if err != nil {
		q.noCopy.close()
		return nil, debug.ErrorWrapf(err, "Failed to build macro upload stream")
	}
	if err := q.submit(up.Words(), nil); err != nil {
		q.noCopy.close()
		return nil, debug.ErrorWrapf(err, "Failed to upload macros")
	}
	return q, nil
}

// refreshState re-binds grown tables, called with the device mutex held.
func (q *Queue) refreshState() {
	d := q.dev
	st := &q.state
	dirty := false

	if st.imagesBO == nil || st.imagesGen != d.images.generation() {
		bo, gen, count := d.images.getRef()
		if st.imagesBO != nil {
			st.imagesBO.Release()
		}
		st.imagesBO, st.imagesGen, st.imagesCount = bo, gen, count
		dirty = true
	}
	if st.samplersBO == nil || st.samplersGen != d.samplers.generation() {
		bo, gen, count := d.samplers.getRef()
		if st.samplersBO != nil {
			st.samplersBO.Release()
		}
		st.samplersBO, st.samplersGen, st.samplersCount = bo, gen, count
		dirty = true
	}
	if perMP := d.slm.bytesPerMP.Load(); st.slmPerMP != perMP {
		bo, _, perMP := d.slm.getRef()
		if st.slmBO != nil {
			st.slmBO.Release()
		}
		st.slmBO, st.slmPerMP = bo, perMP
		dirty = true
	}

	if !dirty {
		return
	}
	q.statePush.Reset()
	addr := st.imagesBO.Addr()
	q.statePush.Inc(MthdImageTableAddrHi, uint32(addr>>32), uint32(addr), uint32(st.imagesCount))
	addr = st.samplersBO.Addr()
	q.statePush.Inc(MthdSamplerTableAddrHi, uint32(addr>>32), uint32(addr), uint32(st.samplersCount))
	if st.slmBO != nil {
		addr = st.slmBO.Addr()
		q.statePush.Inc(MthdLocalMemAddrHi, uint32(addr>>32), uint32(addr), uint32(st.slmPerMP))
	}
}

func (q *Queue) submit(words []uint32, refs []BufferRef) error {
	d := q.dev
	d.mutex.Lock()
	defer d.mutex.Unlock()
	q.refreshState()

	req := SubmitRequest{}
	if _, err := req.addBuffer(q.state.imagesBO, AccessRead); err != nil {
		return err
	}
	if _, err := req.addBuffer(q.state.samplersBO, AccessRead); err != nil {
		return err
	}
	if q.state.slmBO != nil {
		if _, err := req.addBuffer(q.state.slmBO, AccessRead|AccessWrite); err != nil {
			return err
		}
	}

	total := q.statePush.Len() + len(words)
	size := util.Align(uint64(total)*4, uint64(d.config.PushBufferSize))
	bo, err := d.ch.NewBuffer(size, DomainGART)
	if err != nil {
		return debug.ErrorWrapf(err, "Failed to allocate push buffer")
	}
	if bo.Map() == nil {
		bo.Release()
		return debug.Errorf("push buffer is not mapped")
	}
	n := copy(bo.Map(), q.statePush.Words())
	copy(bo.Map()[n:], words)

	idx, err := req.addBuffer(bo, AccessRead)
	if err != nil {
		bo.Release()
		return err
	}
	if err := req.addPush(idx, 0, uint64(total)*4); err != nil {
		bo.Release()
		return err
	}
	for _, r := range refs {
		if _, err := req.addBuffer(r.BO, r.Access); err != nil {
			bo.Release()
			return err
		}
	}

	err = d.ch.Submit(&req)
	// the channel fences referenced buffers through submission completion
	bo.Release()
	if err != nil {
		return debug.ErrorWrapf(err, "Failed to submit")
	}
	d.timeline.Promise().Signal()
	return nil
}

/*
Submit sends pb's stream prefixed by the state setup stream. A nil pb
submits state setup alone, which flushes pending table growth to the
engine. pb is reusable afterwards; Reset it to record fresh work.
*/
func (q *Queue) Submit(pb *PushBuffer) error {
	q.noCopy.check()
	var words []uint32
	var refs []BufferRef
	if pb != nil {
		pb.noCopy.check()
		if err := ValidatePush(pb.Words()); err != nil {
			return debug.ErrorWrapf(err, "Malformed push stream")
		}
		words, refs = pb.Words(), pb.refs
	}
	return q.submit(words, refs)
}

// Fence returns a waiter covering everything submitted so far, on any of
// the device's queues.
func (q *Queue) Fence() *TimelineSemaphoreWaiter {
	q.noCopy.check()
	return q.dev.timeline.WaiterForPendingValue()
}

func (q *Queue) Destroy() {
	q.noCopy.check()
	if q.state.imagesBO != nil {
		q.state.imagesBO.Release()
	}
	if q.state.samplersBO != nil {
		q.state.samplersBO.Release()
	}
	if q.state.slmBO != nil {
		q.state.slmBO.Release()
	}
	q.noCopy.close()
}
