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
	"sync"
	"sync/atomic"

	"goarrg.com/debug"
)

// Descriptor sizes in words.
const (
	ImageDescriptorWords   = 8
	SamplerDescriptorWords = 4
)

/*
descriptorTable is a GPU-resident descriptor array with free-list reuse
and growth by doubling up to a hard cap. Growth bumps a generation counter
so queues know their cached table binding went stale.
*/
type descriptorTable struct {
	mutex     sync.Mutex
	ch        Channel
	descWords int
	max       int

	bo    *BufferObject
	count int
	next  int
	free  []uint32
	gen   atomic.Uint32
}

func newDescriptorTable(ch Channel, descWords int, cfg DescriptorTableConfig) (*descriptorTable, error) {
	t := &descriptorTable{ch: ch, descWords: descWords, max: cfg.Max, count: cfg.Min}
	bo, err := ch.NewBuffer(uint64(cfg.Min*descWords*4), DomainGART)
	if err != nil {
		return nil, debug.ErrorWrapf(err, "Failed to create descriptor table")
	}
	if bo.Map() == nil {
		bo.Release()
		return nil, debug.Errorf("descriptor table buffer is not mapped")
	}
	t.bo = bo
	return t, nil
}

// grow doubles the table, called with the mutex held.
func (t *descriptorTable) grow() error {
	count := min(t.count*2, t.max)
	if count == t.count {
		return ErrorPoolFull{}
	}
	bo, err := t.ch.NewBuffer(uint64(count*t.descWords*4), DomainGART)
	if err != nil {
		return debug.ErrorWrapf(err, "Failed to grow descriptor table to %d entries", count)
	}
	if bo.Map() == nil {
		bo.Release()
		return debug.Errorf("descriptor table buffer is not mapped")
	}
	copy(bo.Map(), t.bo.Map()[:t.count*t.descWords])
	t.bo.Release()
	t.bo = bo
	t.count = count
	t.gen.Add(1)
	return nil
}

/*
Alloc reserves a slot and writes desc into it. Returns ErrorPoolFull once
the table cannot double past its cap; the device-level path waits for idle
and retries once before giving up.
*/
func (t *descriptorTable) Alloc(desc []uint32) (uint32, error) {
	if len(desc) != t.descWords {
		abort("descriptor is %d words, table holds %d word entries", len(desc), t.descWords)
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var idx uint32
	switch {
	case len(t.free) > 0:
		idx = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
	case t.next < t.count:
		idx = uint32(t.next)
		t.next++
	default:
		if err := t.grow(); err != nil {
			return 0, err
		}
		idx = uint32(t.next)
		t.next++
	}
	copy(t.bo.Map()[int(idx)*t.descWords:], desc)
	return idx, nil
}

func (t *descriptorTable) Free(idx uint32) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if int(idx) >= t.next {
		abort("Free of descriptor %d which was never allocated", idx)
	}
	t.free = append(t.free, idx)
}

func (t *descriptorTable) generation() uint32 {
	return t.gen.Load()
}

// getRef returns a referenced backing buffer, its generation and the
// entry count, a consistent snapshot for queue state binding.
func (t *descriptorTable) getRef() (*BufferObject, uint32, int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.bo.Ref(), t.gen.Load(), t.count
}

func (t *descriptorTable) destroy() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.bo != nil {
		t.bo.Release()
		t.bo = nil
	}
}
