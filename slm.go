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
	"goarrg.com/rhi/mex/internal/util"
)

// Shader local memory geometry.
const (
	ThreadsPerWarp = 32
	WarpsPerMP     = 64

	slmAlignPerWarp     = 0x200
	slmGranularityPerMP = 0x8000
)

/*
slmArea is the shader local memory backing store. It only ever grows: the
size covers the most demanding shader seen so far and shrinking would race
in-flight work.
*/
type slmArea struct {
	mutex        sync.Mutex
	ch           Channel
	bo           *BufferObject
	bytesPerWarp uint64
	bytesPerMP   atomic.Uint64
}

/*
ensure grows the area to cover bytesPerThread, returning whether it grew.
The common already-big-enough case is a lock-free dirty read; growth
allocates outside the lock and the loser of a concurrent race discards its
allocation.
*/
func (a *slmArea) ensure(mpCount int, bytesPerThread uint64) (bool, error) {
	perWarp := util.Align(bytesPerThread*ThreadsPerWarp, uint64(slmAlignPerWarp))
	perMP := perWarp * WarpsPerMP
	if perMP%slmGranularityPerMP != 0 {
		abort("slm bytes per mp 0x%X is not a multiple of 0x%X", perMP, uint64(slmGranularityPerMP))
	}
	if perMP <= a.bytesPerMP.Load() {
		return false, nil
	}

	bo, err := a.ch.NewBuffer(perMP*uint64(mpCount), DomainVRAM)
	if err != nil {
		return false, debug.ErrorWrapf(err, "Failed to grow slm area to 0x%X bytes per mp", perMP)
	}

	a.mutex.Lock()
	if perMP <= a.bytesPerMP.Load() {
		// lost the race to a bigger allocation
		a.mutex.Unlock()
		bo.Release()
		return false, nil
	}
	old := a.bo
	a.bo = bo
	a.bytesPerWarp = perWarp
	a.bytesPerMP.Store(perMP)
	a.mutex.Unlock()

	if old != nil {
		old.Release()
	}
	return true, nil
}

// getRef returns a referenced backing buffer plus the current sizes; the
// buffer is nil while no shader needed local memory yet.
func (a *slmArea) getRef() (*BufferObject, uint64, uint64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.bo == nil {
		return nil, 0, 0
	}
	return a.bo.Ref(), a.bytesPerWarp, a.bytesPerMP.Load()
}

func (a *slmArea) destroy() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.bo != nil {
		a.bo.Release()
		a.bo = nil
	}
}
