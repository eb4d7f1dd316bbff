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
	"strings"
	"sync/atomic"

	"goarrg.com/rhi/mex/macro"
)

// Domain is the memory placement of a buffer object.
type Domain uint8

const (
	DomainVRAM Domain = 1 << iota
	DomainGART
)

func (d Domain) HasBits(want Domain) bool {
	return hasBits(uint8(d), uint8(want))
}

func (d Domain) String() string {
	str := ""
	if d.HasBits(DomainVRAM) {
		str += "VRAM|"
	}
	if d.HasBits(DomainGART) {
		str += "GART|"
	}
	return strings.TrimSuffix(str, "|")
}

// Access is the direction a submission touches a referenced buffer in.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
)

func (a Access) HasBits(want Access) bool {
	return hasBits(uint8(a), uint8(want))
}

func (a Access) String() string {
	str := ""
	if a.HasBits(AccessRead) {
		str += "Read|"
	}
	if a.HasBits(AccessWrite) {
		str += "Write|"
	}
	return strings.TrimSuffix(str, "|")
}

// DeviceInfo describes the chip behind a Channel.
type DeviceInfo struct {
	Chip    macro.DeviceInfo
	MPCount int
}

/*
Channel is the opaque submission contract the core builds requests for: a
kernel DRM channel in production, an in-process software engine in tests.
Implementations must be safe for concurrent use.
*/
type Channel interface {
	Info() DeviceInfo
	NewBuffer(size uint64, domain Domain) (*BufferObject, error)
	Submit(req *SubmitRequest) error
	WaitIdle() error
}

/*
BufferObject is a channel-managed GPU-visible allocation referenced by
handle in submission requests. It is reference counted; Release drops the
caller's reference and frees through the owning channel on the last one.
*/
type BufferObject struct {
	noCopy noCopy
	handle uint32
	size   uint64
	addr   uint64
	domain Domain
	words  []uint32
	refs   atomic.Int32
	freeFn func(*BufferObject)
}

// NewBufferObject wraps a channel allocation. Channel implementations call
// this; freeFn runs when the last reference is released. words is the CPU
// mapping and may be nil for unmapped buffers.
func NewBufferObject(handle uint32, size, addr uint64, domain Domain, words []uint32, freeFn func(*BufferObject)) *BufferObject {
	bo := &BufferObject{
		handle: handle,
		size:   size,
		addr:   addr,
		domain: domain,
		words:  words,
		freeFn: freeFn,
	}
	bo.noCopy.init()
	bo.refs.Store(1)
	return bo
}

func (bo *BufferObject) Handle() uint32 {
	bo.noCopy.check()
	return bo.handle
}

func (bo *BufferObject) Size() uint64 {
	bo.noCopy.check()
	return bo.size
}

// Addr is the buffer's GPU virtual address.
func (bo *BufferObject) Addr() uint64 {
	bo.noCopy.check()
	return bo.addr
}

func (bo *BufferObject) Domain() Domain {
	bo.noCopy.check()
	return bo.domain
}

// Map returns the CPU mapping as words, nil when not mapped.
func (bo *BufferObject) Map() []uint32 {
	bo.noCopy.check()
	return bo.words
}

// Ref takes an additional reference and returns bo for chaining.
func (bo *BufferObject) Ref() *BufferObject {
	bo.noCopy.check()
	if bo.refs.Add(1) <= 1 {
		abort("Ref on a dead buffer object")
	}
	return bo
}

// Release drops one reference, freeing the buffer on the last.
func (bo *BufferObject) Release() {
	bo.noCopy.check()
	switch refs := bo.refs.Add(-1); {
	case refs == 0:
		bo.noCopy.close()
		if bo.freeFn != nil {
			bo.freeFn(bo)
		}
	case refs < 0:
		abort("Release on a dead buffer object")
	}
}
