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

import "goarrg.com/debug"

// Kernel submission limits per request.
const (
	MaxSubmitBuffers = 1024
	MaxSubmitPushes  = 512
)

// SubmitBuffer is one buffer-object descriptor of a submission request.
type SubmitBuffer struct {
	BO           *BufferObject
	ValidDomain  Domain
	ReadDomains  Domain
	WriteDomains Domain
}

// SubmitPush is one push segment: Length words of Buffer starting at
// Offset, both in bytes and word aligned.
type SubmitPush struct {
	Buffer int
	Offset uint64
	Length uint64
}

// SubmitRequest is the channel submission contract: every push segment
// indexes into Buffers, and every buffer the GPU may touch is listed.
type SubmitRequest struct {
	Buffers []SubmitBuffer
	Pushes  []SubmitPush
}

func submitBufferFor(bo *BufferObject, access Access) SubmitBuffer {
	s := SubmitBuffer{BO: bo, ValidDomain: bo.Domain()}
	if access.HasBits(AccessRead) {
		s.ReadDomains = bo.Domain()
	}
	if access.HasBits(AccessWrite) {
		s.WriteDomains = bo.Domain()
	}
	return s
}

// addBuffer appends bo to the request, coalescing by handle.
func (r *SubmitRequest) addBuffer(bo *BufferObject, access Access) (int, error) {
	for i := range r.Buffers {
		if r.Buffers[i].BO.Handle() == bo.Handle() {
			s := submitBufferFor(bo, access)
			r.Buffers[i].ReadDomains |= s.ReadDomains
			r.Buffers[i].WriteDomains |= s.WriteDomains
			return i, nil
		}
	}
	if len(r.Buffers) >= MaxSubmitBuffers {
		return -1, ErrorRefTableFull{}
	}
	r.Buffers = append(r.Buffers, submitBufferFor(bo, access))
	return len(r.Buffers) - 1, nil
}

func (r *SubmitRequest) addPush(buffer int, offset, length uint64) error {
	if len(r.Pushes) >= MaxSubmitPushes {
		return debug.Errorf("push segment count exceeds %d", MaxSubmitPushes)
	}
	r.Pushes = append(r.Pushes, SubmitPush{Buffer: buffer, Offset: offset, Length: length})
	return nil
}

// Validate checks the request against the kernel contract; channel
// implementations call it before consuming the request.
func (r *SubmitRequest) Validate() error {
	if len(r.Buffers) > MaxSubmitBuffers {
		return debug.Errorf("buffer count %d exceeds %d", len(r.Buffers), MaxSubmitBuffers)
	}
	if len(r.Pushes) > MaxSubmitPushes {
		return debug.Errorf("push segment count %d exceeds %d", len(r.Pushes), MaxSubmitPushes)
	}
	for i, b := range r.Buffers {
		if b.BO == nil {
			return debug.Errorf("buffer %d is nil", i)
		}
	}
	for i, p := range r.Pushes {
		if p.Buffer < 0 || p.Buffer >= len(r.Buffers) {
			return debug.Errorf("push segment %d references buffer %d of %d", i, p.Buffer, len(r.Buffers))
		}
		if p.Offset%4 != 0 || p.Length%4 != 0 {
			return debug.Errorf("push segment %d is not word aligned", i)
		}
		if p.Offset+p.Length > r.Buffers[p.Buffer].BO.Size() {
			return debug.Errorf("push segment %d escapes its buffer", i)
		}
	}
	return nil
}
