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

// BufferRef is one tracked buffer reference of a push buffer.
type BufferRef struct {
	BO     *BufferObject
	Access Access
}

/*
PushBuffer accumulates a FIFO word stream plus the buffer references the
stream touches. References are weak; the caller keeps the buffer objects
alive until the stream is submitted.

A PushBuffer is reusable across submissions: record the baseline reference
count with NumRefs before adding speculative references, then roll back
with ResetRefs instead of rebuilding the header references.
*/
type PushBuffer struct {
	Push

	noCopy noCopy
	ch     Channel
	refs   []BufferRef
}

func NewPushBuffer(ch Channel) *PushBuffer {
	pb := &PushBuffer{ch: ch}
	pb.noCopy.init()
	return pb
}

/*
Ref tracks bo with the given access. Referencing the same buffer again
ORs the access flags into the existing entry instead of appending, so
repeated calls are idempotent.
*/
func (pb *PushBuffer) Ref(bo *BufferObject, access Access) error {
	pb.noCopy.check()
	for i := range pb.refs {
		if pb.refs[i].BO.Handle() == bo.Handle() {
			pb.refs[i].Access |= access
			return nil
		}
	}
	if len(pb.refs) >= MaxSubmitBuffers {
		return ErrorRefTableFull{}
	}
	pb.refs = append(pb.refs, BufferRef{BO: bo, Access: access})
	return nil
}

// NumRefs returns the current reference count, the baseline for ResetRefs.
func (pb *PushBuffer) NumRefs() int {
	pb.noCopy.check()
	return len(pb.refs)
}

// ResetRefs rolls the reference list back to its first n entries.
func (pb *PushBuffer) ResetRefs(n int) {
	pb.noCopy.check()
	if n < 0 || n > len(pb.refs) {
		abort("ResetRefs(%d) with %d references", n, len(pb.refs))
	}
	pb.refs = pb.refs[:n]
}

// Reset clears both the word stream and the reference list.
func (pb *PushBuffer) Reset() {
	pb.noCopy.check()
	pb.Push.Reset()
	pb.refs = pb.refs[:0]
}

func (pb *PushBuffer) Destroy() {
	pb.noCopy.check()
	pb.noCopy.close()
}
