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

import "math/bits"

// NumRegs is the size of the engine's register file.
const NumRegs = 23

// regAlloc is a first-fit allocator over the register file bitmask.
type regAlloc struct {
	used uint32
}

func (a *regAlloc) alloc() (uint8, bool) {
	r := bits.TrailingZeros32(^a.used)
	if r >= NumRegs {
		return 0, false
	}
	a.used |= 1 << r
	return uint8(r), true
}

func (a *regAlloc) free(r uint8) bool {
	if r >= NumRegs || a.used&(1<<r) == 0 {
		return false
	}
	a.used &^= 1 << r
	return true
}

func (a *regAlloc) live(r uint8) bool {
	return r < NumRegs && a.used&(1<<r) != 0
}
