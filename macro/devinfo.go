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

import "fmt"

// Class identifies the macro engine generation. It gates which micro-ops
// exist and how many of each slot family a bundle may carry.
type Class uint16

const (
	// ClassEM100 is the first macro engine revision: one slot per family
	// per bundle and no multiply unit.
	ClassEM100 Class = 0x0100
	// ClassEM200 doubles every slot family and adds 32x32 multiplies.
	ClassEM200 Class = 0x0200
)

func (c Class) String() string {
	switch c {
	case ClassEM100:
		return "EM100"
	case ClassEM200:
		return "EM200"
	default:
		return fmt.Sprintf("Class(0x%04X)", uint16(c))
	}
}

// DeviceInfo carries the chip fields the Builder is parameterized by.
// Builders must never hard-code class behavior; everything the encoding
// depends on routes through here.
type DeviceInfo struct {
	Class    Class
	Revision uint8
}

func (i DeviceInfo) slotsPerFamily() int {
	if i.Class >= ClassEM200 {
		return 2
	}
	return 1
}

func (i DeviceInfo) hasMul() bool {
	return i.Class >= ClassEM200
}

func (i DeviceInfo) opSupported(op ALUOp) bool {
	switch op {
	case OpMul, OpMulH, OpMulU, OpMulUH:
		return i.hasMul()
	default:
		return true
	}
}
