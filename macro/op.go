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

// ALUOp is a micro-op executed by one of a bundle's ALU slots.
type ALUOp uint8

const (
	OpAdd ALUOp = iota
	OpAddC
	OpSub
	OpSubB
	OpMul
	OpMulH
	OpMulU
	OpMulUH
	OpClz
	OpSll
	OpSrl
	OpSra
	OpAnd
	OpNand
	OpOr
	OpXor
	OpMerge
	OpSlt
	OpSltU
	OpSle
	OpSleU
	OpSeq
	OpState
	OpDRead
	OpDWrite
	OpBlt
	OpBltU
	OpBle
	OpBleU
	OpBeq
	OpLoop
	numALUOps
)

var aluOpNames = [numALUOps]string{
	OpAdd:    "add",
	OpAddC:   "addc",
	OpSub:    "sub",
	OpSubB:   "subb",
	OpMul:    "mul",
	OpMulH:   "mulh",
	OpMulU:   "mulu",
	OpMulUH:  "muluh",
	OpClz:    "clz",
	OpSll:    "sll",
	OpSrl:    "srl",
	OpSra:    "sra",
	OpAnd:    "and",
	OpNand:   "nand",
	OpOr:     "or",
	OpXor:    "xor",
	OpMerge:  "merge",
	OpSlt:    "slt",
	OpSltU:   "sltu",
	OpSle:    "sle",
	OpSleU:   "sleu",
	OpSeq:    "seq",
	OpState:  "state",
	OpDRead:  "dread",
	OpDWrite: "dwrite",
	OpBlt:    "blt",
	OpBltU:   "bltu",
	OpBle:    "ble",
	OpBleU:   "bleu",
	OpBeq:    "beq",
	OpLoop:   "loop",
}

func (op ALUOp) String() string {
	if op < numALUOps {
		return aluOpNames[op]
	}
	return fmt.Sprintf("ALUOp(%d)", uint8(op))
}

// isBranch reports whether op redirects execution via an instruction delta.
func (op ALUOp) isBranch() bool {
	switch op {
	case OpBlt, OpBltU, OpBle, OpBleU, OpBeq, OpLoop:
		return true
	default:
		return false
	}
}

// hasResult reports whether op writes its dst field.
func (op ALUOp) hasResult() bool {
	switch op {
	case OpDWrite:
		return false
	default:
		return !op.isBranch()
	}
}

/*
Cmp names a comparison for the control-flow helpers. The builder lowers it
to one of the hardware branch ops, toggling the branch-if-false bit or
swapping operands for the conditions the hardware lacks.
*/
type Cmp uint8

const (
	CmpLt Cmp = iota
	CmpLtU
	CmpLe
	CmpLeU
	CmpEq
	CmpNe
	CmpGe
	CmpGeU
	CmpGt
	CmpGtU
)

var cmpNames = [...]string{
	CmpLt:  "lt",
	CmpLtU: "ltu",
	CmpLe:  "le",
	CmpLeU: "leu",
	CmpEq:  "eq",
	CmpNe:  "ne",
	CmpGe:  "ge",
	CmpGeU: "geu",
	CmpGt:  "gt",
	CmpGtU: "gtu",
}

func (c Cmp) String() string {
	if int(c) < len(cmpNames) {
		return cmpNames[c]
	}
	return fmt.Sprintf("Cmp(%d)", uint8(c))
}

// branch lowers c into (op, invert, swap-operands).
func (c Cmp) branch() (ALUOp, bool, bool) {
	switch c {
	case CmpLt:
		return OpBlt, false, false
	case CmpLtU:
		return OpBltU, false, false
	case CmpLe:
		return OpBle, false, false
	case CmpLeU:
		return OpBleU, false, false
	case CmpEq:
		return OpBeq, false, false
	case CmpNe:
		return OpBeq, true, false
	case CmpGe:
		return OpBlt, true, false
	case CmpGeU:
		return OpBltU, true, false
	case CmpGt:
		return OpBlt, false, true
	case CmpGtU:
		return OpBltU, false, true
	default:
		return OpBeq, false, false
	}
}
