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

type valueKind uint8

const (
	valueZero valueKind = iota
	valueImm
	valueReg
)

/*
Value is an operand of a macro instruction: the hardwired zero source, a
32-bit immediate, or one of the engine's registers. The zero Value is the
zero source, so `var v macro.Value` is usable as-is.

Register Values come from Builder.AllocReg and are only meaningful with the
Builder that produced them.
*/
type Value struct {
	kind valueKind
	imm  uint32
	reg  uint8
}

// Zero returns the hardwired zero source.
func Zero() Value {
	return Value{}
}

// Imm returns a 32-bit immediate operand.
func Imm(v uint32) Value {
	return Value{kind: valueImm, imm: v}
}

func (v Value) IsZero() bool {
	return v.kind == valueZero
}

func (v Value) IsImm() bool {
	return v.kind == valueImm
}

func (v Value) IsReg() bool {
	return v.kind == valueReg
}

func (v Value) String() string {
	switch v.kind {
	case valueZero:
		return "zero"
	case valueImm:
		return fmt.Sprintf("0x%X", v.imm)
	case valueReg:
		return fmt.Sprintf("r%d", v.reg)
	default:
		return fmt.Sprintf("Value(kind=%d)", v.kind)
	}
}

// Value64 is a 64-bit quantity held as two 32-bit halves. The composite
// Builder ops (Add64, Sub64, IMul, UMul) produce and consume these.
type Value64 struct {
	Lo Value
	Hi Value
}

// Imm64 returns a 64-bit immediate split into two 32-bit halves.
func Imm64(v uint64) Value64 {
	return Value64{Lo: Imm(uint32(v)), Hi: Imm(uint32(v >> 32))}
}

// Compose64 pairs two existing 32-bit values into a 64-bit one.
func Compose64(lo, hi Value) Value64 {
	return Value64{Lo: lo, Hi: hi}
}

func (v Value64) String() string {
	return fmt.Sprintf("{lo: %s, hi: %s}", v.Lo, v.Hi)
}
