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

/*
FIFO word format: a header selects a method and how the method address
advances across the data words that follow, the count living in bits
[16:29]. The immediate form carries its 13-bit payload in the count field
and no data words.
*/
const (
	fifoTypeMask   uint32 = 0xe0000000
	FifoHdrInc     uint32 = 0x20000000 // method advances every word
	FifoHdrNonInc  uint32 = 0x60000000 // method stays
	FifoHdrImmd    uint32 = 0x80000000 // payload inline, no data words
	FifoHdrOneInc  uint32 = 0xa0000000 // method advances once, then stays
	FifoMaxCount   uint32 = 0x1fff
	fifoCountShift        = 16
	fifoMthdMask   uint32 = 0x1fff
)

func fifoHeader(typ uint32, count uint32, mthd uint16) uint32 {
	return typ | count<<fifoCountShift | uint32(mthd>>2)&fifoMthdMask
}

/*
Push is a FIFO word writer. The zero value is ready to use. Runs opened by
Inc/NonInc/OneInc may be extended word by word with InlineData, which
patches the run's header count.
*/
type Push struct {
	words []uint32
	// index+1 of the header of the open run, 0 when none
	hdr int
}

func (p *Push) checkMthd(mthd uint16) {
	if mthd%4 != 0 {
		abort("method 0x%04X is not word aligned", mthd)
	}
}

func (p *Push) run(typ uint32, mthd uint16, data []uint32) {
	p.checkMthd(mthd)
	if uint32(len(data)) > FifoMaxCount {
		abort("method run of %d words exceeds %d", len(data), FifoMaxCount)
	}
	p.words = append(p.words, fifoHeader(typ, uint32(len(data)), mthd))
	p.hdr = len(p.words)
	p.words = append(p.words, data...)
}

// Inc opens an incrementing run: data[i] lands on mthd + 4*i.
func (p *Push) Inc(mthd uint16, data ...uint32) {
	p.run(FifoHdrInc, mthd, data)
}

// NonInc opens a non-incrementing run: every word lands on mthd.
func (p *Push) NonInc(mthd uint16, data ...uint32) {
	p.run(FifoHdrNonInc, mthd, data)
}

// OneInc opens an increment-once run: the first word lands on mthd, the
// rest on mthd + 4.
func (p *Push) OneInc(mthd uint16, data ...uint32) {
	p.run(FifoHdrOneInc, mthd, data)
}

// Immd writes a method with an inline 13-bit payload, no data words.
func (p *Push) Immd(mthd uint16, data uint16) {
	p.checkMthd(mthd)
	if uint32(data) > FifoMaxCount {
		abort("immediate payload 0x%X exceeds 13 bits", data)
	}
	p.words = append(p.words, fifoHeader(FifoHdrImmd, uint32(data), mthd))
	p.hdr = 0
}

// InlineData extends the open run, patching its header count.
func (p *Push) InlineData(data ...uint32) {
	if p.hdr == 0 {
		abort("InlineData without an open method run")
	}
	hdr := p.words[p.hdr-1]
	count := hdr>>fifoCountShift&FifoMaxCount + uint32(len(data))
	if count > FifoMaxCount {
		abort("method run of %d words exceeds %d", count, FifoMaxCount)
	}
	p.words[p.hdr-1] = hdr&^(FifoMaxCount<<fifoCountShift) | count<<fifoCountShift
	p.words = append(p.words, data...)
}

// CallMacro invokes macro slot with at least one parameter word. The
// increment-once form lands the first word on the call method and the rest
// on its parameter method.
func (p *Push) CallMacro(slot int, params ...uint32) {
	if len(params) == 0 {
		abort("macro call without parameters")
	}
	p.OneInc(MthdCallMacro(slot), params...)
}

// Words returns the accumulated stream.
func (p *Push) Words() []uint32 {
	return p.words
}

func (p *Push) Len() int {
	return len(p.words)
}

func (p *Push) Reset() {
	p.words = p.words[:0]
	p.hdr = 0
}

// ValidatePush walks a word stream checking it parses as well formed FIFO
// headers with no truncated runs.
func ValidatePush(words []uint32) error {
	for i := 0; i < len(words); {
		hdr := words[i]
		count := hdr >> fifoCountShift & FifoMaxCount
		switch hdr & fifoTypeMask {
		case FifoHdrImmd:
			i++
		case FifoHdrInc, FifoHdrNonInc, FifoHdrOneInc:
			if count == 0 {
				return debug.Errorf("word %d: empty method run", i)
			}
			if i+1+int(count) > len(words) {
				return debug.Errorf("word %d: run of %d words is truncated", i, count)
			}
			i += 1 + int(count)
		default:
			return debug.Errorf("word %d: unknown header type 0x%08X", i, hdr&fifoTypeMask)
		}
	}
	return nil
}
