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

package mex_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goarrg.com/rhi/mex"
	"goarrg.com/rhi/mex/macro"
	"goarrg.com/rhi/mex/soft"
)

func newTestDevice(t *testing.T, config mex.Config) (*soft.Channel, *mex.Device, *mex.Queue) {
	t.Helper()
	ch := soft.New(mex.DeviceInfo{Chip: macro.DeviceInfo{Class: macro.ClassEM200}, MPCount: 4})
	dev, err := mex.NewDevice(ch, config, nil)
	require.NoError(t, err)
	q, err := dev.NewQueue()
	require.NoError(t, err)
	t.Cleanup(func() {
		q.Destroy()
		dev.Destroy()
	})
	return ch, dev, q
}

func TestDrawMacro(t *testing.T) {
	ch, _, q := newTestDevice(t, mex.Config{})

	pb := mex.NewPushBuffer(ch)
	defer pb.Destroy()
	pb.CallMacro(int(mex.MacroDraw), 3, 0, 36, 0, 2)
	require.NoError(t, q.Submit(pb))

	assert.Equal(t, uint32(3), ch.ShadowState(mex.MthdDrawBegin))
	assert.Equal(t, uint32(36), ch.ShadowState(mex.MthdDrawVertexCount))
	assert.Equal(t, uint32(2), ch.ShadowState(mex.MthdDrawInstanceCount))
	assert.Equal(t, uint32(1), ch.ShadowState(mex.MthdScratch(mex.ScratchDrawCount)))
}

func TestDrawIndirectMacro(t *testing.T) {
	ch, _, q := newTestDevice(t, mex.Config{})

	pb := mex.NewPushBuffer(ch)
	defer pb.Destroy()
	pb.CallMacro(int(mex.MacroDrawIndirect), 1, 3,
		6, 1, 0, 0,
		9, 1, 6, 0,
		12, 2, 15, 1,
	)
	require.NoError(t, q.Submit(pb))

	assert.Equal(t, uint32(3), ch.ShadowState(mex.MthdScratch(mex.ScratchDrawCount)))
	assert.Equal(t, uint32(12), ch.ShadowState(mex.MthdDrawVertexCount))
	assert.Equal(t, uint32(15), ch.ShadowState(mex.MthdDrawVertexFirst))
	assert.Equal(t, uint32(2), ch.ShadowState(mex.MthdDrawInstanceCount))
}

func TestDrawIndirectZeroDraws(t *testing.T) {
	ch, _, q := newTestDevice(t, mex.Config{})

	pb := mex.NewPushBuffer(ch)
	defer pb.Destroy()
	pb.CallMacro(int(mex.MacroDrawIndirect), 1, 0)
	require.NoError(t, q.Submit(pb))

	assert.Zero(t, ch.ShadowState(mex.MthdScratch(mex.ScratchDrawCount)))
}

func TestClearViewsMacro(t *testing.T) {
	ch, _, q := newTestDevice(t, mex.Config{})

	pb := mex.NewPushBuffer(ch)
	defer pb.Destroy()
	pb.CallMacro(int(mex.MacroClearViews), 0b10100100)
	require.NoError(t, q.Submit(pb))
	// layers clear lowest bit first, the highest one sticks in the shadow
	assert.Equal(t, uint32(7), ch.ShadowState(mex.MthdClearLayerID))

	pb.Reset()
	pb.CallMacro(int(mex.MacroClearViews), 0)
	require.NoError(t, q.Submit(pb))
	assert.Equal(t, uint32(7), ch.ShadowState(mex.MthdClearLayerID), "empty mask clears nothing")
}

func TestCSInvocationCounter(t *testing.T) {
	ch, _, q := newTestDevice(t, mex.Config{})

	buf, err := ch.NewBuffer(0x1000, mex.DomainGART)
	require.NoError(t, err)
	defer buf.Release()

	pb := mex.NewPushBuffer(ch)
	defer pb.Destroy()
	pb.CallMacro(int(mex.MacroAddCSInvocations), 100, 0)
	pb.CallMacro(int(mex.MacroAddCSInvocations), 0xFFFFFFFF, 0)
	pb.CallMacro(int(mex.MacroWriteCSInvocations), uint32(buf.Addr()>>32), uint32(buf.Addr()))
	require.NoError(t, pb.Ref(buf, mex.AccessWrite))
	require.NoError(t, q.Submit(pb))

	// 100 + 0xFFFFFFFF carries into the high word
	assert.Equal(t, uint32(0x63), buf.Map()[0])
	assert.Equal(t, uint32(1), buf.Map()[1])
}

func TestDispatchIndirectMacro(t *testing.T) {
	ch, _, q := newTestDevice(t, mex.Config{})

	pb := mex.NewPushBuffer(ch)
	defer pb.Destroy()
	pb.CallMacro(int(mex.MacroDispatchIndirect), 2, 3, 4, 64)
	require.NoError(t, q.Submit(pb))

	assert.Equal(t, uint32(2), ch.ShadowState(mex.MthdDispatchGroupsX))
	assert.Equal(t, uint32(3), ch.ShadowState(mex.MthdDispatchGroupsY))
	assert.Equal(t, uint32(4), ch.ShadowState(mex.MthdDispatchGroupsZ))
	assert.Equal(t, uint32(2*3*4*64), ch.ShadowState(mex.MthdScratch(mex.ScratchCSInvocationsLo)))
}

func TestCopyQueriesMacro(t *testing.T) {
	ch, _, q := newTestDevice(t, mex.Config{})

	ram := ch.DataRAM()
	ram[10], ram[11], ram[12], ram[13] = 0xAAAA, 0xBBBB, 0xCCCC, 0xDDDD

	buf, err := ch.NewBuffer(0x1000, mex.DomainGART)
	require.NoError(t, err)
	defer buf.Release()

	pb := mex.NewPushBuffer(ch)
	defer pb.Destroy()
	pb.CallMacro(int(mex.MacroCopyQueries), uint32(buf.Addr()>>32), uint32(buf.Addr()), 10, 4)
	require.NoError(t, pb.Ref(buf, mex.AccessWrite))
	require.NoError(t, q.Submit(pb))

	assert.Equal(t, []uint32{0xAAAA, 0xBBBB, 0xCCCC, 0xDDDD}, buf.Map()[:4])
}

func TestSLMBinding(t *testing.T) {
	ch, dev, q := newTestDevice(t, mex.Config{})

	require.NoError(t, q.Submit(nil))
	assert.Zero(t, ch.ShadowState(mex.MthdLocalMemSizePerMP), "no slm bound before any shader needs it")

	require.NoError(t, dev.EnsureSLM(4096))
	require.NoError(t, q.Submit(nil))
	perMP := uint32(4096 * mex.ThreadsPerWarp * mex.WarpsPerMP)
	assert.Equal(t, perMP, ch.ShadowState(mex.MthdLocalMemSizePerMP))

	// smaller requirements never shrink the area
	require.NoError(t, dev.EnsureSLM(64))
	require.NoError(t, q.Submit(nil))
	assert.Equal(t, perMP, ch.ShadowState(mex.MthdLocalMemSizePerMP))
}

func TestSLMConcurrentEnsure(t *testing.T) {
	ch, dev, q := newTestDevice(t, mex.Config{})

	// racing requirements settle on the largest, losers free their area
	var wg sync.WaitGroup
	for _, bytesPerThread := range []uint64{64, 512, 4096, 1024, 4096, 256} {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			assert.NoError(t, dev.EnsureSLM(n))
		}(bytesPerThread)
	}
	wg.Wait()

	require.NoError(t, q.Submit(nil))
	perMP := uint32(4096 * mex.ThreadsPerWarp * mex.WarpsPerMP)
	assert.Equal(t, perMP, ch.ShadowState(mex.MthdLocalMemSizePerMP))
}

func TestDescriptorTableGrowth(t *testing.T) {
	ch, dev, q := newTestDevice(t, mex.Config{
		ImageDescriptors: mex.DescriptorTableConfig{Min: 2, Max: 4},
	})

	desc := make([]uint32, mex.ImageDescriptorWords)
	idx0, err := dev.AllocImageDescriptor(desc)
	require.NoError(t, err)
	idx1, err := dev.AllocImageDescriptor(desc)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx0)
	assert.Equal(t, uint32(1), idx1)

	require.NoError(t, q.Submit(nil))
	assert.Equal(t, uint32(2), ch.ShadowState(mex.MthdImageTableSize))

	// third allocation doubles the table
	_, err = dev.AllocImageDescriptor(desc)
	require.NoError(t, err)
	require.NoError(t, q.Submit(nil))
	assert.Equal(t, uint32(4), ch.ShadowState(mex.MthdImageTableSize))

	_, err = dev.AllocImageDescriptor(desc)
	require.NoError(t, err)
	_, err = dev.AllocImageDescriptor(desc)
	assert.ErrorIs(t, err, mex.ErrorPoolFull{})

	// freed slots are reused
	dev.FreeImageDescriptor(idx1)
	idx, err := dev.AllocImageDescriptor(desc)
	require.NoError(t, err)
	assert.Equal(t, idx1, idx)
}

func TestTimeline(t *testing.T) {
	_, dev, q := newTestDevice(t, mex.Config{})

	v0 := dev.Timeline().Value()
	require.NoError(t, q.Submit(nil))
	assert.Equal(t, v0+1, dev.Timeline().Value())

	f := q.Fence()
	assert.True(t, f.Poll())
	f.Wait()

	require.NoError(t, dev.WaitIdle())
}

func TestTimelineSemaphoreOrdering(t *testing.T) {
	s := mex.NewTimelineSemaphore()
	defer s.Destroy()

	p1 := s.Promise()
	p2 := s.Promise()
	assert.Equal(t, uint64(1), p1.Value())
	assert.Equal(t, uint64(2), p2.Value())

	done := make(chan struct{})
	go func() {
		// blocks until p1 lands, signals stay in order
		p2.Signal()
		close(done)
	}()

	assert.Zero(t, s.Value())
	p1.Signal()
	<-done
	s.Wait()
	assert.Equal(t, uint64(2), s.Value())

	w := s.WaiterForCurrentValue()
	assert.True(t, w.Poll())
}
