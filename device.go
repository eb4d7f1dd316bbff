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
	"errors"
	"sync"

	"goarrg.com/debug"
)

/*
Device owns the per-channel shared state: the submission timeline, the
descriptor tables, the shader local memory area and the macro registry.
Queues created from it share all of these.
*/
type Device struct {
	noCopy noCopy
	ch     Channel
	info   DeviceInfo
	config Config

	// serializes submissions across the device's queues
	mutex    sync.Mutex
	timeline *TimelineSemaphore

	images    *descriptorTable
	samplers  *descriptorTable
	slm       slmArea
	macros    *Registry
	blobCache macroCache
}

// NewDevice wraps ch. A nil registry gets the builtin macros; zero Config
// fields get defaults.
func NewDevice(ch Channel, config Config, registry *Registry) (*Device, error) {
	config.validate()
	instance.logger.IPrintf("Device config: %s", prettyString(&config))

	if registry == nil {
		registry = NewRegistry()
	}
	d := &Device{
		ch:       ch,
		info:     ch.Info(),
		config:   config,
		timeline: NewTimelineSemaphore(),
		macros:   registry,
	}
	d.slm.ch = ch

	var err error
	if d.images, err = newDescriptorTable(ch, ImageDescriptorWords, config.ImageDescriptors); err != nil {
		return nil, debug.ErrorWrapf(err, "Failed to create image descriptor table")
	}
	if d.samplers, err = newDescriptorTable(ch, SamplerDescriptorWords, config.SamplerDescriptors); err != nil {
		d.images.destroy()
		return nil, debug.ErrorWrapf(err, "Failed to create sampler descriptor table")
	}

	d.noCopy.init()
	return d, nil
}

func (d *Device) Info() DeviceInfo {
	d.noCopy.check()
	return d.info
}

func (d *Device) Channel() Channel {
	d.noCopy.check()
	return d.ch
}

// EnsureSLM grows the shader local memory area to cover shaders needing
// bytesPerThread of local memory.
func (d *Device) EnsureSLM(bytesPerThread uint64) error {
	d.noCopy.check()
	_, err := d.slm.ensure(d.info.MPCount, bytesPerThread)
	return err
}

// allocDescriptor retries a full table once after draining the GPU, since
// frees may be pending behind in-flight work.
func (d *Device) allocDescriptor(t *descriptorTable, desc []uint32) (uint32, error) {
	idx, err := t.Alloc(desc)
	if err == nil || !errors.Is(err, ErrorPoolFull{}) {
		return idx, err
	}
	if err := d.ch.WaitIdle(); err != nil {
		return 0, debug.ErrorWrapf(err, "Failed to drain channel")
	}
	return t.Alloc(desc)
}

func (d *Device) AllocImageDescriptor(desc []uint32) (uint32, error) {
	d.noCopy.check()
	return d.allocDescriptor(d.images, desc)
}

func (d *Device) FreeImageDescriptor(idx uint32) {
	d.noCopy.check()
	d.images.Free(idx)
}

func (d *Device) AllocSamplerDescriptor(desc []uint32) (uint32, error) {
	d.noCopy.check()
	return d.allocDescriptor(d.samplers, desc)
}

func (d *Device) FreeSamplerDescriptor(idx uint32) {
	d.noCopy.check()
	d.samplers.Free(idx)
}

// Timeline returns the device submission timeline; its value advances by
// one per completed submission.
func (d *Device) Timeline() *TimelineSemaphore {
	d.noCopy.check()
	return d.timeline
}

// WaitIdle drains the channel and the submission timeline.
func (d *Device) WaitIdle() error {
	d.noCopy.check()
	if err := d.ch.WaitIdle(); err != nil {
		return err
	}
	d.timeline.Wait()
	return nil
}

// Destroy waits for idle and releases the device-owned GPU allocations.
// Queues must be destroyed first.
func (d *Device) Destroy() {
	d.noCopy.check()
	if err := d.WaitIdle(); err != nil {
		abort("Failed to drain channel: %s", err)
	}
	d.slm.destroy()
	d.images.destroy()
	d.samplers.destroy()
	d.timeline.Destroy()
	d.noCopy.close()
}
