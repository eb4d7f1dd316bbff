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

import "sync"

/*
TimelineSemaphore is a monotonically increasing 64 bit counter used as the
submission timeline: every submission reserves the next value with Promise
and signals it on completion. Signals always land in order.
*/
type TimelineSemaphore struct {
	noCopy noCopy

	mutex         sync.Mutex
	cond          *sync.Cond
	value         uint64
	pendingSignal uint64
}

func NewTimelineSemaphore() *TimelineSemaphore {
	s := TimelineSemaphore{}
	s.noCopy.init()
	s.cond = sync.NewCond(&s.mutex)
	return &s
}

func (s *TimelineSemaphore) Destroy() {
	s.noCopy.check()
	s.Wait()
	s.noCopy.close()
}

func (s *TimelineSemaphore) Value() uint64 {
	s.noCopy.check()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.value
}

func (s *TimelineSemaphore) sendSignal(signal uint64) {
	s.noCopy.check()
	s.mutex.Lock()
	if s.value >= signal {
		s.mutex.Unlock()
		abort("No pending signal promise")
	}
	s.value = signal
	s.mutex.Unlock()
	s.cond.Broadcast()
}

type TimelineSemaphorePromise struct {
	noCopy    noCopy
	semaphore *TimelineSemaphore
	value     uint64
}

func (s *TimelineSemaphore) Promise() *TimelineSemaphorePromise {
	s.noCopy.check()
	s.mutex.Lock()
	s.pendingSignal++
	p := TimelineSemaphorePromise{semaphore: s, value: s.pendingSignal}
	s.mutex.Unlock()
	p.noCopy.init()
	return &p
}

func (p *TimelineSemaphorePromise) Signal() {
	p.noCopy.check()
	// this ensures we signal in order
	p.semaphore.waitForSignal(p.value - 1)
	p.semaphore.sendSignal(p.value)
	p.noCopy.close()
}

func (p *TimelineSemaphorePromise) Value() uint64 {
	p.noCopy.check()
	return p.value
}

func (s *TimelineSemaphore) waitForSignal(signal uint64) {
	s.noCopy.check()
	s.mutex.Lock()
	for s.value < signal {
		s.cond.Wait()
	}
	s.mutex.Unlock()
}

func (s *TimelineSemaphore) Wait() {
	s.noCopy.check()
	s.mutex.Lock()
	pending := s.pendingSignal
	s.mutex.Unlock()
	s.waitForSignal(pending)
}

type TimelineSemaphoreWaiter struct {
	noCopy    noCopy
	semaphore *TimelineSemaphore
	value     uint64
}

func (s *TimelineSemaphore) WaiterForPendingValue() *TimelineSemaphoreWaiter {
	s.noCopy.check()
	s.mutex.Lock()
	f := TimelineSemaphoreWaiter{semaphore: s, value: s.pendingSignal}
	s.mutex.Unlock()
	f.noCopy.init()
	return &f
}

func (s *TimelineSemaphore) WaiterForCurrentValue() *TimelineSemaphoreWaiter {
	s.noCopy.check()
	s.mutex.Lock()
	f := TimelineSemaphoreWaiter{semaphore: s, value: s.value}
	s.mutex.Unlock()
	f.noCopy.init()
	return &f
}

func (w *TimelineSemaphoreWaiter) Poll() bool {
	w.noCopy.check()
	return w.semaphore.Value() >= w.value
}

func (w *TimelineSemaphoreWaiter) Wait() {
	w.noCopy.check()
	w.semaphore.waitForSignal(w.value)
}

func (w *TimelineSemaphoreWaiter) Value() uint64 {
	w.noCopy.check()
	return w.value
}
