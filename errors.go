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

// ErrorOutOfDeviceMemory is returned when the channel cannot allocate a
// buffer object. It is never retried by this layer.
type ErrorOutOfDeviceMemory struct{}

func (e ErrorOutOfDeviceMemory) Is(target error) bool {
	_, ok := target.(ErrorOutOfDeviceMemory)
	return ok
}

func (e ErrorOutOfDeviceMemory) Error() string {
	return "Out of device memory"
}

// ErrorPoolFull is returned when a descriptor table cannot grow past its
// hard cap. Device-level allocation waits for idle and retries once before
// surfacing it.
type ErrorPoolFull struct{}

func (e ErrorPoolFull) Is(target error) bool {
	_, ok := target.(ErrorPoolFull)
	return ok
}

func (e ErrorPoolFull) Error() string {
	return "Descriptor pool is full"
}

// ErrorChannelLost is returned when the submission channel failed; it is
// surfaced verbatim, retry policy belongs to the caller.
type ErrorChannelLost struct{}

func (e ErrorChannelLost) Is(target error) bool {
	_, ok := target.(ErrorChannelLost)
	return ok
}

func (e ErrorChannelLost) Error() string {
	return "Submission channel is lost"
}

// ErrorRefTableFull is returned when a push buffer's buffer-object
// reference table hits the channel's submission limit.
type ErrorRefTableFull struct{}

func (e ErrorRefTableFull) Is(target error) bool {
	_, ok := target.(ErrorRefTableFull)
	return ok
}

func (e ErrorRefTableFull) Error() string {
	return "Buffer reference table is full"
}
