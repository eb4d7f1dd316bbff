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

package util

import (
	"goarrg.com/debug"
	"golang.org/x/exp/constraints"
)

var instance = struct {
	logger *debug.Logger
}{
	logger: debug.NewLogger("mex", "internal", "util"),
}

func abort(fmt string, args ...any) {
	instance.logger.EPrintf(fmt, args...)
	panic("Fatal Error")
}

func Align[N constraints.Unsigned](v, a N) N {
	if a == 0 || (a&(a-1)) != 0 {
		abort("Alignment must be a non zero power of two: %d", a)
	}
	return (v + a - 1) &^ (a - 1)
}

func HasBits[N constraints.Unsigned](t, want N) bool {
	return (t & want) == want
}
