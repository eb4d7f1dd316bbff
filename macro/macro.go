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

/*
Package macro builds programs for the command engine's macro execution unit.

A macro is a short register-machine program stored in the engine's macro RAM.
When the driver writes a call method, the engine runs the macro against a
stream of parameter words, letting one method call expand into many hardware
method writes without a CPU round trip.

A Builder lowers arithmetic, method writes, parameter loads and structured
control flow into fixed width instruction bundles, packing independent
micro-ops into one bundle where the device class allows it. Finish serializes
the program into the binary blob the macro RAM loader consumes.

Builders are not safe for concurrent use; build a macro on one goroutine and
discard the Builder.
*/
package macro

import "goarrg.com/debug"

var instance = struct {
	logger *debug.Logger
}{
	logger: debug.NewLogger("mex", "macro"),
}

func abort(fmt string, args ...any) {
	instance.logger.EPrintf(fmt, args...)
	panic("Fatal Error")
}
