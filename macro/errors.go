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

/*
BuildError reports a contract violation in the macro construction code
itself: unbalanced control flow, instruction buffer overflow, register file
exhaustion, out of range bit field parameters. These are programmer errors,
not runtime conditions. The Builder goes sticky on the first violation, all
further emission calls are no-ops, and Finish returns the error instead of a
truncated blob.
*/
type BuildError struct {
	Reason string
}

func (e *BuildError) Error() string {
	return "macro build error: " + e.Reason
}

func (e *BuildError) Is(target error) bool {
	_, ok := target.(*BuildError)
	return ok
}

func buildErrorf(format string, args ...any) *BuildError {
	return &BuildError{Reason: fmt.Sprintf(format, args...)}
}
