// SPDX-License-Identifier: MPL-2.0

package main

import "strconv"

// Exit codes of the crossmod binary.
const (
	exitFailure = 1
	// exitPartial means the run completed but some packages failed to translate.
	exitPartial = 2
)

// ExitError carries a process exit code out of a RunE handler. Err is nil when
// the failure was already rendered.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }
