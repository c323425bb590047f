// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"fmt"

	"github.com/crossmod/crossmod/internal/resolver"
)

const (
	// StageResolve is the constraint resolution stage.
	StageResolve Stage = "resolve"
	// StageTransform is the archive translation stage.
	StageTransform Stage = "transform"
)

var (
	// ErrAborted is the sentinel error wrapped by AbortError.
	ErrAborted = errors.New("load aborted")
	// ErrModsDirNotFound is returned when the mods directory does not exist.
	ErrModsDirNotFound = errors.New("mods directory not found")
	// ErrDuplicateOutput is returned when two explicit archives would be
	// translated to the same output file.
	ErrDuplicateOutput = errors.New("archives share an output name")
)

type (
	// Stage names the part of a run that failed.
	Stage string

	// AbortError is a fatal run failure. Nothing of the run is usable and the
	// run must not be retried as-is.
	AbortError struct {
		Stage Stage
		Err   error
	}
)

// Error implements the error interface. Resolver explanations are rendered
// with tabs normalized.
func (e *AbortError) Error() string {
	if errors.Is(e.Err, resolver.ErrUnsatisfiable) {
		return fmt.Sprintf("load aborted during %s:\n%s", e.Stage, resolver.Explain(e.Err))
	}
	return fmt.Sprintf("load aborted during %s: %v", e.Stage, e.Err)
}

// Unwrap returns the cause.
func (e *AbortError) Unwrap() error { return e.Err }

// Is reports ErrAborted as a match.
func (e *AbortError) Is(target error) bool { return target == ErrAborted }
