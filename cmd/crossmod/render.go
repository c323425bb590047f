// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/crossmod/crossmod/internal/config"
	"github.com/crossmod/crossmod/internal/hostpkg"
	"github.com/crossmod/crossmod/internal/issue"
	"github.com/crossmod/crossmod/internal/loader"
	"github.com/crossmod/crossmod/internal/mapping"
	"github.com/crossmod/crossmod/internal/resolver"
	"github.com/crossmod/crossmod/internal/transform"
	"github.com/crossmod/crossmod/pkg/descriptor"

	"github.com/spf13/cobra"
)

// issueFor returns the catalog entry explaining err, or 0. An entry attached
// to an ActionableError wins over classification by sentinel.
func issueFor(err error) issue.Id {
	if id := issue.IssueOf(err); id != 0 {
		return id
	}
	switch {
	case errors.Is(err, resolver.ErrUnsatisfiable):
		return issue.ResolutionFailedId
	case errors.Is(err, transform.ErrTimeout):
		return issue.TransformTimeoutId
	case errors.Is(err, transform.ErrInterrupted):
		return issue.TransformInterruptedId
	case errors.Is(err, descriptor.ErrInvalidDescriptor):
		return issue.DescriptorParseErrorId
	case errors.Is(err, loader.ErrModsDirNotFound):
		return issue.ModsDirNotFoundId
	case errors.Is(err, hostpkg.ErrInvalidManifest):
		return issue.HostPackagesInvalidId
	case errors.Is(err, mapping.ErrInvalidTable):
		return issue.MappingLoadFailedId
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId
	default:
		return 0
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	var abort *loader.AbortError
	if errors.As(err, &abort) {
		return abort.Error()
	}
	return err.Error()
}

// renderError writes err and its catalog guidance to w.
func renderError(w io.Writer, err error, verbose bool, colorScheme config.ColorScheme) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render(errorIcon), formatErrorForDisplay(err, verbose))

	id := issueFor(err)
	if id == 0 {
		return
	}
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	style := string(colorScheme)
	if style == "" {
		style = string(config.ColorSchemeAuto)
	}
	rendered, renderErr := entry.Render(style)
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

// fail renders err on the command's stderr and returns a bare ExitError so the
// error is not printed twice.
func fail(cmd *cobra.Command, app *App, loaded *config.Loaded, err error) error {
	var scheme config.ColorScheme
	if loaded != nil {
		scheme = loaded.UI.ColorScheme
	}
	renderError(cmd.ErrOrStderr(), err, app.verbose, scheme)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return &ExitError{Code: exitFailure}
}
