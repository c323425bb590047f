// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError is a user-facing failure: what crossmod was doing, which
	// file and guest package were involved, and what the user can change.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("load mapping table").
	//		WithResource("mappings.yaml").
	//		WithIssue(issue.MappingLoadFailedId).
	//		WithSuggestion("Check mapping_file in the configuration").
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase such as "resolve packages".
		Operation string
		// Resource is the file or directory involved, if any.
		Resource string
		// Package is the guest package id the failure belongs to, if any.
		Package string
		// Issue is the catalog entry explaining the failure, or 0.
		Issue       Id
		Suggestions []string
		Cause       error
	}

	// ErrorContext accumulates the fields of an ActionableError.
	ErrorContext struct {
		err ActionableError
	}
)

// NewErrorContext starts an empty ErrorContext.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error renders "failed to <operation> [for <package>]: <resource>: <cause>".
func (e *ActionableError) Error() string {
	var sb strings.Builder
	sb.WriteString("failed to ")
	sb.WriteString(e.Operation)
	if e.Package != "" {
		fmt.Fprintf(&sb, " for %s", e.Package)
	}
	for _, part := range []string{e.Resource, causeText(e.Cause)} {
		if part != "" {
			sb.WriteString(": ")
			sb.WriteString(part)
		}
	}
	return sb.String()
}

func (e *ActionableError) Unwrap() error { return e.Cause }

// Format returns Error followed by one bulleted line per suggestion. Verbose
// output appends the numbered chain of wrapped causes.
func (e *ActionableError) Format(verbose bool) string {
	lines := []string{e.Error()}
	if len(e.Suggestions) > 0 {
		lines = append(lines, "")
		for _, s := range e.Suggestions {
			lines = append(lines, "  • "+s)
		}
	}
	if verbose && e.Cause != nil {
		lines = append(lines, "", "Error chain:")
		n := 1
		for err := e.Cause; err != nil; err = errors.Unwrap(err) {
			lines = append(lines, fmt.Sprintf("  %d. %s", n, err.Error()))
			n++
		}
	}
	return strings.Join(lines, "\n")
}

// IssueOf returns the catalog entry attached to the first ActionableError in
// err's chain that carries one.
func IssueOf(err error) Id {
	for err != nil {
		var ae *ActionableError
		if !errors.As(err, &ae) {
			return 0
		}
		if ae.Issue != 0 {
			return ae.Issue
		}
		err = ae.Cause
	}
	return 0
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// WithOperation sets the operation. It is required by BuildError.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

// WithResource sets the file or directory involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithPackage sets the guest package id.
func (c *ErrorContext) WithPackage(id string) *ErrorContext {
	c.err.Package = id
	return c
}

// WithIssue attaches a catalog entry.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.err.Issue = id
	return c
}

// WithSuggestion appends a hint. Repeated calls keep their order.
func (c *ErrorContext) WithSuggestion(s string) *ErrorContext {
	c.err.Suggestions = append(c.err.Suggestions, s)
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// BuildError returns the accumulated ActionableError, or nil when no
// operation was set.
func (c *ErrorContext) BuildError() error {
	if c.err.Operation == "" {
		return nil
	}
	ae := c.err
	ae.Suggestions = append([]string(nil), c.err.Suggestions...)
	return &ae
}
