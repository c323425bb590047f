// SPDX-License-Identifier: MPL-2.0

// Package mapping loads the guest-to-host symbol table used by every rewrite.
//
// An Index holds owner-qualified class, field and method tables in one direction
// and can derive the reverse direction. A FlatIndex is the name-only view of the
// same table: it answers "what does this member name become" without knowing the
// owner, and only contains names whose target is unambiguous across all owners.
//
// Both are built once per run and are read-only afterwards, so they are safe for
// concurrent use without synchronization.
package mapping
