// SPDX-License-Identifier: MPL-2.0

// Package resolver defines the constraint resolver boundary: a candidate graph
// and environment facts go in, an accepted and ordered load set or a Failure
// comes out.
//
// ConstraintResolver is the pluggable strategy. Backtracking is the reference
// implementation used by the CLI and tests; alternative solvers can be swapped in
// without touching graph construction.
package resolver
