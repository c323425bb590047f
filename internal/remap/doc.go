// SPDX-License-Identifier: MPL-2.0

// Package remap rewrites guest class files into host names.
//
// Engine runs a structural pass over the constant pool and the class structure,
// then rewrites literal values: string constants, bootstrap arguments and the
// parameters of weaving directives compiled with remapping disabled. Member
// names are resolved by Remapper, which consults the flat name index first and
// falls back to owner qualified lookups along the class hierarchy. Hierarchy
// facts come from InfoProvider, which also reports the synthetic ancestors a
// weaving directive declares for its carrier class.
package remap
