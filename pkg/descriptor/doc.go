// SPDX-License-Identifier: MPL-2.0

// Package descriptor models guest package descriptors: the identity, dependency
// constraints, nested packages, weaving configuration references and environment
// applicability that a guest package declares in its metadata file.
//
// Descriptors are parsed from the guest metadata JSON format (comments and trailing
// commas are tolerated), validated, and are immutable once loaded: operations that
// change a descriptor, such as alias normalization, return a modified copy.
package descriptor
