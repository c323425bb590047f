// SPDX-License-Identifier: MPL-2.0

// Package alias handles global identity aliasing: a package id that also answers
// to one or more other ids. Dependency constraints across an alias boundary are
// relaxed before resolution because the two sides number their versions
// differently.
package alias
