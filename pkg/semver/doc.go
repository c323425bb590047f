// SPDX-License-Identifier: MPL-2.0

// Package semver parses package versions and the version ranges that package
// descriptors declare in their dependency constraints.
//
// Versions follow the loose numeric scheme used by guest packages: any number of
// dot-separated numeric components, an optional pre-release after "-" and optional
// build metadata after "+". Strings that do not parse numerically are kept as
// opaque versions that only compare equal to themselves.
//
// Ranges are a disjunction of constraint sets. Each set is a conjunction of
// space-separated constraints using the operators =, ^, ~, >, >=, <, <=, plus
// the wildcard "*" and "x" / "*" placeholder components (e.g. "1.20.x").
package semver
