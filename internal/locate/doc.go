// SPDX-License-Identifier: MPL-2.0

// Package locate finds guest packages in a mods directory and reads what the
// later stages need from each archive: the normalized descriptor, nested
// packages, weaving configurations with their reference maps and packages, the
// access widener and whether the archive was already built for the host.
package locate
