// SPDX-License-Identifier: MPL-2.0

// Package candidate builds the load-candidate graph handed to the constraint
// resolver.
//
// Every guest package becomes exactly one Candidate, however many packages embed
// it. Embedded packages are reachable only through their parents and expose no
// standalone path. Parent relations are kept in a side table on the Graph keyed by
// package identity, so candidates never own their parents.
package candidate
