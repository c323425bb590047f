// SPDX-License-Identifier: MPL-2.0

// Package loader runs a load: it locates guest packages, resolves a load set
// against host packages, and translates the accepted archives to host names.
//
// All run state lives in an explicit RunContext built once per run.
package loader
