// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against embedded schemas and decodes
// them into Go values.
//
// Parsing always follows the same flow: compile the schema, compile the user
// document and unify it with a schema definition, then validate and decode.
//
//	//go:embed hostpackages_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[Manifest](schema, data, "#HostPackages",
//	    cueutil.WithFilename(path))
//
// Errors carry the file name and the JSON path of the offending value, for
// example "host.cue: packages[2].version: conflicting values".
package cueutil
