// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from an explicit file, from config.cue in the user
// configuration directory, or from config.cue in the working directory, in that
// order. Documents are validated against the embedded #Config schema
// (config_schema.cue) before they are merged over the defaults, and
// CROSSMOD_* environment variables override both.
package config
