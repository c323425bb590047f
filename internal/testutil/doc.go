// SPDX-License-Identifier: MPL-2.0

// Package testutil provides test helpers: environment and filesystem helpers
// that fail the test on error, jar fixtures, and a controllable clock.
package testutil
