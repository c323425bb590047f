// SPDX-License-Identifier: MPL-2.0

package main

import (
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"crossmod": Execute,
	})
}

// TestScript runs the CLI scenarios under testdata/script against the
// crossmod command registered in TestMain.
func TestScript(t *testing.T) {
	t.Parallel()

	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
	})
}
