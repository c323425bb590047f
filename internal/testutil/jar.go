// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// JarEntry is one file of a test jar.
type JarEntry struct {
	Name string
	Data []byte
}

// jarEpoch keeps fixture jars byte-identical across runs.
var jarEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Entry is shorthand for a JarEntry with text content.
func Entry(name, data string) JarEntry {
	return JarEntry{Name: name, Data: []byte(data)}
}

// JarBytes returns a jar holding entries in order.
func JarBytes(t testing.TB, entries ...JarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: jarEpoch})
		if err != nil {
			t.Fatalf("jar entry %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("jar entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing jar: %v", err)
	}
	return buf.Bytes()
}

// WriteJar writes a jar holding entries to path.
func WriteJar(t testing.TB, path string, entries ...JarEntry) {
	t.Helper()
	if err := os.WriteFile(path, JarBytes(t, entries...), 0o644); err != nil {
		t.Fatalf("writing jar %s: %v", path, err)
	}
}

// ReadJar returns the entries of the jar at path by name.
func ReadJar(t testing.TB, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening jar %s: %v", path, err)
	}
	defer MustClose(t, zr)

	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("%s!%s: %v", path, f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("%s!%s: %v", path, f.Name, err)
		}
		out[f.Name] = data
	}
	return out
}
