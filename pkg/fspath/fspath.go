// SPDX-License-Identifier: MPL-2.0

// Package fspath provides the file path and file replacement helpers shared by
// the locating and transforming stages.
package fspath

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Stem returns the base name of p without its extension.
func Stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsJar reports whether name has a ".jar" extension, ignoring case.
func IsJar(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".jar")
}

// WriteAtomic writes p through a temp file in the same directory and renames it
// into place, so readers never observe a partial file. Missing parent
// directories are created.
func WriteAtomic(p string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".crossmod-*"+filepath.Ext(p))
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", p, err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replacing %s: %w", p, err)
	}
	renamed = true
	return nil
}

// WriteFileAtomic is WriteAtomic for a byte slice.
func WriteFileAtomic(p string, data []byte) error {
	return WriteAtomic(p, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
