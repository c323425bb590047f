// SPDX-License-Identifier: MPL-2.0

// Package classpath provides class bytes by internal name from jars,
// directories and memory.
package classpath

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zip"
)

const classSuffix = ".class"

// ErrClosed is returned by Jar.ClassBytes after Close.
var ErrClosed = errors.New("jar closed")

type (
	// Provider returns the bytes of a class by internal name. A missing class
	// is reported as ok == false with a nil error.
	Provider interface {
		ClassBytes(name string) (data []byte, ok bool, err error)
	}

	// Chain consults providers in order and returns the first hit.
	Chain []Provider

	// Jar provides the classes of a jar file.
	Jar struct {
		path    string
		closer  io.Closer
		closed  atomic.Bool
		entries map[string]*zip.File
	}

	// Dir provides classes from an exploded directory tree.
	Dir struct {
		root string
	}

	// Memory is an in-memory provider. The zero value is ready to use.
	Memory struct {
		mu      sync.RWMutex
		classes map[string][]byte
	}
)

// ClassBytes implements Provider.
func (c Chain) ClassBytes(name string) ([]byte, bool, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		data, ok, err := p.ClassBytes(name)
		if err != nil || ok {
			return data, ok, err
		}
	}
	return nil, false, nil
}

// OpenJar opens a jar and indexes its class entries.
func OpenJar(path string) (*Jar, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open jar %s: %w", path, err)
	}
	j := newJar(path, &rc.Reader)
	j.closer = rc
	return j, nil
}

// NewJar indexes the classes of an already opened archive.
func NewJar(label string, r io.ReaderAt, size int64) (*Jar, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read jar %s: %w", label, err)
	}
	return newJar(label, zr), nil
}

func newJar(path string, zr *zip.Reader) *Jar {
	j := &Jar{path: path, entries: make(map[string]*zip.File)}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, classSuffix) {
			continue
		}
		j.entries[strings.TrimSuffix(f.Name, classSuffix)] = f
	}
	return j
}

// Path returns the jar location or label.
func (j *Jar) Path() string { return j.path }

// Classes returns the internal names of all classes in the jar.
func (j *Jar) Classes() []string {
	out := make([]string, 0, len(j.entries))
	for name := range j.entries {
		out = append(out, name)
	}
	return out
}

// ClassBytes implements Provider.
func (j *Jar) ClassBytes(name string) ([]byte, bool, error) {
	f, ok := j.entries[name]
	if !ok {
		return nil, false, nil
	}
	if j.closed.Load() {
		return nil, false, fmt.Errorf("%s: %w", j.path, ErrClosed)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false, fmt.Errorf("%s!%s: %w", j.path, f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("%s!%s: %w", j.path, f.Name, err)
	}
	return data, true, nil
}

// Close releases the underlying file if the jar was opened by path. Later
// reads fail with ErrClosed.
func (j *Jar) Close() error {
	if j.closed.Swap(true) || j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

// NewDir returns a provider rooted at dir.
func NewDir(dir string) *Dir { return &Dir{root: dir} }

// ClassBytes implements Provider.
func (d *Dir) ClassBytes(name string) ([]byte, bool, error) {
	if strings.Contains(name, "..") {
		return nil, false, nil
	}
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(name)+classSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put stores a class.
func (m *Memory) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.classes == nil {
		m.classes = make(map[string][]byte)
	}
	m.classes[name] = data
}

// ClassBytes implements Provider.
func (m *Memory) ClassBytes(name string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.classes[name]
	return data, ok, nil
}
