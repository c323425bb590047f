// SPDX-License-Identifier: MPL-2.0

package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/crossmod/crossmod/pkg/fspath"

	"github.com/klauspost/compress/zip"
)

const (
	// GeneratedFileName is the generated adapter jar inside the work directory.
	GeneratedFileName = "adapter_generated.jar"
	// LinksEntry is the index of synthetic links inside the generated jar.
	LinksEntry = "META-INF/crossmod/synthetic-links.json"
)

// generatedEpoch stamps every generated entry so identical content yields identical bytes.
var generatedEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type (
	// Generated accumulates what the host platform must know about the rewritten
	// packages: the synthetic ancestors each weaving class declares, and the
	// packages holding weaving classes per package id. It is safe for concurrent use.
	Generated struct {
		links    sync.Map // host class -> []string
		packages sync.Map // package id -> []string
	}

	linkIndex struct {
		Links         map[string][]string `json:"links"`
		MixinPackages map[string][]string `json:"mixinPackages"`
	}
)

// NewGenerated returns an empty accumulator.
func NewGenerated() *Generated { return &Generated{} }

// Link records the synthetic ancestors of a host class.
func (g *Generated) Link(class string, targets []string) {
	if len(targets) == 0 {
		return
	}
	g.links.Store(class, slices.Clone(targets))
}

// MixinPackages records the weaving packages of a package id.
func (g *Generated) MixinPackages(id string, packages []string) {
	if len(packages) == 0 {
		return
	}
	sorted := slices.Clone(packages)
	slices.Sort(sorted)
	g.packages.Store(id, slices.Compact(sorted))
}

// Links returns a snapshot of the recorded links.
func (g *Generated) Links() map[string][]string { return snapshot(&g.links) }

func snapshot(m *sync.Map) map[string][]string {
	out := make(map[string][]string)
	m.Range(func(k, v any) bool {
		out[k.(string)] = v.([]string)
		return true
	})
	return out
}

// Flush writes the generated jar to path, replacing any previous one.
func (g *Generated) Flush(path string) error {
	index, err := json.MarshalIndent(linkIndex{
		Links:         g.Links(),
		MixinPackages: snapshot(&g.packages),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding synthetic links: %w", err)
	}
	index = append(index, '\n')

	err = fspath.WriteAtomic(path, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for _, e := range []struct {
			name string
			data []byte
		}{
			{"META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\r\nCreated-By: crossmod\r\n\r\n")},
			{LinksEntry, index},
		} {
			fw, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: generatedEpoch})
			if err != nil {
				return err
			}
			if _, err := fw.Write(e.data); err != nil {
				return err
			}
		}
		return zw.Close()
	})
	if err != nil {
		return fmt.Errorf("writing generated jar: %w", err)
	}
	return nil
}
