// SPDX-License-Identifier: MPL-2.0

package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/crossmod/crossmod/internal/remap"
	"github.com/crossmod/crossmod/pkg/fspath"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zip"
)

const manifestEntry = "META-INF/MANIFEST.MF"

// ErrDuplicateEntry is returned when two entries of a jar map to the same name.
var ErrDuplicateEntry = errors.New("duplicate jar entry")

type (
	// Job describes one package jar to transform.
	Job struct {
		// ID is the package id the jar provides.
		ID    string
		Input string
		// Refmaps and AccessWidener name jar entries rewritten alongside the classes.
		Refmaps       []string
		AccessWidener string
		// MixinPackages lists the packages holding weaving classes.
		MixinPackages []string
		// Generated marks jars already built against host names; they are copied unchanged.
		Generated bool
	}

	// AuditTrail records what a transform did to one jar.
	AuditTrail struct {
		Package string              `yaml:"package"`
		Input   string              `yaml:"input"`
		Output  string              `yaml:"output"`
		Copied  bool                `yaml:"copied,omitempty"`
		Entries int                 `yaml:"entries"`
		Classes int                 `yaml:"classes"`
		Refmaps int                 `yaml:"refmaps,omitempty"`
		Stats   remap.Stats         `yaml:"stats"`
		Links   map[string][]string `yaml:"links,omitempty"`
	}

	// Worker transforms the input of a job into output.
	Worker interface {
		Transform(ctx context.Context, job Job, output string) (*AuditTrail, error)
	}

	// JarTransformer rewrites the classes and resources of a jar with an Engine.
	JarTransformer struct {
		engine *remap.Engine
		logger *log.Logger
	}
)

// NewJarTransformer creates a Worker backed by engine.
func NewJarTransformer(engine *remap.Engine, logger *log.Logger) *JarTransformer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &JarTransformer{engine: engine, logger: logger}
}

// Transform implements Worker.
func (t *JarTransformer) Transform(ctx context.Context, job Job, output string) (*AuditTrail, error) {
	audit := &AuditTrail{Package: job.ID, Input: job.Input, Output: output}
	if job.Generated {
		audit.Copied = true
		return audit, copyFile(job.Input, output)
	}

	zr, err := zip.OpenReader(job.Input)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", job.Input, err)
	}
	defer zr.Close()

	err = fspath.WriteAtomic(output, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		seen := make(map[string]bool, len(zr.File))
		for _, f := range zr.File {
			if err := ctx.Err(); err != nil {
				return err
			}
			if isSignatureFile(f.Name) {
				continue
			}
			name, data, err := t.entry(job, f, audit)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			if seen[name] {
				return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
			}
			seen[name] = true

			method := f.Method
			if method != zip.Store {
				method = zip.Deflate
			}
			fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: f.Modified, Comment: f.Comment})
			if err != nil {
				return err
			}
			if _, err := fw.Write(data); err != nil {
				return err
			}
			audit.Entries++
		}
		return zw.Close()
	})
	if err != nil {
		return nil, err
	}
	t.logger.Debug("transformed jar", "package", job.ID, "entries", audit.Entries,
		"classes", audit.Classes, "literals", audit.Stats.Literals)
	return audit, nil
}

// entry returns the output name and content of a jar entry.
func (t *JarTransformer) entry(job Job, f *zip.File, audit *AuditTrail) (string, []byte, error) {
	if strings.HasSuffix(f.Name, "/") {
		return f.Name, nil, nil
	}
	data, err := readEntry(f)
	if err != nil {
		return "", nil, err
	}

	switch {
	case strings.HasSuffix(f.Name, ".class") && !strings.HasPrefix(f.Name, "META-INF/"):
		unit, err := t.engine.NewUnit(data)
		if err != nil {
			return "", nil, err
		}
		out, err := t.engine.Rewrite(unit)
		if err != nil {
			return "", nil, err
		}
		audit.Classes++
		audit.Stats.Add(out.Stats)
		if len(out.Synthetic) > 0 {
			if audit.Links == nil {
				audit.Links = make(map[string][]string)
			}
			audit.Links[out.Name] = out.Synthetic
		}
		return out.Name + ".class", out.Data, nil
	case slices.Contains(job.Refmaps, f.Name):
		rewritten, changed, err := t.engine.RewriteRefmap(data)
		if err != nil {
			return "", nil, err
		}
		audit.Refmaps++
		audit.Stats.Literals += changed
		return f.Name, rewritten, nil
	case job.AccessWidener != "" && f.Name == job.AccessWidener:
		rewritten, err := t.engine.RewriteAccessWidener(data)
		return f.Name, rewritten, err
	case f.Name == manifestEntry:
		return f.Name, mainSection(data), nil
	}
	return f.Name, data, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// isSignatureFile reports whether name is a jar signature, which rewriting invalidates.
func isSignatureFile(name string) bool {
	dir, file := path.Split(name)
	if dir != "META-INF/" {
		return false
	}
	switch strings.ToUpper(path.Ext(file)) {
	case ".SF", ".RSA", ".DSA", ".EC":
		return true
	}
	return strings.HasPrefix(strings.ToUpper(file), "SIG-")
}

// mainSection drops the per-entry digest sections of a manifest.
func mainSection(manifest []byte) []byte {
	normalized := bytes.ReplaceAll(manifest, []byte("\r\n"), []byte("\n"))
	main, _, found := bytes.Cut(normalized, []byte("\n\n"))
	if !found {
		return manifest
	}
	return bytes.ReplaceAll(append(main, '\n', '\n'), []byte("\n"), []byte("\r\n"))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return fspath.WriteAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}
