// SPDX-License-Identifier: MPL-2.0

package locate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/crossmod/crossmod/internal/alias"
	"github.com/crossmod/crossmod/internal/candidate"
	"github.com/crossmod/crossmod/pkg/descriptor"
	"github.com/crossmod/crossmod/pkg/fspath"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zip"
	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

const (
	manifestEntry = "META-INF/MANIFEST.MF"

	// LoomGeneratedKey is the custom descriptor value marking archives produced by
	// the guest build tooling.
	LoomGeneratedKey = "fabric-loom:generated"
	// LoomRemapAttribute is the manifest attribute telling the guest loader to
	// rename a generated archive at runtime.
	LoomRemapAttribute = "Fabric-Loom-Remap"

	maxNesting = 8
)

var (
	// ErrNoDescriptor is returned for archives without a package descriptor.
	ErrNoDescriptor = errors.New("archive has no package descriptor")
	// ErrNesting is returned when nested packages exceed the supported depth.
	ErrNesting = errors.New("nested packages too deep")
	// ErrMixinConfig is returned for unreadable weaving configurations.
	ErrMixinConfig = errors.New("invalid mixin configuration")
)

type (
	// Options configures a Locator.
	Options struct {
		Environment descriptor.Environment
		// Aliases relax the constraints of every descriptor read.
		Aliases alias.Table
		// ExtractDir receives nested archives; it defaults to a directory under the
		// system temp dir.
		ExtractDir string
	}

	// Package is a located guest archive.
	Package struct {
		Descriptor *descriptor.Descriptor
		Path       string
		// Parent is the path of the archive this one was extracted from.
		Parent string
		// MixinConfigs lists declared and discovered weaving configurations.
		MixinConfigs []string
		Refmaps      []string
		// MixinPackages are the weaving packages in path form ("a/b/").
		MixinPackages []string
		AccessWidener string
		// Generated marks archives already built against host names.
		Generated bool
		Manifest  map[string]string
	}

	// Result is the outcome of a Scan.
	Result struct {
		// Packages are the top-level packages in directory order.
		Packages []*Package
		// Embeddings maps a parent identity to its nested packages.
		Embeddings candidate.Embeddings
		// Skipped lists archives without a descriptor.
		Skipped []string

		byPath map[string]*Package
	}

	// Locator reads guest packages.
	Locator struct {
		opts   Options
		logger *log.Logger
	}

	mixinConfig struct {
		Package string `json:"package"`
		Refmap  string `json:"refmap"`
	}
)

// NewLocator creates a Locator. A nil logger discards diagnostics.
func NewLocator(opts Options, logger *log.Logger) *Locator {
	if opts.Environment == "" {
		opts.Environment = descriptor.EnvAny
	}
	if opts.ExtractDir == "" {
		opts.ExtractDir = filepath.Join(os.TempDir(), "crossmod-nested")
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Locator{opts: opts, logger: logger}
}

// Candidate returns the candidate form of p.
func (p *Package) Candidate() candidate.Package {
	return candidate.Package{Descriptor: p.Descriptor, Path: p.Path}
}

// ToLoad returns the top-level packages in candidate form.
func (r *Result) ToLoad() []candidate.Package {
	out := make([]candidate.Package, 0, len(r.Packages))
	for _, p := range r.Packages {
		out = append(out, p.Candidate())
	}
	return out
}

// Lookup returns the package read from path, top-level or nested.
func (r *Result) Lookup(path string) (*Package, bool) {
	p, ok := r.byPath[path]
	return p, ok
}

// All returns every package read, top-level and nested, in read order.
func (r *Result) All() []*Package {
	out := make([]*Package, 0, len(r.byPath))
	seen := make(map[*Package]bool, len(r.byPath))
	var visit func(p *Package)
	visit = func(p *Package) {
		if seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
		for _, child := range r.Embeddings[p.Descriptor.Identity()] {
			if nested, ok := r.byPath[child.Path]; ok {
				visit(nested)
			}
		}
	}
	for _, p := range r.Packages {
		visit(p)
	}
	return out
}

// Scan reads every jar in dir, in name order.
func (l *Locator) Scan(ctx context.Context, dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading mods directory: %w", err)
	}
	res := &Result{Embeddings: make(candidate.Embeddings), byPath: make(map[string]*Package)}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !fspath.IsJar(entry.Name()) {
			continue
		}
		p, err := l.read(filepath.Join(dir, entry.Name()), "", 0, res)
		if errors.Is(err, ErrNoDescriptor) {
			l.logger.Warn("skipping archive without descriptor", "path", entry.Name())
			res.Skipped = append(res.Skipped, filepath.Join(dir, entry.Name()))
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Packages = append(res.Packages, p)
	}
	l.logger.Info("located packages", "dir", dir, "packages", len(res.Packages), "nested", len(res.byPath)-len(res.Packages))
	return res, nil
}

// Read reads a single archive and its nested packages.
func (l *Locator) Read(path string) (*Package, *Result, error) {
	res := &Result{Embeddings: make(candidate.Embeddings), byPath: make(map[string]*Package)}
	p, err := l.read(path, "", 0, res)
	if err != nil {
		return nil, nil, err
	}
	res.Packages = []*Package{p}
	return p, res, nil
}

func (l *Locator) read(jarPath, parent string, depth int, res *Result) (*Package, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("%w: %s", ErrNesting, jarPath)
	}
	if p, ok := res.byPath[jarPath]; ok {
		return p, nil
	}

	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", jarPath, err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	descFile, ok := files[descriptor.FileName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDescriptor, jarPath)
	}
	data, err := readEntry(descFile)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor of %s: %w", jarPath, err)
	}
	desc, err := descriptor.Parse(data, jarPath+"!/"+descriptor.FileName)
	if err != nil {
		return nil, err
	}

	p := &Package{
		Descriptor:    alias.Normalize(desc, l.opts.Aliases),
		Path:          jarPath,
		Parent:        parent,
		AccessWidener: desc.AccessWidener,
	}
	if f, ok := files[manifestEntry]; ok {
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("reading manifest of %s: %w", jarPath, err)
		}
		p.Manifest = ParseManifest(data)
	}
	p.Generated = isGenerated(desc, p.Manifest)
	if err := l.readMixins(p, zr.File, files); err != nil {
		return nil, err
	}
	res.byPath[jarPath] = p

	id := p.Descriptor.Identity()
	for _, jar := range desc.Jars {
		f, ok := files[jar.File]
		if !ok {
			l.logger.Warn("nested package missing", "package", desc.ID, "file", jar.File)
			continue
		}
		extracted, err := l.extract(f)
		if err != nil {
			return nil, fmt.Errorf("extracting %s from %s: %w", jar.File, jarPath, err)
		}
		child, err := l.read(extracted, jarPath, depth+1, res)
		if errors.Is(err, ErrNoDescriptor) {
			l.logger.Debug("nested archive is a plain library", "package", desc.ID, "file", jar.File)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !slices.ContainsFunc(res.Embeddings[id], func(c candidate.Package) bool { return c.Path == child.Path }) {
			res.Embeddings[id] = append(res.Embeddings[id], child.Candidate())
		}
	}
	l.logger.Debug("read package", "id", desc.ID, "version", desc.Version, "path", jarPath,
		"mixins", len(p.MixinConfigs), "nested", len(res.Embeddings[id]), "generated", p.Generated)
	return p, nil
}

// readMixins reads the weaving configurations declared for the environment and
// the undeclared ones found by file name anywhere in the archive.
func (l *Locator) readMixins(p *Package, entries []*zip.File, files map[string]*zip.File) error {
	configs := p.Descriptor.MixinConfigs(l.opts.Environment)
	declared := make(map[string]bool, len(p.Descriptor.Mixins))
	for _, m := range p.Descriptor.Mixins {
		declared[m.Config] = true
	}
	for _, f := range entries {
		if isMixinConfigName(f.Name) && !declared[f.Name] {
			configs = append(configs, f.Name)
		}
	}

	for _, name := range configs {
		f, ok := files[name]
		if !ok {
			l.logger.Warn("mixin configuration missing", "package", p.Descriptor.ID, "config", name)
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return fmt.Errorf("%w: %s in %s: %w", ErrMixinConfig, name, p.Path, err)
		}
		var cfg mixinConfig
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return fmt.Errorf("%w: %s in %s: %w", ErrMixinConfig, name, p.Path, err)
		}
		p.MixinConfigs = append(p.MixinConfigs, name)
		if cfg.Refmap != "" && !slices.Contains(p.Refmaps, cfg.Refmap) {
			p.Refmaps = append(p.Refmaps, cfg.Refmap)
		}
		if cfg.Package != "" {
			pkg := strings.ReplaceAll(cfg.Package, ".", "/") + "/"
			if !slices.Contains(p.MixinPackages, pkg) {
				p.MixinPackages = append(p.MixinPackages, pkg)
			}
		}
	}
	return nil
}

// extract copies a nested archive into the extract directory under a name
// derived from its content, reusing an earlier extraction of the same bytes.
func (l *Locator) extract(f *zip.File) (string, error) {
	data, err := readEntry(f)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	name := hex.EncodeToString(sum[:8]) + "_" + path.Base(f.Name)
	target := filepath.Join(l.opts.ExtractDir, name)
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	if err := fspath.WriteFileAtomic(target, data); err != nil {
		return "", err
	}
	return target, nil
}

// isMixinConfigName matches "*.mixins.json" at any depth and "mixins.*.json"
// at the archive root.
func isMixinConfigName(name string) bool {
	return strings.HasSuffix(name, ".mixins.json") ||
		(strings.HasPrefix(name, "mixins.") && strings.HasSuffix(name, ".json"))
}

// isGenerated reports whether an archive built by the guest tooling has already
// been renamed for the runtime.
func isGenerated(d *descriptor.Descriptor, manifest map[string]string) bool {
	generated, ok := d.CustomBool(LoomGeneratedKey)
	if !ok || !generated {
		return false
	}
	return manifest[LoomRemapAttribute] != "true"
}

// ParseManifest returns the main section attributes of a jar manifest.
// Continuation lines are joined.
func ParseManifest(data []byte) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	var last string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") && last != "" {
			out[last] += line[1:]
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		last = strings.TrimSpace(key)
		out[last] = strings.TrimSpace(value)
	}
	return out
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
