// SPDX-License-Identifier: MPL-2.0

package transform

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crossmod/crossmod/pkg/fspath"

	"github.com/charmbracelet/log"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

const (
	// CacheFileName is the cache index file inside the work directory.
	CacheFileName = "transform_cache.cbor.zst"

	cacheVersion = 1
	// fingerprintContext separates cache fingerprints from any other BLAKE3 use.
	fingerprintContext = "crossmod 2025 transform cache fingerprint v1"
)

var (
	cacheEncMode cbor.EncMode
	cacheDecMode cbor.DecMode
)

func init() {
	var err error
	cacheEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transform: CBOR encoder initialization failed: " + err.Error())
	}
	cacheDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("transform: CBOR decoder initialization failed: " + err.Error())
	}
}

type (
	// Clock supplies validation timestamps.
	Clock interface {
		Now() time.Time
	}

	// CacheEntry records the input fingerprint a cached output was built from.
	CacheEntry struct {
		Fingerprint   string    `cbor:"1,keyasint"`
		Output        string    `cbor:"2,keyasint"`
		LastValidated time.Time `cbor:"3,keyasint"`
		// Links are the synthetic links the output contributed to the generated jar.
		Links map[string][]string `cbor:"4,keyasint,omitempty"`
	}

	// Cache maps input jar paths to the outputs built from them. It is safe for
	// concurrent use; the index is persisted by Flush.
	Cache struct {
		path    string
		salt    string
		clock   Clock
		logger  *log.Logger
		entries sync.Map // input path -> CacheEntry
	}

	cacheFile struct {
		Version int                   `cbor:"1,keyasint"`
		Salt    string                `cbor:"2,keyasint"`
		Entries map[string]CacheEntry `cbor:"3,keyasint"`
	}

	systemClock struct{}
)

func (systemClock) Now() time.Time { return time.Now() }

// OpenCache loads the cache index of workDir. salt identifies everything
// besides the input bytes that shapes an output (mapping table, namespace,
// platform version); an index written under a different salt is discarded. A
// missing or unreadable index yields an empty cache.
func OpenCache(workDir, salt string, clock Clock, logger *log.Logger) (*Cache, error) {
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	c := &Cache{path: filepath.Join(workDir, CacheFileName), salt: salt, clock: clock, logger: logger}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading transform cache: %w", err)
	}

	var file cacheFile
	if err := decodeCache(data, &file); err != nil {
		logger.Warn("discarding unreadable transform cache", "path", c.path, "err", err)
		return c, nil
	}
	if file.Version != cacheVersion || file.Salt != salt {
		logger.Info("discarding stale transform cache", "path", c.path)
		return c, nil
	}
	for input, entry := range file.Entries {
		c.entries.Store(input, entry)
	}
	logger.Debug("loaded transform cache", "entries", len(file.Entries))
	return c, nil
}

func decodeCache(data []byte, file *cacheFile) error {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer dec.Close()
	raw, err := io.ReadAll(dec)
	if err != nil {
		return err
	}
	return cacheDecMode.Unmarshal(raw, file)
}

// Fingerprint returns the salted BLAKE3 digest of a file.
func (c *Cache) Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.NewDeriveKey(fingerprintContext)
	_, _ = h.Write([]byte(c.salt))
	_, _ = h.Write([]byte{0})
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsUpToDate reports whether output exists and was built from the current
// bytes of input. The fingerprint is returned either way for Save.
func (c *Cache) IsUpToDate(input, output string) (bool, string, error) {
	fingerprint, err := c.Fingerprint(input)
	if err != nil {
		return false, "", err
	}
	v, ok := c.entries.Load(input)
	if !ok {
		return false, fingerprint, nil
	}
	entry := v.(CacheEntry)
	if entry.Fingerprint != fingerprint || entry.Output != output {
		return false, fingerprint, nil
	}
	if _, err := os.Stat(output); err != nil {
		return false, fingerprint, nil
	}
	entry.LastValidated = c.clock.Now().UTC()
	c.entries.Store(input, entry)
	return true, fingerprint, nil
}

// Save records that output was built from input with the given fingerprint.
func (c *Cache) Save(input, output, fingerprint string, links map[string][]string) {
	c.entries.Store(input, CacheEntry{
		Fingerprint:   fingerprint,
		Output:        output,
		LastValidated: c.clock.Now().UTC(),
		Links:         links,
	})
}

// Entry returns the entry recorded for input.
func (c *Cache) Entry(input string) (CacheEntry, bool) {
	v, ok := c.entries.Load(input)
	if !ok {
		return CacheEntry{}, false
	}
	return v.(CacheEntry), true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Flush persists the index with deterministic encoding.
func (c *Cache) Flush() error {
	file := cacheFile{Version: cacheVersion, Salt: c.salt, Entries: make(map[string]CacheEntry)}
	c.entries.Range(func(k, v any) bool {
		file.Entries[k.(string)] = v.(CacheEntry)
		return true
	})

	raw, err := cacheEncMode.Marshal(file)
	if err != nil {
		return fmt.Errorf("encoding transform cache: %w", err)
	}
	err = fspath.WriteAtomic(c.path, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		if _, err := enc.Write(raw); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return fmt.Errorf("writing transform cache: %w", err)
	}
	c.logger.Debug("saved transform cache", "entries", len(file.Entries), "path", c.path)
	return nil
}
