// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/crossmod/crossmod/pkg/semver"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/jsonc"
)

// ErrInvalidDescriptor is the sentinel error wrapped by ParseError.
var ErrInvalidDescriptor = errors.New("invalid package descriptor")

// packageIDRegex is the identifier format guest packages use.
var packageIDRegex = regexp.MustCompile(`^[a-z][a-z0-9\-_]{1,63}$`)

// validate is a package-level singleton; building validators is expensive.
var validate = newValidator()

type (
	// ParseError is returned when descriptor data is malformed or fails validation.
	// Source identifies the file (and archive) the data came from.
	ParseError struct {
		Source string
		Err    error
	}

	// File is the on-disk JSON shape of a descriptor.
	File struct {
		SchemaVersion int                    `json:"schemaVersion,omitempty" validate:"omitempty,eq=1" jsonschema:"enum=1"`
		ID            string                 `json:"id" validate:"required,packageid" jsonschema:"required"`
		Version       string                 `json:"version" validate:"required" jsonschema:"required"`
		Name          string                 `json:"name,omitempty"`
		Environment   Environment            `json:"environment,omitempty" validate:"omitempty,oneof=client server *" jsonschema:"enum=client,enum=server,enum=*"`
		Provides      []string               `json:"provides,omitempty" validate:"dive,packageid"`
		Depends       map[string]VersionList `json:"depends,omitempty" validate:"dive,keys,required,endkeys"`
		Recommends    map[string]VersionList `json:"recommends,omitempty" validate:"dive,keys,required,endkeys"`
		Suggests      map[string]VersionList `json:"suggests,omitempty" validate:"dive,keys,required,endkeys"`
		Conflicts     map[string]VersionList `json:"conflicts,omitempty" validate:"dive,keys,required,endkeys"`
		Breaks        map[string]VersionList `json:"breaks,omitempty" validate:"dive,keys,required,endkeys"`
		Jars          []JarRef               `json:"jars,omitempty" validate:"dive"`
		Mixins        []MixinRef             `json:"mixins,omitempty" validate:"dive"`
		AccessWidener string                 `json:"accessWidener,omitempty"`
		Custom        map[string]any         `json:"custom,omitempty"`
	}

	// VersionList is a dependency value: a single range string or a list of
	// alternative range strings.
	VersionList []string

	// JarRef is an entry of the "jars" list.
	JarRef struct {
		File string `json:"file" validate:"required" jsonschema:"required"`
	}

	// MixinRef is an entry of the "mixins" list: either a bare config path or an
	// object with a config path and an environment.
	MixinRef struct {
		Config      string      `json:"config" validate:"required" jsonschema:"required"`
		Environment Environment `json:"environment,omitempty" validate:"omitempty,oneof=client server *"`
	}
)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("packageid", func(fl validator.FieldLevel) bool {
		return packageIDRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic("descriptor: validator initialization failed: " + err.Error())
	}
	return v
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// Is reports ErrInvalidDescriptor so callers can use errors.Is for programmatic detection.
func (e *ParseError) Is(target error) bool { return target == ErrInvalidDescriptor }

// UnmarshalJSON accepts either a string or an array of strings.
func (l *VersionList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = VersionList{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return fmt.Errorf("version must be a string or a list of strings: %w", err)
	}
	*l = ss
	return nil
}

// JSONSchema describes the string-or-list shape.
func (VersionList) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	}
}

// UnmarshalJSON accepts either a bare config path or an object.
func (m *MixinRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MixinRef{Config: s}
		return nil
	}
	type plain MixinRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = MixinRef(p)
	return nil
}

// JSONSchema describes the string-or-object shape.
func (MixinRef) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("config", &jsonschema.Schema{Type: "string"})
	props.Set("environment", &jsonschema.Schema{Type: "string", Enum: []any{"client", "server", "*"}})
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "object", Properties: props, Required: []string{"config"}},
		},
	}
}

// Parse decodes, validates and converts descriptor data. source names the file for
// error messages (for archives, "archive.jar!/fabric.mod.json").
func Parse(data []byte, source string) (*Descriptor, error) {
	var f File
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if err := validate.Struct(&f); err != nil {
		return nil, &ParseError{Source: source, Err: fmt.Errorf("validation failed: %w", err)}
	}
	d, err := f.toDescriptor()
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	return d, nil
}

func (f *File) toDescriptor() (*Descriptor, error) {
	version, err := semver.ParseVersion(f.Version)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		ID:            f.ID,
		Version:       version,
		Name:          f.Name,
		Provides:      f.Provides,
		Environment:   f.Environment,
		AccessWidener: f.AccessWidener,
		Custom:        f.Custom,
	}
	if d.Environment == "" {
		d.Environment = EnvAny
	}

	groups := []struct {
		kind DependencyKind
		deps map[string]VersionList
	}{
		{KindRequires, f.Depends},
		{KindRecommends, f.Recommends},
		{KindRecommends, f.Suggests},
		{KindConflicts, f.Conflicts},
		{KindConflicts, f.Breaks},
	}
	for _, g := range groups {
		// Sorted so that identical files always produce identical descriptors.
		targets := make([]string, 0, len(g.deps))
		for target := range g.deps {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			rng, err := semver.ParseRanges(g.deps[target])
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", g.kind, target, err)
			}
			d.Dependencies = append(d.Dependencies, Dependency{Kind: g.kind, Target: target, Range: rng})
		}
	}

	for _, j := range f.Jars {
		d.Jars = append(d.Jars, NestedJar(j))
	}
	for _, m := range f.Mixins {
		env := m.Environment
		if env == "" {
			env = EnvAny
		}
		d.Mixins = append(d.Mixins, MixinEntry{Config: m.Config, Environment: env})
	}

	return d, nil
}

// Schema returns the JSON schema of the descriptor file format.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&File{})

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
