// SPDX-License-Identifier: MPL-2.0

package mapping

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTable is the sentinel error wrapped by TableError.
var ErrInvalidTable = errors.New("invalid mapping table")

type (
	// Table is the on-disk YAML shape of a mapping table.
	//
	//	namespaces: {guest: intermediary, host: srg}
	//	classes:
	//	  net/minecraft/class_1297: net/minecraft/world/entity/Entity
	//	fields:
	//	  - {owner: net/minecraft/class_1297, name: field_6002, target: level}
	//	methods:
	//	  - {owner: net/minecraft/class_1297, name: method_5773, desc: ()V, target: tick}
	Table struct {
		Namespaces Namespaces        `yaml:"namespaces"`
		Classes    map[string]string `yaml:"classes"`
		Fields     []Member          `yaml:"fields"`
		Methods    []Member          `yaml:"methods"`
	}

	// Namespaces names the two sides of a table.
	Namespaces struct {
		Guest string `yaml:"guest"`
		Host  string `yaml:"host"`
	}

	// Member is one field or method entry. Owner and Desc are in guest names.
	// Desc is optional for fields and required for methods.
	Member struct {
		Owner  string `yaml:"owner"`
		Name   string `yaml:"name"`
		Desc   string `yaml:"desc,omitempty"`
		Target string `yaml:"target"`
	}

	// TableError describes a malformed table entry.
	TableError struct {
		Source string
		Entry  string
		Reason string
	}
)

// Error implements the error interface.
func (e *TableError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("%s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Entry, e.Reason)
}

// Unwrap returns ErrInvalidTable so callers can use errors.Is for programmatic detection.
func (e *TableError) Unwrap() error { return ErrInvalidTable }

// Load reads and indexes the mapping table at path.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping table: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes YAML table data and indexes it. source is used in error messages.
func Parse(data []byte, source string) (*Index, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, &TableError{Source: source, Reason: err.Error()}
	}
	return New(&t, source)
}

// Validate checks that every entry is complete.
func (t *Table) Validate(source string) error {
	for guest, host := range t.Classes {
		if guest == "" || host == "" {
			return &TableError{Source: source, Entry: guest + " -> " + host, Reason: "class entries need both names"}
		}
	}
	for _, f := range t.Fields {
		if f.Owner == "" || f.Name == "" || f.Target == "" {
			return &TableError{Source: source, Entry: f.String(), Reason: "field entries need owner, name and target"}
		}
	}
	for _, m := range t.Methods {
		if m.Owner == "" || m.Name == "" || m.Target == "" || m.Desc == "" {
			return &TableError{Source: source, Entry: m.String(), Reason: "method entries need owner, name, desc and target"}
		}
		if m.Desc[0] != '(' {
			return &TableError{Source: source, Entry: m.String(), Reason: "method desc must start with '('"}
		}
	}
	return nil
}

// String renders the member as "owner.name desc -> target".
func (m Member) String() string {
	s := m.Owner + "." + m.Name
	if m.Desc != "" {
		s += " " + m.Desc
	}
	return s + " -> " + m.Target
}
