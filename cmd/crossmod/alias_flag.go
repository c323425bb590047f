// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/crossmod/crossmod/internal/alias"

	"github.com/spf13/pflag"
)

// ErrInvalidAlias is returned for malformed --alias values.
var ErrInvalidAlias = errors.New("invalid alias")

// aliasValue collects repeated --alias id=alias[,alias] flags.
type aliasValue struct {
	table alias.Table
}

var _ pflag.Value = (*aliasValue)(nil)

func newAliasValue() *aliasValue {
	return &aliasValue{table: alias.Table{}}
}

// String implements pflag.Value.
func (a *aliasValue) String() string {
	ids := make([]string, 0, len(a.table))
	for id := range a.table {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+"="+strings.Join(a.table[id], ","))
	}
	return strings.Join(parts, " ")
}

// Set implements pflag.Value.
func (a *aliasValue) Set(s string) error {
	id, list, ok := strings.Cut(s, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return fmt.Errorf("%w %q: want id=alias[,alias]", ErrInvalidAlias, s)
	}
	var aliases []string
	for _, a := range strings.Split(list, ",") {
		if a = strings.TrimSpace(a); a != "" {
			aliases = append(aliases, a)
		}
	}
	if len(aliases) == 0 {
		return fmt.Errorf("%w %q: no alias ids", ErrInvalidAlias, s)
	}
	a.table = a.table.Merge(alias.Table{id: aliases})
	return nil
}

// Type implements pflag.Value.
func (*aliasValue) Type() string { return "id=alias" }

// Table returns the collected aliases.
func (a *aliasValue) Table() alias.Table { return a.table }
