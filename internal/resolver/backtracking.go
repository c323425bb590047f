// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/crossmod/crossmod/internal/alias"
	"github.com/crossmod/crossmod/internal/candidate"
	"github.com/crossmod/crossmod/internal/dag"
	"github.com/crossmod/crossmod/pkg/descriptor"

	"github.com/charmbracelet/log"
)

type (
	// Backtracking is the reference ConstraintResolver.
	//
	// Standalone guest packages, host packages and builtins are mandatory. Every
	// package embedded by a selected candidate must be selected too; when several
	// versions of an embedded id are reachable the highest is tried first and
	// lower ones are tried on failure.
	Backtracking struct {
		aliases *alias.Registry
		logger  *log.Logger
	}

	// search is the state of one Resolve call.
	search struct {
		ctx      context.Context
		deps     map[*candidate.Candidate][]descriptor.Dependency
		disabled map[string]*candidate.Candidate
		aliases  *alias.Registry
		byID     map[string][]*candidate.Candidate
		first    *Failure
	}

	// selection maps a package id to the chosen candidate.
	selection map[string]*candidate.Candidate
)

// NewBacktracking creates the reference resolver. aliases may be nil.
func NewBacktracking(aliases *alias.Registry, logger *log.Logger) *Backtracking {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Backtracking{aliases: aliases, logger: logger}
}

// Resolve implements ConstraintResolver.
func (b *Backtracking) Resolve(ctx context.Context, candidates []*candidate.Candidate, env descriptor.Environment, overrides Overrides) (*Result, error) {
	s := &search{
		ctx:      ctx,
		deps:     make(map[*candidate.Candidate][]descriptor.Dependency, len(candidates)),
		disabled: make(map[string]*candidate.Candidate),
		aliases:  b.aliases,
		byID:     make(map[string][]*candidate.Candidate),
	}
	result := &Result{}

	initial := make(selection)
	for _, c := range candidates {
		if !c.Descriptor.LoadsIn(env) {
			s.disabled[c.ID()] = c
			result.Disabled = append(result.Disabled, c)
			continue
		}
		s.deps[c] = overrides.Apply(c.Descriptor).Dependencies
		s.byID[c.ID()] = append(s.byID[c.ID()], c)
		if !c.Standalone() {
			continue
		}
		if prev, ok := initial[c.ID()]; ok {
			return nil, duplicateFailure(prev, c)
		}
		initial[c.ID()] = c
	}

	sel, err := s.solve(initial)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		return nil, s.first
	}

	result.Warnings = s.recommendations(sel)
	for _, w := range result.Warnings {
		b.logger.Warn(w)
	}

	order, cycle := s.loadOrder(sel, candidates)
	if cycle != nil {
		b.logger.Warn("load order contains a cycle; falling back to discovery order", "packages", strings.Join(cycle.Cycle, ", "))
	}
	for _, id := range order {
		result.Accepted = append(result.Accepted, sel[id])
	}

	b.logger.Debug("resolved packages", "accepted", len(result.Accepted), "disabled", len(result.Disabled))
	return result, nil
}

// solve returns a complete consistent selection extending sel, or nil when none
// exists. The first failure met on the preferred path is kept in s.first.
func (s *search) solve(sel selection) (selection, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}

	id, options := s.nextPending(sel)
	if id == "" {
		if f := s.validate(sel); f != nil {
			if s.first == nil {
				s.first = f
			}
			return nil, nil
		}
		return sel, nil
	}

	for _, opt := range options {
		sel[id] = opt
		found, err := s.solve(sel)
		if err != nil || found != nil {
			return found, err
		}
		delete(sel, id)
	}
	return nil, nil
}

// nextPending returns the first embedded id reachable from sel that has not
// been decided, with its options ordered by preference.
func (s *search) nextPending(sel selection) (string, []*candidate.Candidate) {
	for _, parent := range sel.sorted() {
		for _, child := range parent.Children {
			if _, decided := sel[child.ID()]; decided {
				continue
			}
			if _, ok := s.deps[child]; !ok {
				// Disabled for this environment.
				continue
			}
			return child.ID(), s.options(child.ID(), sel)
		}
	}
	return "", nil
}

// options lists reachable candidates for id, highest version first.
func (s *search) options(id string, sel selection) []*candidate.Candidate {
	var out []*candidate.Candidate
	for _, c := range s.byID[id] {
		for _, parent := range sel {
			if slices.Contains(parent.Children, c) {
				out = append(out, c)
				break
			}
		}
	}
	slices.SortStableFunc(out, func(a, b *candidate.Candidate) int {
		return b.Descriptor.Version.Compare(a.Descriptor.Version)
	})
	return out
}

// providers returns the selected candidates that satisfy target: by id, by
// provides, or through a registered alias.
func (s *search) providers(target string, sel selection) []*candidate.Candidate {
	var out []*candidate.Candidate
	if c, ok := sel[target]; ok {
		out = append(out, c)
	}
	for _, c := range sel.sorted() {
		if c.ID() != target && slices.Contains(c.Descriptor.Provides, target) {
			out = append(out, c)
		}
	}
	if s.aliases != nil {
		for _, id := range s.aliases.Providers(target) {
			if c, ok := sel[id]; ok && !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	return out
}

func (s *search) validate(sel selection) *Failure {
	for _, c := range sel.sorted() {
		for _, dep := range s.deps[c] {
			providers := s.providers(dep.Target, sel)
			switch dep.Kind {
			case descriptor.KindRequires:
				if f := s.checkRequires(c, dep, providers); f != nil {
					return f
				}
			case descriptor.KindConflicts:
				for _, p := range providers {
					if p != c && dep.Range.Matches(p.Descriptor.Version) {
						return conflictFailure(c, dep, p)
					}
				}
			}
		}
	}
	return nil
}

func (s *search) checkRequires(c *candidate.Candidate, dep descriptor.Dependency, providers []*candidate.Candidate) *Failure {
	for _, p := range providers {
		if dep.Range.Matches(p.Descriptor.Version) {
			return nil
		}
	}
	if len(providers) > 0 {
		return wrongVersionFailure(c, dep, providers)
	}
	if d, ok := s.disabled[dep.Target]; ok {
		return &Failure{
			Explanation: fmt.Sprintf("Unsatisfied package constraints:\n\t- %s requires %s %s, but %s is not available in this environment (%s only)\n\t\t- Remove %s or run it in a matching environment",
				c.Identity(), dep.Target, dep.Range, d.Identity(), d.Descriptor.Environment, c.ID()),
			Packages: []descriptor.Identity{c.Identity(), d.Identity()},
		}
	}
	return &Failure{
		Explanation: fmt.Sprintf("Unsatisfied package constraints:\n\t- %s requires %s %s, which is missing\n\t\t- Install %s %s",
			c.Identity(), dep.Target, dep.Range, dep.Target, dep.Range),
		Packages: []descriptor.Identity{c.Identity(), {ID: dep.Target, Version: dep.Range.String()}},
	}
}

func (s *search) recommendations(sel selection) []string {
	var out []string
	for _, c := range sel.sorted() {
		for _, dep := range s.deps[c] {
			if dep.Kind != descriptor.KindRecommends {
				continue
			}
			satisfied := false
			for _, p := range s.providers(dep.Target, sel) {
				if dep.Range.Matches(p.Descriptor.Version) {
					satisfied = true
					break
				}
			}
			if !satisfied {
				out = append(out, fmt.Sprintf("%s recommends %s %s, which is not installed", c.Identity(), dep.Target, dep.Range))
			}
		}
	}
	return out
}

// loadOrder sorts the selection so that dependencies and embedded packages load
// before their dependents. Ties keep the candidate input order.
func (s *search) loadOrder(sel selection, input []*candidate.Candidate) ([]string, *dag.CycleError) {
	g := dag.New()
	for _, c := range input {
		if sel[c.ID()] == c {
			g.AddNode(c.ID())
		}
	}
	for _, c := range input {
		if sel[c.ID()] != c {
			continue
		}
		for _, child := range c.Children {
			if sel[child.ID()] == child {
				g.AddEdge(child.ID(), c.ID())
			}
		}
		for _, dep := range s.deps[c] {
			if dep.Kind == descriptor.KindConflicts {
				continue
			}
			for _, p := range s.providers(dep.Target, sel) {
				g.AddEdge(p.ID(), c.ID())
			}
		}
	}
	return g.Order()
}

// sorted returns the selected candidates ordered by id.
func (sel selection) sorted() []*candidate.Candidate {
	ids := make([]string, 0, len(sel))
	for id := range sel {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*candidate.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, sel[id])
	}
	return out
}

func duplicateFailure(a, b *candidate.Candidate) *Failure {
	return &Failure{
		Explanation: fmt.Sprintf("Unsatisfied package constraints:\n\t- Package id %q is supplied more than once: %s (%s) and %s (%s)\n\t\t- Remove one of them",
			a.ID(), a.Identity(), a.Origin, b.Identity(), b.Origin),
		Packages: []descriptor.Identity{a.Identity(), b.Identity()},
	}
}

func wrongVersionFailure(c *candidate.Candidate, dep descriptor.Dependency, present []*candidate.Candidate) *Failure {
	ids := []descriptor.Identity{c.Identity()}
	names := make([]string, 0, len(present))
	for _, p := range present {
		ids = append(ids, p.Identity())
		names = append(names, p.Identity().String())
	}
	return &Failure{
		Explanation: fmt.Sprintf("Unsatisfied package constraints:\n\t- %s requires %s %s, but only %s is present\n\t\t- Replace it with a version matching %s",
			c.Identity(), dep.Target, dep.Range, strings.Join(names, ", "), dep.Range),
		Packages: ids,
	}
}

func conflictFailure(c *candidate.Candidate, dep descriptor.Dependency, p *candidate.Candidate) *Failure {
	return &Failure{
		Explanation: fmt.Sprintf("Unsatisfied package constraints:\n\t- %s conflicts with %s (matches %s %s)\n\t\t- Remove one of them",
			c.Identity(), p.Identity(), dep.Target, dep.Range),
		Packages: []descriptor.Identity{c.Identity(), p.Identity()},
	}
}
