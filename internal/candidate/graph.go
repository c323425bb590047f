// SPDX-License-Identifier: MPL-2.0

package candidate

import (
	"io"
	"slices"

	"github.com/crossmod/crossmod/pkg/descriptor"

	"github.com/charmbracelet/log"
)

type (
	// Graph is the built candidate set plus the parent side table.
	Graph struct {
		roots   []*Candidate
		byID    map[descriptor.Identity]*Candidate
		order   []*Candidate
		parents map[descriptor.Identity][]descriptor.Identity
		host    []*Candidate
	}

	// Builder materializes candidate graphs.
	Builder struct {
		logger *log.Logger
	}

	// buildState is the dedup cache of one Build call.
	buildState struct {
		graph      *Graph
		embeddings Embeddings
		embedded   map[descriptor.Identity]struct{}
		visiting   map[descriptor.Identity]struct{}
		logger     *log.Logger
	}
)

// NewBuilder creates a Builder. A nil logger discards diagnostics.
func NewBuilder(logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Builder{logger: logger}
}

// Build materializes a candidate for every package in toLoad, building embedded
// children first. A package reachable from several parents yields a single
// candidate that records every parent.
func (b *Builder) Build(toLoad []Package, embeddings Embeddings) *Graph {
	st := &buildState{
		graph: &Graph{
			byID:    make(map[descriptor.Identity]*Candidate),
			parents: make(map[descriptor.Identity][]descriptor.Identity),
		},
		embeddings: embeddings,
		embedded:   make(map[descriptor.Identity]struct{}),
		visiting:   make(map[descriptor.Identity]struct{}),
		logger:     b.logger,
	}
	for _, children := range embeddings {
		for _, child := range children {
			st.embedded[child.Descriptor.Identity()] = struct{}{}
		}
	}

	for _, p := range toLoad {
		if c := st.candidate(p); c != nil && !slices.Contains(st.graph.roots, c) {
			st.graph.roots = append(st.graph.roots, c)
		}
	}

	b.logger.Debug("built candidate graph", "roots", len(st.graph.roots), "candidates", len(st.graph.order))
	return st.graph
}

func (st *buildState) candidate(p Package) *Candidate {
	id := p.Descriptor.Identity()
	if c, ok := st.graph.byID[id]; ok {
		return c
	}
	if _, ok := st.visiting[id]; ok {
		st.logger.Warn("ignoring embedding cycle", "package", id)
		return nil
	}
	st.visiting[id] = struct{}{}
	defer delete(st.visiting, id)

	c := &Candidate{Descriptor: p.Descriptor, Origin: OriginGuest}
	for _, child := range st.embeddings[id] {
		cc := st.candidate(child)
		if cc == nil {
			continue
		}
		c.Children = append(c.Children, cc)
		st.graph.addParent(cc.Identity(), id)
	}
	if _, ok := st.embedded[id]; !ok {
		c.Paths = []string{p.Path}
	}

	st.graph.byID[id] = c
	st.graph.order = append(st.graph.order, c)
	return c
}

func (g *Graph) addParent(child, parent descriptor.Identity) {
	if !slices.Contains(g.parents[child], parent) {
		g.parents[child] = append(g.parents[child], parent)
	}
}

// WithHostPackages appends candidates for host-native packages and the platform
// builtins. They are never merged with guest candidates, even on equal identity.
func (g *Graph) WithHostPackages(host []*descriptor.Descriptor, platform Platform) error {
	for _, d := range host {
		g.host = append(g.host, &Candidate{Descriptor: d, Paths: []string{}, Origin: OriginHost})
	}
	builtins, err := platform.Builtins()
	if err != nil {
		return err
	}
	g.host = append(g.host, builtins...)
	return nil
}

// Roots returns the candidates built for the requested packages, in request order.
func (g *Graph) Roots() []*Candidate { return slices.Clone(g.roots) }

// Guest returns every guest candidate, children before their parents.
func (g *Graph) Guest() []*Candidate { return slices.Clone(g.order) }

// Host returns the host-native and builtin candidates.
func (g *Graph) Host() []*Candidate { return slices.Clone(g.host) }

// All returns guest candidates followed by host and builtin candidates.
func (g *Graph) All() []*Candidate {
	return append(slices.Clone(g.order), g.host...)
}

// Lookup returns the guest candidate with the given identity.
func (g *Graph) Lookup(id descriptor.Identity) (*Candidate, bool) {
	c, ok := g.byID[id]
	return c, ok
}

// Parents returns the identities of the candidates embedding id, in discovery order.
func (g *Graph) Parents(id descriptor.Identity) []descriptor.Identity {
	return slices.Clone(g.parents[id])
}

// StandalonePaths returns the archive paths of every standalone guest candidate.
func (g *Graph) StandalonePaths() []string {
	var out []string
	for _, c := range g.order {
		out = append(out, c.Paths...)
	}
	return out
}
