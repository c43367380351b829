// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scopes derives the lexical-scope structure of one file:
// ChildScope (the transitive nesting relation), FunctionLevelScope (the
// nearest enclosing function/file boundary per scope) and ScopeOfID
// (declaration id to owning scope).
package scopes

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/scopetrace/facts"
)

// ErrScopeCycle is returned when the direct nesting edges of a file form
// a cycle. The closure fixpoint is bounded by the number of distinct
// scopes in the file; exceeding the bound, or deriving a scope as its
// own descendant, signals malformed producer input.
var ErrScopeCycle = errors.New("scope nesting edges form a cycle")

// StructuralError is a fatal, file-scoped error: the file's derived
// relations must not be published, other files are unaffected.
type StructuralError struct {
	File   facts.FileID
	Reason error
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("file %d: %v", e.File, e.Reason)
}

// Unwrap returns the underlying reason.
func (e *StructuralError) Unwrap() error { return e.Reason }

// Boundary is the function/file boundary a scope belongs to: the
// boundary scope itself plus the AnyID of the owning function or file.
type Boundary struct {
	Scope facts.ScopeID
	Owner facts.AnyID
}

// Graph is the settled scope structure of one file.
//
// Description:
//
//	Desc is the ChildScope relation stored as parent -> descendant set;
//	it is irreflexive and transitive. Boundaries is FunctionLevelScope:
//	unique per scope. ScopeOf maps any declaration/statement/expression
//	id to its owning scope.
//
// Thread Safety: Immutable after Build returns; safe for concurrent
// reads.
type Graph struct {
	File facts.FileID

	// Desc[p] is the set of all scopes transitively nested under p.
	Desc map[facts.ScopeID]map[facts.ScopeID]struct{}

	// Boundaries maps every scope reachable from a function body or the
	// file top-level scope to its boundary.
	Boundaries map[facts.ScopeID]Boundary

	// ScopeOf maps declaration ids to their owning scope.
	ScopeOf map[facts.AnyID]facts.ScopeID

	// AllScopes is every scope mentioned by the file's topology facts.
	AllScopes map[facts.ScopeID]struct{}
}

// IsAncestor reports whether ancestor strictly contains scope.
func (g *Graph) IsAncestor(ancestor, scope facts.ScopeID) bool {
	d, ok := g.Desc[ancestor]
	if !ok {
		return false
	}
	_, ok = d[scope]
	return ok
}

// Build derives the scope graph for one file.
//
// Description:
//
//	Computes the ChildScope transitive closure with an explicit fixpoint
//	loop (no unbounded recursion), bounding iteration by the number of
//	distinct scopes. Literal self-edges in the input are filtered; any
//	longer cycle makes the closure derive a scope as its own descendant
//	and is reported as a StructuralError wrapping ErrScopeCycle.
//
// Outputs:
//
//	*Graph - The settled scope structure.
//	error - A *StructuralError on cyclic input; nil otherwise.
func Build(ff *facts.FileFacts) (*Graph, error) {
	g := &Graph{
		File:       ff.File,
		Desc:       make(map[facts.ScopeID]map[facts.ScopeID]struct{}),
		Boundaries: make(map[facts.ScopeID]Boundary),
		ScopeOf:    make(map[facts.AnyID]facts.ScopeID),
		AllScopes:  make(map[facts.ScopeID]struct{}),
	}

	for s := range ff.Scopes {
		g.AllScopes[s] = struct{}{}
	}
	if ff.HasTopLevel {
		g.AllScopes[ff.TopLevel] = struct{}{}
	}
	for e := range ff.Edges {
		g.AllScopes[e.Parent] = struct{}{}
		g.AllScopes[e.Child] = struct{}{}
	}

	if err := g.closeChildScope(ff); err != nil {
		return nil, &StructuralError{File: ff.File, Reason: err}
	}
	g.assignBoundaries(ff)
	g.indexScopeOf(ff)
	return g, nil
}

// closeChildScope computes the transitive closure of the direct nesting
// edges to a fixpoint.
func (g *Graph) closeChildScope(ff *facts.FileFacts) error {
	// Base case: every direct edge with parent != child.
	edges := make([]facts.EdgeKey, 0, len(ff.Edges))
	for e := range ff.Edges {
		if e.Parent == e.Child {
			continue // self-edges are filtered, not fatal
		}
		edges = append(edges, e)
		g.addDesc(e.Parent, e.Child)
	}

	// Inductive case: desc(parent) absorbs desc(child) until no row can
	// be added. The longest simple nesting chain is bounded by the scope
	// count, so an acyclic input settles within that many passes.
	bound := len(g.AllScopes) + 1
	for pass := 0; ; pass++ {
		if pass > bound {
			return ErrScopeCycle
		}
		changed := false
		for _, e := range edges {
			for d := range g.Desc[e.Child] {
				if g.addDesc(e.Parent, d) {
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	// Irreflexivity check: a scope reaching itself means the input graph
	// had a cycle longer than a self-edge.
	for s, ds := range g.Desc {
		if _, ok := ds[s]; ok {
			return ErrScopeCycle
		}
	}
	return nil
}

func (g *Graph) addDesc(parent, child facts.ScopeID) bool {
	ds, ok := g.Desc[parent]
	if !ok {
		ds = make(map[facts.ScopeID]struct{})
		g.Desc[parent] = ds
	}
	if _, ok := ds[child]; ok {
		return false
	}
	ds[child] = struct{}{}
	return true
}

// assignBoundaries computes FunctionLevelScope.
//
// Base case: each function body scope maps to itself with the function
// as owner; the file top-level scope maps to itself with the file as
// owner. Inductive case: a scope propagates its boundary to direct
// children that have no assignment yet, so propagation never crosses
// into a different function's body (bodies are seeded first).
func (g *Graph) assignBoundaries(ff *facts.FileFacts) {
	children := make(map[facts.ScopeID][]facts.ScopeID)
	for e := range ff.Edges {
		if e.Parent == e.Child {
			continue
		}
		children[e.Parent] = append(children[e.Parent], e.Child)
	}

	var queue []facts.ScopeID
	seed := func(scope facts.ScopeID, owner facts.AnyID) {
		if _, ok := g.Boundaries[scope]; ok {
			return
		}
		g.Boundaries[scope] = Boundary{Scope: scope, Owner: owner}
		queue = append(queue, scope)
	}

	if ff.HasTopLevel {
		seed(ff.TopLevel, facts.FileAnyID(ff.File))
	}
	for _, fn := range ff.Functions {
		seed(fn.Body, facts.FuncAnyID(fn.ID))
	}

	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		b := g.Boundaries[s]
		for _, c := range children[s] {
			if _, ok := g.Boundaries[c]; ok {
				continue // nearest boundary is unique per scope
			}
			g.Boundaries[c] = b
			queue = append(queue, c)
		}
	}
}

// indexScopeOf records the owning scope of every declaration, statement
// and expression id. Single pass, no recursion: each fact already
// carries its scope.
func (g *Graph) indexScopeOf(ff *facts.FileFacts) {
	if ff.HasTopLevel {
		g.ScopeOf[facts.FileAnyID(ff.File)] = ff.TopLevel
		for _, imp := range ff.Imports {
			g.ScopeOf[facts.ImportAnyID(imp.ID)] = ff.TopLevel
		}
		for _, gl := range ff.ImplicitGlobals {
			g.ScopeOf[facts.GlobalAnyID(gl.ID)] = ff.TopLevel
		}
	}
	for _, st := range ff.Statements {
		g.ScopeOf[facts.StmtAnyID(st.ID)] = st.Scope
	}
	for _, fn := range ff.Functions {
		g.ScopeOf[facts.FuncAnyID(fn.ID)] = fn.Scope
	}
	for _, cl := range ff.Classes {
		g.ScopeOf[facts.ClassAnyID(cl.ID)] = cl.Scope
	}
	for _, ex := range ff.Expressions {
		g.ScopeOf[facts.ExprAnyID(ex.ID)] = ex.Scope
	}
}
