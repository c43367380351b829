// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scopes

import (
	"errors"
	"testing"

	"github.com/AleutianAI/scopetrace/facts"
)

// Helper to assemble a FileFacts partition through the store, the same
// path production facts take.
func testFacts(t *testing.T, b facts.Batch) *facts.FileFacts {
	t.Helper()
	s := facts.NewStore()
	s.Apply(facts.Transaction{Inserts: b})
	ff := s.File(1)
	if ff == nil {
		t.Fatal("batch produced no partition for file 1")
	}
	return ff
}

func edges(pairs ...[2]facts.ScopeID) []facts.ScopeEdge {
	out := make([]facts.ScopeEdge, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, facts.ScopeEdge{File: 1, Parent: p[0], Child: p[1]})
	}
	return out
}

func TestBuild_ChildScopeTransitive(t *testing.T) {
	ff := testFacts(t, facts.Batch{
		Files:      []facts.FileFact{{ID: 1, TopLevel: 1}},
		ScopeEdges: edges([2]facts.ScopeID{1, 2}, [2]facts.ScopeID{2, 3}),
	})

	g, err := Build(ff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !g.IsAncestor(1, 2) || !g.IsAncestor(2, 3) {
		t.Error("direct edges missing from closure")
	}
	if !g.IsAncestor(1, 3) {
		t.Error("expected transitive pair (1,3)")
	}
	if g.IsAncestor(3, 1) || g.IsAncestor(2, 1) {
		t.Error("closure must not invert edges")
	}
	for s, ds := range g.Desc {
		if _, ok := ds[s]; ok {
			t.Errorf("closure must be irreflexive, scope %d reaches itself", s)
		}
	}
}

func TestBuild_CycleIsStructuralError(t *testing.T) {
	ff := testFacts(t, facts.Batch{
		Files:      []facts.FileFact{{ID: 1, TopLevel: 1}},
		ScopeEdges: edges([2]facts.ScopeID{1, 2}, [2]facts.ScopeID{2, 1}),
	})

	_, err := Build(ff)
	if err == nil {
		t.Fatal("expected error for cyclic nesting edges")
	}
	if !errors.Is(err, ErrScopeCycle) {
		t.Errorf("expected ErrScopeCycle, got %v", err)
	}
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StructuralError, got %T", err)
	}
	if se.File != 1 {
		t.Errorf("expected file 1 in error, got %d", se.File)
	}
}

func TestBuild_SelfEdgeFilteredSilently(t *testing.T) {
	ff := testFacts(t, facts.Batch{
		Files:      []facts.FileFact{{ID: 1, TopLevel: 1}},
		ScopeEdges: edges([2]facts.ScopeID{1, 2}, [2]facts.ScopeID{2, 2}),
	})

	g, err := Build(ff)
	if err != nil {
		t.Fatalf("self-edges must be filtered, not fatal: %v", err)
	}
	if !g.IsAncestor(1, 2) {
		t.Error("expected real edge to survive")
	}
	if g.IsAncestor(2, 2) {
		t.Error("self-edge must not enter the closure")
	}
}

func TestBuild_BoundaryAssignment(t *testing.T) {
	// Top-level scope 1 containing a block (4) and a function body (2)
	// with a nested block (3). The block under the body must take the
	// function boundary, the outer block the file boundary.
	ff := testFacts(t, facts.Batch{
		Files: []facts.FileFact{{ID: 1, TopLevel: 1}},
		ScopeEdges: edges(
			[2]facts.ScopeID{1, 2},
			[2]facts.ScopeID{2, 3},
			[2]facts.ScopeID{1, 4},
		),
		Functions: []facts.Function{{ID: 7, File: 1, Scope: 1, Body: 2}},
	})

	g, err := Build(ff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		scope facts.ScopeID
		want  Boundary
	}{
		{1, Boundary{Scope: 1, Owner: facts.FileAnyID(1)}},
		{2, Boundary{Scope: 2, Owner: facts.FuncAnyID(7)}},
		{3, Boundary{Scope: 2, Owner: facts.FuncAnyID(7)}},
		{4, Boundary{Scope: 1, Owner: facts.FileAnyID(1)}},
	}
	for _, c := range cases {
		got, ok := g.Boundaries[c.scope]
		if !ok {
			t.Errorf("scope %d: no boundary assigned", c.scope)
			continue
		}
		if got != c.want {
			t.Errorf("scope %d: expected boundary %+v, got %+v", c.scope, c.want, got)
		}
	}
}

func TestBuild_BoundaryDoesNotCrossFunctionBody(t *testing.T) {
	// A block nested inside a function body must never inherit the file
	// boundary even though the body is reachable from the top level.
	ff := testFacts(t, facts.Batch{
		Files:      []facts.FileFact{{ID: 1, TopLevel: 1}},
		ScopeEdges: edges([2]facts.ScopeID{1, 2}, [2]facts.ScopeID{2, 3}),
		Functions:  []facts.Function{{ID: 7, File: 1, Scope: 1, Body: 2}},
	})

	g, err := Build(ff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b := g.Boundaries[3]; b.Owner != facts.FuncAnyID(7) {
		t.Errorf("scope 3 crossed into the wrong boundary: %+v", b)
	}
}

func TestBuild_ScopeOfIndex(t *testing.T) {
	name := "f"
	ff := testFacts(t, facts.Batch{
		Files:           []facts.FileFact{{ID: 1, TopLevel: 1}},
		ScopeEdges:      edges([2]facts.ScopeID{1, 2}),
		Statements:      []facts.Statement{{ID: 3, File: 1, Scope: 2}},
		Functions:       []facts.Function{{ID: 7, File: 1, Name: &name, Scope: 1, Body: 2}},
		Classes:         []facts.Class{{ID: 9, File: 1, Scope: 2, Elements: 5}},
		Expressions:     []facts.Expression{{ID: 11, File: 1, Kind: facts.ExprNameRef, Scope: 2}},
		Imports:         []facts.Import{{ID: 13, File: 1}},
		ImplicitGlobals: []facts.ImplicitGlobal{{ID: 15, File: 1, Name: "window"}},
	})

	g, err := Build(ff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		id   facts.AnyID
		want facts.ScopeID
	}{
		{facts.FileAnyID(1), 1},
		{facts.StmtAnyID(3), 2},
		{facts.FuncAnyID(7), 1},
		{facts.ClassAnyID(9), 2},
		{facts.ExprAnyID(11), 2},
		{facts.ImportAnyID(13), 1},
		{facts.GlobalAnyID(15), 1},
	}
	for _, c := range cases {
		got, ok := g.ScopeOf[c.id]
		if !ok {
			t.Errorf("%s: not indexed", c.id)
			continue
		}
		if got != c.want {
			t.Errorf("%s: expected scope %d, got %d", c.id, c.want, got)
		}
	}
}
