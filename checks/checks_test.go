// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checks

import (
	"testing"

	"github.com/AleutianAI/scopetrace/binding"
	"github.com/AleutianAI/scopetrace/facts"
	"github.com/AleutianAI/scopetrace/refs"
	"github.com/AleutianAI/scopetrace/scopes"
)

// Helper to run the full per-file pipeline: scope graph, binding
// resolution, reference helpers.
func analyze(t *testing.T, b facts.Batch) (*facts.FileFacts, *scopes.Graph, *binding.Resolution, *refs.Chains, *refs.Typeofs) {
	t.Helper()
	s := facts.NewStore()
	s.Apply(facts.Transaction{Inserts: b})
	ff := s.File(1)
	g, err := scopes.Build(ff)
	if err != nil {
		t.Fatalf("scope build failed: %v", err)
	}
	res, err := binding.Resolve(ff, g)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	return ff, g, res, refs.BuildChains(ff), refs.BuildTypeofs(ff)
}

func exprID(id facts.ExprID) *facts.ExprID { return &id }

// Topology shared by most cases: top-level 1, function body 2, two
// sibling blocks 3 and 4 inside the body.
func siblingBlocks() facts.Batch {
	return facts.Batch{
		Files: []facts.FileFact{{ID: 1, TopLevel: 1}},
		ScopeEdges: []facts.ScopeEdge{
			{File: 1, Parent: 1, Child: 2},
			{File: 1, Parent: 2, Child: 3},
			{File: 1, Parent: 2, Child: 4},
		},
		Functions: []facts.Function{{ID: 7, File: 1, Scope: 1, Body: 2}},
	}
}

func nameRefAt(id facts.ExprID, scope facts.ScopeID, name string, span facts.Span) ([]facts.Expression, []facts.NameRef) {
	return []facts.Expression{{ID: id, File: 1, Kind: facts.ExprNameRef, Scope: scope, Span: span}},
		[]facts.NameRef{{Expr: id, File: 1, Value: name}}
}

func TestNoUndef_ReportsUnboundName(t *testing.T) {
	b := siblingBlocks()
	b.Expressions, b.NameRefs = nameRefAt(30, 2, "missing", facts.Span{Start: 10, End: 17})

	ff, _, res, chains, typeofs := analyze(t, b)
	rows := NoUndef(ff, res, chains, typeofs)

	if len(rows) != 1 {
		t.Fatalf("expected 1 report, got %d", len(rows))
	}
	want := NoUndefRow{File: 1, Name: "missing", Scope: 2, Span: facts.Span{Start: 10, End: 17}}
	if rows[0] != want {
		t.Errorf("expected %+v, got %+v", want, rows[0])
	}
}

func TestNoUndef_BoundNameNotReported(t *testing.T) {
	b := siblingBlocks()
	b.Statements = []facts.Statement{{ID: 20, File: 1, Scope: 2}}
	b.VarDecls = []facts.VarDecl{{
		Stmt: 20, File: 1, Kind: facts.DeclLet,
		Pattern: facts.IdentPattern("x", facts.Span{Start: 1, End: 2}),
	}}
	b.Expressions, b.NameRefs = nameRefAt(30, 3, "x", facts.Span{Start: 10, End: 11})

	ff, _, res, chains, typeofs := analyze(t, b)
	if rows := NoUndef(ff, res, chains, typeofs); len(rows) != 0 {
		t.Errorf("bound reference must not be reported: %+v", rows)
	}
}

func TestNoUndef_TypeofOperandExempt(t *testing.T) {
	b := siblingBlocks()
	b.Expressions, b.NameRefs = nameRefAt(30, 2, "maybeGlobal", facts.Span{Start: 17, End: 28})
	b.Expressions = append(b.Expressions, facts.Expression{ID: 31, File: 1, Kind: facts.ExprTypeof, Scope: 2, Span: facts.Span{Start: 10, End: 28}})
	b.Typeofs = []facts.UnaryTypeof{{Expr: 31, File: 1, Operand: exprID(30)}}

	ff, _, res, chains, typeofs := analyze(t, b)

	if rows := NoUndef(ff, res, chains, typeofs); len(rows) != 0 {
		t.Errorf("typeof operands are exempt from NoUndef: %+v", rows)
	}

	tu := TypeofUndef(ff, res, typeofs)
	if len(tu) != 1 {
		t.Fatalf("expected 1 typeof-undef report, got %d", len(tu))
	}
	if tu[0].Typeof != 31 || tu[0].Expr != 30 || tu[0].Name != "maybeGlobal" {
		t.Errorf("unexpected typeof-undef row: %+v", tu[0])
	}
}

func TestNoUndef_ChainReportsRootOnly(t *testing.T) {
	// missing.foo: the root name reference is the real lookup; nodes
	// reached through member access never count as references.
	b := siblingBlocks()
	b.Expressions, b.NameRefs = nameRefAt(30, 2, "missing", facts.Span{Start: 10, End: 17})
	b.Expressions = append(b.Expressions, facts.Expression{ID: 31, File: 1, Kind: facts.ExprDotAccess, Scope: 2, Span: facts.Span{Start: 10, End: 21}})
	b.MemberAccesses = []facts.MemberAccess{{Expr: 31, File: 1, Object: exprID(30)}}

	ff, _, res, chains, typeofs := analyze(t, b)
	rows := NoUndef(ff, res, chains, typeofs)
	if len(rows) != 1 {
		t.Fatalf("expected 1 report, got %d", len(rows))
	}
	if rows[0].Name != "missing" {
		t.Errorf("expected the root to be reported, got %+v", rows[0])
	}
}

func TestNoUndef_ChainedNameSuppressed(t *testing.T) {
	// A name reference sitting in the property column of a chain must be
	// suppressed even when it has no visible binding.
	b := siblingBlocks()
	b.Expressions, b.NameRefs = nameRefAt(31, 2, "foo", facts.Span{Start: 18, End: 21})
	b.MemberAccesses = []facts.MemberAccess{{Expr: 31, File: 1, Object: exprID(30)}}

	ff, _, res, chains, typeofs := analyze(t, b)
	if rows := NoUndef(ff, res, chains, typeofs); len(rows) != 0 {
		t.Errorf("chained expressions must be suppressed: %+v", rows)
	}
}

func TestTypeofUndef_BoundOperandNotReported(t *testing.T) {
	b := siblingBlocks()
	b.Statements = []facts.Statement{{ID: 20, File: 1, Scope: 2}}
	b.VarDecls = []facts.VarDecl{{
		Stmt: 20, File: 1, Kind: facts.DeclVar,
		Pattern: facts.IdentPattern("x", facts.Span{Start: 1, End: 2}),
	}}
	b.Expressions, b.NameRefs = nameRefAt(30, 2, "x", facts.Span{Start: 17, End: 18})
	b.Typeofs = []facts.UnaryTypeof{{Expr: 31, File: 1, Operand: exprID(30)}}

	ff, _, res, _, typeofs := analyze(t, b)
	if rows := TypeofUndef(ff, res, typeofs); len(rows) != 0 {
		t.Errorf("typeof of a bound name must not be reported: %+v", rows)
	}
}

func TestUseBeforeDef_SiblingBlockVar(t *testing.T) {
	// { var x } in block 3, x referenced in sibling block 4: reachable
	// only through hoisting.
	b := siblingBlocks()
	b.Statements = []facts.Statement{{ID: 20, File: 1, Scope: 3}}
	b.VarDecls = []facts.VarDecl{{
		Stmt: 20, File: 1, Kind: facts.DeclVar,
		Pattern: facts.IdentPattern("x", facts.Span{Start: 5, End: 6}),
	}}
	b.Expressions, b.NameRefs = nameRefAt(30, 4, "x", facts.Span{Start: 40, End: 41})

	ff, g, res, _, _ := analyze(t, b)
	rows := UseBeforeDef(ff, g, res)
	if len(rows) != 1 {
		t.Fatalf("expected 1 report, got %d", len(rows))
	}
	r := rows[0]
	if r.Name != "x" || r.UsedIn != 4 || r.DeclScope != 3 {
		t.Errorf("unexpected row: %+v", r)
	}
	if r.DeclaredIn != facts.StmtAnyID(20) {
		t.Errorf("expected declared-in stmt:20, got %s", r.DeclaredIn)
	}
}

func TestUseBeforeDef_UseInsideDeclScopeOK(t *testing.T) {
	b := siblingBlocks()
	b.ScopeEdges = append(b.ScopeEdges, facts.ScopeEdge{File: 1, Parent: 3, Child: 5})
	b.Statements = []facts.Statement{{ID: 20, File: 1, Scope: 3}}
	b.VarDecls = []facts.VarDecl{{
		Stmt: 20, File: 1, Kind: facts.DeclVar,
		Pattern: facts.IdentPattern("x", facts.Span{Start: 5, End: 6}),
	}}

	exprs3, refs3 := nameRefAt(30, 3, "x", facts.Span{Start: 10, End: 11})
	exprs5, refs5 := nameRefAt(31, 5, "x", facts.Span{Start: 20, End: 21})
	b.Expressions = append(exprs3, exprs5...)
	b.NameRefs = append(refs3, refs5...)

	ff, g, res, _, _ := analyze(t, b)
	if rows := UseBeforeDef(ff, g, res); len(rows) != 0 {
		t.Errorf("uses at or under the declaration scope are fine: %+v", rows)
	}
}

func TestUseBeforeDef_FunctionCalledFromSibling(t *testing.T) {
	name := "g"
	span := facts.Span{Start: 50, End: 51}
	b := siblingBlocks()
	b.ScopeEdges = append(b.ScopeEdges, facts.ScopeEdge{File: 1, Parent: 3, Child: 6})
	b.Functions = append(b.Functions, facts.Function{ID: 8, File: 1, Name: &name, NameSpan: &span, Scope: 3, Body: 6})
	b.Expressions, b.NameRefs = nameRefAt(30, 4, "g", facts.Span{Start: 60, End: 61})
	b.Calls = []facts.CallExpr{{Expr: 31, File: 1, Callee: exprID(30)}}

	ff, g, res, _, _ := analyze(t, b)
	rows := UseBeforeDef(ff, g, res)
	if len(rows) != 1 {
		t.Fatalf("expected 1 report, got %d", len(rows))
	}
	if rows[0].DeclaredIn != facts.FuncAnyID(8) || rows[0].DeclScope != 3 {
		t.Errorf("unexpected row: %+v", rows[0])
	}
}

func TestUseBeforeDef_NewCalleeSkipped(t *testing.T) {
	name := "G"
	span := facts.Span{Start: 50, End: 51}
	b := siblingBlocks()
	b.ScopeEdges = append(b.ScopeEdges, facts.ScopeEdge{File: 1, Parent: 3, Child: 6})
	b.Functions = append(b.Functions, facts.Function{ID: 8, File: 1, Name: &name, NameSpan: &span, Scope: 3, Body: 6})
	b.Expressions, b.NameRefs = nameRefAt(30, 4, "G", facts.Span{Start: 60, End: 61})
	b.News = []facts.NewExpr{{Expr: 31, File: 1, Callee: exprID(30)}}

	ff, g, res, _, _ := analyze(t, b)
	if rows := UseBeforeDef(ff, g, res); len(rows) != 0 {
		t.Errorf("new callees are never reported: %+v", rows)
	}
}

func TestNoShadow_VarShadowedByLet(t *testing.T) {
	b := siblingBlocks()
	b.Statements = []facts.Statement{
		{ID: 20, File: 1, Scope: 2},
		{ID: 21, File: 1, Scope: 3},
	}
	b.VarDecls = []facts.VarDecl{
		{Stmt: 20, File: 1, Kind: facts.DeclVar, Pattern: facts.IdentPattern("x", facts.Span{Start: 5, End: 6})},
		{Stmt: 21, File: 1, Kind: facts.DeclLet, Pattern: facts.IdentPattern("x", facts.Span{Start: 15, End: 16})},
	}

	_, g, res, _, _ := analyze(t, b)
	rows := NoShadow(res, g)
	if len(rows) != 1 {
		t.Fatalf("expected 1 report, got %d", len(rows))
	}
	r := rows[0]
	if r.OriginalDecl != facts.StmtAnyID(20) || r.ShadowerDecl != facts.StmtAnyID(21) {
		t.Errorf("shadow pair inverted or wrong: %+v", r)
	}
	if r.Implicit {
		t.Error("explicit original must not be marked implicit")
	}
}

func TestNoShadow_ImplicitGlobalShadowed(t *testing.T) {
	b := siblingBlocks()
	b.ImplicitGlobals = []facts.ImplicitGlobal{{ID: 1, File: 1, Name: "window"}}
	b.Statements = []facts.Statement{{ID: 20, File: 1, Scope: 2}}
	b.VarDecls = []facts.VarDecl{{
		Stmt: 20, File: 1, Kind: facts.DeclLet,
		Pattern: facts.IdentPattern("window", facts.Span{Start: 5, End: 11}),
	}}

	_, g, res, _, _ := analyze(t, b)
	rows := NoShadow(res, g)
	if len(rows) != 1 {
		t.Fatalf("expected 1 report, got %d", len(rows))
	}
	r := rows[0]
	if !r.Implicit {
		t.Error("shadowing an implicit global must set Implicit")
	}
	if r.OriginalSpan != (facts.Span{}) {
		t.Errorf("implicit originals have the zero span, got %+v", r.OriginalSpan)
	}
	if r.ShadowerDecl != facts.StmtAnyID(20) {
		t.Errorf("unexpected shadower: %+v", r)
	}
}

func TestNoShadow_SiblingScopesDoNotShadow(t *testing.T) {
	b := siblingBlocks()
	b.Statements = []facts.Statement{
		{ID: 20, File: 1, Scope: 3},
		{ID: 21, File: 1, Scope: 4},
	}
	b.VarDecls = []facts.VarDecl{
		{Stmt: 20, File: 1, Kind: facts.DeclLet, Pattern: facts.IdentPattern("x", facts.Span{Start: 5, End: 6})},
		{Stmt: 21, File: 1, Kind: facts.DeclLet, Pattern: facts.IdentPattern("x", facts.Span{Start: 15, End: 16})},
	}

	_, g, res, _, _ := analyze(t, b)
	if rows := NoShadow(res, g); len(rows) != 0 {
		t.Errorf("sibling bindings do not shadow each other: %+v", rows)
	}
}

func TestUnusedVariables(t *testing.T) {
	b := siblingBlocks()
	b.Statements = []facts.Statement{
		{ID: 20, File: 1, Scope: 3}, // let dead (never referenced)
		{ID: 21, File: 1, Scope: 3}, // let live (referenced below)
		{ID: 22, File: 1, Scope: 1}, // exported const
	}
	b.VarDecls = []facts.VarDecl{
		{Stmt: 20, File: 1, Kind: facts.DeclLet, Pattern: facts.IdentPattern("dead", facts.Span{Start: 5, End: 9})},
		{Stmt: 21, File: 1, Kind: facts.DeclLet, Pattern: facts.IdentPattern("live", facts.Span{Start: 15, End: 19})},
		{Stmt: 22, File: 1, Kind: facts.DeclConst, Pattern: facts.IdentPattern("api", facts.Span{Start: 25, End: 28}), Exported: true},
	}
	b.Params = []facts.Param{{
		Owner: facts.FuncAnyID(7), Index: 0, File: 1,
		Pattern: facts.IdentPattern("arg", facts.Span{Start: 35, End: 38}),
	}}
	b.Expressions, b.NameRefs = nameRefAt(30, 3, "live", facts.Span{Start: 45, End: 49})

	ff, _, res, _, _ := analyze(t, b)
	rows := UnusedVariables(ff, res)

	byName := make(map[string]UnusedVariableRow, len(rows))
	for _, r := range rows {
		byName[r.Name] = r
	}

	if _, ok := byName["dead"]; !ok {
		t.Error("expected dead binding to be reported")
	}
	if _, ok := byName["arg"]; !ok {
		t.Error("unused parameters are always reportable")
	}
	if _, ok := byName["live"]; ok {
		t.Error("referenced binding must not be reported")
	}
	if _, ok := byName["api"]; ok {
		t.Error("exported declarations must not be reported")
	}
	if len(rows) != 2 {
		t.Errorf("expected exactly 2 reports, got %d: %+v", len(rows), rows)
	}
}
