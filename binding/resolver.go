// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package binding derives NameInScope, the central visibility relation:
// which names are visible in which scope and where they were declared.
// Hoisting routes var/function bindings to the nearest function/file
// boundary; everything else starts at the scope that most precisely
// contains the declaration; lexical descent closes the relation over
// ChildScope.
package binding

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/scopetrace/facts"
	"github.com/AleutianAI/scopetrace/scopes"
)

// ErrDanglingRef is returned when a fact references an id that does not
// exist, e.g. a parameter naming a nonexistent function or a var
// declaration with no owning statement row.
var ErrDanglingRef = errors.New("fact references a nonexistent id")

// Row is one binding visible somewhere in the file.
//
// Description:
//
//	A Row is created once at the scope where the binding is introduced
//	(Origin) and shared by every scope it descends into; the relation is
//	non-functional, multiple rows may carry the same name in the same
//	scope. Span is nil for implicit globals.
type Row struct {
	Name       string
	Span       *facts.Span
	DeclaredIn facts.AnyID
	Implicit   bool
	IsArg      bool

	// Origin is the scope where rules 1-3 introduced the binding: the
	// hoisting boundary for hoistables, the precise declaration scope
	// otherwise. Descent copies the row downward without changing it.
	Origin facts.ScopeID
}

// Resolution is the settled NameInScope relation for one file, plus the
// IsHoistable and IsExported sets derived alongside it.
//
// Thread Safety: Immutable after Resolve returns; safe for concurrent
// reads.
type Resolution struct {
	File facts.FileID

	// Origins holds every binding row exactly once.
	Origins []*Row

	// byScope materializes visibility: scope -> name -> rows.
	byScope map[facts.ScopeID]map[string][]*Row

	// Hoistable marks function declarations and var declarations.
	// Presence-only: absent means not hoistable, never false.
	Hoistable map[facts.AnyID]struct{}

	// Exported marks declaration ids reachable from the file's export
	// list or flagged exported at declaration.
	Exported map[facts.AnyID]struct{}
}

// Visible returns the rows for name visible at scope.
func (r *Resolution) Visible(scope facts.ScopeID, name string) []*Row {
	return r.byScope[scope][name]
}

// At returns every visible binding at scope, grouped by name.
func (r *Resolution) At(scope facts.ScopeID) map[string][]*Row {
	return r.byScope[scope]
}

// Scopes returns every scope with at least one visible binding.
func (r *Resolution) Scopes() []facts.ScopeID {
	out := make([]facts.ScopeID, 0, len(r.byScope))
	for s := range r.byScope {
		out = append(out, s)
	}
	return out
}

// IsExported reports whether the declaration id is exported.
func (r *Resolution) IsExported(id facts.AnyID) bool {
	_, ok := r.Exported[id]
	return ok
}

// IsHoistable reports whether the declaration id hoists.
func (r *Resolution) IsHoistable(id facts.AnyID) bool {
	_, ok := r.Hoistable[id]
	return ok
}

// Resolve derives NameInScope for one file against its settled scope
// graph.
//
// Description:
//
//	Five rule families union into the origin rows: implicit globals
//	(every scope), non-hoisted declarations (precise scope), hoisted
//	declarations (function/file boundary), parameter bindings (owner's
//	body scope) and catch/import bindings. Lexical descent then closes
//	the relation over ChildScope. Export resolution runs last, against
//	the already-settled relation.
//
// Outputs:
//
//	*Resolution - The settled relation.
//	error - A *scopes.StructuralError wrapping ErrDanglingRef when a
//	parameter or declaration references a nonexistent owner; the file
//	must not publish.
func Resolve(ff *facts.FileFacts, g *scopes.Graph) (*Resolution, error) {
	r := &Resolution{
		File:      ff.File,
		byScope:   make(map[facts.ScopeID]map[string][]*Row),
		Hoistable: make(map[facts.AnyID]struct{}),
		Exported:  make(map[facts.AnyID]struct{}),
	}

	for _, fn := range ff.Functions {
		r.Hoistable[facts.FuncAnyID(fn.ID)] = struct{}{}
	}
	for _, vd := range ff.VarDecls {
		if vd.Kind == facts.DeclVar {
			r.Hoistable[facts.StmtAnyID(vd.Stmt)] = struct{}{}
		}
	}

	if err := r.collectOrigins(ff, g); err != nil {
		return nil, err
	}
	r.descend(ff, g)
	r.resolveExports(ff)
	return r, nil
}

// collectOrigins applies rule families 1-3: each binding gets one row at
// its introduction scope.
func (r *Resolution) collectOrigins(ff *facts.FileFacts, g *scopes.Graph) error {
	// Rule 1: implicit globals. Origin is the top-level scope; descent
	// is special-cased to every scope of the file.
	for _, gl := range ff.ImplicitGlobals {
		r.Origins = append(r.Origins, &Row{
			Name:       gl.Name,
			DeclaredIn: facts.GlobalAnyID(gl.ID),
			Implicit:   true,
			Origin:     ff.TopLevel,
		})
	}

	// Rules 2+3: var/let/const statements. let/const start at the
	// enclosing statement's scope; var hoists to the function/file
	// boundary of that scope.
	for _, vd := range ff.VarDecls {
		st, ok := ff.Statements[vd.Stmt]
		if !ok {
			return r.dangling(ff.File, "var decl statement %d", uint32(vd.Stmt))
		}
		origin := st.Scope
		if vd.Kind == facts.DeclVar {
			origin = r.hoistTarget(g, st.Scope)
		}
		for _, bn := range vd.Pattern.BoundNames() {
			span := bn.Span
			r.Origins = append(r.Origins, &Row{
				Name:       bn.Name,
				Span:       &span,
				DeclaredIn: facts.StmtAnyID(vd.Stmt),
				Origin:     origin,
			})
		}
	}

	// Rule 3: function declarations hoist their name to the boundary of
	// the scope they are declared in. Anonymous declarations bind
	// nothing.
	for _, fn := range ff.Functions {
		if fn.Name == nil {
			continue
		}
		r.Origins = append(r.Origins, &Row{
			Name:       *fn.Name,
			Span:       fn.NameSpan,
			DeclaredIn: facts.FuncAnyID(fn.ID),
			Origin:     r.hoistTarget(g, fn.Scope),
		})
	}

	// Rule 2: class declarations are block scoped.
	for _, cl := range ff.Classes {
		if cl.Name == nil {
			continue
		}
		r.Origins = append(r.Origins, &Row{
			Name:       *cl.Name,
			Span:       cl.NameSpan,
			DeclaredIn: facts.ClassAnyID(cl.ID),
			Origin:     cl.Scope,
		})
	}

	// Rule 2: a named function/class expression binds its own name
	// inside its body only.
	for _, fe := range ff.InlineFuncs {
		if fe.Name == nil {
			continue
		}
		r.Origins = append(r.Origins, &Row{
			Name:       *fe.Name,
			Span:       fe.NameSpan,
			DeclaredIn: facts.ExprAnyID(fe.Expr),
			Origin:     fe.Body,
		})
	}
	for _, ce := range ff.ClassExprs {
		if ce.Name == nil || ce.Elements == nil {
			continue
		}
		r.Origins = append(r.Origins, &Row{
			Name:       *ce.Name,
			Span:       ce.NameSpan,
			DeclaredIn: facts.ExprAnyID(ce.Expr),
			Origin:     *ce.Elements,
		})
	}

	// Rule 2: import bindings are visible from the top-level scope.
	for _, imp := range ff.Imports {
		for _, bn := range imp.Names {
			span := bn.Span
			r.Origins = append(r.Origins, &Row{
				Name:       bn.Name,
				Span:       &span,
				DeclaredIn: facts.ImportAnyID(imp.ID),
				Origin:     ff.TopLevel,
			})
		}
	}

	// Rule 2: catch-clause error patterns bind into the catch block.
	for _, cc := range ff.CatchClauses {
		for _, bn := range cc.Pattern.BoundNames() {
			span := bn.Span
			r.Origins = append(r.Origins, &Row{
				Name:       bn.Name,
				Span:       &span,
				DeclaredIn: facts.StmtAnyID(cc.Stmt),
				Origin:     cc.Body,
			})
		}
	}

	// Rule 2: parameters bind into their owner's body scope, found by
	// joining the owner id to its body-scope fact.
	for _, p := range ff.Params {
		body, err := r.paramBody(ff, p)
		if err != nil {
			return err
		}
		for _, bn := range p.Pattern.BoundNames() {
			span := bn.Span
			r.Origins = append(r.Origins, &Row{
				Name:       bn.Name,
				Span:       &span,
				DeclaredIn: p.Owner,
				Implicit:   p.Implicit,
				IsArg:      true,
				Origin:     body,
			})
		}
	}

	return nil
}

// hoistTarget returns the function/file boundary of the declaration's
// immediate scope. A scope not reachable from any boundary keeps the
// binding at its immediate scope.
func (r *Resolution) hoistTarget(g *scopes.Graph, immediate facts.ScopeID) facts.ScopeID {
	if b, ok := g.Boundaries[immediate]; ok {
		return b.Scope
	}
	return immediate
}

// paramBody resolves a parameter's owner to its body scope.
func (r *Resolution) paramBody(ff *facts.FileFacts, p facts.Param) (facts.ScopeID, error) {
	switch p.Owner.Kind {
	case facts.IDKindFunc:
		fn, ok := ff.Functions[facts.FuncID(p.Owner.Index)]
		if !ok {
			return 0, r.dangling(ff.File, "param owner %s", p.Owner)
		}
		return fn.Body, nil
	case facts.IDKindExpr:
		id := facts.ExprID(p.Owner.Index)
		if ar, ok := ff.Arrows[id]; ok {
			return ar.Body, nil
		}
		if fe, ok := ff.InlineFuncs[id]; ok {
			return fe.Body, nil
		}
		return 0, r.dangling(ff.File, "param owner %s", p.Owner)
	default:
		return 0, r.dangling(ff.File, "param owner %s", p.Owner)
	}
}

func (r *Resolution) dangling(file facts.FileID, format string, args ...any) error {
	return &scopes.StructuralError{
		File:   file,
		Reason: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrDanglingRef),
	}
}

// descend closes the relation under lexical descent: every row is
// visible in every scope nested under its origin. Implicit globals are
// visible in every scope of the file regardless of topology.
func (r *Resolution) descend(ff *facts.FileFacts, g *scopes.Graph) {
	for _, row := range r.Origins {
		if row.Implicit && !row.IsArg {
			for s := range g.AllScopes {
				r.addVisible(s, row)
			}
			continue
		}
		r.addVisible(row.Origin, row)
		for s := range g.Desc[row.Origin] {
			r.addVisible(s, row)
		}
	}
}

func (r *Resolution) addVisible(scope facts.ScopeID, row *Row) {
	byName, ok := r.byScope[scope]
	if !ok {
		byName = make(map[string][]*Row)
		r.byScope[scope] = byName
	}
	byName[row.Name] = append(byName[row.Name], row)
}

// resolveExports feeds IsExported: declaration-site flags first, then
// named exports looked up in the settled relation at the export's scope.
func (r *Resolution) resolveExports(ff *facts.FileFacts) {
	for _, vd := range ff.VarDecls {
		if vd.Exported {
			r.Exported[facts.StmtAnyID(vd.Stmt)] = struct{}{}
		}
	}
	for _, fn := range ff.Functions {
		if fn.Exported {
			r.Exported[facts.FuncAnyID(fn.ID)] = struct{}{}
		}
	}
	for _, cl := range ff.Classes {
		if cl.Exported {
			r.Exported[facts.ClassAnyID(cl.ID)] = struct{}{}
		}
	}
	for ne := range ff.NamedExports {
		for _, row := range r.Visible(ne.Scope, ne.Name) {
			r.Exported[row.DeclaredIn] = struct{}{}
		}
	}
}
