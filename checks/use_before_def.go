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
	"github.com/AleutianAI/scopetrace/binding"
	"github.com/AleutianAI/scopetrace/facts"
	"github.com/AleutianAI/scopetrace/scopes"
)

// UseBeforeDefRow reports a reference reaching a hoisted binding whose
// declaration scope does not lexically contain the use.
type UseBeforeDefRow struct {
	File       facts.FileID  `json:"file"`
	Name       string        `json:"name"`
	UsedIn     facts.ScopeID `json:"used_in"`
	Span       facts.Span    `json:"span"`
	DeclaredIn facts.AnyID   `json:"declared_in"`
	DeclScope  facts.ScopeID `json:"decl_scope"`
}

// UseBeforeDef derives the "use before definition" diagnostic.
//
// Description:
//
//	A name reference (not the callee of a `new` expression) that
//	resolves to a var/function/class declaration is reported when the
//	declaration's scope is neither equal to nor a lexical ancestor of
//	the use scope: the binding is only reachable through hoisting, so
//	the declaring statement cannot have run. A call to a name bound to a
//	class expression via var/let/const is caught the same way.
//
//	Same-scope statement ordering is not modeled; the fact schema
//	carries no ordering metadata, so same-scope same-binding cases are
//	deliberately not reported.
func UseBeforeDef(ff *facts.FileFacts, g *scopes.Graph, res *binding.Resolution) []UseBeforeDefRow {
	newCallees := make(map[facts.ExprID]struct{}, len(ff.News))
	for _, ne := range ff.News {
		if ne.Callee != nil {
			newCallees[*ne.Callee] = struct{}{}
		}
	}
	callCallees := make(map[facts.ExprID]struct{}, len(ff.Calls))
	for _, ce := range ff.Calls {
		if ce.Callee != nil {
			callCallees[*ce.Callee] = struct{}{}
		}
	}

	seen := make(map[UseBeforeDefRow]struct{})
	var out []UseBeforeDefRow

	for id, nr := range ff.NameRefs {
		if _, isNew := newCallees[id]; isNew {
			continue
		}
		ex, ok := ff.Expressions[id]
		if !ok {
			continue
		}
		_, isCall := callCallees[id]

		for _, row := range res.Visible(ex.Scope, nr.Value) {
			declScope, eligible := declarationScope(ff, row.DeclaredIn, isCall)
			if !eligible {
				continue
			}
			if declScope == ex.Scope || g.IsAncestor(declScope, ex.Scope) {
				continue
			}
			r := UseBeforeDefRow{
				File:       ff.File,
				Name:       nr.Value,
				UsedIn:     ex.Scope,
				Span:       ex.Span,
				DeclaredIn: row.DeclaredIn,
				DeclScope:  declScope,
			}
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// declarationScope returns the literal declaration scope of an eligible
// binding. Eligible: function declarations, class declarations, `var`
// statements, and (for call callees only) any var/let/const statement
// whose initializer is a class expression.
func declarationScope(ff *facts.FileFacts, declaredIn facts.AnyID, isCall bool) (facts.ScopeID, bool) {
	switch declaredIn.Kind {
	case facts.IDKindFunc:
		fn, ok := ff.Functions[facts.FuncID(declaredIn.Index)]
		if !ok {
			return 0, false
		}
		return fn.Scope, true

	case facts.IDKindClass:
		cl, ok := ff.Classes[facts.ClassID(declaredIn.Index)]
		if !ok {
			return 0, false
		}
		return cl.Scope, true

	case facts.IDKindStmt:
		stmt := facts.StmtID(declaredIn.Index)
		vd, ok := ff.VarDecls[stmt]
		if !ok {
			return 0, false // catch bindings etc. never hoist
		}
		st, ok := ff.Statements[stmt]
		if !ok {
			return 0, false
		}
		if vd.Kind == facts.DeclVar {
			return st.Scope, true
		}
		if isCall && vd.Init != nil {
			if _, isClassExpr := ff.ClassExprs[*vd.Init]; isClassExpr {
				return st.Scope, true
			}
		}
		return 0, false

	default:
		return 0, false
	}
}
