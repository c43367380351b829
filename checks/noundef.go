// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checks holds the five lint derivations. Each check is a pure,
// read-only query over the settled fact store, scope graph, binding
// resolution and reference helpers; none of them may run before its
// inputs have reached a fixpoint for the file.
package checks

import (
	"github.com/AleutianAI/scopetrace/binding"
	"github.com/AleutianAI/scopetrace/facts"
	"github.com/AleutianAI/scopetrace/refs"
)

// NoUndefRow reports a name reference with no visible binding.
type NoUndefRow struct {
	File  facts.FileID `json:"file"`
	Name  string       `json:"name"`
	Scope facts.ScopeID `json:"scope"`
	Span  facts.Span   `json:"span"`
}

// NoUndef derives the "no undefined reference" diagnostic.
//
// A name reference is reported when its (name, scope) has no row in
// NameInScope, it is not the operand of a typeof (legal even without a
// binding, handled by TypeofUndef instead), and it is not a non-root
// node of a member-access chain.
func NoUndef(ff *facts.FileFacts, res *binding.Resolution, chains *refs.Chains, typeofs *refs.Typeofs) []NoUndefRow {
	seen := make(map[NoUndefRow]struct{})
	var out []NoUndefRow

	for id, nr := range ff.NameRefs {
		ex, ok := ff.Expressions[id]
		if !ok {
			continue
		}
		if len(res.Visible(ex.Scope, nr.Value)) > 0 {
			continue
		}
		if len(typeofs.Within(id)) > 0 {
			continue
		}
		if chains.Chained(id) {
			continue
		}
		row := NoUndefRow{File: ff.File, Name: nr.Value, Scope: ex.Scope, Span: ex.Span}
		if _, dup := seen[row]; dup {
			continue
		}
		seen[row] = struct{}{}
		out = append(out, row)
	}
	return out
}
