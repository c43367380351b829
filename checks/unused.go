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
)

// UnusedVariableRow reports a declared binding with no resolving
// reference anywhere in its visibility region.
type UnusedVariableRow struct {
	File       facts.FileID `json:"file"`
	Name       string       `json:"name"`
	DeclaredIn facts.AnyID  `json:"declared_in"`
	Span       facts.Span   `json:"span"`
}

// UnusedVariables derives the "no unused variable" diagnostic.
//
// Description:
//
//	Usages lexically descend exactly like bindings do, so a binding is
//	used when some name reference in a scope where the binding is
//	visible resolves to it. Ordinary declarations are skipped when
//	exported or globally declared; parameters are always reportable.
func UnusedVariables(ff *facts.FileFacts, res *binding.Resolution) []UnusedVariableRow {
	// VariableUsages: a reference marks every binding of that name
	// visible at the reference's scope.
	used := make(map[*binding.Row]struct{})
	for id, nr := range ff.NameRefs {
		ex, ok := ff.Expressions[id]
		if !ok {
			continue
		}
		for _, row := range res.Visible(ex.Scope, nr.Value) {
			used[row] = struct{}{}
		}
	}

	seen := make(map[UnusedVariableRow]struct{})
	var out []UnusedVariableRow

	for _, row := range res.Origins {
		if row.Implicit || row.Span == nil {
			continue
		}
		if _, ok := used[row]; ok {
			continue
		}
		if !row.IsArg {
			// Unused parameters skip these filters; ordinary
			// declarations must be local and private.
			if row.DeclaredIn.Kind == facts.IDKindGlobal {
				continue
			}
			if res.IsExported(row.DeclaredIn) {
				continue
			}
		}
		r := UnusedVariableRow{
			File:       ff.File,
			Name:       row.Name,
			DeclaredIn: row.DeclaredIn,
			Span:       *row.Span,
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
