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

// NoShadowRow reports an inner binding hiding an outer one of the same
// name. OriginalSpan is the zero span when the shadowed binding is an
// implicit global (Implicit true).
type NoShadowRow struct {
	File         facts.FileID `json:"file"`
	Name         string       `json:"name"`
	OriginalSpan facts.Span   `json:"original_span"`
	OriginalDecl facts.AnyID  `json:"original_decl"`
	ShadowerSpan facts.Span   `json:"shadower_span"`
	ShadowerDecl facts.AnyID  `json:"shadower_decl"`
	Implicit     bool         `json:"implicit"`
}

// NoShadow derives the "no shadowing" diagnostic.
//
// Description:
//
//	Two distinct bindings of the same name are a shadow pair when the
//	shadower is explicit, the spans differ, and the shadower's origin
//	scope is a strict descendant of the original's effective scope. The
//	effective scope of a hoistable original is its function/file
//	boundary, which is exactly where hoisting placed its origin, so a
//	`var` is shadowed by any block nested inside its owning function,
//	not just its literal declaration scope.
func NoShadow(res *binding.Resolution, g *scopes.Graph) []NoShadowRow {
	byName := make(map[string][]*binding.Row)
	for _, row := range res.Origins {
		byName[row.Name] = append(byName[row.Name], row)
	}

	seen := make(map[NoShadowRow]struct{})
	var out []NoShadowRow

	for name, rows := range byName {
		if len(rows) < 2 {
			continue
		}
		for _, original := range rows {
			for _, shadower := range rows {
				if shadower == original || shadower.Implicit {
					continue
				}
				if sameSpan(original.Span, shadower.Span) {
					continue
				}
				if !g.IsAncestor(original.Origin, shadower.Origin) {
					continue
				}
				row := NoShadowRow{
					File:         res.File,
					Name:         name,
					OriginalSpan: spanOrZero(original.Span),
					OriginalDecl: original.DeclaredIn,
					ShadowerSpan: spanOrZero(shadower.Span),
					ShadowerDecl: shadower.DeclaredIn,
					Implicit:     original.Implicit,
				}
				if _, dup := seen[row]; dup {
					continue
				}
				seen[row] = struct{}{}
				out = append(out, row)
			}
		}
	}
	return out
}

func sameSpan(a, b *facts.Span) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func spanOrZero(s *facts.Span) facts.Span {
	if s == nil {
		return facts.Span{}
	}
	return *s
}
