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
	"github.com/AleutianAI/scopetrace/refs"
)

// TypeofUndefRow reports `typeof x` where x has no visible binding.
type TypeofUndefRow struct {
	File   facts.FileID `json:"file"`
	Typeof facts.ExprID `json:"typeof_expr"`
	Expr   facts.ExprID `json:"undefined_expr"`
	Name   string       `json:"name"`
	Span   facts.Span   `json:"span"`
}

// TypeofUndef derives the "typeof of undefined" diagnostic: the
// complement of the typeof exemption in NoUndef, restricted to typeof
// operands.
func TypeofUndef(ff *facts.FileFacts, res *binding.Resolution, typeofs *refs.Typeofs) []TypeofUndefRow {
	seen := make(map[TypeofUndefRow]struct{})
	var out []TypeofUndefRow

	for pair := range typeofs.Rows {
		nr, ok := ff.NameRefs[pair.Expr]
		if !ok {
			continue
		}
		ex, ok := ff.Expressions[pair.Expr]
		if !ok {
			continue
		}
		if len(res.Visible(ex.Scope, nr.Value)) > 0 {
			continue
		}
		row := TypeofUndefRow{
			File:   ff.File,
			Typeof: pair.Typeof,
			Expr:   pair.Expr,
			Name:   nr.Value,
			Span:   ex.Span,
		}
		if _, dup := seen[row]; dup {
			continue
		}
		seen[row] = struct{}{}
		out = append(out, row)
	}
	return out
}
