// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"github.com/AleutianAI/scopetrace/binding"
	"github.com/AleutianAI/scopetrace/checks"
	"github.com/AleutianAI/scopetrace/facts"
	"github.com/AleutianAI/scopetrace/refs"
	"github.com/AleutianAI/scopetrace/scopes"
)

// Relation identifies one published output relation.
type Relation uint8

// Published relations: the five diagnostics plus the raw scope data
// exposed for tooling.
const (
	RelNoUndef Relation = iota + 1
	RelTypeofUndef
	RelUseBeforeDef
	RelNoShadow
	RelUnusedVariables
	RelNameInScope
	RelChildScope
	RelIsExported
)

// AllRelations lists every published relation in stratum order.
var AllRelations = []Relation{
	RelChildScope,
	RelNameInScope,
	RelIsExported,
	RelNoUndef,
	RelTypeofUndef,
	RelUseBeforeDef,
	RelNoShadow,
	RelUnusedVariables,
}

// String returns the canonical relation name.
func (r Relation) String() string {
	switch r {
	case RelNoUndef:
		return "no_undef"
	case RelTypeofUndef:
		return "typeof_undef"
	case RelUseBeforeDef:
		return "use_before_def"
	case RelNoShadow:
		return "no_shadow"
	case RelUnusedVariables:
		return "unused_variables"
	case RelNameInScope:
		return "name_in_scope"
	case RelChildScope:
		return "child_scope"
	case RelIsExported:
		return "is_exported"
	default:
		return "unknown"
	}
}

// NameInScopeRow is the published form of one NameInScope row. HasSpan
// is false for implicit globals (the span field is then the zero span).
type NameInScopeRow struct {
	File       facts.FileID  `json:"file"`
	Name       string        `json:"name"`
	Scope      facts.ScopeID `json:"scope"`
	Span       facts.Span    `json:"span"`
	HasSpan    bool          `json:"has_span"`
	DeclaredIn facts.AnyID   `json:"declared_in"`
	Implicit   bool          `json:"implicit"`
	IsArg      bool          `json:"is_arg"`
}

// ChildScopeRow is one transitive nesting pair.
type ChildScopeRow struct {
	File   facts.FileID  `json:"file"`
	Parent facts.ScopeID `json:"parent"`
	Child  facts.ScopeID `json:"child"`
}

// IsExportedRow marks one exported declaration id.
type IsExportedRow struct {
	File facts.FileID `json:"file"`
	Decl facts.AnyID  `json:"decl"`
}

// Row is one published relation row. Concrete types are the comparable
// row structs of this package and package checks; rows are usable as
// map keys.
type Row = any

// Delta is one change to a published relation: positive multiplicity
// for inserts, negative for retracts.
type Delta struct {
	Row          Row
	Multiplicity int
}

// fileResult holds the settled relation contents for one file as
// multisets (row -> multiplicity).
type fileResult struct {
	rows map[Relation]map[Row]int
}

func newFileResult() *fileResult {
	fr := &fileResult{rows: make(map[Relation]map[Row]int, len(AllRelations))}
	for _, rel := range AllRelations {
		fr.rows[rel] = make(map[Row]int)
	}
	return fr
}

func (fr *fileResult) add(rel Relation, row Row) {
	fr.rows[rel][row]++
}

func (fr *fileResult) total() int {
	n := 0
	for _, rows := range fr.rows {
		for _, m := range rows {
			n += m
		}
	}
	return n
}

// diffResults emits the deltas that transform old into new, per relation.
// Either side may be nil (file never published / fully retracted).
func diffResults(old, new *fileResult) map[Relation][]Delta {
	out := make(map[Relation][]Delta)
	for _, rel := range AllRelations {
		var oldRows, newRows map[Row]int
		if old != nil {
			oldRows = old.rows[rel]
		}
		if new != nil {
			newRows = new.rows[rel]
		}
		for row, n := range newRows {
			if d := n - oldRows[row]; d != 0 {
				out[rel] = append(out[rel], Delta{Row: row, Multiplicity: d})
			}
		}
		for row, n := range oldRows {
			if _, stillThere := newRows[row]; !stillThere {
				out[rel] = append(out[rel], Delta{Row: row, Multiplicity: -n})
			}
		}
	}
	return out
}

// collectResult converts the settled per-file derivations into
// published multisets.
func collectResult(ff *facts.FileFacts, g *scopes.Graph, res *binding.Resolution, chains *refs.Chains, typeofs *refs.Typeofs) *fileResult {
	fr := newFileResult()

	for parent, ds := range g.Desc {
		for child := range ds {
			fr.add(RelChildScope, ChildScopeRow{File: ff.File, Parent: parent, Child: child})
		}
	}

	for _, scope := range res.Scopes() {
		for _, rows := range res.At(scope) {
			for _, row := range rows {
				pub := NameInScopeRow{
					File:       ff.File,
					Name:       row.Name,
					Scope:      scope,
					DeclaredIn: row.DeclaredIn,
					Implicit:   row.Implicit,
					IsArg:      row.IsArg,
				}
				if row.Span != nil {
					pub.Span = *row.Span
					pub.HasSpan = true
				}
				fr.add(RelNameInScope, pub)
			}
		}
	}

	for decl := range res.Exported {
		fr.add(RelIsExported, IsExportedRow{File: ff.File, Decl: decl})
	}

	for _, row := range checks.NoUndef(ff, res, chains, typeofs) {
		fr.add(RelNoUndef, row)
	}
	for _, row := range checks.TypeofUndef(ff, res, typeofs) {
		fr.add(RelTypeofUndef, row)
	}
	for _, row := range checks.UseBeforeDef(ff, g, res) {
		fr.add(RelUseBeforeDef, row)
	}
	for _, row := range checks.NoShadow(res, g) {
		fr.add(RelNoShadow, row)
	}
	for _, row := range checks.UnusedVariables(ff, res) {
		fr.add(RelUnusedVariables, row)
	}

	return fr
}
