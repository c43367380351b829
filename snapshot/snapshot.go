// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists point-in-time captures of the engine's
// published relations to BadgerDB, as gzip-compressed JSON with
// content-hash integrity checks.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/scopetrace/checks"
	"github.com/AleutianAI/scopetrace/engine"
)

// SchemaVersion is the serialization schema version for analysis
// snapshots. Bump on any incompatible change to Analysis.
const SchemaVersion = "1.0"

// Analysis is the serializable form of the engine's published
// relations at one point in time.
//
// Description:
//
//	Holds every published relation as a typed slice, sorted into a
//	deterministic order so AnalysisHash is stable across captures of
//	identical state. Restoring an engine from a snapshot is not
//	supported; snapshots exist for diffing, dashboards and offline
//	inspection of diagnostics.
type Analysis struct {
	// SchemaVersion is the serialization schema version.
	SchemaVersion string `json:"schema_version"`

	// ProjectRoot identifies the codebase the facts came from.
	ProjectRoot string `json:"project_root"`

	// CapturedAtMilli is when the capture was taken (Unix ms UTC).
	CapturedAtMilli int64 `json:"captured_at_milli"`

	// AnalysisHash is the deterministic hash of the relation contents.
	AnalysisHash string `json:"analysis_hash"`

	ChildScopes  []engine.ChildScopeRow  `json:"child_scopes"`
	NamesInScope []engine.NameInScopeRow `json:"names_in_scope"`
	Exported     []engine.IsExportedRow  `json:"exported"`

	NoUndef      []checks.NoUndefRow        `json:"no_undef"`
	TypeofUndef  []checks.TypeofUndefRow    `json:"typeof_undef"`
	UseBeforeDef []checks.UseBeforeDefRow   `json:"use_before_def"`
	NoShadow     []checks.NoShadowRow       `json:"no_shadow"`
	Unused       []checks.UnusedVariableRow `json:"unused_variables"`
}

// RowCount returns the total number of rows across all relations.
func (a *Analysis) RowCount() int {
	return len(a.ChildScopes) + len(a.NamesInScope) + len(a.Exported) +
		len(a.NoUndef) + len(a.TypeofUndef) + len(a.UseBeforeDef) +
		len(a.NoShadow) + len(a.Unused)
}

// DiagnosticCount returns the number of rows in the five diagnostic
// relations.
func (a *Analysis) DiagnosticCount() int {
	return len(a.NoUndef) + len(a.TypeofUndef) + len(a.UseBeforeDef) +
		len(a.NoShadow) + len(a.Unused)
}

// Capture builds an Analysis from the engine's current published
// relations.
//
// Description:
//
//	Reads every published relation via Engine.Snapshot. The engine
//	serializes applies, so the capture is internally consistent: it
//	reflects the state after some complete Apply.
//
// Inputs:
//
//	e - The engine to capture. Must not be nil.
//	projectRoot - Identifier for the analyzed codebase.
//
// Outputs:
//
//	*Analysis - The capture, with AnalysisHash populated.
//	error - Non-nil if e is nil or serialization for hashing fails.
func Capture(e *engine.Engine, projectRoot string) (*Analysis, error) {
	if e == nil {
		return nil, fmt.Errorf("engine must not be nil")
	}

	a := &Analysis{
		SchemaVersion:   SchemaVersion,
		ProjectRoot:     projectRoot,
		CapturedAtMilli: time.Now().UnixMilli(),
	}

	for _, row := range e.Snapshot(engine.RelChildScope) {
		a.ChildScopes = append(a.ChildScopes, row.(engine.ChildScopeRow))
	}
	for _, row := range e.Snapshot(engine.RelNameInScope) {
		a.NamesInScope = append(a.NamesInScope, row.(engine.NameInScopeRow))
	}
	for _, row := range e.Snapshot(engine.RelIsExported) {
		a.Exported = append(a.Exported, row.(engine.IsExportedRow))
	}
	for _, row := range e.Snapshot(engine.RelNoUndef) {
		a.NoUndef = append(a.NoUndef, row.(checks.NoUndefRow))
	}
	for _, row := range e.Snapshot(engine.RelTypeofUndef) {
		a.TypeofUndef = append(a.TypeofUndef, row.(checks.TypeofUndefRow))
	}
	for _, row := range e.Snapshot(engine.RelUseBeforeDef) {
		a.UseBeforeDef = append(a.UseBeforeDef, row.(checks.UseBeforeDefRow))
	}
	for _, row := range e.Snapshot(engine.RelNoShadow) {
		a.NoShadow = append(a.NoShadow, row.(checks.NoShadowRow))
	}
	for _, row := range e.Snapshot(engine.RelUnusedVariables) {
		a.Unused = append(a.Unused, row.(checks.UnusedVariableRow))
	}

	a.normalize()

	hash, err := a.contentHash()
	if err != nil {
		return nil, fmt.Errorf("hashing analysis: %w", err)
	}
	a.AnalysisHash = hash
	return a, nil
}

// normalize sorts every relation slice into a deterministic order so
// that two captures of identical state hash identically.
func (a *Analysis) normalize() {
	sortByJSON(a.ChildScopes)
	sortByJSON(a.NamesInScope)
	sortByJSON(a.Exported)
	sortByJSON(a.NoUndef)
	sortByJSON(a.TypeofUndef)
	sortByJSON(a.UseBeforeDef)
	sortByJSON(a.NoShadow)
	sortByJSON(a.Unused)
}

// sortByJSON orders rows by their JSON encoding. Rows are small flat
// structs, so this is cheap and gives a total order without a
// per-type comparator.
func sortByJSON[T any](rows []T) {
	keys := make([]string, len(rows))
	for i := range rows {
		b, err := json.Marshal(rows[i])
		if err == nil {
			keys[i] = string(b)
		}
	}
	sort.Sort(&jsonSorter[T]{rows: rows, keys: keys})
}

type jsonSorter[T any] struct {
	rows []T
	keys []string
}

func (s *jsonSorter[T]) Len() int           { return len(s.rows) }
func (s *jsonSorter[T]) Less(i, j int) bool { return s.keys[i] < s.keys[j] }
func (s *jsonSorter[T]) Swap(i, j int) {
	s.rows[i], s.rows[j] = s.rows[j], s.rows[i]
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
}

// contentHash computes the deterministic hash of the relation
// contents, excluding capture-time metadata.
func (a *Analysis) contentHash() (string, error) {
	shadow := *a
	shadow.CapturedAtMilli = 0
	shadow.AnalysisHash = ""
	data, err := json.Marshal(&shadow)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
