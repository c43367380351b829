// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package facts

import (
	"sync"
)

// ParamKey identifies a parameter row within its file.
type ParamKey struct {
	Owner AnyID
	Index uint32
}

// EdgeKey identifies a direct scope-nesting edge within its file.
type EdgeKey struct {
	Parent ScopeID
	Child  ScopeID
}

// FileFacts is the per-file partition of the input relations.
//
// Description:
//
//	Every relation is keyed by the row's primary id so that retraction
//	is an O(1) delete and a re-inserted duplicate id simply replaces the
//	previous row (duplicate ids with different data are a contract
//	violation of the fact producer; the store keeps the last row and
//	never merges).
//
// Thread Safety: Not safe for concurrent mutation. The Store serializes
// writes; readers take a consistent view between Apply calls.
type FileFacts struct {
	File FileID

	// Scope topology.
	HasTopLevel bool
	TopLevel    ScopeID
	Scopes      map[ScopeID]struct{}
	Edges       map[EdgeKey]struct{}

	// Declarations.
	Statements      map[StmtID]Statement
	VarDecls        map[StmtID]VarDecl
	Functions       map[FuncID]Function
	Classes         map[ClassID]Class
	Params          map[ParamKey]Param
	Imports         map[ImportID]Import
	ImplicitGlobals map[GlobalID]ImplicitGlobal
	NamedExports    map[NamedExport]struct{}
	CatchClauses    map[StmtID]CatchClause

	// Expressions.
	Expressions    map[ExprID]Expression
	NameRefs       map[ExprID]NameRef
	MemberAccesses map[ExprID]MemberAccess
	Typeofs        map[ExprID]UnaryTypeof
	News           map[ExprID]NewExpr
	Calls          map[ExprID]CallExpr
	Groupings      map[ExprID]Grouping
	Sequences      map[ExprID]Sequence
	Arrows         map[ExprID]ArrowFunc
	InlineFuncs    map[ExprID]InlineFunc
	ClassExprs     map[ExprID]ClassExpr
}

func newFileFacts(id FileID) *FileFacts {
	return &FileFacts{
		File:            id,
		Scopes:          make(map[ScopeID]struct{}),
		Edges:           make(map[EdgeKey]struct{}),
		Statements:      make(map[StmtID]Statement),
		VarDecls:        make(map[StmtID]VarDecl),
		Functions:       make(map[FuncID]Function),
		Classes:         make(map[ClassID]Class),
		Params:          make(map[ParamKey]Param),
		Imports:         make(map[ImportID]Import),
		ImplicitGlobals: make(map[GlobalID]ImplicitGlobal),
		NamedExports:    make(map[NamedExport]struct{}),
		CatchClauses:    make(map[StmtID]CatchClause),
		Expressions:     make(map[ExprID]Expression),
		NameRefs:        make(map[ExprID]NameRef),
		MemberAccesses:  make(map[ExprID]MemberAccess),
		Typeofs:         make(map[ExprID]UnaryTypeof),
		News:            make(map[ExprID]NewExpr),
		Calls:           make(map[ExprID]CallExpr),
		Groupings:       make(map[ExprID]Grouping),
		Sequences:       make(map[ExprID]Sequence),
		Arrows:          make(map[ExprID]ArrowFunc),
		InlineFuncs:     make(map[ExprID]InlineFunc),
		ClassExprs:      make(map[ExprID]ClassExpr),
	}
}

// Empty reports whether the partition holds no facts at all.
func (f *FileFacts) Empty() bool {
	return !f.HasTopLevel &&
		len(f.Scopes) == 0 &&
		len(f.Edges) == 0 &&
		len(f.Statements) == 0 &&
		len(f.VarDecls) == 0 &&
		len(f.Functions) == 0 &&
		len(f.Classes) == 0 &&
		len(f.Params) == 0 &&
		len(f.Imports) == 0 &&
		len(f.ImplicitGlobals) == 0 &&
		len(f.NamedExports) == 0 &&
		len(f.CatchClauses) == 0 &&
		len(f.Expressions) == 0
}

// Batch is a set of fact rows inserted or retracted together. Slices
// may be nil; every row is file-scoped via its File field.
type Batch struct {
	Files           []FileFact
	Scopes          []ScopeFact
	ScopeEdges      []ScopeEdge
	Statements      []Statement
	VarDecls        []VarDecl
	Functions       []Function
	Classes         []Class
	Params          []Param
	Imports         []Import
	ImplicitGlobals []ImplicitGlobal
	NamedExports    []NamedExport
	CatchClauses    []CatchClause
	Expressions     []Expression
	NameRefs        []NameRef
	MemberAccesses  []MemberAccess
	Typeofs         []UnaryTypeof
	News            []NewExpr
	Calls           []CallExpr
	Groupings       []Grouping
	Sequences       []Sequence
	Arrows          []ArrowFunc
	InlineFuncs     []InlineFunc
	ClassExprs      []ClassExpr
}

// Transaction is one batch of inserts and retracts over the input
// relations. Retracts are applied before inserts so that a transaction
// can atomically replace a row under the same key.
type Transaction struct {
	Inserts  Batch
	Retracts Batch
}

// Store holds the input fact relations, partitioned by file.
//
// Thread Safety:
//
//	Safe for concurrent use. Apply serializes writers; File returns the
//	live partition, which callers must only read between Apply calls
//	(the engine guarantees this by serializing Apply).
type Store struct {
	mu    sync.RWMutex
	files map[FileID]*FileFacts
}

// NewStore creates an empty fact store.
func NewStore() *Store {
	return &Store{files: make(map[FileID]*FileFacts)}
}

// File returns the partition for the given file, or nil if no facts
// were ever inserted for it.
func (s *Store) File(id FileID) *FileFacts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files[id]
}

// Files returns the ids of all files with a partition.
func (s *Store) Files() []FileID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FileID, 0, len(s.files))
	for id := range s.files {
		out = append(out, id)
	}
	return out
}

// Apply applies a transaction and returns the ids of every file whose
// partition was touched, deduplicated.
func (s *Store) Apply(tx Transaction) []FileID {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[FileID]struct{})
	s.applyBatch(tx.Retracts, true, touched)
	s.applyBatch(tx.Inserts, false, touched)

	out := make([]FileID, 0, len(touched))
	for id := range touched {
		out = append(out, id)
	}
	return out
}

func (s *Store) partition(id FileID, touched map[FileID]struct{}) *FileFacts {
	touched[id] = struct{}{}
	ff, ok := s.files[id]
	if !ok {
		ff = newFileFacts(id)
		s.files[id] = ff
	}
	return ff
}

// applyBatch inserts or retracts every row of the batch. Insertion
// overwrites under the row's key; retraction deletes the key and is a
// no-op when the key is absent.
func (s *Store) applyBatch(b Batch, retract bool, touched map[FileID]struct{}) {
	for _, r := range b.Files {
		ff := s.partition(r.ID, touched)
		if retract {
			ff.HasTopLevel = false
			ff.TopLevel = 0
		} else {
			ff.HasTopLevel = true
			ff.TopLevel = r.TopLevel
		}
	}
	for _, r := range b.Scopes {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Scopes, r.Scope)
		} else {
			ff.Scopes[r.Scope] = struct{}{}
		}
	}
	for _, r := range b.ScopeEdges {
		ff := s.partition(r.File, touched)
		k := EdgeKey{Parent: r.Parent, Child: r.Child}
		if retract {
			delete(ff.Edges, k)
		} else {
			ff.Edges[k] = struct{}{}
		}
	}
	for _, r := range b.Statements {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Statements, r.ID)
		} else {
			ff.Statements[r.ID] = r
		}
	}
	for _, r := range b.VarDecls {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.VarDecls, r.Stmt)
		} else {
			ff.VarDecls[r.Stmt] = r
		}
	}
	for _, r := range b.Functions {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Functions, r.ID)
		} else {
			ff.Functions[r.ID] = r
		}
	}
	for _, r := range b.Classes {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Classes, r.ID)
		} else {
			ff.Classes[r.ID] = r
		}
	}
	for _, r := range b.Params {
		ff := s.partition(r.File, touched)
		k := ParamKey{Owner: r.Owner, Index: r.Index}
		if retract {
			delete(ff.Params, k)
		} else {
			ff.Params[k] = r
		}
	}
	for _, r := range b.Imports {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Imports, r.ID)
		} else {
			ff.Imports[r.ID] = r
		}
	}
	for _, r := range b.ImplicitGlobals {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.ImplicitGlobals, r.ID)
		} else {
			ff.ImplicitGlobals[r.ID] = r
		}
	}
	for _, r := range b.NamedExports {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.NamedExports, r)
		} else {
			ff.NamedExports[r] = struct{}{}
		}
	}
	for _, r := range b.CatchClauses {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.CatchClauses, r.Stmt)
		} else {
			ff.CatchClauses[r.Stmt] = r
		}
	}
	for _, r := range b.Expressions {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Expressions, r.ID)
		} else {
			ff.Expressions[r.ID] = r
		}
	}
	for _, r := range b.NameRefs {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.NameRefs, r.Expr)
		} else {
			ff.NameRefs[r.Expr] = r
		}
	}
	for _, r := range b.MemberAccesses {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.MemberAccesses, r.Expr)
		} else {
			ff.MemberAccesses[r.Expr] = r
		}
	}
	for _, r := range b.Typeofs {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Typeofs, r.Expr)
		} else {
			ff.Typeofs[r.Expr] = r
		}
	}
	for _, r := range b.News {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.News, r.Expr)
		} else {
			ff.News[r.Expr] = r
		}
	}
	for _, r := range b.Calls {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Calls, r.Expr)
		} else {
			ff.Calls[r.Expr] = r
		}
	}
	for _, r := range b.Groupings {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Groupings, r.Expr)
		} else {
			ff.Groupings[r.Expr] = r
		}
	}
	for _, r := range b.Sequences {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Sequences, r.Expr)
		} else {
			ff.Sequences[r.Expr] = r
		}
	}
	for _, r := range b.Arrows {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.Arrows, r.Expr)
		} else {
			ff.Arrows[r.Expr] = r
		}
	}
	for _, r := range b.InlineFuncs {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.InlineFuncs, r.Expr)
		} else {
			ff.InlineFuncs[r.Expr] = r
		}
	}
	for _, r := range b.ClassExprs {
		ff := s.partition(r.File, touched)
		if retract {
			delete(ff.ClassExprs, r.Expr)
		} else {
			ff.ClassExprs[r.Expr] = r
		}
	}
}
