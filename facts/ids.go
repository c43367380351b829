// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package facts holds the immutable input relations of the analysis:
// opaque file-scoped identifiers, declaration and expression fact rows,
// and the Store that partitions them by file. The package owns no
// derivation logic; everything downstream (scopes, binding, refs, checks)
// is a pure function of the current fact set.
package facts

import "fmt"

// Opaque, file-scoped identifiers. Values are assigned by the fact
// producer and carry no meaning beyond identity within one file.
type (
	// FileID identifies one analyzed file.
	FileID uint32

	// ScopeID identifies one lexical scope within a file.
	ScopeID uint32

	// ExprID identifies one expression within a file.
	ExprID uint32

	// StmtID identifies one statement within a file.
	StmtID uint32

	// FuncID identifies one function declaration within a file.
	FuncID uint32

	// ClassID identifies one class declaration within a file.
	ClassID uint32

	// ImportID identifies one import clause within a file.
	ImportID uint32

	// GlobalID identifies one implicit-global binding within a file.
	GlobalID uint32
)

// IDKind discriminates the variants of AnyID.
type IDKind uint8

// AnyID variants. The zero value (IDKindNone) marks an absent id.
const (
	IDKindNone IDKind = iota
	IDKindFile
	IDKindScope
	IDKindExpr
	IDKindStmt
	IDKindFunc
	IDKindClass
	IDKindImport
	IDKindGlobal
)

// String returns the string representation of the IDKind.
func (k IDKind) String() string {
	switch k {
	case IDKindNone:
		return "none"
	case IDKindFile:
		return "file"
	case IDKindScope:
		return "scope"
	case IDKindExpr:
		return "expr"
	case IDKindStmt:
		return "stmt"
	case IDKindFunc:
		return "func"
	case IDKindClass:
		return "class"
	case IDKindImport:
		return "import"
	case IDKindGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// AnyID references any kind of declaration or AST node by id.
//
// Description:
//
//	AnyID is a closed sum over the concrete id kinds. It is used wherever
//	a declaration site must be referenced generically, e.g. "declared by
//	this statement" vs "declared by this function". Consumers must switch
//	exhaustively on Kind rather than assuming a particular variant.
//
// Thread Safety: Immutable value type, safe for concurrent use and
// usable as a map key.
type AnyID struct {
	Kind  IDKind
	Index uint32
}

// FileAnyID wraps a FileID as an AnyID.
func FileAnyID(id FileID) AnyID { return AnyID{Kind: IDKindFile, Index: uint32(id)} }

// ScopeAnyID wraps a ScopeID as an AnyID.
func ScopeAnyID(id ScopeID) AnyID { return AnyID{Kind: IDKindScope, Index: uint32(id)} }

// ExprAnyID wraps an ExprID as an AnyID.
func ExprAnyID(id ExprID) AnyID { return AnyID{Kind: IDKindExpr, Index: uint32(id)} }

// StmtAnyID wraps a StmtID as an AnyID.
func StmtAnyID(id StmtID) AnyID { return AnyID{Kind: IDKindStmt, Index: uint32(id)} }

// FuncAnyID wraps a FuncID as an AnyID.
func FuncAnyID(id FuncID) AnyID { return AnyID{Kind: IDKindFunc, Index: uint32(id)} }

// ClassAnyID wraps a ClassID as an AnyID.
func ClassAnyID(id ClassID) AnyID { return AnyID{Kind: IDKindClass, Index: uint32(id)} }

// ImportAnyID wraps an ImportID as an AnyID.
func ImportAnyID(id ImportID) AnyID { return AnyID{Kind: IDKindImport, Index: uint32(id)} }

// GlobalAnyID wraps a GlobalID as an AnyID.
func GlobalAnyID(id GlobalID) AnyID { return AnyID{Kind: IDKindGlobal, Index: uint32(id)} }

// IsNone reports whether the id is the absent sentinel.
func (a AnyID) IsNone() bool { return a.Kind == IDKindNone }

// String returns a compact "kind:index" form for logging.
func (a AnyID) String() string {
	if a.Kind == IDKindNone {
		return "none"
	}
	return fmt.Sprintf("%s:%d", a.Kind, a.Index)
}

// Span is a half-open byte range into the original source text.
// The core never renders spans; they are carried through to diagnostics
// for the external formatter.
type Span struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}
