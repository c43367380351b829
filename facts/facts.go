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

// DeclKind discriminates var/let/const declaration statements.
type DeclKind uint8

// Declaration statement kinds.
const (
	DeclVar DeclKind = iota + 1
	DeclLet
	DeclConst
)

// String returns the source keyword for the declaration kind.
func (k DeclKind) String() string {
	switch k {
	case DeclVar:
		return "var"
	case DeclLet:
		return "let"
	case DeclConst:
		return "const"
	default:
		return "unknown"
	}
}

// ExprKind discriminates expression fact rows.
type ExprKind uint8

// Expression kinds. Only the kinds the checks consume carry side facts;
// everything else is ExprOther and participates only via its scope/span.
const (
	ExprOther ExprKind = iota
	ExprNameRef
	ExprDotAccess
	ExprBracketAccess
	ExprTypeof
	ExprNew
	ExprCall
	ExprGrouping
	ExprSequence
	ExprArrow
	ExprInlineFunc
	ExprClass
)

// --- Scope topology ---

// FileFact declares a file and its top-level scope.
type FileFact struct {
	ID       FileID
	TopLevel ScopeID
}

// ScopeFact declares the existence of a scope within a file.
type ScopeFact struct {
	File  FileID
	Scope ScopeID
}

// ScopeEdge is one direct lexical-nesting edge between two scopes.
type ScopeEdge struct {
	File   FileID
	Parent ScopeID
	Child  ScopeID
}

// --- Statements and declarations ---

// Statement records the owning scope and span of a statement.
type Statement struct {
	ID    StmtID
	File  FileID
	Scope ScopeID
	Span  Span
}

// VarDecl is a var/let/const declaration statement.
//
// The owning Statement fact supplies the scope; Pattern and Init are
// optional and short-circuit the binding rules when absent.
type VarDecl struct {
	Stmt     StmtID
	File     FileID
	Kind     DeclKind
	Pattern  *Pattern
	Init     *ExprID
	Exported bool
}

// Function is a function declaration.
//
// Scope is the scope the declaration appears in; Body is the scope of
// the function body. Name and NameSpan are absent for anonymous
// declarations (e.g. `export default function() {}`).
type Function struct {
	ID       FuncID
	File     FileID
	Name     *string
	NameSpan *Span
	Scope    ScopeID
	Body     ScopeID
	Exported bool
}

// Class is a class declaration.
type Class struct {
	ID       ClassID
	File     FileID
	Name     *string
	NameSpan *Span
	Scope    ScopeID
	Elements ScopeID
	Exported bool
}

// Param is one function/arrow/inline-function parameter.
//
// Owner is the declaring function: a FuncID for declarations, or the
// ExprID of an arrow or inline function expression. Index keys the
// parameter within its owner for retraction. Implicit marks producer
// synthesized parameters (e.g. `arguments`).
type Param struct {
	Owner    AnyID
	Index    uint32
	File     FileID
	Pattern  *Pattern
	Implicit bool
}

// Import is an import clause and the names it binds at the file's
// top-level scope.
type Import struct {
	ID    ImportID
	File  FileID
	Names []BoundName
}

// ImplicitGlobal is an ambient binding visible in every scope of the
// file (e.g. browser globals). It has no span.
type ImplicitGlobal struct {
	ID   GlobalID
	File FileID
	Name string
}

// NamedExport is an `export {name as alias}` entry, resolved against
// NameInScope at Scope. Alias is empty when absent.
type NamedExport struct {
	File  FileID
	Scope ScopeID
	Name  string
	Alias string
}

// CatchClause is a try/catch handler: the error pattern binds into the
// catch-block scope.
type CatchClause struct {
	Stmt    StmtID
	File    FileID
	Pattern *Pattern
	Body    ScopeID
}

// --- Expressions ---

// Expression records the kind, owning scope and span of an expression.
type Expression struct {
	ID    ExprID
	File  FileID
	Kind  ExprKind
	Scope ScopeID
	Span  Span
}

// NameRef is a bare name reference expression.
type NameRef struct {
	Expr  ExprID
	File  FileID
	Value string
}

// MemberAccess is a dot or bracket member-access expression. Object and
// Prop sub-expression ids are optional; Brackets distinguishes `a[b]`
// from `a.b`.
type MemberAccess struct {
	Expr     ExprID
	File     FileID
	Brackets bool
	Object   *ExprID
	Prop     *ExprID
}

// UnaryTypeof is a `typeof x` unary operation.
type UnaryTypeof struct {
	Expr    ExprID
	File    FileID
	Operand *ExprID
}

// NewExpr is a `new Callee(...)` expression.
type NewExpr struct {
	Expr   ExprID
	File   FileID
	Callee *ExprID
}

// CallExpr is a `callee(...)` expression.
type CallExpr struct {
	Expr   ExprID
	File   FileID
	Callee *ExprID
}

// Grouping is a parenthesized expression.
type Grouping struct {
	Expr  ExprID
	File  FileID
	Inner *ExprID
}

// Sequence is a comma-sequence expression; only the last element
// matters to the typeof closure.
type Sequence struct {
	Expr  ExprID
	File  FileID
	Exprs []ExprID
}

// ArrowFunc is an arrow function expression with its body scope.
type ArrowFunc struct {
	Expr ExprID
	File FileID
	Body ScopeID
}

// InlineFunc is a function expression (possibly named) or an
// object/class method, with its body scope. A name, when present, is
// visible inside the body scope only.
type InlineFunc struct {
	Expr     ExprID
	File     FileID
	Name     *string
	NameSpan *Span
	Body     ScopeID
}

// ClassExpr is a class expression.
type ClassExpr struct {
	Expr     ExprID
	File     FileID
	Name     *string
	NameSpan *Span
	Elements *ScopeID
}
