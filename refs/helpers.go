// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package refs derives the two helper relations consumed by the checks:
// ChainedWith (member-access chains) and WithinTypeofExpr (the typeof
// operand closure through parentheses and comma sequences).
package refs

import "github.com/AleutianAI/scopetrace/facts"

// ChainPair is one row of the ChainedWith relation: property is reached
// from object through one or more member accesses.
type ChainPair struct {
	Object   facts.ExprID
	Property facts.ExprID
}

// Chains is the settled ChainedWith relation for one file.
//
// Thread Safety: Immutable after BuildChains returns.
type Chains struct {
	Rows map[ChainPair]struct{}

	// incoming marks expressions that appear in the property column of
	// any row, i.e. non-root nodes of a chain.
	incoming map[facts.ExprID]struct{}
}

// Chained reports whether the expression is a non-root node of a
// member-access chain. Only the left-most root of a chain is a real
// name reference; everything else is suppressed by the checks.
func (c *Chains) Chained(expr facts.ExprID) bool {
	_, ok := c.incoming[expr]
	return ok
}

// BuildChains derives ChainedWith.
//
// Base case: each member access with a present object sub-expression
// yields (object, accessExpr). Transitive case: (a,b) and (b,c) imply
// (a,c). The closure is bounded by the base row count; producer input
// that somehow loops simply stops growing at the bound.
func BuildChains(ff *facts.FileFacts) *Chains {
	c := &Chains{
		Rows:     make(map[ChainPair]struct{}),
		incoming: make(map[facts.ExprID]struct{}),
	}

	// object -> directly reachable properties
	next := make(map[facts.ExprID][]facts.ExprID)
	for _, ma := range ff.MemberAccesses {
		if ma.Object == nil {
			continue
		}
		c.add(ChainPair{Object: *ma.Object, Property: ma.Expr})
		next[*ma.Object] = append(next[*ma.Object], ma.Expr)
	}

	bound := len(ff.MemberAccesses) + 1
	for pass := 0; pass < bound; pass++ {
		changed := false
		for pair := range c.Rows {
			for _, p := range next[pair.Property] {
				if c.add(ChainPair{Object: pair.Object, Property: p}) {
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return c
}

func (c *Chains) add(p ChainPair) bool {
	if _, ok := c.Rows[p]; ok {
		return false
	}
	c.Rows[p] = struct{}{}
	c.incoming[p.Property] = struct{}{}
	return true
}

// TypeofPair is one row of WithinTypeofExpr: expr is (transitively) the
// operand of the typeof expression.
type TypeofPair struct {
	Typeof facts.ExprID
	Expr   facts.ExprID
}

// Typeofs is the settled WithinTypeofExpr relation for one file.
//
// Thread Safety: Immutable after BuildTypeofs returns.
type Typeofs struct {
	Rows map[TypeofPair]struct{}

	// byExpr indexes the typeof expressions containing each operand.
	byExpr map[facts.ExprID][]facts.ExprID
}

// Within returns the typeof expressions the operand belongs to, or nil.
func (t *Typeofs) Within(expr facts.ExprID) []facts.ExprID {
	return t.byExpr[expr]
}

// BuildTypeofs derives WithinTypeofExpr.
//
// Base case: each `typeof x` yields (typeofExpr, operand). Transitive
// case: a parenthesized operand extends to the inner expression, and a
// comma sequence extends to its last element. `typeof (a, b)` therefore
// exempts only `b` from NoUndef.
func BuildTypeofs(ff *facts.FileFacts) *Typeofs {
	t := &Typeofs{
		Rows:   make(map[TypeofPair]struct{}),
		byExpr: make(map[facts.ExprID][]facts.ExprID),
	}

	var work []TypeofPair
	for _, to := range ff.Typeofs {
		if to.Operand == nil {
			continue
		}
		p := TypeofPair{Typeof: to.Expr, Expr: *to.Operand}
		if t.add(p) {
			work = append(work, p)
		}
	}

	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		if gr, ok := ff.Groupings[p.Expr]; ok && gr.Inner != nil {
			inner := TypeofPair{Typeof: p.Typeof, Expr: *gr.Inner}
			if t.add(inner) {
				work = append(work, inner)
			}
		}
		if sq, ok := ff.Sequences[p.Expr]; ok && len(sq.Exprs) > 0 {
			last := TypeofPair{Typeof: p.Typeof, Expr: sq.Exprs[len(sq.Exprs)-1]}
			if t.add(last) {
				work = append(work, last)
			}
		}
	}
	return t
}

func (t *Typeofs) add(p TypeofPair) bool {
	if _, ok := t.Rows[p]; ok {
		return false
	}
	t.Rows[p] = struct{}{}
	t.byExpr[p.Expr] = append(t.byExpr[p.Expr], p.Typeof)
	return true
}
