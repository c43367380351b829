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

// PatternKind discriminates binding-pattern nodes.
type PatternKind uint8

// Pattern node kinds.
const (
	// PatternIdent is a plain identifier binding (`x`).
	PatternIdent PatternKind = iota + 1

	// PatternObject is an object destructuring pattern (`{a, b: c}`).
	PatternObject

	// PatternArray is an array destructuring pattern (`[a, , b]`).
	PatternArray

	// PatternRest is a rest element (`...xs`).
	PatternRest

	// PatternDefault is a pattern with a default value (`x = 1`).
	// Only the inner pattern binds names; the default expression is
	// opaque to the resolver.
	PatternDefault
)

// Pattern is a binding pattern as produced by the fact producer.
//
// Description:
//
//	A Pattern is a tree: identifiers at the leaves, object/array nodes
//	with element patterns, and rest/default wrappers with a single inner
//	pattern. Array holes are simply omitted from Elems.
//
// Thread Safety: Patterns are immutable after construction and must not
// be mutated once handed to the Store.
type Pattern struct {
	Kind PatternKind

	// Name and Span are set for PatternIdent only.
	Name string
	Span Span

	// Elems holds the child patterns of object/array nodes.
	Elems []*Pattern

	// Inner holds the wrapped pattern of rest/default nodes.
	Inner *Pattern
}

// BoundName is one name introduced by a binding pattern.
type BoundName struct {
	Name string
	Span Span
}

// BoundNames returns every name bound by the pattern, in source order.
//
// Description:
//
//	Recursive destructuring walk. This is a pure helper with no aliasing
//	into any derived relation: callers receive a fresh slice. A nil
//	pattern binds nothing (missing optional fields short-circuit rules
//	without contributing rows).
func (p *Pattern) BoundNames() []BoundName {
	var out []BoundName
	p.appendBoundNames(&out)
	return out
}

func (p *Pattern) appendBoundNames(out *[]BoundName) {
	if p == nil {
		return
	}
	switch p.Kind {
	case PatternIdent:
		*out = append(*out, BoundName{Name: p.Name, Span: p.Span})
	case PatternObject, PatternArray:
		for _, e := range p.Elems {
			e.appendBoundNames(out)
		}
	case PatternRest, PatternDefault:
		p.Inner.appendBoundNames(out)
	}
}

// IdentPattern is a convenience constructor for a plain identifier pattern.
func IdentPattern(name string, span Span) *Pattern {
	return &Pattern{Kind: PatternIdent, Name: name, Span: span}
}
