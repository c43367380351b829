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

import "testing"

func TestPattern_BoundNames_Ident(t *testing.T) {
	p := IdentPattern("x", Span{Start: 4, End: 5})
	names := p.BoundNames()
	if len(names) != 1 {
		t.Fatalf("expected 1 bound name, got %d", len(names))
	}
	if names[0].Name != "x" {
		t.Errorf("expected name %q, got %q", "x", names[0].Name)
	}
	if names[0].Span != (Span{Start: 4, End: 5}) {
		t.Errorf("expected span 4..5, got %+v", names[0].Span)
	}
}

func TestPattern_BoundNames_NestedDestructuring(t *testing.T) {
	// const {a, [b, ...c], d = 1} = v
	p := &Pattern{
		Kind: PatternObject,
		Elems: []*Pattern{
			IdentPattern("a", Span{Start: 1, End: 2}),
			{
				Kind: PatternArray,
				Elems: []*Pattern{
					IdentPattern("b", Span{Start: 3, End: 4}),
					{Kind: PatternRest, Inner: IdentPattern("c", Span{Start: 5, End: 6})},
				},
			},
			{Kind: PatternDefault, Inner: IdentPattern("d", Span{Start: 7, End: 8})},
		},
	}

	names := p.BoundNames()
	want := []string{"a", "b", "c", "d"}
	if len(names) != len(want) {
		t.Fatalf("expected %d bound names, got %d", len(want), len(names))
	}
	for i, w := range want {
		if names[i].Name != w {
			t.Errorf("bound name %d: expected %q, got %q", i, w, names[i].Name)
		}
	}
}

func TestPattern_BoundNames_Nil(t *testing.T) {
	var p *Pattern
	if names := p.BoundNames(); len(names) != 0 {
		t.Errorf("nil pattern should bind nothing, got %v", names)
	}
}

func TestPattern_BoundNames_ArrayHoles(t *testing.T) {
	// [ , x, ]: holes are omitted from Elems entirely.
	p := &Pattern{
		Kind:  PatternArray,
		Elems: []*Pattern{IdentPattern("x", Span{Start: 2, End: 3})},
	}
	names := p.BoundNames()
	if len(names) != 1 || names[0].Name != "x" {
		t.Errorf("expected just x, got %v", names)
	}
}
