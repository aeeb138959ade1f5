package query

import "testing"

func u16(n uint16) *uint16 { return &n }

func TestItemContainsKey(t *testing.T) {
	it := ExactKey([]byte("b"))
	if !it.Contains([]byte("b")) {
		t.Fatalf("Key item must contain its exact key")
	}
	if it.Contains([]byte("a")) {
		t.Fatalf("Key item must not contain a different key")
	}
}

func TestItemContainsRangeVariants(t *testing.T) {
	cases := []struct {
		name   string
		item   Item
		in     []string
		out    []string
	}{
		{
			name: "Range [b,d)",
			item: Item{Kind: Range, Lower: []byte("b"), Upper: []byte("d")},
			in:   []string{"b", "c"},
			out:  []string{"a", "d", "e"},
		},
		{
			name: "RangeInclusive [b,d]",
			item: Item{Kind: RangeInclusive, Lower: []byte("b"), Upper: []byte("d")},
			in:   []string{"b", "c", "d"},
			out:  []string{"a", "e"},
		},
		{
			name: "RangeFrom [b,∞)",
			item: Item{Kind: RangeFrom, Lower: []byte("b")},
			in:   []string{"b", "z"},
			out:  []string{"a"},
		},
		{
			name: "RangeTo (-∞,d)",
			item: Item{Kind: RangeTo, Upper: []byte("d")},
			in:   []string{"a", "c"},
			out:  []string{"d", "e"},
		},
		{
			name: "RangeToInclusive (-∞,d]",
			item: Item{Kind: RangeToInclusive, Upper: []byte("d")},
			in:   []string{"a", "d"},
			out:  []string{"e"},
		},
		{
			name: "RangeAfter (b,∞)",
			item: Item{Kind: RangeAfter, Lower: []byte("b")},
			in:   []string{"c"},
			out:  []string{"a", "b"},
		},
		{
			name: "RangeAfterTo (b,d)",
			item: Item{Kind: RangeAfterTo, Lower: []byte("b"), Upper: []byte("d")},
			in:   []string{"c"},
			out:  []string{"a", "b", "d"},
		},
		{
			name: "RangeAfterToInclusive (b,d]",
			item: Item{Kind: RangeAfterToInclusive, Lower: []byte("b"), Upper: []byte("d")},
			in:   []string{"c", "d"},
			out:  []string{"a", "b"},
		},
		{
			name: "RangeFull",
			item: Item{Kind: RangeFull},
			in:   []string{"a", "\xff"},
			out:  nil,
		},
	}

	for _, tc := range cases {
		for _, k := range tc.in {
			if !tc.item.Contains([]byte(k)) {
				t.Errorf("%s: Contains(%q) = false, want true", tc.name, k)
			}
		}
		for _, k := range tc.out {
			if tc.item.Contains([]byte(k)) {
				t.Errorf("%s: Contains(%q) = true, want false", tc.name, k)
			}
		}
	}
}

func TestItemUpperInclusive(t *testing.T) {
	inclusive := []Item{
		{Kind: RangeInclusive},
		{Kind: RangeToInclusive},
		{Kind: RangeAfterToInclusive},
	}
	for _, it := range inclusive {
		if !it.UpperInclusive() {
			t.Errorf("Kind %v must report UpperInclusive", it.Kind)
		}
	}

	exclusive := []Item{
		{Kind: Range},
		{Kind: RangeTo},
		{Kind: RangeAfterTo},
		{Kind: RangeFrom},
		{Kind: RangeAfter},
		{Kind: RangeFull},
		{Kind: Key},
	}
	for _, it := range exclusive {
		if it.UpperInclusive() {
			t.Errorf("Kind %v must not report UpperInclusive", it.Kind)
		}
	}
}

func TestItemBoundsStartExclusiveForAfterVariants(t *testing.T) {
	_, _, startExcl := Item{Kind: RangeAfter, Lower: []byte("a")}.Bounds()
	if !startExcl {
		t.Fatalf("RangeAfter must report startExclusive")
	}
	_, _, startExcl = Item{Kind: RangeFrom, Lower: []byte("a")}.Bounds()
	if startExcl {
		t.Fatalf("RangeFrom must not report startExclusive")
	}
}

func TestSubqueryForDefaultAndConditional(t *testing.T) {
	def := &SizedQuery{Limit: u16(1)}
	override := &SizedQuery{Limit: u16(2)}
	q := &SizedQuery{
		Default:     def,
		Conditional: map[string]*SizedQuery{"special": override},
	}

	if got := q.SubqueryFor([]byte("special")); got != override {
		t.Fatalf("SubqueryFor(special) must return the conditional override")
	}
	if got := q.SubqueryFor([]byte("plain")); got != def {
		t.Fatalf("SubqueryFor(plain) must fall back to Default")
	}
}

func TestSubqueryForNilQuery(t *testing.T) {
	var q *SizedQuery
	if got := q.SubqueryFor([]byte("k")); got != nil {
		t.Fatalf("SubqueryFor on a nil *SizedQuery must return nil, got %v", got)
	}
}

func TestSubqueryForNoDefaultNoConditional(t *testing.T) {
	q := &SizedQuery{Items: []Item{ExactKey([]byte("k"))}}
	if got := q.SubqueryFor([]byte("k")); got != nil {
		t.Fatalf("SubqueryFor with neither Default nor Conditional set must return nil")
	}
}
