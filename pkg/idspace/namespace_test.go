package idspace

import "testing"

func TestAllValuesExcludesZero(t *testing.T) {
	for _, n := range AllValues() {
		if n.ColorBits == 0 && !n.Use3rdDiacritic {
			t.Fatalf("the (0bit, no-3rd) namespace must not be a legal value: %v", n)
		}
	}
	if len(AllValues()) != 5 {
		t.Fatalf("expected 5 legal namespaces, got %d", len(AllValues()))
	}
}

func TestNamespaceNames(t *testing.T) {
	cases := []struct {
		ns   Namespace
		want string
	}{
		{NS0bit3rd, "0bit_3rd"},
		{NS8bit, "8bit"},
		{NS8bit3rd, "8bit_3rd"},
		{NS24bit, "24bit"},
		{NS24bit3rd, "24bit_3rd"},
	}
	for _, c := range cases {
		if got := c.ns.Name(); got != c.want {
			t.Errorf("Name() = %q, want %q", got, c.want)
		}
	}
}

// TestNamespacesDisjoint verifies invariant 1: for every namespace and
// every legal subspace, membership sets are pairwise disjoint from all
// other namespaces.
func TestNamespacesDisjoint(t *testing.T) {
	for v := uint32(0); v < 1<<20; v += 997 { // sparse sweep over a huge space
		matches := 0
		for _, n := range AllValues() {
			if n.Contains(v) {
				matches++
			}
		}
		if matches > 1 {
			t.Fatalf("id %d belongs to %d namespaces, want at most 1", v, matches)
		}
	}

	// Exhaustive check restricted to small subspaces so AllIDs stays cheap.
	small, err := NewSubspace(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[uint32]string{}
	for _, n := range AllValues() {
		for id := range n.AllIDs(small) {
			if owner, ok := seen[id]; ok {
				t.Fatalf("id %d claimed by both %s and %s", id, owner, n)
			}
			seen[id] = n.Name()
			if !n.Contains(id) || !n.ContainsAndInSubspace(id, small) {
				t.Fatalf("AllIDs(%s) yielded %d which fails Contains/ContainsAndInSubspace for %s", small, id, n)
			}
		}
	}
}

// TestAllIDsExhaustiveAndDistinct verifies invariant 2.
func TestAllIDsExhaustiveAndDistinct(t *testing.T) {
	small, err := NewSubspace(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range AllValues() {
		want := n.SubspaceSize(small)
		seen := map[uint32]bool{}
		count := 0
		for id := range n.AllIDs(small) {
			if seen[id] {
				t.Fatalf("%s.AllIDs(%s) repeated id %d", n, small, id)
			}
			seen[id] = true
			count++
			if !n.ContainsAndInSubspace(id, small) {
				t.Fatalf("%s.AllIDs(%s) yielded %d outside the namespace/subspace", n, small, id)
			}
		}
		if count != want {
			t.Fatalf("%s.AllIDs(%s) yielded %d ids, want SubspaceSize=%d", n, small, count, want)
		}
	}
}

func TestGenRandomIDInNamespaceAndSubspace(t *testing.T) {
	s, err := NewSubspace(10, 20)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range AllValues() {
		for i := 0; i < 200; i++ {
			id, err := n.GenRandomID(s)
			if err != nil {
				t.Fatalf("%s.GenRandomID(%s): %v", n, s, err)
			}
			if !n.ContainsAndInSubspace(id, s) {
				t.Fatalf("%s.GenRandomID(%s) = %d not in namespace/subspace", n, s, id)
			}
		}
	}
}

func TestFromID(t *testing.T) {
	for _, n := range AllValues() {
		s := Full
		id, err := n.GenRandomID(s)
		if err != nil {
			t.Fatal(err)
		}
		got, err := FromID(id)
		if err != nil {
			t.Fatalf("FromID(%d): %v", id, err)
		}
		if got != n {
			t.Errorf("FromID(%d) = %s, want %s", id, got, n)
		}
	}

	if _, err := FromID(0); err == nil {
		t.Error("FromID(0) should fail: id 0 belongs to no legal namespace")
	}
}

func TestSubspaceByteMaskAndRange(t *testing.T) {
	s, err := NewSubspace(2, 5)
	if err != nil {
		t.Fatal(err)
	}
	begin, end := NS24bit3rd.SubspaceMaskedRange(s)
	if begin != 2<<24 || end != 5<<24 {
		t.Errorf("SubspaceMaskedRange = (%#x, %#x), want (%#x, %#x)", begin, end, 2<<24, 5<<24)
	}
	if mask := NS24bit3rd.SubspaceByteMask(); mask != 0xFF<<24 {
		t.Errorf("SubspaceByteMask = %#x, want %#x", mask, 0xFF<<24)
	}

	begin, end = NS8bit.SubspaceMaskedRange(s)
	if begin != 2 || end != 5 {
		t.Errorf("8bit SubspaceMaskedRange = (%d,%d), want (2,5)", begin, end)
	}
}
