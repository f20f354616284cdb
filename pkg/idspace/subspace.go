// Package idspace implements the pure value types describing the Kitty
// image-id space: namespaces (bit-pattern partitions of a 32-bit id) and
// subspaces (byte-range constraints within a namespace). Nothing here does
// I/O; everything is deterministic given its inputs (aside from the
// explicitly random sampling helpers).
package idspace

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Subspace is a half-open byte range [Begin, End) constraining one
// designated byte of an id within its namespace.
type Subspace struct {
	Begin int
	End   int
}

// Full is the subspace spanning the entire byte range [0, 256).
var Full = Subspace{Begin: 0, End: 256}

// NewSubspace validates and constructs a Subspace. It rejects an empty or
// inverted range, an out-of-bounds range, and the singleton {0,1} (which
// would mandate a zero subspace byte, colliding with the "byte absent"
// contract used to decide namespace membership).
func NewSubspace(begin, end int) (Subspace, error) {
	s := Subspace{Begin: begin, End: end}
	if err := s.validate(); err != nil {
		return Subspace{}, err
	}
	return s, nil
}

func (s Subspace) validate() error {
	if s.Begin < 0 || s.End > 256 {
		return fmt.Errorf("idspace: subspace %d:%d out of bounds [0,256]", s.Begin, s.End)
	}
	if s.End <= s.Begin {
		return fmt.Errorf("idspace: subspace %d:%d is empty or inverted", s.Begin, s.End)
	}
	if s.Begin == 0 && s.End == 1 {
		return fmt.Errorf("idspace: subspace 0:1 is forbidden (would mandate a zero subspace byte)")
	}
	return nil
}

// AllByteValues returns every integer in [Begin, End), in ascending order.
func (s Subspace) AllByteValues() []int {
	out := make([]int, 0, s.End-s.Begin)
	for b := s.Begin; b < s.End; b++ {
		out = append(out, b)
	}
	return out
}

// AllNonzeroByteValues returns AllByteValues with 0 excluded.
func (s Subspace) AllNonzeroByteValues() []int {
	all := s.AllByteValues()
	out := make([]int, 0, len(all))
	for _, b := range all {
		if b != 0 {
			out = append(out, b)
		}
	}
	return out
}

// NumNonzeroByteValues is len(AllNonzeroByteValues()) without allocating.
func (s Subspace) NumNonzeroByteValues() int {
	n := s.End - s.Begin
	if s.Begin <= 0 && s.End > 0 {
		n--
	}
	return n
}

// ContainsByte reports whether b lies within [Begin, End).
func (s Subspace) ContainsByte(b int) bool {
	return b >= s.Begin && b < s.End
}

// RandNonzeroByte returns a uniformly random element of
// AllNonzeroByteValues. It fails if that set is empty (only possible for
// the subspace {0,1}, which NewSubspace already rejects, and for a
// zero-valued Subspace{}, which NewSubspace never returns).
func (s Subspace) RandNonzeroByte() (int, error) {
	nonzero := s.AllNonzeroByteValues()
	if len(nonzero) == 0 {
		return 0, fmt.Errorf("idspace: subspace %s has no nonzero byte values", s)
	}
	return nonzero[rand.IntN(len(nonzero))], nil
}

// Split partitions s into n contiguous sub-subspaces whose nonzero-counts
// are as equal as possible. Each part is itself a legal Subspace: no part
// is empty, and no part is the forbidden {0,1} singleton. The parts'
// begin/end values are contiguous (part[i].Begin == part[i-1].End) and
// their union of byte values equals s.AllByteValues().
func (s Subspace) Split(n int) ([]Subspace, error) {
	if n <= 0 {
		return nil, fmt.Errorf("idspace: split count must be positive, got %d", n)
	}
	total := s.End - s.Begin
	if n > total {
		return nil, fmt.Errorf("idspace: cannot split %s into %d non-empty parts", s, n)
	}

	base := total / n
	rem := total % n

	sizes := make([]int, n)
	for i := 0; i < n; i++ {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}

	// The only way a {0,1} forbidden singleton can appear is as the very
	// first part, when s.Begin == 0 and that part was sized to exactly 1.
	// Borrow one byte from a later, larger part to keep every part legal
	// while still returning exactly n parts.
	if s.Begin == 0 && sizes[0] == 1 {
		donor := -1
		for i := n - 1; i > 0; i-- {
			if sizes[i] > 1 {
				donor = i
				break
			}
		}
		if donor == -1 {
			return nil, fmt.Errorf("idspace: cannot split %s into %d legal parts without a forbidden singleton", s, n)
		}
		sizes[0]++
		sizes[donor]--
	}

	parts := make([]Subspace, 0, n)
	cur := s.Begin
	for _, size := range sizes {
		part := Subspace{Begin: cur, End: cur + size}
		if err := part.validate(); err != nil {
			return nil, fmt.Errorf("idspace: split %s into %d produced an illegal part: %w", s, n, err)
		}
		parts = append(parts, part)
		cur += size
	}
	return parts, nil
}

// String returns the canonical "begin:end" form. The full space [0,256)
// canonicalizes to the empty string.
func (s Subspace) String() string {
	if s == Full {
		return ""
	}
	return fmt.Sprintf("%d:%d", s.Begin, s.End)
}

// ParseSubspace parses the "begin:end" string form produced by String,
// treating the empty string as Full.
func ParseSubspace(s string) (Subspace, error) {
	if s == "" {
		return Full, nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Subspace{}, fmt.Errorf("idspace: invalid subspace string %q", s)
	}
	begin, err := strconv.Atoi(parts[0])
	if err != nil {
		return Subspace{}, fmt.Errorf("idspace: invalid subspace begin in %q: %w", s, err)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return Subspace{}, fmt.Errorf("idspace: invalid subspace end in %q: %w", s, err)
	}
	return NewSubspace(begin, end)
}

// Bytes returns an iterator over AllByteValues without allocating a slice.
func (s Subspace) Bytes() iter.Seq[int] {
	return func(yield func(int) bool) {
		for b := s.Begin; b < s.End; b++ {
			if !yield(b) {
				return
			}
		}
	}
}
