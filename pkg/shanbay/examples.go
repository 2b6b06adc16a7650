package shanbay

import "iter"

// sentinelPairs is the number of empty pairs appended to every example list,
// so both example slots of a record can always be filled.
const sentinelPairs = 2

// ExamplePair is one bilingual example sentence. The zero value is the
// "no more examples" sentinel.
type ExamplePair struct {
	EN string
	CN string
}

// IsSentinel reports whether the pair is an empty padding pair.
func (p ExamplePair) IsSentinel() bool { return p.EN == "" && p.CN == "" }

// ExampleSeq is a finite sequence of the fetched examples followed by
// exactly two sentinel pairs. All may be ranged over repeatedly; Next walks
// a single cursor.
type ExampleSeq struct {
	items []ExamplePair
	pos   int
}

// NewExampleSeq appends the two sentinel pairs to pairs.
func NewExampleSeq(pairs ...ExamplePair) *ExampleSeq {
	items := make([]ExamplePair, 0, len(pairs)+sentinelPairs)
	items = append(items, pairs...)
	for range sentinelPairs {
		items = append(items, ExamplePair{})
	}
	return &ExampleSeq{items: items}
}

// Len is the number of items including the sentinels.
func (s *ExampleSeq) Len() int { return len(s.items) }

// Next returns the next pair and false once the sequence is exhausted.
func (s *ExampleSeq) Next() (ExamplePair, bool) {
	if s.pos >= len(s.items) {
		return ExamplePair{}, false
	}
	p := s.items[s.pos]
	s.pos++
	return p, true
}

// Reset rewinds the cursor used by Next.
func (s *ExampleSeq) Reset() { s.pos = 0 }

// Take returns the first n pairs (fewer only if n exceeds Len).
func (s *ExampleSeq) Take(n int) []ExamplePair {
	if n > len(s.items) {
		n = len(s.items)
	}
	out := make([]ExamplePair, n)
	copy(out, s.items[:n])
	return out
}

// All yields (en, cn) for every item, sentinels included.
func (s *ExampleSeq) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, p := range s.items {
			if !yield(p.EN, p.CN) {
				return
			}
		}
	}
}
