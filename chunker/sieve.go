package chunker

import (
	"fmt"
)

// Range is a half-open byte range [Start, End) in a buffer
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered
func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Sieve locates complete records in the buffered data of a stream
//
// Find is called with the whole buffer on every ingestion and must not retain it. The returned ranges should be
// non-overlapping and in order, but ChunkBuffer sorts them and prunes overlaps regardless. An empty result means no
// complete record is present yet.
//
// Find must not block or perform I/O.
type Sieve interface {
	Find(buffer []byte) []Range
}

// SieveFunc adapts a plain function to Sieve
type SieveFunc func(buffer []byte) []Range

// Find calls the function itself
func (f SieveFunc) Find(buffer []byte) []Range {
	return f(buffer)
}

type multiSieve struct {
	sieves []Sieve
}

// NewMultiSieve creates a Sieve returning the concatenated results of all the given sieves
//
// Results from different sieves may overlap; ChunkBuffer keeps the first one in order.
func NewMultiSieve(sieves ...Sieve) Sieve {
	return &multiSieve{sieves: sieves}
}

func (ms *multiSieve) Find(buffer []byte) []Range {
	var ranges []Range
	for _, s := range ms.sieves {
		ranges = append(ranges, s.Find(buffer)...)
	}
	return ranges
}
