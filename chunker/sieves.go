package chunker

import (
	"bytes"
	"fmt"
	"regexp"
)

type regexSieve struct {
	patterns []*regexp.Regexp
}

// NewRegexSieve creates a Sieve that reports every match of each of the given patterns
//
// Each pattern is scanned over the whole buffer in turn, so matches of different patterns are not ordered and may overlap.
func NewRegexSieve(patterns ...*regexp.Regexp) Sieve {
	return &regexSieve{patterns: patterns}
}

// CompileRegexSieve compiles the given expressions and creates a regex Sieve out of them
func CompileRegexSieve(exprs ...string) (Sieve, error) {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for i, expr := range exprs {
		p, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern[%d]: %w", i, err)
		}
		patterns = append(patterns, p)
	}
	return NewRegexSieve(patterns...), nil
}

// MustCompileRegexSieve is CompileRegexSieve that panics on invalid expressions
func MustCompileRegexSieve(exprs ...string) Sieve {
	s, err := CompileRegexSieve(exprs...)
	if err != nil {
		panic(err)
	}
	return s
}

func (rs *regexSieve) Find(buffer []byte) []Range {
	var ranges []Range
	for _, p := range rs.patterns {
		for _, loc := range p.FindAllIndex(buffer, -1) {
			ranges = append(ranges, Range{Start: loc[0], End: loc[1]})
		}
	}
	return ranges
}

type delimiterSieve struct {
	startMarker []byte
	endMarker   []byte
}

// NewDelimiterSieve creates a Sieve for records beginning with startMarker and ending with endMarker (inclusive)
//
// Bytes between records are skipped as noise. A record without its end marker is incomplete and stops the search.
func NewDelimiterSieve(startMarker []byte, endMarker []byte) (Sieve, error) {
	if len(startMarker) == 0 {
		return nil, fmt.Errorf("start marker is empty")
	}
	if len(endMarker) == 0 {
		return nil, fmt.Errorf("end marker is empty")
	}
	return &delimiterSieve{
		startMarker: append([]byte(nil), startMarker...),
		endMarker:   append([]byte(nil), endMarker...),
	}, nil
}

func (ds *delimiterSieve) Find(buffer []byte) []Range {
	var ranges []Range
	offset := 0
	for offset < len(buffer) {
		startRel := bytes.Index(buffer[offset:], ds.startMarker)
		if startRel == -1 {
			break
		}
		start := offset + startRel
		bodyStart := start + len(ds.startMarker)
		endRel := bytes.Index(buffer[bodyStart:], ds.endMarker)
		if endRel == -1 {
			break
		}
		end := bodyStart + endRel + len(ds.endMarker)
		ranges = append(ranges, Range{Start: start, End: end})
		offset = end
	}
	return ranges
}

type fixedLengthSieve struct {
	syncPattern []byte
	length      int
}

// NewFixedLengthSieve creates a Sieve for binary records starting with syncPattern and having a fixed total length
func NewFixedLengthSieve(syncPattern []byte, length int) (Sieve, error) {
	if len(syncPattern) == 0 {
		return nil, fmt.Errorf("sync pattern is empty")
	}
	if length < len(syncPattern) {
		return nil, fmt.Errorf("record length %d is shorter than sync pattern", length)
	}
	return &fixedLengthSieve{
		syncPattern: append([]byte(nil), syncPattern...),
		length:      length,
	}, nil
}

func (fs *fixedLengthSieve) Find(buffer []byte) []Range {
	var ranges []Range
	offset := 0
	for offset < len(buffer) {
		startRel := bytes.Index(buffer[offset:], fs.syncPattern)
		if startRel == -1 {
			break
		}
		start := offset + startRel
		end := start + fs.length
		if end > len(buffer) {
			break
		}
		ranges = append(ranges, Range{Start: start, End: end})
		offset = end
	}
	return ranges
}
