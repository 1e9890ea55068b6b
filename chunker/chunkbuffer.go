// Package chunker reassembles complete instrument records out of fragmented telemetry streams
//
// Incoming fragments are appended to a bounded buffer together with their arrival time. After each append a Sieve is run
// over the whole buffer to locate complete records, which are copied out as timestamped chunks in buffer order, and the
// consumed prefix of the buffer is pruned.
package chunker

import (
	"time"

	"github.com/ooici/mi-agent/defs"
	"github.com/relex/gotils/logger"
	"golang.org/x/exp/slices"
)

// DefaultMaxBufferSize is the buffer limit used if none is specified
const DefaultMaxBufferSize = 65535

// Chunk is a complete record extracted from a stream, with the arrival time of its first byte
type Chunk struct {
	Timestamp time.Time
	Data      []byte
}

// Observer receives counts of the diagnostics from a ChunkBuffer, in addition to logging
type Observer interface {
	OnTruncated(numBytes int)
	OnOverlapPruned(numRanges int)
	OnInvalidRange(numRanges int)
	OnTimestampMissing()
	OnChunk(length int)
}

// timestampRange maps bytes [start, end) of the current buffer to the time they arrived
type timestampRange struct {
	start     int
	end       int
	timestamp time.Time
}

// ChunkBuffer accumulates fragments of a stream and splits them into complete records found by its Sieve
//
// The buffer never grows beyond maxBufferSize after AddChunk returns: the oldest unread bytes are discarded with a
// warning instead.
//
// ChunkBuffer is not safe for concurrent use. Each stream session owns one instance, driven by a single goroutine;
// sharing an instance between sessions would mix up timestamps. Callers with multiple producers must serialize
// AddChunk, GetNextData and Clean themselves.
type ChunkBuffer struct {
	logger        logger.Logger
	sieve         Sieve
	maxBufferSize int
	observer      Observer
	buffer        []byte
	timestamps    []timestampRange
	chunks        []Chunk
}

// NewChunkBuffer creates a ChunkBuffer
//
// maxBufferSize <= 0 means DefaultMaxBufferSize. observer may be nil.
func NewChunkBuffer(parentLogger logger.Logger, sieve Sieve, maxBufferSize int, observer Observer) *ChunkBuffer {
	if sieve == nil {
		logger.Panic("nil sieve")
	}
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxBufferSize
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &ChunkBuffer{
		logger:        parentLogger.WithField(defs.LabelPart, "ChunkBuffer"),
		sieve:         sieve,
		maxBufferSize: maxBufferSize,
		observer:      observer,
		buffer:        nil,
		timestamps:    nil,
		chunks:        nil,
	}
}

// AddChunk appends raw data received at the given time and extracts any complete records into the output queue
//
// The data is copied and may be reused by caller after return.
func (cb *ChunkBuffer) AddChunk(rawData []byte, timestamp time.Time) {
	startIndex := len(cb.buffer)
	endIndex := startIndex + len(rawData)

	if endIndex > cb.maxBufferSize {
		oversize := endIndex - cb.maxBufferSize
		cb.logger.Warnf("chunk buffer has grown beyond specified limit (%d), truncating %d bytes", cb.maxBufferSize, oversize)
		cb.observer.OnTruncated(oversize)

		cb.rebase(oversize)
		if excess := oversize - startIndex; excess > 0 {
			// new data alone exceeds the limit
			rawData = rawData[excess:]
			startIndex = 0
		} else {
			startIndex -= oversize
		}
		endIndex = startIndex + len(rawData)
	}

	if len(rawData) > 0 {
		cb.timestamps = append(cb.timestamps, timestampRange{start: startIndex, end: endIndex, timestamp: timestamp})
		cb.buffer = append(cb.buffer, rawData...)
	}
	cb.makeChunks()
}

// GetNextData pops the oldest extracted chunk, or returns false if there is none
func (cb *ChunkBuffer) GetNextData() (Chunk, bool) {
	if len(cb.chunks) == 0 {
		return Chunk{}, false
	}
	chunk := cb.chunks[0]
	cb.chunks[0] = Chunk{}
	cb.chunks = cb.chunks[1:]
	return chunk, true
}

// Clean discards all buffered data and pending chunks, keeping the sieve and buffer limit
func (cb *ChunkBuffer) Clean() {
	cb.buffer = nil
	cb.timestamps = nil
	cb.chunks = nil
}

// Len returns the length of data buffered but not yet extracted
func (cb *ChunkBuffer) Len() int {
	return len(cb.buffer)
}

// Buffered returns a copy of data buffered but not yet extracted
func (cb *ChunkBuffer) Buffered() []byte {
	return append([]byte(nil), cb.buffer...)
}

// PendingChunks returns the numbers of extracted chunks not yet taken by GetNextData
func (cb *ChunkBuffer) PendingChunks() int {
	return len(cb.chunks)
}

// MaxBufferSize returns the configured buffer limit
func (cb *ChunkBuffer) MaxBufferSize() int {
	return cb.maxBufferSize
}

func (cb *ChunkBuffer) makeChunks() {
	results := cb.sieve.Find(cb.buffer)
	if len(results) == 0 {
		return
	}
	results = cb.filterInvalidRanges(results)
	slices.SortFunc(results, func(a, b Range) bool {
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
	results = cb.pruneOverlaps(results)

	end := 0
	for _, r := range results {
		data := make([]byte, r.Len())
		copy(data, cb.buffer[r.Start:r.End])
		cb.chunks = append(cb.chunks, Chunk{Timestamp: cb.findTimestamp(r.Start), Data: data})
		cb.observer.OnChunk(len(data))
		if r.End > end {
			end = r.End
		}
	}

	if end > 0 {
		cb.rebase(end)
	}
}

// filterInvalidRanges drops ranges that are outside of the buffer or inverted, into a new slice
//
// Empty ranges within the buffer, e.g. from patterns matching nothing, are skipped silently.
func (cb *ChunkBuffer) filterInvalidRanges(ranges []Range) []Range {
	valid := make([]Range, 0, len(ranges))
	var invalid []Range
	for _, r := range ranges {
		if r.Start < 0 || r.End > len(cb.buffer) || r.End < r.Start {
			invalid = append(invalid, r)
			continue
		}
		if r.End == r.Start {
			continue
		}
		valid = append(valid, r)
	}
	if len(invalid) > 0 {
		cb.logger.Errorf("dropped invalid ranges from sieve function: %v, buffer length %d", invalid, len(cb.buffer))
		cb.observer.OnInvalidRange(len(invalid))
	}
	return valid
}

// pruneOverlaps removes ranges starting before the end of their immediate predecessor. First match wins.
//
// Only adjacent pairs in the sorted input are compared, so a range is checked against its predecessor even if the
// predecessor itself has been removed.
func (cb *ChunkBuffer) pruneOverlaps(ranges []Range) []Range {
	kept, removedIndices := pruneOverlaps(ranges)
	if len(removedIndices) > 0 {
		cb.logger.Errorf("found overlapping matches from sieve function: %v of %d", removedIndices, len(ranges))
		cb.observer.OnOverlapPruned(len(removedIndices))
	}
	return kept
}

func pruneOverlaps(ranges []Range) ([]Range, []int) {
	if len(ranges) < 2 {
		return ranges, nil
	}
	kept := make([]Range, 0, len(ranges))
	kept = append(kept, ranges[0])
	var removedIndices []int
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start < ranges[i-1].End {
			removedIndices = append(removedIndices, i)
			continue
		}
		kept = append(kept, ranges[i])
	}
	return kept, removedIndices
}

// findTimestamp returns the arrival time of the byte at the given offset, or zero time if unknown
func (cb *ChunkBuffer) findTimestamp(index int) time.Time {
	for _, tr := range cb.timestamps {
		if tr.start <= index && index < tr.end {
			return tr.timestamp
		}
	}
	cb.logger.Errorf("failed to find timestamp for chunk at offset %d", index)
	cb.observer.OnTimestampMissing()
	return time.Time{}
}

// rebase drops the first n bytes of buffer and shifts the timestamp index to match
func (cb *ChunkBuffer) rebase(n int) {
	newTimestamps := cb.timestamps[:0]
	for _, tr := range cb.timestamps {
		if tr.end <= n {
			continue
		}
		tr.start -= n
		if tr.start < 0 {
			tr.start = 0
		}
		tr.end -= n
		newTimestamps = append(newTimestamps, tr)
	}
	cb.timestamps = newTimestamps

	if n >= len(cb.buffer) {
		cb.buffer = cb.buffer[:0]
	} else {
		// relocate the remaining to the beginning to reuse the backing array
		cb.buffer = cb.buffer[:copy(cb.buffer, cb.buffer[n:])]
	}
}

type nopObserver struct{}

func (nopObserver) OnTruncated(int)     {}
func (nopObserver) OnOverlapPruned(int) {}
func (nopObserver) OnInvalidRange(int)  {}
func (nopObserver) OnTimestampMissing() {}
func (nopObserver) OnChunk(int)         {}
