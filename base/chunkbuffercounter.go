package base

import (
	"github.com/ooici/mi-agent/chunker"
	"github.com/prometheus/client_golang/prometheus"
)

// ChunkBufferCounter tracks the diagnostics of chunk buffers in metrics
//
// It implements chunker.Observer and can be shared by all sessions of an input.
type ChunkBufferCounter struct {
	truncatedBytesTotal    prometheus.Counter
	prunedOverlapsTotal    prometheus.Counter
	invalidRangesTotal     prometheus.Counter
	missingTimestampsTotal prometheus.Counter
	chunksTotal            prometheus.Counter
	chunkBytesTotal        prometheus.Counter
}

var _ chunker.Observer = (*ChunkBufferCounter)(nil)

// NewChunkBufferCounter creates a ChunkBufferCounter
func NewChunkBufferCounter(factory *MetricFactory) *ChunkBufferCounter {
	return &ChunkBufferCounter{
		truncatedBytesTotal:    factory.AddOrGetCounter("chunker_truncated_bytes_total", "Numbers of bytes discarded due to buffer limit", nil, nil),
		prunedOverlapsTotal:    factory.AddOrGetCounter("chunker_pruned_overlaps_total", "Numbers of overlapping ranges pruned", nil, nil),
		invalidRangesTotal:     factory.AddOrGetCounter("chunker_invalid_ranges_total", "Numbers of invalid ranges from sieve", nil, nil),
		missingTimestampsTotal: factory.AddOrGetCounter("chunker_missing_timestamps_total", "Numbers of chunks without timestamp", nil, nil),
		chunksTotal:            factory.AddOrGetCounter("chunker_chunks_total", "Numbers of extracted chunks", nil, nil),
		chunkBytesTotal:        factory.AddOrGetCounter("chunker_chunk_bytes_total", "Total length in bytes of extracted chunks", nil, nil),
	}
}

func (counter *ChunkBufferCounter) OnTruncated(numBytes int) {
	counter.truncatedBytesTotal.Add(float64(numBytes))
}

func (counter *ChunkBufferCounter) OnOverlapPruned(numRanges int) {
	counter.prunedOverlapsTotal.Add(float64(numRanges))
}

func (counter *ChunkBufferCounter) OnInvalidRange(numRanges int) {
	counter.invalidRangesTotal.Add(float64(numRanges))
}

func (counter *ChunkBufferCounter) OnTimestampMissing() {
	counter.missingTimestampsTotal.Inc()
}

func (counter *ChunkBufferCounter) OnChunk(length int) {
	counter.chunksTotal.Inc()
	counter.chunkBytesTotal.Add(float64(length))
}
