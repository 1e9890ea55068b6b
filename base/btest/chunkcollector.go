package btest

import (
	"sync"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
)

// ChunkCollector is a ChunkBatchReceiver to collect all received chunks for tests
type ChunkCollector struct {
	mutex   *sync.Mutex
	batches []base.ChunkBatch
	channel chan base.InstrumentChunk
}

// NewChunkCollector creates a ChunkCollector
func NewChunkCollector() *ChunkCollector {
	return &ChunkCollector{
		mutex:   &sync.Mutex{},
		batches: nil,
		channel: make(chan base.InstrumentChunk, 1000),
	}
}

// Accept records the batch and sends each of its chunks to Channel()
func (collector *ChunkCollector) Accept(batch base.ChunkBatch) {
	collector.mutex.Lock()
	collector.batches = append(collector.batches, batch)
	collector.mutex.Unlock()
	for _, chunk := range batch.Chunks {
		collector.channel <- chunk
	}
}

// Channel returns the channel of all collected chunks in order
func (collector *ChunkCollector) Channel() <-chan base.InstrumentChunk {
	return collector.channel
}

// Batches returns all the batches received so far
func (collector *ChunkCollector) Batches() []base.ChunkBatch {
	collector.mutex.Lock()
	defer collector.mutex.Unlock()
	return append([]base.ChunkBatch(nil), collector.batches...)
}

// ReadChannel reads from channel or returns false on timeout or end of channel
func ReadChannel[T any](ch <-chan T) (T, bool) {
	select {
	case value, ok := <-ch:
		return value, ok
	case <-time.After(defs.TestReadTimeout):
		var empty T
		return empty, false
	}
}

// ReadChunkData reads data of the next chunk from channel, or "<timeout>"
func ReadChunkData(ch <-chan base.InstrumentChunk) string {
	chunk, ok := ReadChannel(ch)
	if !ok {
		return "<timeout>"
	}
	return string(chunk.Data)
}
