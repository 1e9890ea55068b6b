// Package baseinput provides the shared parts of inputs to turn raw streams into chunk batches
package baseinput

import (
	"fmt"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/chunker"
	"github.com/ooici/mi-agent/defs"
	"github.com/puzpuzpuz/xsync"
	"github.com/relex/gotils/logger"
	"golang.org/x/exp/slices"
)

// ChunkingReceiver is a MultiSinkDataReceiver to extract instrument records from each source with its own ChunkBuffer
//
// Extracted chunks are collected per sink and sent to the downstream receiver in batches, when the limits of
// defs.IntermediateBufferMaxNumChunks or defs.IntermediateBufferMaxTotalBytes are reached or on Flush.
type ChunkingReceiver struct {
	logger        logger.Logger
	instrument    string
	sieve         chunker.Sieve
	maxBufferSize int
	observer      chunker.Observer
	downstream    base.ChunkBatchReceiver
	sessions      *xsync.MapOf[*chunkingSink]
}

type chunkingSink struct {
	logger       logger.Logger
	owner        *ChunkingReceiver
	key          string
	client       string
	buffer       *chunker.ChunkBuffer
	pending      []base.InstrumentChunk
	pendingBytes int
}

// NewChunkingReceiver creates a ChunkingReceiver for the given instrument
func NewChunkingReceiver(parentLogger logger.Logger, instrument string, sieve chunker.Sieve, maxBufferSize int,
	observer chunker.Observer, downstream base.ChunkBatchReceiver) *ChunkingReceiver {

	return &ChunkingReceiver{
		logger:        parentLogger.WithField(defs.LabelInstrument, instrument),
		instrument:    instrument,
		sieve:         sieve,
		maxBufferSize: maxBufferSize,
		observer:      observer,
		downstream:    downstream,
		sessions:      xsync.NewMapOf[*chunkingSink](),
	}
}

// NewSink creates a sink owning a new ChunkBuffer
func (recv *ChunkingReceiver) NewSink(clientAddress string, clientNumber base.ClientNumber) base.DataReceiverSink {
	sinkLogger := base.NewSinkLogger(recv.logger, clientAddress, clientNumber)
	sink := &chunkingSink{
		logger:       sinkLogger,
		owner:        recv,
		key:          fmt.Sprintf("%s#%d", clientAddress, clientNumber),
		client:       clientAddress,
		buffer:       chunker.NewChunkBuffer(sinkLogger, recv.sieve, recv.maxBufferSize, recv.observer),
		pending:      make([]base.InstrumentChunk, 0, defs.IntermediateBufferMaxNumChunks),
		pendingBytes: 0,
	}
	recv.sessions.Store(sink.key, sink)
	return sink
}

// ActiveSessions lists the keys of sinks not yet closed, sorted
func (recv *ChunkingReceiver) ActiveSessions() []string {
	var keys []string
	recv.sessions.Range(func(key string, _ *chunkingSink) bool {
		keys = append(keys, key)
		return true
	})
	slices.Sort(keys)
	return keys
}

func (sink *chunkingSink) Accept(data []byte, timestamp time.Time) {
	sink.buffer.AddChunk(data, timestamp)
	for {
		chunk, ok := sink.buffer.GetNextData()
		if !ok {
			break
		}
		sink.pending = append(sink.pending, base.InstrumentChunk{
			Instrument: sink.owner.instrument,
			Client:     sink.client,
			Timestamp:  chunk.Timestamp,
			Data:       chunk.Data,
		})
		sink.pendingBytes += len(chunk.Data)
	}
	if len(sink.pending) >= defs.IntermediateBufferMaxNumChunks || sink.pendingBytes >= defs.IntermediateBufferMaxTotalBytes {
		sink.Flush()
	}
}

func (sink *chunkingSink) Flush() {
	if len(sink.pending) == 0 {
		return
	}
	batch := base.NewChunkBatch(sink.pending)
	sink.logger.Debugf("flush %s", batch)
	sink.owner.downstream.Accept(batch)
	// the batch now belongs to downstream
	sink.pending = make([]base.InstrumentChunk, 0, defs.IntermediateBufferMaxNumChunks)
	sink.pendingBytes = 0
}

func (sink *chunkingSink) Close() {
	sink.Flush()
	if n := sink.buffer.Len(); n > 0 {
		sink.logger.Infof("discard %d bytes of incomplete record", n)
	}
	sink.buffer.Clean()
	sink.owner.sessions.Delete(sink.key)
	sink.logger.Info("close")
}
