// Package chunkfile provides an output to save instrument chunks into gzip-compressed msgpack files
//
// Each file contains a sequence of msgpack maps (instrument, client, time, data) for the chunks of one or more batches,
// named by a sortable ID and labelled with the instruments inside as an extended attribute.
package chunkfile

import (
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

type fileWriter struct {
	logger          logger.Logger
	inputChannel    <-chan base.ChunkBatch
	onBatchConsumed func(batch base.ChunkBatch)
	onBatchDropped  func(batch base.ChunkBatch)
	onFinished      func()
	stopped         *channels.SignalAwaitable
	operator        *fileOperator
	maxFileSize     int
	flushInterval   time.Duration
	pendingBatches  []base.ChunkBatch
	pendingBytes    int
}

func newFileWriter(parentLogger logger.Logger, args base.ChunkConsumerArgs, path string, maxFileSize int,
	flushInterval time.Duration, metricFactory *base.MetricFactory) (*fileWriter, error) {

	wlogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent: "ChunkFileWriter",
		defs.LabelFile:      path,
	})
	op, err := newFileOperator(wlogger, path, metricFactory.NewSubFactory("output_", nil, nil))
	if err != nil {
		return nil, err
	}
	return &fileWriter{
		logger:          wlogger,
		inputChannel:    args.InputChannel,
		onBatchConsumed: args.OnBatchConsumed,
		onBatchDropped:  args.OnBatchDropped,
		onFinished:      args.OnFinished,
		stopped:         channels.NewSignalAwaitable(),
		operator:        op,
		maxFileSize:     maxFileSize,
		flushInterval:   flushInterval,
		pendingBatches:  nil,
		pendingBytes:    0,
	}, nil
}

func (writer *fileWriter) Start() {
	go writer.run()
}

func (writer *fileWriter) Stopped() channels.Awaitable {
	return writer.stopped
}

func (writer *fileWriter) run() {
	defer writer.stopped.Signal()
	defer writer.onFinished()
	defer writer.operator.Close()

	writer.logger.Info("started")
	flushTicker := time.NewTicker(writer.flushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case batch, ok := <-writer.inputChannel:
			if !ok {
				writer.flush()
				writer.logger.Info("stopped")
				return
			}
			writer.pendingBatches = append(writer.pendingBatches, batch)
			writer.pendingBytes += batch.NumBytes
			if writer.pendingBytes >= writer.maxFileSize {
				writer.flush()
			}
		case <-flushTicker.C:
			writer.flush()
		}
	}
}

// flush writes all pending batches into one file
func (writer *fileWriter) flush() {
	if len(writer.pendingBatches) == 0 {
		return
	}
	batches := writer.pendingBatches
	writer.pendingBatches = nil
	writer.pendingBytes = 0

	numChunks := 0
	for _, batch := range batches {
		numChunks += len(batch.Chunks)
	}
	chunks := make([]base.InstrumentChunk, 0, numChunks)
	for _, batch := range batches {
		chunks = append(chunks, batch.Chunks...)
	}

	name, err := writer.operator.WriteChunks(chunks)
	if err != nil {
		writer.logger.Errorf("failed to write chunks=%d: %s", len(chunks), err.Error())
		for _, batch := range batches {
			writer.onBatchDropped(batch)
		}
		return
	}
	writer.logger.Debugf("written chunks=%d to %s", len(chunks), name)
	for _, batch := range batches {
		writer.onBatchConsumed(batch)
	}
}
