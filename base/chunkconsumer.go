package base

import (
	"github.com/relex/gotils/logger"
)

// ChunkConsumer is a worker to consume chunk batches for storage, forwarding or else
//
// A consumer should be created with ChunkConsumerArgs as input
// It should initiate shutdown by the end of InputChannel, after all the batches left in it have been consumed
type ChunkConsumer interface {
	PipelineWorker
}

// ChunkConsumerArgs is the parameters to create a ChunkConsumer
//
// For any batch, either OnBatchConsumed or OnBatchDropped must be called
type ChunkConsumerArgs struct {
	InputChannel    <-chan ChunkBatch      // channel of chunk batches to consume
	OnBatchConsumed func(batch ChunkBatch) // to be called when a batch is consumed / committed
	OnBatchDropped  func(batch ChunkBatch) // to be called when a batch is given up, e.g. after max attempts
	OnFinished      func()                 // to be called after the consumer ends
}

// ChunkConsumerConstructor creates a ChunkConsumer
type ChunkConsumerConstructor func(parentLogger logger.Logger, args ChunkConsumerArgs) ChunkConsumer
