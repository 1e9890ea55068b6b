// Package nulloutput provides an output which counts and discards all chunks
package nulloutput

import (
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/defs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// Config defines configuration for null output
type Config struct {
	bconfig.Header `yaml:",inline"`
}

type nullOutput struct {
	logger              logger.Logger
	args                base.ChunkConsumerArgs
	stopped             *channels.SignalAwaitable
	discardedChunks     prometheus.Counter
	discardedChunkBytes prometheus.Counter
}

// NewConsumer creates a consumer to discard chunk batches
func (cfg *Config) NewConsumer(parentLogger logger.Logger, args base.ChunkConsumerArgs, metricFactory *base.MetricFactory) (base.ChunkConsumer, error) {
	outputMetricFactory := metricFactory.NewSubFactory("output_", nil, nil)
	return &nullOutput{
		logger:              parentLogger.WithField(defs.LabelComponent, "NullOutput"),
		args:                args,
		stopped:             channels.NewSignalAwaitable(),
		discardedChunks:     outputMetricFactory.AddOrGetCounter("discarded_chunks_total", "Numbers of discarded chunks", nil, nil),
		discardedChunkBytes: outputMetricFactory.AddOrGetCounter("discarded_chunk_bytes_total", "Total length in bytes of discarded chunks", nil, nil),
	}, nil
}

// VerifyConfig verifies the configuration
func (cfg *Config) VerifyConfig() error {
	return nil
}

func (out *nullOutput) Start() {
	go out.run()
}

func (out *nullOutput) Stopped() channels.Awaitable {
	return out.stopped
}

func (out *nullOutput) run() {
	defer out.stopped.Signal()
	defer out.args.OnFinished()
	for batch := range out.args.InputChannel {
		out.discardedChunks.Add(float64(len(batch.Chunks)))
		out.discardedChunkBytes.Add(float64(batch.NumBytes))
		out.args.OnBatchConsumed(batch)
	}
	out.logger.Info("stopped")
}
