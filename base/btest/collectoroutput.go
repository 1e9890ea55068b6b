package btest

import (
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// CollectorOutputConfig is an OutputConfig creating consumers which pass all batches to Collector
type CollectorOutputConfig struct {
	bconfig.Header `yaml:",inline"`
	Collector      *ChunkCollector `yaml:"-"`
}

type collectorOutput struct {
	args      base.ChunkConsumerArgs
	collector *ChunkCollector
	stopped   *channels.SignalAwaitable
}

// NewCollectorOutputConfig creates a CollectorOutputConfig with a new ChunkCollector
func NewCollectorOutputConfig() *CollectorOutputConfig {
	return &CollectorOutputConfig{
		Header:    bconfig.Header{Type: "collector"},
		Collector: NewChunkCollector(),
	}
}

// NewConsumer creates a consumer
func (cfg *CollectorOutputConfig) NewConsumer(parentLogger logger.Logger, args base.ChunkConsumerArgs, metricFactory *base.MetricFactory) (base.ChunkConsumer, error) {
	return &collectorOutput{
		args:      args,
		collector: cfg.Collector,
		stopped:   channels.NewSignalAwaitable(),
	}, nil
}

// VerifyConfig does nothing
func (cfg *CollectorOutputConfig) VerifyConfig() error {
	return nil
}

func (out *collectorOutput) Start() {
	go func() {
		defer out.stopped.Signal()
		defer out.args.OnFinished()
		for batch := range out.args.InputChannel {
			out.collector.Accept(batch)
			out.args.OnBatchConsumed(batch)
		}
	}()
}

func (out *collectorOutput) Stopped() channels.Awaitable {
	return out.stopped
}
