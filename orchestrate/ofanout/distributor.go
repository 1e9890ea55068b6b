// Package ofanout provides a Distributor passing chunk batches from all inputs to every output, optionally filtered by
// instrument names per output
package ofanout

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync"
	"github.com/relex/gotils/logger"
	"github.com/samber/lo"
)

// Route defines an output and the instruments to pass to it
type Route struct {
	Name        string
	Instruments []glob.Glob // match all if empty
	Output      bconfig.OutputConfig
}

type distributor struct {
	logger logger.Logger
	routes []*outputRoute
}

type outputRoute struct {
	logger               logger.Logger
	name                 string
	instruments          []glob.Glob
	matchCache           *xsync.MapOf[bool] // instrument name to match result
	channel              chan base.ChunkBatch
	consumer             base.ChunkConsumer
	distributedChunks    prometheus.Counter
	filteredChunks       prometheus.Counter
	consumedChunks       prometheus.Counter
	droppedChunks        prometheus.Counter
	distributionTimeouts prometheus.Counter
}

// NewDistributor creates a Distributor and starts the consumers of all outputs
//
// Consumers are only started after all of them have been created successfully
func NewDistributor(parentLogger logger.Logger, routes []Route, metricFactory *base.MetricFactory) (base.Distributor, error) {
	dlogger := parentLogger.WithField(defs.LabelComponent, "FanoutDistributor")
	dist := &distributor{
		logger: dlogger,
		routes: make([]*outputRoute, 0, len(routes)),
	}
	for i, r := range routes {
		route, err := newOutputRoute(dlogger, r, metricFactory)
		if err != nil {
			for _, created := range dist.routes {
				close(created.channel)
			}
			return nil, fmt.Errorf("output[%d] %s: %w", i, r.Name, err)
		}
		dist.routes = append(dist.routes, route)
	}
	for _, route := range dist.routes {
		route.consumer.Start()
	}
	return dist, nil
}

func newOutputRoute(parentLogger logger.Logger, r Route, metricFactory *base.MetricFactory) (*outputRoute, error) {
	rlogger := parentLogger.WithField(defs.LabelName, r.Name)
	outputMetricFactory := metricFactory.NewSubFactory("", []string{"output"}, []string{r.Name})
	chunksTotal := outputMetricFactory.AddOrGetCounterVec("distributed_chunks_total", "Numbers of chunks by the result of distribution", []string{"result"}, nil)

	route := &outputRoute{
		logger:               rlogger,
		name:                 r.Name,
		instruments:          r.Instruments,
		matchCache:           xsync.NewMapOf[bool](),
		channel:              make(chan base.ChunkBatch, defs.IntermediateBufferedChannelSize),
		consumer:             nil,
		distributedChunks:    chunksTotal.WithLabelValues("distributed"),
		filteredChunks:       chunksTotal.WithLabelValues("filtered"),
		consumedChunks:       chunksTotal.WithLabelValues("consumed"),
		droppedChunks:        chunksTotal.WithLabelValues("dropped"),
		distributionTimeouts: outputMetricFactory.AddOrGetCounter("distribution_timeouts_total", "Numbers of batches dropped due to timeout of output channel", nil, nil),
	}

	consumer, err := r.Output.NewConsumer(rlogger, base.ChunkConsumerArgs{
		InputChannel:    route.channel,
		OnBatchConsumed: func(batch base.ChunkBatch) { route.consumedChunks.Add(float64(len(batch.Chunks))) },
		OnBatchDropped: func(batch base.ChunkBatch) {
			route.logger.Warnf("output dropped %s", batch)
			route.droppedChunks.Add(float64(len(batch.Chunks)))
		},
		OnFinished: func() { route.logger.Info("output finished") },
	}, outputMetricFactory)
	if err != nil {
		return nil, err
	}
	route.consumer = consumer
	return route, nil
}

// Accept passes the batch to every output interested in any of the chunks; the batch must not be modified afterwards
func (dist *distributor) Accept(batch base.ChunkBatch) {
	for _, route := range dist.routes {
		route.send(batch)
	}
}

// Shutdown closes all output channels and waits for the outputs to finish
func (dist *distributor) Shutdown() {
	for _, route := range dist.routes {
		close(route.channel)
	}
	for _, route := range dist.routes {
		if !route.consumer.Stopped().Wait(defs.OutputShutdownTimeout) {
			route.logger.Errorf("BUG: timeout waiting for output to stop. stack=%s", util.Stack())
		}
	}
	dist.logger.Info("stopped all outputs")
}

func (route *outputRoute) send(batch base.ChunkBatch) {
	filtered := route.filter(batch)
	if len(filtered.Chunks) == 0 {
		return
	}
	select {
	case route.channel <- filtered:
		route.distributedChunks.Add(float64(len(filtered.Chunks)))
	case <-time.After(defs.IntermediateChannelTimeout):
		route.logger.Errorf("BUG: timeout distributing %s", filtered)
		route.distributionTimeouts.Inc()
		route.droppedChunks.Add(float64(len(filtered.Chunks)))
	}
}

// filter returns the batch itself if all chunks match, or a new batch of matching chunks
func (route *outputRoute) filter(batch base.ChunkBatch) base.ChunkBatch {
	if len(route.instruments) == 0 {
		return batch
	}
	if lo.EveryBy(batch.Chunks, func(c base.InstrumentChunk) bool { return route.match(c.Instrument) }) {
		return batch
	}
	matched := lo.Filter(batch.Chunks, func(c base.InstrumentChunk, _ int) bool { return route.match(c.Instrument) })
	route.filteredChunks.Add(float64(len(batch.Chunks) - len(matched)))
	return base.NewChunkBatch(matched)
}

func (route *outputRoute) match(instrument string) bool {
	if result, ok := route.matchCache.Load(instrument); ok {
		return result
	}
	result := lo.SomeBy(route.instruments, func(g glob.Glob) bool { return g.Match(instrument) })
	route.matchCache.Store(instrument, result)
	return result
}
