package baseoutput

import (
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/util"
	"github.com/prometheus/client_golang/prometheus"
)

// clientMetrics defines metrics shared by network-based output clients
//
// Queue gauges are shared by all workers of the same name, including workers left over from a previous config during
// reload, so each worker only moves them by its own deltas.
type clientMetrics struct {
	numLeftovers            int              // this worker's contribution to queuedLeftovers, owned by the worker goroutine
	queuedLeftovers         prometheus.Gauge // Current numbers of messages to be resent in next session
	queuedPendingAck        prometheus.Gauge // Current numbers of messages waiting for ACK
	networkErrorsTotal      prometheus.Counter
	nonNetworkErrorsTotal   prometheus.Counter
	openedSessionsTotal     prometheus.Counter
	forwardAttemptsTotal    prometheus.Counter
	forwardedCountTotal     prometheus.Counter
	forwardedLengthTotal    prometheus.Counter
	acknowledgedCountTotal  prometheus.Counter
	acknowledgedChunksTotal prometheus.Counter
	droppedChunksTotal      prometheus.Counter
}

func newClientMetrics(metricFactory *base.MetricFactory) *clientMetrics {
	outputMetricFactory := metricFactory.NewSubFactory("output_", nil, nil)
	queuedMessages := outputMetricFactory.AddOrGetGaugeVec("queued_messages", "Numbers of currently queued messages", []string{"type"}, nil)

	return &clientMetrics{
		queuedLeftovers:         queuedMessages.WithLabelValues("leftover"),
		queuedPendingAck:        queuedMessages.WithLabelValues("pendingAck"),
		networkErrorsTotal:      outputMetricFactory.AddOrGetCounter("network_errors_total", "Numbers of network errors", nil, nil),
		nonNetworkErrorsTotal:   outputMetricFactory.AddOrGetCounter("nonnetwork_errors_total", "Numbers of non-network errors (auth, encoding, etc)", nil, nil),
		openedSessionsTotal:     outputMetricFactory.AddOrGetCounter("opened_sessions_total", "Numbers of opened sessions", nil, nil),
		forwardAttemptsTotal:    outputMetricFactory.AddOrGetCounter("forward_attempts_total", "Numbers of message forwarding attempts", nil, nil),
		forwardedCountTotal:     outputMetricFactory.AddOrGetCounter("forwarded_messages_total", "Numbers of forwarded messages", nil, nil),
		forwardedLengthTotal:    outputMetricFactory.AddOrGetCounter("forwarded_message_bytes_total", "Total length in bytes of forwarded messages", nil, nil),
		acknowledgedCountTotal:  outputMetricFactory.AddOrGetCounter("acknowledged_messages_total", "Numbers of acknowledged messages", nil, nil),
		acknowledgedChunksTotal: outputMetricFactory.AddOrGetCounter("acknowledged_chunks_total", "Numbers of instrument chunks in acknowledged messages", nil, nil),
		droppedChunksTotal:      outputMetricFactory.AddOrGetCounter("dropped_chunks_total", "Numbers of instrument chunks given up", nil, nil),
	}
}

func (metrics *clientMetrics) OnError(err error) {
	if util.IsNetworkError(err) {
		metrics.networkErrorsTotal.Inc()
	} else {
		metrics.nonNetworkErrorsTotal.Inc()
	}
}

func (metrics *clientMetrics) IncrementNetworkErrors() {
	metrics.networkErrorsTotal.Inc()
}

func (metrics *clientMetrics) OnOpening() {
	metrics.openedSessionsTotal.Inc()
}

func (metrics *clientMetrics) OnForwarding(msg base.OutputMessage) {
	metrics.forwardAttemptsTotal.Inc()
}

func (metrics *clientMetrics) OnForwarded(msg base.OutputMessage) {
	metrics.forwardedCountTotal.Inc()
	metrics.forwardedLengthTotal.Add(float64(len(msg.Data)))
}

// OnPendingAck is called by the acknowledger when a message enters its pending set
func (metrics *clientMetrics) OnPendingAck() {
	metrics.queuedPendingAck.Inc()
}

func (metrics *clientMetrics) OnAcknowledged(msg base.OutputMessage) {
	metrics.acknowledgedCountTotal.Inc()
	metrics.acknowledgedChunksTotal.Add(float64(len(msg.Batch.Chunks)))
	metrics.queuedPendingAck.Dec()
}

func (metrics *clientMetrics) OnDropped(batch base.ChunkBatch) {
	metrics.droppedChunksTotal.Add(float64(len(batch.Chunks)))
}

// OnAcknowledgerStopped removes messages still pending in the acknowledger when it quits
func (metrics *clientMetrics) OnAcknowledgerStopped(unacked int) {
	metrics.queuedPendingAck.Sub(float64(unacked))
}

func (metrics *clientMetrics) SetLeftovers(leftovers int) {
	metrics.queuedLeftovers.Add(float64(leftovers - metrics.numLeftovers))
	metrics.numLeftovers = leftovers
}
