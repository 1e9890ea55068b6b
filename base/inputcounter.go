package base

import (
	"github.com/ooici/mi-agent/portagent"
	"github.com/prometheus/client_golang/prometheus"
)

// InputCounter tracks metrics of incoming streams for an input
//
// InputCounter is safe for concurrent use by all sessions of the input
type InputCounter struct {
	packetsTotal        *prometheus.CounterVec
	checksumErrorsTotal prometheus.Counter
	badPacketsTotal     prometheus.Counter
	skippedBytesTotal   prometheus.Counter
	receivedBytesTotal  prometheus.Counter
	activeSessions      prometheus.Gauge
	sessionsTotal       prometheus.Counter
}

// NewInputCounter creates an InputCounter
func NewInputCounter(factory *MetricFactory) *InputCounter {
	return &InputCounter{
		packetsTotal:        factory.AddOrGetCounterVec("input_packets_total", "Numbers of port agent packets received by type", []string{"type"}, nil),
		checksumErrorsTotal: factory.AddOrGetCounter("input_checksum_errors_total", "Numbers of port agent packets dropped due to checksum", nil, nil),
		badPacketsTotal:     factory.AddOrGetCounter("input_bad_packets_total", "Numbers of invalid port agent headers", nil, nil),
		skippedBytesTotal:   factory.AddOrGetCounter("input_skipped_bytes_total", "Numbers of bytes skipped to find port agent packets", nil, nil),
		receivedBytesTotal:  factory.AddOrGetCounter("input_received_bytes_total", "Numbers of raw data bytes passed to chunking", nil, nil),
		activeSessions:      factory.AddOrGetGauge("input_active_sessions", "Numbers of active sessions", nil, nil),
		sessionsTotal:       factory.AddOrGetCounter("input_sessions_total", "Numbers of sessions opened", nil, nil),
	}
}

// CountPacket counts a successfully read port agent packet
func (counter *InputCounter) CountPacket(typ portagent.PacketType) {
	counter.packetsTotal.WithLabelValues(typ.String()).Inc()
}

// CountChecksumError counts a packet dropped due to checksum mismatch
func (counter *InputCounter) CountChecksumError() {
	counter.checksumErrorsTotal.Inc()
}

// CountBadPacket counts an invalid packet header
func (counter *InputCounter) CountBadPacket() {
	counter.badPacketsTotal.Inc()
}

// CountSkippedBytes counts garbage bytes between packets
func (counter *InputCounter) CountSkippedBytes(n int) {
	if n > 0 {
		counter.skippedBytesTotal.Add(float64(n))
	}
}

// CountReceived counts raw data passed to a chunk buffer
func (counter *InputCounter) CountReceived(length int) {
	counter.receivedBytesTotal.Add(float64(length))
}

// OpenSession counts a new session
func (counter *InputCounter) OpenSession() {
	counter.sessionsTotal.Inc()
	counter.activeSessions.Inc()
}

// CloseSession counts the end of a session
func (counter *InputCounter) CloseSession() {
	counter.activeSessions.Dec()
}
