package defs

import (
	"time"
)

var (
	// EnableConfigReload enables reloading of outputs by SIGHUP
	EnableConfigReload = true

	// InputFlushInterval defines how long to call flush from input if no data is received
	//
	// It's used to trigger flushing in all receivers, so that chunks extracted from a quiet session are not held back
	// waiting for more data
	InputFlushInterval = 500 * time.Millisecond

	// ListenerReadBufferSize defines the buffer size in bytes to read from one connection
	//
	// It must be larger than the maximum port agent packet (64KiB) to read one packet without reallocation
	ListenerReadBufferSize = 128 * 1024

	// PlaybackReadSize defines the size of each read from a recorded file in the "chunky" format
	PlaybackReadSize = 1024

	// IntermediateBufferMaxNumChunks defines the maximum numbers of instrument chunks to buffer at input before flushing
	// through go channels
	IntermediateBufferMaxNumChunks = 200

	// IntermediateBufferMaxTotalBytes defines how many bytes can be allowed in the buffer of input chunks before forced
	// flushing
	IntermediateBufferMaxTotalBytes = 1 * 1024 * 1024

	// IntermediateBufferedChannelSize defines the size of internal buffered channels meant to contain temporary data
	//
	// 0 = unbuffered channels
	IntermediateBufferedChannelSize = 1

	// IntermediateChannelTimeout defines the timeout of intermediate channel reads and writes.
	//
	// There is no recovery without data loss and it should be treated as a bug if such timeout happens at runtime
	IntermediateChannelTimeout = 60 * time.Second

	// OutputShutdownTimeout is the duration to wait for an output to write or send all pending batches when shutdown
	OutputShutdownTimeout = ForwarderBatchAckTimeout + IntermediateChannelTimeout*2
)

var (
	// ForwarderMaxPendingMessagesForAck is the max number of sent messages waiting for ACK
	ForwarderMaxPendingMessagesForAck = 10

	// ForwarderConnectionTimeout is for establishing a TCP connection to upstream
	ForwarderConnectionTimeout = 60 * time.Second

	// ForwarderHandshakeTimeout is for TLS and forward protocol handshake with upstream
	ForwarderHandshakeTimeout = ForwarderConnectionTimeout + ForwarderConnectionTimeout/2

	// ForwarderBatchSendMinimumSpeed is the minimum speed in bytes/sec to calculate timeout
	//
	// Actual timeout for sending is [base] + [packet length] / [minimal speed per]
	ForwarderBatchSendMinimumSpeed = 10 * 1024

	// ForwarderBatchSendTimeoutBase is how long to wait at least for sending one batch.
	ForwarderBatchSendTimeoutBase = ForwarderConnectionTimeout + ForwarderConnectionTimeout/2

	// ForwarderBatchAckTimeout is how long to wait for receiving one batch ACK.
	ForwarderBatchAckTimeout = ForwarderConnectionTimeout + 60*time.Second

	// ForwarderAckerStopTimeout defines how long to wait for acknowledger to stop.
	//
	// Need to wait until the current ACK to finish or timeout in order to collect leftovers properly
	ForwarderAckerStopTimeout = ForwarderBatchAckTimeout + IntermediateChannelTimeout

	// ForwarderRetryInterval is how long to wait after a connection is interrupted.
	ForwarderRetryInterval = 10 * time.Second

	// ForwarderPingInterval is how often to send an empty request for keep-alive / ping purpose
	ForwarderPingInterval = 20 * time.Second

	// ForwarderLeftoverTimeout is how long to keep retrying leftovers after the input of an output is closed
	ForwarderLeftoverTimeout = ForwarderBatchAckTimeout

	// ForwarderMaxAttempts is how many times one batch is sent before it's dropped, 0 = unlimited
	ForwarderMaxAttempts = 0
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short timeout and minimal retry delay
func EnableTestMode() {
	InputFlushInterval = 50 * time.Millisecond
	ForwarderConnectionTimeout = 1 * time.Second
	ForwarderHandshakeTimeout = 2 * time.Second
	ForwarderBatchSendTimeoutBase = 3 * time.Second
	ForwarderBatchAckTimeout = 3 * time.Second
	ForwarderAckerStopTimeout = 4 * time.Second
	ForwarderRetryInterval = 100 * time.Millisecond
	ForwarderPingInterval = 1 * time.Second
	ForwarderLeftoverTimeout = 1 * time.Second
	ForwarderMaxAttempts = 3
}
