package baseoutput

import (
	"fmt"
	"testing"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionEndOfInput(t *testing.T) {
	mockEnv := newClientMockEnv()
	sessionEnded, sessionLeftovers, sessionReconnectPolicy := mockEnv.LaunchSession(nil)

	mockEnv.InputChannel <- newTestBatch("1")
	mockEnv.InputChannel <- newTestBatch("2", "3")
	close(mockEnv.InputChannel)

	if !assert.True(t, sessionEnded.Wait(1*time.Second), "Session should end by itself due to end of input") {
		return
	}
	assert.Equal(t, noReconnect, *sessionReconnectPolicy)
	assert.Empty(t, *sessionLeftovers)
	assert.True(t, mockEnv.ClientWorker.inputEnded)

	assert.Equal(t, 2, len(mockEnv.SentMessages))
	// all ACKs are awaited before ending
	assert.Equal(t, 2, len(mockEnv.AckDeadlines))
	assert.Equal(t, 2, len(mockEnv.ConsumedBatches))
}

func TestSessionResendsLeftovers(t *testing.T) {
	mockEnv := newClientMockEnv()
	leftovers := []base.OutputMessage{
		{ID: "a1", Data: []byte{'1'}, Batch: newTestBatch("1"), Attempts: 1},
		{ID: "a2", Data: []byte{'2'}, Batch: newTestBatch("2"), Attempts: defs.ForwarderMaxAttempts},
	}
	sessionEnded, sessionLeftovers, sessionReconnectPolicy := mockEnv.LaunchSession(leftovers)
	close(mockEnv.InputChannel)

	require.True(t, sessionEnded.Wait(1*time.Second))
	assert.Equal(t, noReconnect, *sessionReconnectPolicy)
	assert.Empty(t, *sessionLeftovers)

	sent := <-mockEnv.SentMessages
	assert.Equal(t, "a1", sent.ID)
	assert.Equal(t, 2, sent.Attempts)
	assert.Empty(t, mockEnv.SentMessages)
	assert.Equal(t, 1, len(mockEnv.ConsumedBatches))
	assert.Equal(t, 1, len(mockEnv.DroppedBatches))
}

func TestSessionAckByID(t *testing.T) {
	mockEnv := newClientMockEnv()
	acks := make(chan string, 10)
	acks <- "m1"
	acks <- "bogus"
	mockEnv.ConnReadAck = func(deadline time.Time) (string, error) {
		return <-acks, nil
	}
	sessionEnded, sessionLeftovers, sessionReconnectPolicy := mockEnv.LaunchSession(nil)

	mockEnv.InputChannel <- newTestBatch("1")
	mockEnv.InputChannel <- newTestBatch("2")
	close(mockEnv.InputChannel)

	require.True(t, sessionEnded.Wait(1*time.Second))
	assert.Equal(t, "1", string((<-mockEnv.ConsumedBatches).Chunks[0].Data))
	assert.Empty(t, mockEnv.ConsumedBatches)
	// ACK to unknown ID leaves m2 pending
	if assert.Equal(t, 1, len(*sessionLeftovers)) {
		assert.Equal(t, "m2", (*sessionLeftovers)[0].ID)
	}
	assert.Equal(t, reconnectWithDelay, *sessionReconnectPolicy)
}

func TestSessionQueueGauges(t *testing.T) {
	mockEnv := newClientMockEnv()
	acks := make(chan string, 10)
	acks <- "m1"
	acks <- "bogus"
	mockEnv.ConnReadAck = func(deadline time.Time) (string, error) {
		return <-acks, nil
	}
	metrics := mockEnv.ClientWorker.metrics
	sessionEnded, sessionLeftovers, _ := mockEnv.LaunchSession(nil)

	mockEnv.InputChannel <- newTestBatch("1")
	mockEnv.InputChannel <- newTestBatch("2")
	close(mockEnv.InputChannel)

	require.True(t, sessionEnded.Wait(1*time.Second))
	assert.Equal(t, 1, len(*sessionLeftovers))
	// m2 is moved from pending to leftovers
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.queuedPendingAck))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.queuedLeftovers))

	// a new worker sharing the same gauges, as after a config reload, keeps the existing counts
	other := NewClientWorker(logger.WithField(defs.LabelComponent, "MockClientWorker2"),
		base.ChunkConsumerArgs{InputChannel: make(chan base.ChunkBatch)}, mockEnv.MetricFactory, nil, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(other.metrics.queuedLeftovers))
	other.metrics.SetLeftovers(2)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.queuedLeftovers))

	metrics.SetLeftovers(0)
	other.metrics.SetLeftovers(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.queuedLeftovers))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.queuedPendingAck))
}

// TestRequestErrorAbortsAcknowledger verifies a session in half-close situation (1) is aborted immediately.
//
// This could happen when upstream refuses receving requests but continues to send ACKs normally.
func TestRequestErrorAbortsAcknowledger(t *testing.T) {
	abortSignal := channels.NewSignalAwaitable()

	mockEnv := newClientMockEnv()
	// Story:
	// 1. Send m1 => ok
	// 2. Send m2 => error (should abort conn) | Recv m1 => wait (should be aborted)
	mockEnv.ConnSendMessage = func(msg base.OutputMessage, deadline time.Time) error {
		if msg.ID > "m1" {
			return fmt.Errorf("Connection broken (client->server)")
		}
		return mockEnv.DefaultConnSendMessage(msg, deadline)
	}
	mockEnv.ConnReadAck = func(deadline time.Time) (string, error) {
		dur := time.Until(deadline)
		logger.WithField(defs.LabelComponent, "MockClientAcknowledger").Info("Simulating non-responsive upstream: wait for ", dur)
		if abortSignal.Wait(dur) {
			return "", fmt.Errorf("Connection aborted (server->client)")
		}
		return "", fmt.Errorf("Read timeout (server->client)")
	}
	mockEnv.ConnClose = func() {
		// simulate aborting connection to force ConnReadAck to end (instead of waiting until timeout)
		abortSignal.Signal()
	}

	sessionEnded, sessionLeftovers, sessionReconnectPolicy := mockEnv.LaunchSession(nil)
	mockEnv.InputChannel <- newTestBatch("1")
	mockEnv.InputChannel <- newTestBatch("2")

	// sender doesn't close connection, only acknowledger's own timeout does
	if !assert.True(t, sessionEnded.Wait(defs.ForwarderAckerStopTimeout*2), "Session should end by itself due to network error") {
		return
	}

	if assert.Equal(t, 2, len(*sessionLeftovers)) {
		assert.Equal(t, "m1", (*sessionLeftovers)[0].ID)
		assert.Equal(t, "m2", (*sessionLeftovers)[1].ID)
		assert.Equal(t, 1, (*sessionLeftovers)[1].Attempts)
	}
	assert.Equal(t, reconnectWithDelay, *sessionReconnectPolicy)
}

// TestResponseErrorAbortsConnection verifies a session in half-close situation (2) is aborted immediately.
//
// This could happen when upstream receives requests normally but the response side is already interrupted due to network issues.
func TestResponseErrorAbortsConnection(t *testing.T) {
	abortSignal := channels.NewSignalAwaitable()

	mockEnv := newClientMockEnv()
	// Story:
	// 1. Send m1 => ok
	// 2. Send m2 => wait (should be aborted) | Recv m1 => error (should abort conn)
	mockEnv.ConnSendMessage = func(msg base.OutputMessage, deadline time.Time) error {
		if msg.ID > "m1" {
			dur := time.Until(deadline)
			logger.WithField(defs.LabelComponent, "MockClientSession").Info("Simulating non-responsive upstream: wait for ", dur)
			if abortSignal.Wait(dur) {
				return fmt.Errorf("Connection aborted (client->server)")
			}
		}
		return mockEnv.DefaultConnSendMessage(msg, deadline)
	}
	mockEnv.ConnReadAck = func(deadline time.Time) (string, error) {
		return "", fmt.Errorf("Connection broken (server->client)")
	}
	mockEnv.ConnClose = func() {
		// simulate aborting connection to force ConnSendMessage to end (instead of waiting until timeout)
		abortSignal.Signal()
	}

	sessionEnded, sessionLeftovers, sessionReconnectPolicy := mockEnv.LaunchSession(nil)
	mockEnv.InputChannel <- newTestBatch("1")
	mockEnv.InputChannel <- newTestBatch("2")

	if !assert.True(t, sessionEnded.Wait(1*time.Second), "Session should end by itself due to network error") {
		return
	}

	assert.Equal(t, 2, len(*sessionLeftovers))
	assert.Equal(t, reconnectWithDelay, *sessionReconnectPolicy)
}
