package baseoutput

import (
	"fmt"
	"testing"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientWorkerDelivery(t *testing.T) {
	mockEnv := newClientMockEnv()
	finished := make(chan bool, 1)
	mockEnv.OnClientFinished = func() { finished <- true }

	mockEnv.ClientWorker.Start()
	mockEnv.InputChannel <- newTestBatch("a", "b")
	mockEnv.InputChannel <- newTestBatch("c")
	close(mockEnv.InputChannel)

	require.True(t, mockEnv.ClientWorker.Stopped().Wait(2*time.Second))
	assert.Equal(t, 1, len(finished))
	assert.Equal(t, 2, len(mockEnv.ConsumedBatches))
	assert.Empty(t, mockEnv.DroppedBatches)

	metrics, err := mockEnv.MetricFactory.DumpMetrics(false)
	require.NoError(t, err)
	prefix := mockEnv.MetricFactory.Prefix()
	assert.Contains(t, metrics, prefix+"output_acknowledged_chunks_total 3")
	assert.Contains(t, metrics, prefix+"output_forwarded_messages_total 2")
	assert.Contains(t, metrics, prefix+"output_opened_sessions_total 1")
}

func TestClientWorkerReconnect(t *testing.T) {
	mockEnv := newClientMockEnv()
	numConns := 0
	mockEnv.NewConnection = func() (ClientConnection, error) {
		numConns++
		if numConns == 1 {
			return nil, fmt.Errorf("connection refused")
		}
		return mockEnv.DefaultNewConnection()
	}

	mockEnv.ClientWorker.Start()
	mockEnv.InputChannel <- newTestBatch("a")
	close(mockEnv.InputChannel)

	require.True(t, mockEnv.ClientWorker.Stopped().Wait(2*time.Second))
	assert.Equal(t, 2, numConns)
	assert.Equal(t, 1, len(mockEnv.ConsumedBatches))
	assert.Empty(t, mockEnv.DroppedBatches)
}

func TestClientWorkerDropAfterMaxAttempts(t *testing.T) {
	mockEnv := newClientMockEnv()
	attempts := make(chan int, 10)
	mockEnv.ConnSendMessage = func(msg base.OutputMessage, deadline time.Time) error {
		attempts <- msg.Attempts
		return fmt.Errorf("connection reset")
	}

	mockEnv.ClientWorker.Start()
	mockEnv.InputChannel <- newTestBatch("a")
	close(mockEnv.InputChannel)

	require.True(t, mockEnv.ClientWorker.Stopped().Wait(2*time.Second))
	close(attempts)
	var all []int
	for n := range attempts {
		all = append(all, n)
	}
	assert.Equal(t, []int{1, 2, 3}, all)
	assert.Empty(t, mockEnv.ConsumedBatches)
	assert.Equal(t, 1, len(mockEnv.DroppedBatches))
}
