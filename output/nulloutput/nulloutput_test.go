package nulloutput

import (
	"testing"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullOutput(t *testing.T) {
	inputChannel := make(chan base.ChunkBatch, 2)
	numConsumed := 0
	finished := false
	metricFactory := base.NewMetricFactory("testnulloutput_", nil, nil)
	consumer, err := (&Config{}).NewConsumer(logger.Root(), base.ChunkConsumerArgs{
		InputChannel:    inputChannel,
		OnBatchConsumed: func(batch base.ChunkBatch) { numConsumed++ },
		OnBatchDropped:  func(batch base.ChunkBatch) { assert.Fail(t, "unexpected drop") },
		OnFinished:      func() { finished = true },
	}, metricFactory)
	require.NoError(t, err)
	consumer.Start()

	inputChannel <- base.NewChunkBatch([]base.InstrumentChunk{{Instrument: "A", Data: []byte("123")}, {Instrument: "B", Data: []byte("4")}})
	close(inputChannel)
	require.True(t, consumer.Stopped().Wait(time.Second))
	assert.Equal(t, 1, numConsumed)
	assert.True(t, finished)

	metrics, err := metricFactory.DumpMetrics(false)
	require.NoError(t, err)
	assert.Contains(t, metrics, "testnulloutput_output_discarded_chunks_total 2")
	assert.Contains(t, metrics, "testnulloutput_output_discarded_chunk_bytes_total 4")
}
