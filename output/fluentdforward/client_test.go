package fluentdforward

import (
	"os"
	"testing"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/relex/fluentlib/protocol/forwardprotocol"
	"github.com/relex/fluentlib/server"
	"github.com/relex/fluentlib/server/receivers"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	defs.EnableTestMode()
	os.Exit(m.Run())
}

func TestOpenClientConnection(t *testing.T) {
	recv := receivers.NewMessageWriter(os.Stdout)

	t.Run("connect fails when protocols are different", func(t *testing.T) {
		srvCfg := server.Config{
			Address: "localhost:0",
			TLS:     false,
		}
		srv, srvAddr := server.LaunchServer(logger.WithField("test", t.Name()), srvCfg, recv)
		defer srv.Shutdown()

		_, err := openForwardConnection(logger.Root(), UpstreamConfig{
			Address: srvAddr.String(),
			TLS:     true, // attempt to request TLS handshake
		})
		assert.ErrorContains(t, err, "failed to connect:")
	})

	t.Run("login fails when secrets are different", func(t *testing.T) {
		srvCfg := server.Config{
			Address: "localhost:0",
			Secret:  "real pass",
			TLS:     false,
		}
		srv, srvAddr := server.LaunchServer(logger.WithField("test", t.Name()), srvCfg, recv)
		defer srv.Shutdown()

		_, err := openForwardConnection(logger.Root(), UpstreamConfig{
			Address: srvAddr.String(),
			TLS:     false,
			Secret:  "wrong pass",
		})
		assert.ErrorContains(t, err, "login rejected:")
	})
}

func TestForwardOutput(t *testing.T) {
	recv, msgChan := receivers.NewMessageCollector(5 * time.Second)
	srv, srvAddr := server.LaunchServer(logger.WithField("test", t.Name()), server.Config{
		Address: "localhost:0",
		Secret:  "pass",
	}, recv)
	defer srv.Shutdown()

	cfg := &Config{
		Tag:         "mi.test",
		MessageMode: forwardprotocol.ModeCompressedPackedForward,
		Upstream: UpstreamConfig{
			Address: srvAddr.String(),
			Secret:  "pass",
		},
	}
	cfg.Type = "fluentdForward"

	inputChannel := make(chan base.ChunkBatch, 10)
	consumed := make(chan base.ChunkBatch, 10)
	dropped := make(chan base.ChunkBatch, 10)
	consumer, err := cfg.NewConsumer(logger.WithField("test", t.Name()), base.ChunkConsumerArgs{
		InputChannel:    inputChannel,
		OnBatchConsumed: func(batch base.ChunkBatch) { consumed <- batch },
		OnBatchDropped:  func(batch base.ChunkBatch) { dropped <- batch },
		OnFinished:      func() {},
	}, base.NewMetricFactory("testforwardoutput_", nil, nil))
	require.NoError(t, err)
	consumer.Start()

	inputChannel <- base.NewChunkBatch(testChunks[:2])
	inputChannel <- base.NewChunkBatch(testChunks[2:])
	close(inputChannel)
	require.True(t, consumer.Stopped().Wait(5*time.Second))

	var received []forwardprotocol.EventEntry
	for len(received) < len(testChunks) {
		select {
		case msg := <-msgChan:
			if msg.Tag != "mi.test" {
				continue // ping
			}
			received = append(received, msg.Entries...)
		case <-time.After(defs.TestReadTimeout):
			require.Fail(t, "timeout waiting for messages", "received %d", len(received))
		}
	}
	for i, chunk := range testChunks {
		assert.Equal(t, chunk.Data, received[i].Record["data"])
		assert.Equal(t, chunk.Instrument, received[i].Record["instrument"])
	}
	assert.Equal(t, 2, len(consumed))
	assert.Empty(t, dropped)
}

func TestForwardOutputVerifyConfig(t *testing.T) {
	valid := Config{
		Tag:         "mi.test",
		MessageMode: forwardprotocol.ModeForward,
		Upstream:    UpstreamConfig{Address: "localhost:24224"},
	}
	assert.NoError(t, valid.VerifyConfig())

	testCases := []struct {
		Modify   func(cfg *Config)
		Expected string
	}{
		{func(cfg *Config) { cfg.Tag = "" }, ".tag is unspecified"},
		{func(cfg *Config) { cfg.MessageMode = "" }, ".messageMode is unspecified"},
		{func(cfg *Config) { cfg.MessageMode = "Bulk" }, ".messageMode: 'Bulk' is not a valid mode"},
		{func(cfg *Config) { cfg.Upstream.Address = "" }, ".upstream.address is unspecified"},
		{func(cfg *Config) { cfg.Upstream.Address = "localhost" }, ".upstream.address is invalid"},
		{func(cfg *Config) { cfg.Upstream.TLS = true }, ".upstream.secret is unspecified when tls=true"},
	}
	for _, tc := range testCases {
		cfg := valid
		tc.Modify(&cfg)
		assert.ErrorContains(t, cfg.VerifyConfig(), tc.Expected)
	}
}
