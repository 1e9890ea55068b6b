package playbackinput

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/btest"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/portagent"
	"github.com/ooici/mi-agent/util"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigTemplate = `
type: playback
name: CTDBP01
files: ["%s"]
format: %s
sieve:
  type: delimiter
  start: "<s>"
  end: "</s>"
`

func writeDatalog(t *testing.T, path string, timestamp time.Time, payloads ...string) {
	var buf bytes.Buffer
	w := portagent.NewWriter(&buf)
	for i, p := range payloads {
		require.NoError(t, w.WritePayload(portagent.DataFromInstrument, timestamp.Add(time.Duration(i)*time.Second), []byte(p)))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTestInput(t *testing.T, pattern string, format Format, collector *btest.ChunkCollector,
	mfactory *base.MetricFactory) base.ChunkInput {

	var cfg Config
	require.NoError(t, util.UnmarshalYamlString(
		fmt.Sprintf(testConfigTemplate, pattern, format), &cfg))
	in, err := cfg.NewInput(logger.WithField("test", t.Name()), collector, mfactory, channels.NewSignalAwaitable())
	require.NoError(t, err)
	return in
}

func TestPlaybackPortAgent(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2014, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	// the second record spans both files
	writeDatalog(t, filepath.Join(dir, "20140501T000000_UTC.datalog"), t1, "<s>one</s>noise", "<s>tw")
	writeDatalog(t, filepath.Join(dir, "20140501T010000_UTC.datalog"), t2, "o</s>", "<s>three</s>")

	collector := btest.NewChunkCollector()
	mfactory := base.NewMetricFactory("testplayback_", nil, nil)
	in := newTestInput(t, filepath.Join(dir, "*.datalog"), FormatPortAgent, collector, mfactory)
	assert.Contains(t, in.Address(), "20140501T000000_UTC.datalog")
	in.Start()
	require.True(t, in.Stopped().Wait(defs.TestReadTimeout))

	chunk, ok := btest.ReadChannel(collector.Channel())
	require.True(t, ok)
	assert.Equal(t, "CTDBP01", chunk.Instrument)
	assert.Equal(t, "<s>one</s>", string(chunk.Data))
	assert.Equal(t, t1, chunk.Timestamp)

	chunk, _ = btest.ReadChannel(collector.Channel())
	assert.Equal(t, "<s>two</s>", string(chunk.Data))
	assert.Equal(t, t1.Add(time.Second), chunk.Timestamp)

	chunk, _ = btest.ReadChannel(collector.Channel())
	assert.Equal(t, "<s>three</s>", string(chunk.Data))
	assert.Equal(t, t2.Add(time.Second), chunk.Timestamp)

	metrics, merr := mfactory.DumpMetrics(false)
	assert.Nil(t, merr)
	assert.Contains(t, metrics, `testplayback_chunker_chunks_total{instrument="CTDBP01"} 3`)
	assert.Contains(t, metrics, `testplayback_input_packets_total{instrument="CTDBP01",type="DATA_FROM_INSTRUMENT"} 4`)
	assert.Contains(t, metrics, `testplayback_input_sessions_total{instrument="CTDBP01"} 1`)
}

func TestPlaybackChunky(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.log")
	contents := "<s>" + string(bytes.Repeat([]byte("x"), defs.PlaybackReadSize)) + "</s>..<s>y</s>"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	collector := btest.NewChunkCollector()
	in := newTestInput(t, path, FormatChunky, collector, base.NewMetricFactory("testplaybackchunky_", nil, nil))
	in.Start()
	require.True(t, in.Stopped().Wait(defs.TestReadTimeout))

	chunk, ok := btest.ReadChannel(collector.Channel())
	require.True(t, ok)
	assert.Len(t, chunk.Data, defs.PlaybackReadSize+7)
	assert.True(t, chunk.Timestamp.IsZero())
	assert.Equal(t, "<s>y</s>", btest.ReadChunkData(collector.Channel()))
}

func TestPlaybackVerifyConfig(t *testing.T) {
	testCases := []struct {
		Modify  func(cfg *Config)
		Message string
	}{
		{func(cfg *Config) { cfg.Name = "" }, ".name is unspecified"},
		{func(cfg *Config) { cfg.Files = nil }, ".files is empty"},
		{func(cfg *Config) { cfg.Format = "" }, ".format is unspecified"},
		{func(cfg *Config) { cfg.Format = "digiAscii" }, ".format: unsupported"},
		{func(cfg *Config) { cfg.PacketTypes = []string{"UNKNOWN"} }, ".packetTypes[0]"},
		{func(cfg *Config) { cfg.Sieve.Value = nil }, ".sieve is unspecified"},
	}
	for _, tc := range testCases {
		var cfg Config
		require.NoError(t, util.UnmarshalYamlString(fmt.Sprintf(testConfigTemplate, "*.dat", FormatPortAgent), &cfg))
		require.NoError(t, cfg.VerifyConfig())
		tc.Modify(&cfg)
		assert.ErrorContains(t, cfg.VerifyConfig(), tc.Message)
	}
}

func TestPlaybackNoFile(t *testing.T) {
	var cfg Config
	require.NoError(t, util.UnmarshalYamlString(fmt.Sprintf(testConfigTemplate, filepath.Join(t.TempDir(), "*"), FormatChunky), &cfg))
	_, err := cfg.NewInput(logger.Root(), btest.NewChunkCollector(), base.NewMetricFactory("testplaybacknofile_", nil, nil),
		channels.NewSignalAwaitable())
	assert.ErrorContains(t, err, "no file found")
}
