package run

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/output/chunkfile"
	"github.com/ooici/mi-agent/portagent"
	"github.com/relex/fluentlib/protocol/forwardprotocol"
	"github.com/relex/fluentlib/server"
	"github.com/relex/fluentlib/server/receivers"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInputConf = `
inputs:
  - type: instrument
    name: CTDBP01
    address: localhost:0
    framing: portAgent
    sieve:
      type: regex
      patterns: ['SATPAR\d{4},[^\r\n]*\r\n']
`

const sampleOutputConf = `
outputs:
  - name: forward
    instruments: ["CTD*"]
    output:
      type: fluentdForward
      tag: mi.test
      messageMode: CompressedPackedForward
      environment:
        site: axial
      upstream:
        address: %[2]s
        secret: mi-test
  - name: files
    output:
      type: chunkFile
      path: %[1]s
      flushInterval: 100ms
  - name: discard
    instruments: ["ADCP*"]
    output:
      type: "null"
`

var sampleConf = assembleConfig(
	sampleInputConf,
	sampleOutputConf,
)

func TestMain(m *testing.M) {
	defs.EnableTestMode()
	os.Exit(m.Run())
}

func TestLoader(t *testing.T) {
	recv, msgChan := receivers.NewMessageCollector(5 * time.Second)

	runTestEnv(t, recv, sampleConf, func(outDir string, confFile string, srvAddr net.Addr) {
		ld, confErr := NewLoaderFromConfigFile(confFile, t.Name()+"_")
		require.NoError(t, confErr)
		assert.Equal(t, 1, len(ld.Inputs))
		assert.Equal(t, 3, len(ld.Outputs))

		dist, distErr := ld.LaunchDistributor(logger.Root())
		require.NoError(t, distErr)

		inputs, inputErr := ld.LaunchInputs(dist)
		require.NoError(t, inputErr)
		assert.Equal(t, 1, len(inputs.Addresses))

		conn, connErr := net.Dial("tcp", inputs.Addresses[0])
		require.NoError(t, connErr)
		w := portagent.NewWriter(conn)
		t1 := time.Date(2013, 2, 6, 19, 47, 1, 0, time.UTC)
		assert.NoError(t, w.WritePayload(portagent.DataFromInstrument, t1, []byte("SATPAR0229,10.01,2206748111,111\r\nSATPAR0229,10.02,")))
		assert.NoError(t, w.WritePayload(portagent.DataFromInstrument, t1.Add(time.Second), []byte("2206748222,222\r\n")))

		entries := readForwardedEntries(t, msgChan, "mi.test", 2)
		if assert.Equal(t, 2, len(entries)) {
			assert.Equal(t, []byte("SATPAR0229,10.01,2206748111,111\r\n"), entries[0].Record["data"])
			assert.Equal(t, "CTDBP01", entries[0].Record["instrument"])
			assert.True(t, t1.Equal(entries[0].Time.Time))
			assert.Equal(t, []byte("SATPAR0229,10.02,2206748222,222\r\n"), entries[1].Record["data"])
			assert.True(t, t1.Equal(entries[1].Time.Time), "timestamp of the first byte")
		}
		assert.NoError(t, conn.Close())

		inputs.Shutdown()
		assert.True(t, inputs.AllStopped.Peek())
		dist.Shutdown()

		chunks := readChunkFiles(t, outDir)
		if assert.Equal(t, 2, len(chunks)) {
			assert.Equal(t, "CTDBP01", chunks[0].Instrument)
			assert.Equal(t, conn.LocalAddr().String(), chunks[0].Client)
		}

		metrics, err := ld.MetricFactory.DumpMetrics(false)
		require.NoError(t, err)
		assert.Contains(t, metrics, `TestLoader_distributed_chunks_total{output="discard",result="filtered"} 2`)
		assert.Contains(t, metrics, `TestLoader_distributed_chunks_total{output="files",result="consumed"} 2`)
		assert.Contains(t, metrics, `TestLoader_distributed_chunks_total{output="forward",result="consumed"} 2`)
	})
}

func TestLoaderInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		Conf     string
		Expected string
	}{
		{assembleConfig(sampleOutputConf), "inputs is empty"},
		{assembleConfig(sampleInputConf), "outputs is empty"},
		{assembleConfig(strings.ReplaceAll(sampleInputConf, "framing: portAgent", "framing: serial"), sampleOutputConf),
			"inputs[0] yaml line"},
		{assembleConfig(sampleInputConf, strings.ReplaceAll(sampleOutputConf, "name: discard", "name: files")),
			"outputs: duplicate names [files]"},
		{assembleConfig(sampleInputConf, strings.ReplaceAll(sampleOutputConf, `"ADCP*"`, `"ADCP[*"`)),
			"outputs[2]: .instruments: [0] 'ADCP[*'"},
		{assembleConfig(sampleInputConf, strings.ReplaceAll(sampleOutputConf, "tag: mi.test", "tag: ''")),
			".tag is unspecified"},
		{assembleConfig(sampleInputConf, strings.ReplaceAll(sampleOutputConf, "type: chunkFile", "type: s3")),
			".type: unsupported 's3'"},
	}
	for i, tc := range testCases {
		path := filepath.Join(dir, fmt.Sprintf("conf%d.yml", i))
		require.NoError(t, os.WriteFile(path, []byte(formatConfig(tc.Conf, dir, "localhost:24224")), 0o644))
		_, err := LoadConfigFile(path)
		assert.ErrorContainsf(t, err, tc.Expected, "[%d]", i)
	}
}

func TestLoadConfigWithAnchors(t *testing.T) {
	conf := `
anchors:
  - &satSieve
    type: regex
    patterns: ['SATPAR\d{4},[^\r\n]*\r\n']
  - &files
    type: chunkFile
    path: %[1]s
inputs:
  - type: instrument
    name: CTDBP01
    address: localhost:0
    framing: raw
    sieve: *satSieve
  - type: playback
    name: CTDBP02
    files: ["%[1]s/*.datalog"]
    format: portAgent
    sieve: *satSieve
outputs:
  - name: files
    output: *files
`
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(formatConfig(conf, t.TempDir(), "")), 0o644))
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	if assert.Equal(t, 2, len(cfg.Inputs)) {
		assert.Equal(t, "instrument", cfg.Inputs[0].Value.GetType())
		assert.Equal(t, "playback", cfg.Inputs[1].Value.GetType())
	}
	if assert.Equal(t, 1, len(cfg.Outputs)) {
		assert.Equal(t, "chunkFile", cfg.Outputs[0].Output.Value.GetType())
	}
}

func assembleConfig(parts ...string) string {
	return `
anchors: []
` + strings.Join(parts, "")
}

// formatConfig fills the chunk file directory as %[1]s and the upstream address as %[2]s
func formatConfig(confYML string, outDir string, upstreamAddr string) string {
	if !strings.Contains(confYML, "%[") {
		return confYML
	}
	return fmt.Sprintf(confYML, outDir, upstreamAddr)
}

// runTestEnv launches a fluentd forward server and writes the config with chunk file directory and server address
func runTestEnv(t *testing.T, recv receivers.Receiver, confYML string, do func(outDir string, confFile string, srvAddr net.Addr)) {
	outDir := t.TempDir()
	confFile := filepath.Join(t.TempDir(), "config.yml")

	srv, srvAddr := server.LaunchServer(logger.WithField("test", t.Name()), server.Config{Address: "localhost:0", Secret: "mi-test"}, recv)
	defer srv.Shutdown()

	require.NoError(t, os.WriteFile(confFile, []byte(formatConfig(confYML, outDir, srvAddr.String())), 0o644))

	do(outDir, confFile, srvAddr)
}

// readForwardedEntries reads entries from messages of the given tag, skipping the others, e.g. pings
func readForwardedEntries(t *testing.T, msgChan <-chan forwardprotocol.Message, tag string, count int) []forwardprotocol.EventEntry {
	var entries []forwardprotocol.EventEntry
	for len(entries) < count {
		select {
		case msg := <-msgChan:
			if msg.Tag != tag {
				continue
			}
			entries = append(entries, msg.Entries...)
		case <-time.After(defs.TestReadTimeout):
			assert.Fail(t, "timeout waiting for messages", "tag %s: received %d of %d", tag, len(entries), count)
			return entries
		}
	}
	return entries
}

func readChunkFiles(t *testing.T, dir string) []base.InstrumentChunk {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+chunkfile.FileSuffix))
	require.NoError(t, err)
	var chunks []base.InstrumentChunk
	for _, path := range paths {
		fileChunks, err := chunkfile.ReadFile(path)
		require.NoError(t, err)
		chunks = append(chunks, fileChunks...)
	}
	return chunks
}
