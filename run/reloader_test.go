package run

import (
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ooici/mi-agent/portagent"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relex/fluentlib/server/receivers"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloader(t *testing.T) {
	recv, msgChan := receivers.NewMessageCollector(5 * time.Second)

	runTestEnv(t, recv, sampleConf, func(outDir string, confFile string, srvAddr net.Addr) {
		ld, confErr := NewReloaderFromConfigFile(confFile, t.Name()+"_")
		require.NoError(t, confErr)

		dist, distErr := ld.LaunchDistributor(logger.Root())
		require.NoError(t, distErr)
		rdist := dist.(*ReloadableDistributor)

		inputs, inputErr := ld.LaunchInputs(dist)
		require.NoError(t, inputErr)

		conn, connErr := net.Dial("tcp", inputs.Addresses[0])
		require.NoError(t, connErr)
		w := portagent.NewWriter(conn)
		t1 := time.Date(2013, 2, 6, 19, 47, 1, 0, time.UTC)
		assert.NoError(t, w.WritePayload(portagent.DataFromInstrument, t1, []byte("SATPAR0229,10.01,2206748111,111\r\nSATPAR0229,10.02,")))
		assert.Equal(t, 1, len(readForwardedEntries(t, msgChan, "mi.test", 1)))

		numSuccess := testutil.ToFloat64(reloadSuccessCounter)
		numFailure := testutil.ToFloat64(reloadFailureCounter)

		t.Run("reload errors", func(tt *testing.T) {
			writeConf := func(conf string) {
				require.NoError(tt, os.WriteFile(confFile, []byte(formatConfig(conf, outDir, srvAddr.String())), 0o644))
			}

			writeConf(assembleConfig(sampleInputConf, strings.ReplaceAll(sampleOutputConf, "tag: mi.test", "tag: ''")))
			assert.ErrorContains(tt, rdist.reload(), ".tag is unspecified")

			writeConf(assembleConfig(strings.ReplaceAll(sampleInputConf, "CTDBP01", "CTDBP02"), sampleOutputConf))
			assert.ErrorContains(tt, rdist.reload(), "inputs must not change: old=- type: instrument")

			assert.Equal(tt, numFailure+2, testutil.ToFloat64(reloadFailureCounter))
		})

		t.Run("reload normal", func(tt *testing.T) {
			newConf := assembleConfig(sampleInputConf, strings.ReplaceAll(sampleOutputConf, "tag: mi.test", "tag: mi.reloaded"))
			require.NoError(tt, os.WriteFile(confFile, []byte(formatConfig(newConf, outDir, srvAddr.String())), 0o644))
			assert.NoError(tt, rdist.reload())
			assert.Equal(tt, numSuccess+1, testutil.ToFloat64(reloadSuccessCounter))
		})

		// the session and its partial record survive reloading
		assert.NoError(t, w.WritePayload(portagent.DataFromInstrument, t1.Add(time.Second), []byte("2206748222,222\r\n")))
		entries := readForwardedEntries(t, msgChan, "mi.reloaded", 1)
		if assert.Equal(t, 1, len(entries)) {
			assert.Equal(t, []byte("SATPAR0229,10.02,2206748222,222\r\n"), entries[0].Record["data"])
			assert.True(t, t1.Equal(entries[0].Time.Time))
		}
		assert.NoError(t, conn.Close())

		inputs.Shutdown()
		dist.Shutdown()

		assert.Equal(t, 2, len(readChunkFiles(t, outDir)))

		metrics, err := ld.MetricFactory.DumpMetrics(false)
		require.NoError(t, err)
		assert.Contains(t, metrics, `TestReloader_distributed_chunks_total{output="forward",result="consumed"} 2`, "counters continue")
	})
}
