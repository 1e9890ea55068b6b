package cmd

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/input/playbackinput"
	"github.com/ooici/mi-agent/input/sieveconfig"
	"github.com/ooici/mi-agent/orchestrate/ofanout"
	"github.com/ooici/mi-agent/output/chunkfile"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

type playbackCommandState struct {
	Name          string `help:"Instrument name to label chunks"`
	Format        string `help:"Format of files: 'portAgent' for datalogs or 'chunky' for raw data"`
	Pattern       string `help:"Regular expression of records"`
	MaxBufferSize string `help:"Limit of unread data, e.g. 64KB"`
	Output        string `help:"Directory to save chunk files. Empty to print chunks"`
}

var playbackCmd = playbackCommandState{
	Name:          "playback",
	Format:        string(playbackinput.FormatPortAgent),
	Pattern:       "",
	MaxBufferSize: "65535B",
	Output:        "",
}

func (cmd *playbackCommandState) run(args []string) {
	if len(args) == 0 {
		logger.Fatal("no files specified")
	}
	if cmd.Pattern == "" {
		logger.Fatal("no pattern specified")
	}
	var maxBufferSize datasize.ByteSize
	if err := maxBufferSize.UnmarshalText([]byte(cmd.MaxBufferSize)); err != nil {
		logger.Fatalf("invalid max buffer size '%s': %s", cmd.MaxBufferSize, err.Error())
	}

	inputConfig := &playbackinput.Config{
		Name:          cmd.Name,
		Files:         args,
		Format:        playbackinput.Format(cmd.Format),
		MaxBufferSize: maxBufferSize,
		Sieve: bconfig.SieveConfigHolder{
			Location: "--pattern",
			Value:    &sieveconfig.RegexConfig{Header: bconfig.Header{Type: "regex"}, Patterns: []string{cmd.Pattern}},
		},
	}
	inputConfig.Type = "playback"

	mfactory := base.NewMetricFactory(defs.MetricsNamespace, nil, nil)

	var receiver base.ChunkBatchReceiver
	var shutdown func()
	if cmd.Output != "" {
		outputConfig := &chunkfile.Config{Path: cmd.Output}
		outputConfig.Type = "chunkFile"
		if err := outputConfig.VerifyConfig(); err != nil {
			logger.Fatal("output: ", err)
		}
		dist, err := ofanout.NewDistributor(logger.Root(), []ofanout.Route{{Name: "files", Output: outputConfig}}, mfactory)
		if err != nil {
			logger.Fatal(err)
		}
		receiver = dist
		shutdown = dist.Shutdown
	} else {
		receiver = &chunkPrinter{mutex: &sync.Mutex{}}
		shutdown = func() {}
	}

	input, err := inputConfig.NewInput(logger.Root(), receiver, mfactory, channels.NewSignalAwaitable())
	if err != nil {
		logger.Fatal("input: ", err)
	}
	input.Start()
	input.Stopped().WaitForever()
	shutdown()

	if dump, err := mfactory.DumpMetrics(false); err == nil {
		logger.Info("metrics:\n", dump)
	}
}

// chunkPrinter prints received chunks to stdout
type chunkPrinter struct {
	mutex *sync.Mutex
}

func (printer *chunkPrinter) Accept(batch base.ChunkBatch) {
	printer.mutex.Lock()
	defer printer.mutex.Unlock()
	for _, chunk := range batch.Chunks {
		fmt.Fprintln(os.Stdout, formatChunk(chunk))
	}
}

func formatChunk(chunk base.InstrumentChunk) string {
	ts := "-"
	if !chunk.Timestamp.IsZero() {
		ts = chunk.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%q", ts, chunk.Instrument, chunk.Client, chunk.Data)
}
