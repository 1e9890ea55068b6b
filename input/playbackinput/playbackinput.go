// Package playbackinput provides an input to replay recorded instrument data files through chunking
//
// All files are read in order of their paths, through the same chunk buffer as if they were one continuous stream.
// The input stops itself after the last file.
package playbackinput

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/input/baseinput"
	"github.com/ooici/mi-agent/input/framing"
	"github.com/ooici/mi-agent/input/sieveconfig"
	"github.com/ooici/mi-agent/portagent"
	"github.com/ooici/mi-agent/util"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/samber/lo"
)

// Format is the format of recorded files
type Format string

const (
	// FormatPortAgent is for the datalog files of port agent, which contain raw port agent packets
	FormatPortAgent Format = "portAgent"

	// FormatChunky is for files of raw instrument data without timestamps
	FormatChunky Format = "chunky"
)

// Config provides configuration for playback input
type Config struct {
	bconfig.Header `yaml:",inline"`
	Name           string                    `yaml:"name"`          // instrument reference designator
	Files          []string                  `yaml:"files"`         // glob patterns of files or directories
	Format         Format                    `yaml:"format"`        // "portAgent" or "chunky"
	PacketTypes    []string                  `yaml:"packetTypes"`   // port agent packets to chunk, default DATA_FROM_INSTRUMENT
	MaxBufferSize  datasize.ByteSize         `yaml:"maxBufferSize"` // limit of unread data, default 65535B
	Sieve          bconfig.SieveConfigHolder `yaml:"sieve"`
}

type input struct {
	logger      logger.Logger
	name        string
	paths       []string
	framing     framing.Framing
	options     framing.Options
	receiver    *baseinput.ChunkingReceiver
	counter     *base.InputCounter
	stopRequest channels.Awaitable
	stopped     *channels.SignalAwaitable
}

func init() {
	sieveconfig.Register()
}

// NewInput creates a playback input with the list of files to read
func (cfg *Config) NewInput(parentLogger logger.Logger, receiver base.ChunkBatchReceiver, metricFactory *base.MetricFactory,
	stopRequest channels.Awaitable) (base.ChunkInput, error) {

	if err := cfg.VerifyConfig(); err != nil {
		return nil, err
	}
	sieve, err := cfg.Sieve.Value.NewSieve()
	if err != nil {
		return nil, fmt.Errorf(".sieve: %w", err)
	}
	paths, err := listFiles(cfg.Files)
	if err != nil {
		return nil, fmt.Errorf(".files: %w", err)
	}

	inputLogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent:  "PlaybackInput",
		defs.LabelInstrument: cfg.Name,
	})
	inputMetricFactory := metricFactory.NewSubFactory("", []string{"instrument"}, []string{cfg.Name})

	in := &input{
		logger:      inputLogger,
		name:        cfg.Name,
		paths:       paths,
		receiver:    baseinput.NewChunkingReceiver(inputLogger, cfg.Name, sieve, int(cfg.MaxBufferSize.Bytes()), base.NewChunkBufferCounter(inputMetricFactory), receiver),
		counter:     base.NewInputCounter(inputMetricFactory),
		stopRequest: stopRequest,
		stopped:     channels.NewSignalAwaitable(),
	}
	switch cfg.Format {
	case FormatPortAgent:
		packetTypes := lo.Map(cfg.PacketTypes, func(name string, _ int) portagent.PacketType {
			typ, _ := portagent.ParsePacketType(name) // verified
			return typ
		})
		in.framing = framing.PortAgent
		in.options = framing.Options{PacketTypes: packetTypes}
	case FormatChunky:
		in.framing = framing.Raw
		in.options = framing.Options{
			ReadSize: defs.PlaybackReadSize,
			Clock:    func() time.Time { return time.Time{} },
		}
	}
	inputLogger.Infof("found %d files", len(paths))
	return in, nil
}

// VerifyConfig checks configuration
func (cfg *Config) VerifyConfig() error {
	if cfg.Name == "" {
		return fmt.Errorf(".name is unspecified")
	}
	if len(cfg.Files) == 0 {
		return fmt.Errorf(".files is empty")
	}
	switch cfg.Format {
	case FormatPortAgent, FormatChunky:
	case "":
		return fmt.Errorf(".format is unspecified")
	default:
		return fmt.Errorf(".format: unsupported '%s'", cfg.Format)
	}
	for i, name := range cfg.PacketTypes {
		if _, err := portagent.ParsePacketType(name); err != nil {
			return fmt.Errorf(".packetTypes[%d]: %w", i, err)
		}
	}
	if cfg.Sieve.Value == nil {
		return fmt.Errorf(".sieve is unspecified")
	}
	if err := cfg.Sieve.Value.VerifyConfig(); err != nil {
		return fmt.Errorf(".sieve: %w", err)
	}
	return nil
}

func (in *input) Address() string {
	return strings.Join(in.paths, ",")
}

func (in *input) Start() {
	go in.run()
}

func (in *input) Stopped() channels.Awaitable {
	return in.stopped
}

func (in *input) run() {
	defer in.stopped.Signal()
	in.counter.OpenSession()
	defer in.counter.CloseSession()

	sink := in.receiver.NewSink(in.name, 1)
	defer sink.Close()

	for _, path := range in.paths {
		if in.stopRequest.Peek() {
			in.logger.Info("stop on request")
			return
		}
		if err := in.playFile(path, sink); err != nil {
			in.logger.WithField(defs.LabelFile, path).Errorf("failed to play: %s", err.Error())
		}
		sink.Flush()
	}
	in.logger.Info("finished all files")
}

func (in *input) playFile(path string, sink base.DataReceiverSink) error {
	fileLogger := in.logger.WithField(defs.LabelFile, path)
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	fileLogger.Info("start")

	reader := framing.NewReader(fileLogger, in.framing, file, in.options, in.counter, sink.Accept)
	for {
		err := reader.ReadNext()
		switch {
		case err == nil:
			if in.stopRequest.Peek() {
				fileLogger.Info("interrupted by stop request")
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			fileLogger.Info("end")
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			fileLogger.Warn("truncated packet at end of file")
			return nil
		default:
			return err
		}
	}
}

func listFiles(patterns []string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		found, err := util.ListFiles(pattern)
		if err != nil {
			return nil, fmt.Errorf("'%s': %w", pattern, err)
		}
		paths = append(paths, found...)
	}
	paths = lo.Uniq(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no file found by %v", patterns)
	}
	return paths, nil
}
