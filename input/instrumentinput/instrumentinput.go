// Package instrumentinput provides an input for live instrument streams via TCP
//
// Each connection is chunked separately into instrument records, which are delayed until their ends are received.
package instrumentinput

import (
	"fmt"
	"net"

	"github.com/c2h5oh/datasize"
	"github.com/gobwas/glob"
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/input/baseinput"
	"github.com/ooici/mi-agent/input/framing"
	"github.com/ooici/mi-agent/input/sieveconfig"
	"github.com/ooici/mi-agent/input/tcplistener"
	"github.com/ooici/mi-agent/portagent"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// Config provides configuration for instrument input
type Config struct {
	bconfig.Header `yaml:",inline"`
	Name           string                    `yaml:"name"`           // instrument reference designator, e.g. "RS01SBPS-PC01A-4A-CTDPFA103"
	Address        string                    `yaml:"address"`        // network address, e.g. "localhost:4001". Empty host or port means any.
	Framing        framing.Framing           `yaml:"framing"`        // "portAgent" or "raw"
	PacketTypes    []string                  `yaml:"packetTypes"`    // port agent packets to chunk, default DATA_FROM_INSTRUMENT
	AllowedClients []string                  `yaml:"allowedClients"` // glob patterns of client IPs, e.g. "10.0.*"; empty to allow all
	MaxBufferSize  datasize.ByteSize         `yaml:"maxBufferSize"`  // limit of unread data per connection, default 65535B
	Sieve          bconfig.SieveConfigHolder `yaml:"sieve"`
}

type input struct {
	logger   logger.Logger
	listener base.PipelineWorker
	receiver *baseinput.ChunkingReceiver
	address  string
}

func init() {
	sieveconfig.Register()
}

// NewInput creates an instrument input and its network listener
func (cfg *Config) NewInput(parentLogger logger.Logger, receiver base.ChunkBatchReceiver, metricFactory *base.MetricFactory,
	stopRequest channels.Awaitable) (base.ChunkInput, error) {

	if err := cfg.VerifyConfig(); err != nil {
		return nil, err
	}
	sieve, err := cfg.Sieve.Value.NewSieve()
	if err != nil {
		return nil, fmt.Errorf(".sieve: %w", err)
	}
	packetTypes, _ := parsePacketTypes(cfg.PacketTypes)
	allowedClients, _ := compileGlobs(cfg.AllowedClients)

	inputLogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent:  "InstrumentInput",
		defs.LabelInstrument: cfg.Name,
	})
	inputMetricFactory := metricFactory.NewSubFactory("", []string{"instrument"}, []string{cfg.Name})

	chunkingReceiver := baseinput.NewChunkingReceiver(inputLogger, cfg.Name, sieve, int(cfg.MaxBufferSize.Bytes()),
		base.NewChunkBufferCounter(inputMetricFactory), receiver)

	options := tcplistener.Options{
		Framing:        cfg.Framing,
		FramingOptions: framing.Options{PacketTypes: packetTypes},
		AllowedClients: allowedClients,
	}
	lsnr, addr, err := tcplistener.NewTCPListener(inputLogger, cfg.Address, options, chunkingReceiver,
		base.NewInputCounter(inputMetricFactory), stopRequest)
	if err != nil {
		return nil, err
	}

	return &input{
		logger:   inputLogger,
		listener: lsnr,
		receiver: chunkingReceiver,
		address:  addr,
	}, nil
}

// VerifyConfig checks configuration
func (cfg *Config) VerifyConfig() error {
	if cfg.Name == "" {
		return fmt.Errorf(".name is unspecified")
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return fmt.Errorf(".address has invalid format: %w", err)
	}
	if err := cfg.Framing.Verify(); err != nil {
		return fmt.Errorf(".framing: %w", err)
	}
	if _, err := parsePacketTypes(cfg.PacketTypes); err != nil {
		return fmt.Errorf(".packetTypes: %w", err)
	}
	if _, err := compileGlobs(cfg.AllowedClients); err != nil {
		return fmt.Errorf(".allowedClients: %w", err)
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
	return in.address
}

func (in *input) Start() {
	in.listener.Start()
	go func() {
		in.listener.Stopped().WaitForever()
		if sessions := in.receiver.ActiveSessions(); len(sessions) > 0 {
			in.logger.Errorf("BUG: sessions left open after stop: %v", sessions)
		}
		in.logger.Info("stopped")
	}()
}

func (in *input) Stopped() channels.Awaitable {
	return in.listener.Stopped()
}

func parsePacketTypes(names []string) ([]portagent.PacketType, error) {
	types := make([]portagent.PacketType, 0, len(names))
	for _, name := range names {
		typ, err := portagent.ParsePacketType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, typ)
	}
	return types, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for i, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}
