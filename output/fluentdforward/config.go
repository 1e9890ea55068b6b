package fluentdforward

import (
	"fmt"
	"net"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/relex/fluentlib/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
)

// Config defines configuration for fluentd-forward output
type Config struct {
	bconfig.Header `yaml:",inline"`
	Tag            string                      `yaml:"tag"`         // fluentd tag of all messages, e.g. "mi.instrument"
	MessageMode    forwardprotocol.MessageMode `yaml:"messageMode"` // Forward, PackedForward or CompressedPackedForward
	Environment    map[string]string           `yaml:"environment"` // fixed fields added to every event under "environment"
	Upstream       UpstreamConfig              `yaml:"upstream"`
}

// UpstreamConfig defines the upstream section in config file
type UpstreamConfig struct {
	Address string `yaml:"address"`
	TLS     bool   `yaml:"tls"`
	Secret  string `yaml:"secret"`
}

// NewConsumer creates the forwarding client
func (cfg *Config) NewConsumer(parentLogger logger.Logger, args base.ChunkConsumerArgs, metricFactory *base.MetricFactory) (base.ChunkConsumer, error) {
	if err := cfg.VerifyConfig(); err != nil {
		return nil, err
	}
	enc, err := newEncoder(cfg.Tag, cfg.MessageMode, cfg.Environment)
	if err != nil {
		return nil, err
	}
	return NewClientWorker(parentLogger, args, cfg.Upstream, metricFactory, enc.EncodeBatch), nil
}

// VerifyConfig verifies the configuration
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Tag) == 0 {
		return fmt.Errorf(".tag is unspecified")
	}

	switch cfg.MessageMode {
	case "":
		return fmt.Errorf(".messageMode is unspecified")
	case forwardprotocol.ModeForward:
	case forwardprotocol.ModePackedForward:
	case forwardprotocol.ModeCompressedPackedForward:
	default:
		return fmt.Errorf(".messageMode: '%s' is not a valid mode", cfg.MessageMode)
	}

	if len(cfg.Upstream.Address) == 0 {
		return fmt.Errorf(".upstream.address is unspecified")
	}
	if _, _, err := net.SplitHostPort(cfg.Upstream.Address); err != nil {
		return fmt.Errorf(".upstream.address is invalid: %w", err)
	}

	if cfg.Upstream.TLS && len(cfg.Upstream.Secret) == 0 {
		return fmt.Errorf(".upstream.secret is unspecified when tls=true")
	}
	return nil
}
