package chunkfile

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/relex/gotils/logger"
)

// Config defines configuration for chunk file output
type Config struct {
	bconfig.Header `yaml:",inline"`
	Path           string            `yaml:"path"`          // directory of chunk files, created if missing
	MaxFileSize    datasize.ByteSize `yaml:"maxFileSize"`   // uncompressed data size to start a new file, default 1MB
	FlushInterval  time.Duration     `yaml:"flushInterval"` // max time to hold chunks before writing a file, default 10s
}

const (
	defaultMaxFileSize   = 1 * datasize.MB
	defaultFlushInterval = 10 * time.Second
)

// NewConsumer creates the chunk file writer
func (cfg *Config) NewConsumer(parentLogger logger.Logger, args base.ChunkConsumerArgs, metricFactory *base.MetricFactory) (base.ChunkConsumer, error) {
	if err := cfg.VerifyConfig(); err != nil {
		return nil, err
	}
	maxFileSize := cfg.MaxFileSize
	if maxFileSize == 0 {
		maxFileSize = defaultMaxFileSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = defaultFlushInterval
	}
	return newFileWriter(parentLogger, args, cfg.Path, int(maxFileSize.Bytes()), flushInterval, metricFactory)
}

// VerifyConfig verifies the configuration
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Path) == 0 {
		return fmt.Errorf(".path is unspecified")
	}
	if cfg.FlushInterval < 0 {
		return fmt.Errorf(".flushInterval cannot be negative: %s", cfg.FlushInterval)
	}
	return nil
}
