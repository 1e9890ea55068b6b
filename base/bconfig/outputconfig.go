package bconfig

import (
	"github.com/ooici/mi-agent/base"
	"github.com/relex/gotils/logger"
)

// OutputConfig provides an interface for the configuration of outputs, which consume chunk batches
//
// All the implementations should support YAML unmarshalling
type OutputConfig interface {
	BaseConfig

	// NewConsumer creates a consumer to save or forward chunk batches to somewhere
	NewConsumer(parentLogger logger.Logger, args base.ChunkConsumerArgs, metricFactory *base.MetricFactory) (base.ChunkConsumer, error)

	VerifyConfig() error
}

// OutputConfigHolder holds OutputConfig
type OutputConfigHolder = ConfigHolder[OutputConfig]

// OutputConfigCreatorTable defines the table of constructors for OutputConfig implementations
type OutputConfigCreatorTable = ConfigCreatorTable[OutputConfig]
