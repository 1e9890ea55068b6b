package bconfig

import (
	"github.com/ooici/mi-agent/base"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// InputConfig provides an interface for the configuration of ChunkInput(s)
//
// All the implementations should support YAML unmarshalling
type InputConfig interface {
	BaseConfig

	// NewInput creates an input sending extracted chunks to the receiver. The input should stop by stopRequest.
	NewInput(parentLogger logger.Logger, receiver base.ChunkBatchReceiver, metricFactory *base.MetricFactory,
		stopRequest channels.Awaitable) (base.ChunkInput, error)

	VerifyConfig() error
}

// InputConfigHolder holds InputConfig
type InputConfigHolder = ConfigHolder[InputConfig]

// InputConfigCreatorTable defines the table of constructors for InputConfig implementations
type InputConfigCreatorTable = ConfigCreatorTable[InputConfig]
