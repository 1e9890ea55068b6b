package base

import (
	"github.com/relex/gotils/channels"
)

// PipelineWorker represents a background worker in a stage of the processing pipeline, e.g. an input or output
type PipelineWorker interface {
	Start()
	Stopped() channels.Awaitable
}
