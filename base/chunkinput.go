package base

// ChunkInput represents an input source in the beginning of pipeline, e.g. a TCP listener for instrument streams
//
// It integrates endpoint/listener and the chunking of streams into instrument records
type ChunkInput interface {
	PipelineWorker
	Address() string
}
