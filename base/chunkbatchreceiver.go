package base

// ChunkBatchReceiver receives batches of extracted chunks from inputs
//
// Accept may be called concurrently from different sessions
type ChunkBatchReceiver interface {
	Accept(batch ChunkBatch)
}

// Distributor passes chunk batches from all inputs to every output
type Distributor interface {
	ChunkBatchReceiver

	// Shutdown closes all outputs and waits for them; should be called after all inputs have been stopped
	Shutdown()
}
