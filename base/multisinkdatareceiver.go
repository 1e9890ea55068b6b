package base

import (
	"time"

	"github.com/ooici/mi-agent/defs"
	"github.com/relex/gotils/logger"
)

// ClientNumber uniquely identifies a currently connected client from one of the inputs
//
// It's assigned sequentially by each listener
type ClientNumber uint64

// MultiSinkDataReceiver receives raw stream data from a multi-source input, e.g. a TCP listener with different
// incoming connections
//
// For a TCP input, there is a single MultiSinkDataReceiver, and one DataReceiverSink for each connection
type MultiSinkDataReceiver interface {

	// NewSink creates a sink to receive raw data from the input source identified by the given address and client number
	//
	// clientAddress is a descriptive string of address, e.g. "10.1.0.1:50001", or path of file
	NewSink(clientAddress string, clientNumber ClientNumber) DataReceiverSink
}

// DataReceiverSink receives raw stream data from a single source, e.g. a client TCP connection
//
// All methods of one sink are called from the same goroutine
type DataReceiverSink interface {

	// Accept receives a fragment of stream with its arrival time
	//
	// The data slice is NOT usable after the function exits
	Accept(data []byte, timestamp time.Time)

	// Flush is called periodically for custom operations
	//
	// Flush is guaranteed to be called periodically, though interval can vary and be inaccurate
	//
	// Flush is also to be called right before Close(), after all Accept() calls
	Flush()

	// Close is called when the source feeding this sink is ended
	Close()
}

// NewSinkLogger creates a derived logger for sinks created from MultiSinkDataReceiver
func NewSinkLogger(parentLogger logger.Logger, clientAddress string, clientNumber ClientNumber) logger.Logger {
	return parentLogger.WithFields(logger.Fields{
		defs.LabelPart:         "sink",
		defs.LabelClient:       clientAddress,
		defs.LabelClientNumber: clientNumber,
	})
}
