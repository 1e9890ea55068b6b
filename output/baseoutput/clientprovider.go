package baseoutput

import (
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/relex/gotils/logger"
)

// EstablishConnectionFunc opens a ClientConnection to upstream
type EstablishConnectionFunc func() (ClientConnection, error)

// EncodeBatchFunc serializes a chunk batch into a message of a new ID for upstream
type EncodeBatchFunc func(batch base.ChunkBatch) (base.OutputMessage, error)

// ClientConnection represents a connection / session / channel to upstream.
//
// It must support full-duplex or desynchronized input and output to allow pipelining, i.e. send next message without
// waiting for the current message to be acknowledged
type ClientConnection interface {

	// Logger returns the logger bound to this connection
	Logger() logger.Logger

	// SendMessage sends out the given message to remote
	SendMessage(msg base.OutputMessage, deadline time.Time) error

	// SendPing sends a ping singal every N seconds, depending on the caller
	//
	// If ping is not supported by the underlying protocol, the function should do nothing
	SendPing(deadline time.Time) error

	// ReadAck reads an ID of an acknowledged message
	//
	// Acknowledgement of messages by upstream is not required to be in the same order they were sent.
	//
	// If the order is maintained, it may return empty string to simply indicate the next message.
	ReadAck(deadline time.Time) (string, error)

	// Close closes the connection
	//
	// Close may be called more than once and/or simultaneously. The implementation must handle such situations
	// silently and avoid e.g. closing a previously-closed FD, which might have been reused for something else.
	Close()
}
