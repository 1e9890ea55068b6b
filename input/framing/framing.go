// Package framing reads instrument streams in the supported wire formats and passes the data inside to chunking
package framing

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/portagent"
	"github.com/relex/gotils/logger"
	"golang.org/x/exp/slices"
)

// Framing is the format of an instrument stream
type Framing string

const (
	// PortAgent is a stream of port agent packets, with instrument data timestamped by port agent
	PortAgent Framing = "portAgent"

	// Raw is instrument data as-is, timestamped on arrival
	Raw Framing = "raw"
)

// DefaultPacketTypes are the port agent packets passed to chunking if unspecified
var DefaultPacketTypes = []portagent.PacketType{portagent.DataFromInstrument}

// Verify checks whether the framing is supported
func (f Framing) Verify() error {
	switch f {
	case PortAgent, Raw:
		return nil
	case "":
		return fmt.Errorf("framing is unspecified")
	default:
		return fmt.Errorf("unsupported framing: '%s'", f)
	}
}

// AcceptFunc receives a fragment of stream; the data is NOT usable after the function exits
type AcceptFunc func(data []byte, timestamp time.Time)

// Options defines optional parameters for readers
type Options struct {
	PacketTypes []portagent.PacketType // port agent packet types passed to AcceptFunc, default DefaultPacketTypes
	ReadSize    int                    // buffer size for each read, default defs.ListenerReadBufferSize
	Clock       func() time.Time       // timestamp source for raw framing, default time.Now
}

// Reader reads a stream unit by unit
type Reader interface {
	// ReadNext reads the next unit of data, e.g. a packet, and passes the data inside to AcceptFunc if any
	//
	// Errors of the stream content are handled internally; only I/O errors are returned. A read timeout can be
	// followed by another call to continue reading.
	ReadNext() error
}

// NewReader creates a Reader for the given framing, which must have been verified
func NewReader(parentLogger logger.Logger, framing Framing, input io.Reader, options Options,
	counter *base.InputCounter, accept AcceptFunc) Reader {

	readSize := options.ReadSize
	if readSize <= 0 {
		readSize = defs.ListenerReadBufferSize
	}
	switch framing {
	case PortAgent:
		packetTypes := options.PacketTypes
		if len(packetTypes) == 0 {
			packetTypes = DefaultPacketTypes
		}
		return &packetReader{
			logger:      parentLogger.WithField(defs.LabelPart, "PacketReader"),
			input:       portagent.NewReader(input, readSize),
			packetTypes: packetTypes,
			counter:     counter,
			accept:      accept,
		}
	case Raw:
		clock := options.Clock
		if clock == nil {
			clock = time.Now
		}
		return &rawReader{
			input:   input,
			buffer:  make([]byte, readSize),
			clock:   clock,
			counter: counter,
			accept:  accept,
		}
	default:
		logger.Panicf("unsupported framing: '%s'", framing)
		return nil
	}
}

type packetReader struct {
	logger      logger.Logger
	input       *portagent.Reader
	packetTypes []portagent.PacketType
	counter     *base.InputCounter
	accept      AcceptFunc
}

func (r *packetReader) ReadNext() error {
	pkt, err := r.input.Read()
	if skipped := r.input.TakeSkipped(); skipped > 0 {
		r.logger.Warnf("skipped %d bytes to find next packet", skipped)
		r.counter.CountSkippedBytes(skipped)
	}
	switch {
	case err == nil:
		break
	case errors.Is(err, portagent.ErrChecksum):
		r.logger.Warnf("dropped packet %s: %s", pkt, err.Error())
		r.counter.CountChecksumError()
		return nil
	case errors.Is(err, portagent.ErrPacketSize):
		r.logger.Warnf("dropped packet header: %s", err.Error())
		r.counter.CountBadPacket()
		return nil
	default:
		return err
	}

	r.counter.CountPacket(pkt.Type)
	if pkt.Type == portagent.Heartbeat {
		r.logger.Debug("heartbeat")
		return nil
	}
	if !slices.Contains(r.packetTypes, pkt.Type) {
		r.logger.Debugf("ignored packet %s", pkt)
		return nil
	}
	timestamp := pkt.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	r.counter.CountReceived(len(pkt.Payload))
	r.accept(pkt.Payload, timestamp)
	return nil
}

type rawReader struct {
	input   io.Reader
	buffer  []byte
	clock   func() time.Time
	counter *base.InputCounter
	accept  AcceptFunc
}

func (r *rawReader) ReadNext() error {
	n, err := r.input.Read(r.buffer)
	if n > 0 {
		r.counter.CountReceived(n)
		r.accept(r.buffer[:n], r.clock())
	}
	return err
}
