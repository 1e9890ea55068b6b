package fluentdforward

import (
	"bytes"
	"fmt"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/output/shared"
	"github.com/relex/fluentlib/protocol/forwardprotocol"
	"github.com/vmihailenco/msgpack/v4"
)

// output-specific suffix for generated message IDs
const messageIDSuffix = ".ff"

// encoder encodes chunk batches into forward messages in the configured mode
//
// Not thread-safe: each output has its own encoder used from the worker goroutine.
type encoder struct {
	tag        string
	mode       forwardprotocol.MessageMode
	serializer *eventSerializer
	idGen      *shared.ChunkIDGenerator
}

func newEncoder(tag string, mode forwardprotocol.MessageMode, environment map[string]string) (*encoder, error) {
	switch mode {
	case forwardprotocol.ModeForward:
	case forwardprotocol.ModePackedForward:
	case forwardprotocol.ModeCompressedPackedForward:
	default:
		return nil, fmt.Errorf("unsupported message mode: %s", mode)
	}

	return &encoder{
		tag:        tag,
		mode:       mode,
		serializer: newEventSerializer(environment),
		idGen:      shared.NewChunkIDGenerator(messageIDSuffix),
	}, nil
}

// EncodeBatch encodes a batch into a new message with unique ID
func (enc *encoder) EncodeBatch(batch base.ChunkBatch) (base.OutputMessage, error) {
	id := enc.idGen.Generate()
	events := enc.serializer.SerializeChunks(batch.Chunks)
	numEvents := len(batch.Chunks)

	msgBuffer := bytes.NewBuffer(make([]byte, 0, len(events)+len(enc.tag)+len(id)+64))
	encoder := msgpack.NewEncoder(msgBuffer)

	// root array
	if err := encoder.EncodeArrayLen(3); err != nil {
		return base.OutputMessage{}, err
	}

	// root[0]: tag
	if err := encoder.EncodeString(enc.tag); err != nil {
		return base.OutputMessage{}, err
	}

	// root[1]: stream of events
	option := forwardprotocol.TransportOption{
		Size:       numEvents,
		Chunk:      id,
		Compressed: "",
	}
	switch enc.mode {
	case forwardprotocol.ModeForward:
		if err := encoder.EncodeArrayLen(numEvents); err != nil {
			return base.OutputMessage{}, err
		}
		msgBuffer.Write(events)
	case forwardprotocol.ModePackedForward:
		if err := encoder.EncodeBytes(events); err != nil {
			return base.OutputMessage{}, err
		}
	case forwardprotocol.ModeCompressedPackedForward:
		compressed, err := shared.GzipBytes(events)
		if err != nil {
			return base.OutputMessage{}, fmt.Errorf("failed to compress: %w", err)
		}
		if err := encoder.EncodeBytes(compressed); err != nil {
			return base.OutputMessage{}, err
		}
		option.Compressed = forwardprotocol.CompressionFormat
	}

	// root[2]: option
	if err := encoder.Encode(option); err != nil {
		return base.OutputMessage{}, err
	}

	return base.OutputMessage{
		ID:       id,
		Data:     msgBuffer.Bytes(),
		Batch:    batch,
		Attempts: 0,
	}, nil
}
