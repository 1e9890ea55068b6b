package shared

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/vmihailenco/msgpack/v4"
)

// ChunkRecord is the msgpack form of an InstrumentChunk in chunk files
type ChunkRecord struct {
	Instrument string    `msgpack:"instrument"`
	Client     string    `msgpack:"client"`
	Time       time.Time `msgpack:"time"`
	Data       []byte    `msgpack:"data"`
}

// EncodeChunkRecords writes chunks as a sequence of msgpack maps
func EncodeChunkRecords(writer io.Writer, chunks []base.InstrumentChunk) error {
	encoder := msgpack.NewEncoder(writer)
	for i, chunk := range chunks {
		if err := encodeChunkRecord(encoder, chunk); err != nil {
			return fmt.Errorf("chunk[%d]: %w", i, err)
		}
	}
	return nil
}

func encodeChunkRecord(encoder *msgpack.Encoder, chunk base.InstrumentChunk) error {
	if err := encoder.EncodeMapLen(4); err != nil {
		return err
	}
	if err := encoder.EncodeString("instrument"); err != nil {
		return err
	}
	if err := encoder.EncodeString(chunk.Instrument); err != nil {
		return err
	}
	if err := encoder.EncodeString("client"); err != nil {
		return err
	}
	if err := encoder.EncodeString(chunk.Client); err != nil {
		return err
	}
	if err := encoder.EncodeString("time"); err != nil {
		return err
	}
	if err := encoder.EncodeTime(chunk.Timestamp); err != nil {
		return err
	}
	if err := encoder.EncodeString("data"); err != nil {
		return err
	}
	return encoder.EncodeBytes(chunk.Data)
}

// DecodeChunkRecords reads all msgpack maps written by EncodeChunkRecords until the end of reader
func DecodeChunkRecords(reader io.Reader) ([]base.InstrumentChunk, error) {
	decoder := msgpack.NewDecoder(reader)
	var chunks []base.InstrumentChunk
	for {
		var record ChunkRecord
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				return chunks, nil
			}
			return chunks, fmt.Errorf("chunk[%d]: %w", len(chunks), err)
		}
		chunks = append(chunks, base.InstrumentChunk{
			Instrument: record.Instrument,
			Client:     record.Client,
			Timestamp:  record.Time,
			Data:       record.Data,
		})
	}
}
