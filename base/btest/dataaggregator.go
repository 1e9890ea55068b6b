package btest

import (
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/relex/gotils/logger"
)

// DataEvent is a call to a sink recorded by the aggregator from NewDataAggregator
type DataEvent struct {
	Client    string
	Data      string
	Timestamp time.Time
	Closed    bool // true for the call to Close()
}

// A basic implementation of MultiSinkDataReceiver for testing purpose
type dataAggregator struct {
	logger        logger.Logger
	outputChannel chan<- DataEvent
}

type dataAggregatorSink struct {
	logger        logger.Logger
	client        string
	outputChannel chan<- DataEvent
}

// NewDataAggregator creates a basic implementation of MultiSinkDataReceiver, to collect incoming data from all sinks
// into a single channel
func NewDataAggregator(parentLogger logger.Logger) (base.MultiSinkDataReceiver, <-chan DataEvent) {
	output := make(chan DataEvent, 100)
	return &dataAggregator{
		logger:        parentLogger.WithField(defs.LabelComponent, "DataAggregator"),
		outputChannel: output,
	}, output
}

func (recv *dataAggregator) NewSink(clientAddress string, clientNumber base.ClientNumber) base.DataReceiverSink {
	return &dataAggregatorSink{
		logger:        base.NewSinkLogger(recv.logger, clientAddress, clientNumber),
		client:        clientAddress,
		outputChannel: recv.outputChannel,
	}
}

func (sink *dataAggregatorSink) Accept(data []byte, timestamp time.Time) {
	sink.send(DataEvent{Client: sink.client, Data: string(data), Timestamp: timestamp})
}

func (sink *dataAggregatorSink) Flush() {
}

func (sink *dataAggregatorSink) Close() {
	sink.send(DataEvent{Client: sink.client, Closed: true})
}

func (sink *dataAggregatorSink) send(event DataEvent) {
	select {
	case sink.outputChannel <- event:
	case <-time.After(defs.IntermediateChannelTimeout):
		sink.logger.Errorf("BUG: timeout sending to channel: %+v", event)
	}
}
