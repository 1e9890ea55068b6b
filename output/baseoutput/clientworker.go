// Package baseoutput provides the common parts of network-based outputs
package baseoutput

import (
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// ClientWorker is a common client implementing ChunkConsumer
//
// The caller provides a minimum ClientConnection through EstablishConnectionFunc, while ClientWorker handles
// logging, metrics, error recovery, reconnecting, periodical ping, and pipeling by handling sending and receiving on
// their respective goroutines
//
// Messages not acknowledged are resent in the next session, until defs.ForwarderMaxAttempts is reached. After the end
// of input, reconnection is attempted until defs.ForwarderLeftoverTimeout before remaining messages are dropped.
type ClientWorker struct {
	logger          logger.Logger
	inputChannel    <-chan base.ChunkBatch
	inputEnded      bool // accessed by the worker goroutine only
	onBatchConsumed func(batch base.ChunkBatch)
	onBatchDropped  func(batch base.ChunkBatch)
	onFinished      func()
	stopped         *channels.SignalAwaitable
	metrics         *clientMetrics
	openConn        EstablishConnectionFunc
	encode          EncodeBatchFunc
}

type reconnectPolicy int

const (
	noReconnect reconnectPolicy = iota
	reconnectWithDelay
)

// NewClientWorker creates ClientWorker
func NewClientWorker(parentLogger logger.Logger, args base.ChunkConsumerArgs, metricFactory *base.MetricFactory,
	openConn EstablishConnectionFunc, encode EncodeBatchFunc) *ClientWorker {

	return &ClientWorker{
		logger:          parentLogger,
		inputChannel:    args.InputChannel,
		inputEnded:      false,
		onBatchConsumed: args.OnBatchConsumed,
		onBatchDropped:  args.OnBatchDropped,
		onFinished:      args.OnFinished,
		stopped:         channels.NewSignalAwaitable(),
		metrics:         newClientMetrics(metricFactory),
		openConn:        openConn,
		encode:          encode,
	}
}

// Start starts the ClientWorker
func (client *ClientWorker) Start() {
	go client.run()
}

// Stopped returns an Awaitable which is signaled when stopped
func (client *ClientWorker) Stopped() channels.Awaitable {
	return client.stopped
}

func (client *ClientWorker) run() {
	defer client.stopped.Signal()
	defer client.onFinished()
	var leftovers []base.OutputMessage
	var giveUpTime time.Time
	client.logger.Infof("started")
	for {
		var policy reconnectPolicy
		leftovers, policy = client.runConnection(leftovers)
		client.metrics.SetLeftovers(len(leftovers))
		if policy == noReconnect {
			client.logger.Infof("stop requested (connection)")
			break
		}
		if client.inputEnded {
			if giveUpTime.IsZero() {
				giveUpTime = time.Now().Add(defs.ForwarderLeftoverTimeout)
			}
			if time.Now().After(giveUpTime) {
				client.logger.Warnf("give up leftovers=%d after end of input", len(leftovers))
				break
			}
			time.Sleep(defs.ForwarderRetryInterval)
		} else {
			leftovers = client.waitForRetry(leftovers)
		}
		client.metrics.SetLeftovers(len(leftovers))
		client.logger.Infof("retrying connection with leftovers=%d", len(leftovers))
	}
	for _, msg := range leftovers {
		client.dropMessage(msg, "unsent on shutdown")
	}
	client.metrics.SetLeftovers(0)
	client.logger.Info("stopped")
}

func (client *ClientWorker) runConnection(leftovers []base.OutputMessage) ([]base.OutputMessage, reconnectPolicy) {
	if len(leftovers) == 0 && client.inputEnded {
		return nil, noReconnect
	}
	conn, err := client.openConn()
	if err != nil {
		client.logger.Warnf("failed to open connection: %s", err.Error())
		client.metrics.OnError(err)
		return leftovers, reconnectWithDelay
	}
	client.metrics.OnOpening()

	defer func() {
		client.logger.Infof("close connection")
		conn.Close() // ignore error because Close may have been called by acknowledger
	}()

	return newClientSession(client, conn).Run(leftovers)
}

// waitForRetry waits for the retry interval while still accepting new batches, which are queued to leftovers
func (client *ClientWorker) waitForRetry(leftovers []base.OutputMessage) []base.OutputMessage {
	timer := time.NewTimer(defs.ForwarderRetryInterval)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return leftovers
		case batch, ok := <-client.inputChannel:
			if !ok {
				client.logger.Infof("input ended (retry wait)")
				client.inputEnded = true
				return leftovers
			}
			if msg, ok := client.encodeBatch(batch); ok {
				leftovers = append(leftovers, msg)
			}
		}
	}
}

func (client *ClientWorker) encodeBatch(batch base.ChunkBatch) (base.OutputMessage, bool) {
	msg, err := client.encode(batch)
	if err != nil {
		client.logger.Errorf("failed to encode %s: %s", batch, err.Error())
		client.metrics.OnError(err)
		client.metrics.OnDropped(batch)
		client.onBatchDropped(batch)
		return base.OutputMessage{}, false
	}
	return msg, true
}

func (client *ClientWorker) dropMessage(msg base.OutputMessage, reason string) {
	client.logger.Warnf("drop message %s: %s", msg, reason)
	client.metrics.OnDropped(msg.Batch)
	client.onBatchDropped(msg.Batch)
}
