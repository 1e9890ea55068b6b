package baseoutput

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"golang.org/x/exp/slices"
)

// clientSession represents a session bound to one forwarding connection
type clientSession struct {
	logger      logger.Logger
	client      *ClientWorker
	metrics     *clientMetrics
	conn        ClientConnection
	lastMessage *base.OutputMessage       // last message in processing (to be added to leftovers if not completed)
	ackerChan   chan base.OutputMessage   // channel to pass messages for acknowledger (wait for ACK and delete), close to end acknowledger
	ackerQuit   *channels.SignalAwaitable // channel for acknowledger to signal its end
	unacked     atomic.Value              // *[]base.OutputMessage, un-ACK'ed messages set when acknowledger quits (to be resent in next session)
}

func newClientSession(client *ClientWorker, conn ClientConnection) *clientSession {
	return &clientSession{
		logger:      conn.Logger().WithField(defs.LabelPart, "session"),
		client:      client,
		metrics:     client.metrics,
		conn:        conn,
		lastMessage: nil,
		ackerChan:   make(chan base.OutputMessage, defs.ForwarderMaxPendingMessagesForAck),
		ackerQuit:   channels.NewSignalAwaitable(),
		unacked:     atomic.Value{},
	}
}

// Run sends leftovers from previous sessions and then new batches from input, until the end of input or an error
//
// Returns messages to be resent in the next session
func (session *clientSession) Run(leftovers []base.OutputMessage) ([]base.OutputMessage, reconnectPolicy) {
	go session.runAcknowledger()

	session.logger.Infof("begin recovery stage with leftovers=%d", len(leftovers))
	for len(leftovers) > 0 {
		msg := leftovers[0]
		leftovers = leftovers[1:]
		if defs.ForwarderMaxAttempts > 0 && msg.Attempts >= defs.ForwarderMaxAttempts {
			session.client.dropMessage(msg, "too many attempts")
			continue
		}
		session.logger.Debugf("resending: %s", msg)
		session.lastMessage = &msg
		if err := session.sendMessage(session.lastMessage); err != nil {
			return session.collectLeftovers(leftovers), reconnectWithDelay
		}
		session.lastMessage = nil
	}

	if session.client.inputEnded {
		return session.finish()
	}
	session.logger.Infof("begin normal stage with queued=%d", len(session.client.inputChannel))
	pingTimer := time.NewTimer(defs.ForwarderPingInterval)
	defer pingTimer.Stop()
	for {
		var msg base.OutputMessage
		// in
		select {
		case batch, ok := <-session.client.inputChannel:
			if !ok {
				session.logger.Infof("input ended (normal stage)")
				session.client.inputEnded = true
				return session.finish()
			}
			var encoded bool
			if msg, encoded = session.client.encodeBatch(batch); !encoded {
				continue
			}
			session.logger.Debugf("received new: %s", msg)
		case <-pingTimer.C:
			if err := session.sendPing(); err != nil {
				return session.collectLeftovers(nil), reconnectWithDelay
			}
			pingTimer.Reset(defs.ForwarderPingInterval)
			continue
		}
		// out
		session.lastMessage = &msg
		if err := session.sendMessage(session.lastMessage); err != nil {
			return session.collectLeftovers(nil), reconnectWithDelay
		}
		session.lastMessage = nil
	}
}

// finish waits for all pending ACKs and ends the session
func (session *clientSession) finish() ([]base.OutputMessage, reconnectPolicy) {
	leftovers := session.collectLeftovers(nil)
	if len(leftovers) > 0 {
		return leftovers, reconnectWithDelay
	}
	return nil, noReconnect
}

func (session *clientSession) sendMessage(msg *base.OutputMessage) error {
	msg.Attempts++
	session.metrics.OnForwarding(*msg)
	session.logger.Debugf("forward message %s", msg)
	timeout := defs.ForwarderBatchSendTimeoutBase + time.Duration(len(msg.Data)/defs.ForwarderBatchSendMinimumSpeed)*time.Second
	if err := session.conn.SendMessage(*msg, time.Now().Add(timeout)); err != nil {
		session.logger.Warnf("failed to send: %s, %s", msg, err.Error())
		session.metrics.OnError(err)
		return err
	}
	select {
	case session.ackerChan <- *msg:
		break
	case <-session.ackerQuit.Channel():
		// acknowledger terminated due to invalid server response, return error for reconnection
		err := fmt.Errorf("aborted before queueing for ACK due to termination of acknowledger: %s", msg)
		session.logger.Info(err.Error())
		return err
	}
	session.metrics.OnForwarded(*msg)
	return nil
}

// sendPing sends an empty message to keep the connection alive
func (session *clientSession) sendPing() error {
	session.logger.Debugf("forward ping")
	if err := session.conn.SendPing(time.Now().Add(defs.ForwarderBatchSendTimeoutBase)); err != nil {
		session.logger.Warnf("failed to ping: %s", err.Error())
		session.metrics.OnError(err)
		return err
	}
	return nil
}

// collectLeftovers stops acknowledger and merges all messages not yet acknowledged, in the order of IDs
func (session *clientSession) collectLeftovers(unsent []base.OutputMessage) []base.OutputMessage {
	session.logger.Info("stopping acknowledger")
	close(session.ackerChan)
	if !session.ackerQuit.Wait(defs.ForwarderAckerStopTimeout) {
		session.logger.Error("BUG: timeout waiting for acknowledger to stop")
		session.conn.Close()
		session.ackerQuit.WaitForever()
	}
	var fromAckerChannel []base.OutputMessage
	for msg := range session.ackerChan {
		fromAckerChannel = append(fromAckerChannel, msg)
	}
	var fromAckerUnacked []base.OutputMessage
	if unackedPtr, ok := session.unacked.Load().(*[]base.OutputMessage); ok {
		fromAckerUnacked = *unackedPtr
	} else {
		session.logger.Error("BUG: failed to get un-ACK'ed messages from acknowledger")
	}

	merged := make([]base.OutputMessage, 0, len(unsent)+len(fromAckerChannel)+len(fromAckerUnacked)+1)
	merged = append(merged, unsent...)
	merged = append(merged, fromAckerChannel...)
	merged = append(merged, fromAckerUnacked...)
	inproc := 0
	if session.lastMessage != nil {
		merged = append(merged, *session.lastMessage)
		inproc++
	}
	newLeftovers := sortUniqueMessages(merged)
	session.metrics.SetLeftovers(len(newLeftovers))
	session.logger.Infof("collected leftovers: unsent(%d) + chan(%d) + unack(%d) + inproc(%d) = unique(%d)",
		len(unsent), len(fromAckerChannel), len(fromAckerUnacked), inproc, len(newLeftovers))
	return newLeftovers
}

func (session *clientSession) runAcknowledger() {
	clogger := session.logger.WithField(defs.LabelPart, "session-acker")
	pendingAckMap := make(map[string]base.OutputMessage)
	defer func() {
		values := make([]base.OutputMessage, 0, len(pendingAckMap))
		for _, v := range pendingAckMap {
			values = append(values, v)
		}
		session.metrics.OnAcknowledgerStopped(len(values))
		session.unacked.Store(&values)
		session.ackerQuit.Signal()
	}()
	for {
		var nextMessage base.OutputMessage

		// wait for a message for ACK
		{
			msg, ok := <-session.ackerChan
			if !ok {
				clogger.Infof("stop requested")
				return
			}
			if _, exists := pendingAckMap[msg.ID]; !exists {
				session.metrics.OnPendingAck()
			}
			pendingAckMap[msg.ID] = msg
			nextMessage = msg
			clogger.Debugf("received pending message %s", msg.ID)
		}

		// wait for ACK from upstream
		ackedID, ackErr := session.conn.ReadAck(time.Now().Add(defs.ForwarderBatchAckTimeout))
		if ackErr != nil {
			clogger.Warnf("failed to read ACK: %s", ackErr.Error())
			session.metrics.OnError(ackErr)
			session.conn.Close() // close both directions in case client=>server is still working
			return
		}

		// check the ACK returned from server, not necessarily for the message received above
		if ackedID != "" {
			if msg, exists := pendingAckMap[ackedID]; exists {
				nextMessage = msg
			} else {
				clogger.Errorf("received ACK to unknown message ID=%s", ackedID)
				continue
			}
		}
		clogger.Debugf("received ACK to message ID=%s", nextMessage.ID)

		delete(pendingAckMap, nextMessage.ID)
		session.client.onBatchConsumed(nextMessage.Batch)
		session.metrics.OnAcknowledged(nextMessage)
	}
}

func sortUniqueMessages(messages []base.OutputMessage) []base.OutputMessage {
	slices.SortFunc(messages, func(a, b base.OutputMessage) bool { return a.ID < b.ID })
	unique := messages[:0]
	lastID := "" // to skip duplications
	for _, msg := range messages {
		if msg.ID == lastID {
			continue
		}
		unique = append(unique, msg)
		lastID = msg.ID
	}
	return unique
}
