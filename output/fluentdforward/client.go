package fluentdforward

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/output/baseoutput"
	"github.com/ooici/mi-agent/util"
	"github.com/relex/fluentlib/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
	"github.com/vmihailenco/msgpack/v4"
)

type forwardConnection struct {
	logger  logger.Logger
	socket  net.Conn
	decoder *msgpack.Decoder // to read msgpack responses from Fluentd
}

var internalPingMessage = buildInternalPingMessage()

// NewClientWorker creates a ClientWorker to forward batches to the upstream of the given config
func NewClientWorker(parentLogger logger.Logger, args base.ChunkConsumerArgs, config UpstreamConfig,
	metricFactory *base.MetricFactory, encode baseoutput.EncodeBatchFunc) *baseoutput.ClientWorker {

	clientLogger := parentLogger.WithField(defs.LabelComponent, "FluentdForwardClient")

	return baseoutput.NewClientWorker(
		clientLogger,
		args,
		metricFactory,
		func() (baseoutput.ClientConnection, error) {
			return openForwardConnection(clientLogger, config)
		},
		encode,
	)
}

func openForwardConnection(parentLogger logger.Logger, config UpstreamConfig) (baseoutput.ClientConnection, error) {
	connLogger := parentLogger.WithField(defs.LabelServer, config.Address)

	sock, connErr := connect(connLogger, config.TLS, config.Address)
	if connErr != nil {
		return nil, fmt.Errorf("failed to connect: %w", connErr)
	}
	connLogger.Info("connected to ", sock.RemoteAddr())

	if len(config.Secret) > 0 {
		success, reason, herr := forwardprotocol.DoClientHandshake(sock, config.Secret, defs.ForwarderHandshakeTimeout)
		if herr != nil {
			closeSocket(connLogger, sock)
			return nil, fmt.Errorf("failed to handshake: %w", herr)
		}
		if !success {
			closeSocket(connLogger, sock)
			return nil, fmt.Errorf("login rejected: %s", reason)
		}
	}

	return &forwardConnection{
		logger:  connLogger,
		socket:  sock,
		decoder: msgpack.NewDecoder(sock),
	}, nil
}

func connect(connLogger logger.Logger, useTLS bool, address string) (net.Conn, error) {
	if useTLS {
		connLogger.Infof("connecting to %s in TLS mode", address)
		dialer := &net.Dialer{
			Timeout:  defs.ForwarderConnectionTimeout,
			Deadline: time.Now().Add(defs.ForwarderHandshakeTimeout),
		}
		tlsConfig := &tls.Config{InsecureSkipVerify: true} //nolint:gosec // upstream certs are not verified
		return tls.DialWithDialer(dialer, "tcp", address, tlsConfig)
	}
	connLogger.Infof("connecting to %s in TCP mode", address)
	return net.DialTimeout("tcp", address, defs.ForwarderConnectionTimeout)
}

func (fconn *forwardConnection) Logger() logger.Logger {
	return fconn.logger
}

func (fconn *forwardConnection) SendMessage(msg base.OutputMessage, deadline time.Time) error {
	if err := fconn.socket.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set send timeout: %s, %w", msg, err)
	}
	if err := writeAll(fconn.socket, msg.Data); err != nil {
		return fmt.Errorf("failed to send: %s, %w", msg, err)
	}
	return nil
}

// SendPing sends a forward message of zero events and no ID (no ACK)
func (fconn *forwardConnection) SendPing(deadline time.Time) error {
	if err := fconn.socket.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set ping timeout: %w", err)
	}
	if err := writeAll(fconn.socket, internalPingMessage); err != nil {
		return fmt.Errorf("failed to ping: %w", err)
	}
	return nil
}

func (fconn *forwardConnection) ReadAck(deadline time.Time) (string, error) {
	if err := fconn.socket.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("failed to set read timeout: %w", err)
	}
	ack := forwardprotocol.Ack{}
	if err := fconn.decoder.Decode(&ack); err != nil {
		return "", fmt.Errorf("failed to read ACK: %w", err)
	}
	return ack.Ack, nil
}

func (fconn *forwardConnection) Close() {
	closeSocket(fconn.logger, fconn.socket)
}

func closeSocket(connLogger logger.Logger, sock net.Conn) {
	if err := sock.Close(); err != nil && !util.IsNetworkClosed(err) {
		connLogger.Warn("error closing connection: ", err)
	}
}

func buildInternalPingMessage() []byte {
	var packet bytes.Buffer
	packet.Grow(100)
	encoder := msgpack.NewEncoder(&packet)
	// root array
	if err := encoder.EncodeArrayLen(3); err != nil {
		logger.Panic(err)
	}
	{
		// root[0]: tag
		if err := encoder.EncodeString("internal.ping"); err != nil {
			logger.Panic(err)
		}
		// root[1]: array of events
		if err := encoder.EncodeArrayLen(0); err != nil {
			logger.Panic(err)
		}
		// root[2]: options
		if err := encoder.Encode(forwardprotocol.TransportOption{
			Size:       0,
			Chunk:      "",
			Compressed: "",
		}); err != nil {
			logger.Panic(err)
		}
	}
	return packet.Bytes()
}

func writeAll(conn io.Writer, data []byte) error {
	for {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}
