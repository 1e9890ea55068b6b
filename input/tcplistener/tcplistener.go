package tcplistener

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/input/framing"
	"github.com/ooici/mi-agent/util"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

const tcpReadBufferMax = 8 * 1024 * 1024 // Less than /proc/sys/net/ipv4/tcp_mem
const tcpReadBufferMin = 65536

var tcpLastReadBufferSize = tcpReadBufferMax // shared for all connections. No need to sync access as it's just a cached number.

// Options defines the behaviors of tcpListener
type Options struct {
	Framing        framing.Framing
	FramingOptions framing.Options
	AllowedClients []glob.Glob // patterns of remote hosts allowed to connect; empty to allow all
}

// tcpListener is a TCP Listener for request-only instrument streams, from port agent or the instruments directly
//
// The listener sends data read from each connection into its own sink from MultiSinkDataReceiver.
//
// There is no request confirmation and the protocol is inheritantly unreliable.
type tcpListener struct {
	logger      logger.Logger
	socket      *net.TCPListener
	options     Options
	receiver    base.MultiSinkDataReceiver
	counter     *base.InputCounter
	lastClient  *uint64
	stopRequest channels.Awaitable
	taskCounter *sync.WaitGroup    // counter to track connection tasks and the listener task itself
	stopped     channels.Awaitable // stopped is signaled when both listener and all child connections have come to stop
}

// NewTCPListener creates a socket listening on the given TCP address and returns a new tcpListener if successful
//
// The given address may use port zero, which would cause the port to be assigned by OS
//
// Returns the listener, actual address including final port, and error if failed
func NewTCPListener(parentLogger logger.Logger, address string, options Options, receiver base.MultiSinkDataReceiver,
	counter *base.InputCounter, stopRequest channels.Awaitable) (base.PipelineWorker, string, error) {

	if err := options.Framing.Verify(); err != nil {
		return nil, "", err
	}

	// open TCP socket
	socket, err := net.Listen("tcp", address)
	if err != nil {
		return nil, "", err
	}
	boundAddr := socket.Addr().String()

	logger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent: "TCPListener",
		defs.LabelAddress:   boundAddr,
	})
	logger.Infof("start listening for %s", options.Framing)

	// init taskCounter with 1 for the listener; Can't wait for Start() because WaitGroupAwaitable below would quit immediately if it's zero.
	taskCounter := &sync.WaitGroup{}
	taskCounter.Add(1)

	return &tcpListener{
		logger:      logger,
		socket:      socket.(*net.TCPListener),
		options:     options,
		receiver:    receiver,
		counter:     counter,
		lastClient:  new(uint64),
		stopRequest: stopRequest,
		taskCounter: taskCounter,
		stopped:     channels.NewWaitGroupAwaitable(taskCounter), // input is only fully stopped after all connections are closed
	}, boundAddr, nil
}

func (lsnr *tcpListener) Start() {
	go lsnr.run()
}

func (lsnr *tcpListener) Stopped() channels.Awaitable {
	return lsnr.stopped
}

func (lsnr *tcpListener) run() {
	// background goroutine to wait and close listener on request
	abortListener := channels.NewSignalAwaitable()
	go func() {
		channels.AnyAwaitables(lsnr.stopRequest, abortListener).Next(func() {
			if abortListener.Peek() {
				lsnr.logger.Info("abort listener")
			} else {
				lsnr.logger.Info("close listener on stop request")
			}
		}).WaitForever()
		lsnr.socket.Close()
	}()

	// main loop
	lsnr.logger.Info("start accept loop")
	for {
		conn, err := lsnr.socket.AcceptTCP()
		if err != nil {
			if lsnr.stopRequest.Peek() && util.IsNetworkClosed(err) {
				// closed on stop request
			} else {
				lsnr.logger.Error("accept() error: ", err)
				abortListener.Signal()
			}
			break
		}

		clientNumber := base.ClientNumber(atomic.AddUint64(lsnr.lastClient, 1))
		connLogger := lsnr.logger.WithFields(logger.Fields{
			defs.LabelPart:         "connection",
			defs.LabelClient:       conn.RemoteAddr().String(),
			defs.LabelClientNumber: clientNumber,
		})
		if !lsnr.isAllowed(conn.RemoteAddr()) {
			connLogger.Warn("rejected connection: client not allowed")
			conn.Close()
			continue
		}

		connLogger.Info("accepted connection")
		lsnr.taskCounter.Add(1)
		go lsnr.runConnection(connLogger, conn, clientNumber)
	}
	lsnr.logger.Info("end accept loop")

	// mark the listener itself as done, note there could still be established connections
	lsnr.taskCounter.Done()
}

func (lsnr *tcpListener) isAllowed(remoteAddr net.Addr) bool {
	if len(lsnr.options.AllowedClients) == 0 {
		return true
	}
	host := remoteAddr.String()
	if tcpAddr, ok := remoteAddr.(*net.TCPAddr); ok {
		host = tcpAddr.IP.String()
	}
	for _, pattern := range lsnr.options.AllowedClients {
		if pattern.Match(host) {
			return true
		}
	}
	return false
}

func (lsnr *tcpListener) runConnection(connLogger logger.Logger, conn *net.TCPConn, clientNumber base.ClientNumber) {
	defer lsnr.taskCounter.Done()
	connLogger.Info("started")
	lsnr.counter.OpenSession()
	defer lsnr.counter.CloseSession()

	sink := lsnr.receiver.NewSink(conn.RemoteAddr().String(), clientNumber)
	defer sink.Close()

	connAborter := lsnr.launchConnectionCloser(connLogger, conn)

	// short timeout for periodic flushing
	connReader := lsnr.createConnectionReader(connLogger, conn)
	frameReader := framing.NewReader(connLogger, lsnr.options.Framing, connReader, lsnr.options.FramingOptions,
		lsnr.counter, sink.Accept)

	emptyTime := time.Time{}
	prevDeadline := time.Time{}
	for {
		err := frameReader.ReadNext()
		if err == nil {
			if prevDeadline == emptyTime {
				prevDeadline = connReader.Deadline()
			} else if connReader.Deadline() != prevDeadline {
				connLogger.Debug("flush input for deadline update")
				sink.Flush()
				prevDeadline = connReader.Deadline()
			}
			continue
		}
		if util.IsNetworkTimeout(err) {
			connLogger.Debug("flush input for timeout")
			sink.Flush()
			continue
		}
		// error handling
		if util.IsNetworkClosed(err) && lsnr.stopRequest.Peek() {
			// already closed by connAborter
			connLogger.Info("closed by stop request (delayed)")
		} else {
			if !util.IsNetworkClosed(err) {
				connLogger.Warn("read() error: ", err)
			}
			connAborter.Signal()
		}
		break
	}

	sink.Flush()
	connLogger.Infof("ended, %d bytes read", connReader.NumBytesRead())
}

func (lsnr *tcpListener) launchConnectionCloser(connLogger logger.Logger, conn *net.TCPConn) *channels.SignalAwaitable {
	abortConn := channels.NewSignalAwaitable()
	// background goroutine to wait and close connection on request
	go func() {
		channels.AnyAwaitables(lsnr.stopRequest, abortConn).Next(func() {
			if abortConn.Peek() {
				connLogger.Info("abort connection")
			} else {
				connLogger.Info("close connection on stop request")
			}
		}).WaitForever()
		conn.Close()
	}()
	return abortConn
}

func (lsnr *tcpListener) createConnectionReader(connLogger logger.Logger, conn *net.TCPConn) *util.DeadlineReader {
	if err := conn.SetKeepAlive(true); err != nil {
		connLogger.Warnf("error enabling keep-alive: %s", err.Error())
	}

	if sz, err := util.TrySetTCPReadBuffer(conn, tcpLastReadBufferSize, tcpReadBufferMin); err != nil {
		connLogger.Warnf("error changing buffer size: %s", err.Error())
	} else {
		connLogger.Infof("set TCP buffer size: %d", sz)
		tcpLastReadBufferSize = sz
	}

	return util.NewDeadlineReader(conn, defs.InputFlushInterval)
}
