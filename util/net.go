package util

import (
	"errors"
	"io"
	"net"
	"strings"
)

// IsNetworkClosed checks if the given error means the connection has been closed, by either side
func IsNetworkClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// IsNetworkError checks if the given error comes from network or connection state, as opposed to protocol errors
func IsNetworkError(err error) bool {
	if IsNetworkClosed(err) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsNetworkTimeout checks if the given error is network timeout
func IsNetworkTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// TrySetTCPReadBuffer attempts to set the largest read buffer within [min, max], halving the size on ENOBUFS
func TrySetTCPReadBuffer(conn *net.TCPConn, max int, min int) (int, error) {
	var err error
	val := max
	for val >= min {
		err = conn.SetReadBuffer(val)
		if err == nil {
			return val, nil
		}
		if !strings.HasSuffix(err.Error(), "setsockopt: no buffer space available") {
			return -1, err
		}
		val /= 2
	}
	if val != min {
		err = conn.SetReadBuffer(min)
		if err == nil {
			return min, nil
		}
	}
	return -1, err
}
