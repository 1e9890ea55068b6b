package util

import (
	"net"
	"time"
)

// DeadlineReader reads from a connection with a read deadline renewed only when it's about to expire
//
// The effective timeout is between timeout and 2*timeout. A timeout error does not break the connection, so the
// reader can be used to wake up the caller periodically on quiet connections.
type DeadlineReader struct {
	conn       net.Conn
	timeoutMin time.Duration
	timeoutMax time.Duration
	deadline   time.Time
	numRead    int64
}

// NewDeadlineReader creates a DeadlineReader; zero timeout disables deadlines
func NewDeadlineReader(conn net.Conn, timeout time.Duration) *DeadlineReader {
	return &DeadlineReader{
		conn:       conn,
		timeoutMin: timeout,
		timeoutMax: timeout * 2,
	}
}

// Deadline returns the current read deadline, which changes only when renewed by Read
func (dr *DeadlineReader) Deadline() time.Time {
	return dr.deadline
}

// NumBytesRead returns the total numbers of bytes read so far
func (dr *DeadlineReader) NumBytesRead() int64 {
	return dr.numRead
}

func (dr *DeadlineReader) Read(p []byte) (int, error) {
	if dr.timeoutMin > 0 {
		now := time.Now()
		if dr.deadline.Sub(now) < dr.timeoutMin {
			next := now.Add(dr.timeoutMax)
			if err := dr.conn.SetReadDeadline(next); err != nil {
				return 0, err
			}
			dr.deadline = next
		}
	}
	n, err := dr.conn.Read(p)
	dr.numRead += int64(n)
	return n, err
}
