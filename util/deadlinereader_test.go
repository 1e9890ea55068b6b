package util

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineReader(t *testing.T) {
	socket, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer socket.Close()

	go func() {
		client, cerr := net.Dial("tcp", socket.Addr().String())
		if !assert.NoError(t, cerr) {
			return
		}
		defer client.Close()
		for _, rec := range []string{"SATPAR0229,10.01\n", "SATPAR0229,10.02\n"} {
			_, werr := client.Write([]byte(rec))
			assert.NoError(t, werr)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	server, err := socket.Accept()
	require.NoError(t, err)
	defer server.Close()

	dr := NewDeadlineReader(server, 40*time.Millisecond)
	reader := bufio.NewReaderSize(dr, 1024)

	ln, _, err := reader.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "SATPAR0229,10.01", string(ln))
	firstDeadline := dr.Deadline()
	assert.False(t, firstDeadline.IsZero())

	// nothing arrives within 80ms
	_, _, err = reader.ReadLine()
	assert.True(t, IsNetworkTimeout(err), err)

	ln, _, err = reader.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "SATPAR0229,10.02", string(ln))
	assert.True(t, dr.Deadline().After(firstDeadline), "deadline renewed")
	assert.Equal(t, int64(34), dr.NumBytesRead())
}
