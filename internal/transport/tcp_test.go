package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTCPListenerAcceptRoundTrip(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	require.Equal(t, "tcp", ln.Name())
	require.NotNil(t, ln.LocalAddr())

	clientErr := make(chan error, 1)
	go func() {
		conn, err := net.Dial("tcp", ln.LocalAddr().String())
		if err != nil {
			clientErr <- err
			return
		}
		defer conn.Close()
		_, err = conn.Write([]byte("ping"))
		clientErr <- err
	}()

	rwc, addr, err := ln.Accept(context.Background())
	require.NoError(t, err)
	defer rwc.Close()
	require.NotNil(t, addr)

	buf := make([]byte, 4)
	_, err = rwc.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
	require.NoError(t, <-clientErr)
}

func TestTCPListenerCloseUnblocksAccept(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := ln.Accept(context.Background())
		done <- err
	}()

	require.NoError(t, ln.Close())
	err = <-done
	require.Error(t, err)
}
