// Package server implements the protocol-agnostic connection framework of
// §4.5: a generic Listener abstraction, a Service that accepts connections
// and tracks their workers in a connpool.Pool, and a per-connection Worker
// state machine (Reading/Dispatching/Responding/Suspect/Closed) that frames
// requests and responses with a u16 length prefix.
package server

import (
	"context"
	"io"
	"net"
)

// Listener yields accepted byte streams tagged with the peer address, for
// any stream-oriented transport (TCP, TLS, QUIC). It generalizes
// comm::stream::service::Listener.
type Listener interface {
	// Name is the protocol tag used in logs ("tcp", "tls", "quic").
	Name() string
	// LocalAddr is the bound serving address.
	LocalAddr() net.Addr
	// Accept blocks until a new stream is available or the listener is
	// closed. QUICListener also returns when ctx is canceled; the TCP and
	// TLS listeners do not watch ctx.
	Accept(ctx context.Context) (io.ReadWriteCloser, net.Addr, error)
	// Close stops the listener; any blocked Accept returns an error.
	Close() error
}
