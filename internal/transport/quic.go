package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"

	"github.com/quic-go/quic-go"
)

// QUICALPNProtocols are the ALPN identifiers a DoQ listener advertises,
// matching the upstream forwarder's choice in internal/forward/quic.go.
var QUICALPNProtocols = []string{"doq", "doq-i11"}

// quicStream adapts one bidirectional quic.Stream to io.ReadWriteCloser; the
// worker loop treats it exactly like a TCP connection, reading at most one
// framed query from it per the DoQ one-query-per-stream convention, after
// which the peer's FIN surfaces as the clean-EOF ServFail sentinel.
type quicStream struct {
	quic.Stream
}

// acceptedStream is one (stream, peer) pair delivered to Accept.
type acceptedStream struct {
	rwc  io.ReadWriteCloser
	addr net.Addr
	err  error
}

// QUICListener implements DNS-over-QUIC (draft-ietf-dprive-dnsoquic) as a
// server.Listener. Each accepted quic.Connection spawns its own
// AcceptStream loop; every stream it yields is surfaced to Accept as an
// independent "connection" tagged with the owning peer's address, since the
// Worker loop already treats a stream ending in clean EOF as Closed.
type QUICListener struct {
	ln     *quic.Listener
	accept chan acceptedStream
	done   chan struct{}
}

// ListenQUIC binds addr for DoQ. tlsConfig's NextProtos is overwritten with
// QUICALPNProtocols.
func ListenQUIC(addr string, tlsConfig *tls.Config) (*QUICListener, error) {
	cfg := tlsConfig.Clone()
	cfg.NextProtos = QUICALPNProtocols

	ln, err := quic.ListenAddr(addr, cfg, nil)
	if err != nil {
		return nil, err
	}
	l := &QUICListener{
		ln:     ln,
		accept: make(chan acceptedStream, 16),
		done:   make(chan struct{}),
	}
	go l.acceptConnections()
	return l, nil
}

func (l *QUICListener) Name() string        { return "quic" }
func (l *QUICListener) LocalAddr() net.Addr { return l.ln.Addr() }

func (l *QUICListener) Close() error {
	close(l.done)
	return l.ln.Close()
}

func (l *QUICListener) acceptConnections() {
	for {
		conn, err := l.ln.Accept(context.Background())
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				l.accept <- acceptedStream{err: err}
				return
			}
		}
		go l.acceptStreams(conn)
	}
}

func (l *QUICListener) acceptStreams(conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		select {
		case l.accept <- acceptedStream{rwc: quicStream{stream}, addr: conn.RemoteAddr()}:
		case <-l.done:
			return
		}
	}
}

func (l *QUICListener) Accept(ctx context.Context) (io.ReadWriteCloser, net.Addr, error) {
	select {
	case a := <-l.accept:
		if a.err != nil {
			return nil, nil, a.err
		}
		return a.rwc, a.addr, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-l.done:
		return nil, nil, io.EOF
	}
}
