package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
)

// TLSListener implements DNS-over-TLS (RFC 7858) as a server.Listener,
// adapted from the teacher's DoTListener: same tls.Listen/Accept shape,
// generalized to the shared Listener/Worker framework instead of owning its
// own accept loop and connection handler.
type TLSListener struct {
	ln net.Listener
}

// ListenTLS binds addr with the given TLS config. ALPN should be set to
// []string{"dot"} by the caller per §6.
func ListenTLS(addr string, cfg *tls.Config) (*TLSListener, error) {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	return &TLSListener{ln: ln}, nil
}

func (l *TLSListener) Name() string        { return "tls" }
func (l *TLSListener) LocalAddr() net.Addr { return l.ln.Addr() }
func (l *TLSListener) Close() error        { return l.ln.Close() }

func (l *TLSListener) Accept(ctx context.Context) (io.ReadWriteCloser, net.Addr, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.RemoteAddr(), nil
}
