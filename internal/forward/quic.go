package forward

import (
	"context"
	"crypto/tls"
	"io"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/dnscore/fwdresolver/internal/cache"
	"github.com/dnscore/fwdresolver/internal/wire"
)

// QUICALPNProtocols are the ALPN identifiers this forwarder advertises when
// dialing, per §6.
var QUICALPNProtocols = []string{"doq", "doq-i11"}

// QUICForwarder maintains one long-lived QUIC connection to the upstream
// resolver. Each task gets a fresh bidirectional stream; a stream-open
// failure triggers exactly one reconnect attempt before giving up.
type QUICForwarder struct {
	addr      string
	tlsConfig *tls.Config
	quicConfig *quic.Config

	mu   sync.Mutex
	conn quic.Connection
}

// NewQUICForwarder dials addr and holds the connection open for reuse
// across tasks.
func NewQUICForwarder(ctx context.Context, addr string, tlsConfig *tls.Config) (*QUICForwarder, error) {
	cfg := tlsConfig.Clone()
	cfg.NextProtos = QUICALPNProtocols

	f := &QUICForwarder{addr: addr, tlsConfig: cfg}
	conn, err := quic.DialAddr(ctx, addr, cfg, f.quicConfig)
	if err != nil {
		return nil, err
	}
	f.conn = conn
	return f, nil
}

func (f *QUICForwarder) reconnect(ctx context.Context) error {
	conn, err := quic.DialAddr(ctx, f.addr, f.tlsConfig, f.quicConfig)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return nil
}

func (f *QUICForwarder) currentConn() quic.Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

// Forward implements transaction.Forwarder: open a fresh bidirectional
// stream, write one length-prefixed query, and read one length-prefixed
// response until FIN. A parser error whose kind is ServFail is interpreted
// as a clean EOF rather than a failure (§4.4).
func (f *QUICForwarder) Forward(ctx context.Context, q wire.Question, out chan<- cache.Answer) {
	defer close(out)

	stream, err := f.currentConn().OpenStreamSync(ctx)
	if err != nil {
		if err := f.reconnect(ctx); err != nil {
			out <- cache.Answer{Err: wire.NewServFail()}
			return
		}
		stream, err = f.currentConn().OpenStreamSync(ctx)
		if err != nil {
			out <- cache.Answer{Err: wire.NewServFail()}
			return
		}
	}
	defer stream.Close()

	pkt := wire.Packet{
		Header:   wire.Header{ID: 0, QR: false, Opcode: wire.OpQuery, RD: true},
		Question: &q,
	}
	payload := pkt.Emit(nil)
	framed := wire.EmitStreamPrefix(make([]byte, 0, len(payload)+2), len(payload))
	framed = append(framed, payload...)

	if _, err := stream.Write(framed); err != nil {
		out <- cache.Answer{Err: wire.NewServFail()}
		return
	}

	data, err := readOneFramedMessage(stream)
	if err != nil {
		if wire.IsServFailEOF(err) {
			return
		}
		out <- cache.Answer{Err: wire.NewServFail()}
		return
	}
	emitResponse(data, out)
}

// readOneFramedMessage reads a single u16-length-prefixed message from r.
func readOneFramedMessage(r io.Reader) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, wire.NewServFail()
		}
		return nil, wire.NewFormatError("quic: failed reading length prefix: %v", err)
	}
	n, err := wire.ParseStreamPrefix(prefix[:])
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, wire.NewFormatError("quic: failed reading message body: %v", err)
	}
	return buf, nil
}
