// Package forward implements the two upstream forwarder adapters described
// in §4.4: a UDP forwarder with an in-flight transaction-id table, and a
// QUIC forwarder over one long-lived connection.
package forward

import (
	"context"
	"net"
	"sync"

	"github.com/dnscore/fwdresolver/internal/cache"
	"github.com/dnscore/fwdresolver/internal/random"
	"github.com/dnscore/fwdresolver/internal/wire"
)

// minResponseSize is the shortest datagram the reader loop will bother
// parsing; shorter packets are dropped, per §4.4.
const minResponseSize = 20

// UDPForwarder owns one outbound UDP socket connected to the upstream
// resolver, plus the in-flight table mapping minted transaction IDs to the
// waiter expecting that response.
type UDPForwarder struct {
	conn *net.UDPConn

	mu       sync.Mutex
	inflight map[uint16]chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewUDPForwarder starts a background reader loop over conn, which must
// already be connected to the upstream resolver.
func NewUDPForwarder(conn *net.UDPConn) *UDPForwarder {
	f := &UDPForwarder{
		conn:     conn,
		inflight: make(map[uint16]chan []byte),
		done:     make(chan struct{}),
	}
	go f.readLoop()
	return f
}

// Close stops the reader loop and closes the underlying socket.
func (f *UDPForwarder) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return f.conn.Close()
}

func (f *UDPForwarder) readLoop() {
	buf := make([]byte, wire.MaxUDPMessageSize)
	for {
		n, err := f.conn.Read(buf)
		if err != nil {
			select {
			case <-f.done:
				return
			default:
				continue
			}
		}
		if n < minResponseSize {
			continue
		}
		h, err := wire.ParseHeader(buf[:n])
		if err != nil {
			continue
		}
		f.mu.Lock()
		ch, ok := f.inflight[h.ID]
		if ok {
			delete(f.inflight, h.ID)
		}
		f.mu.Unlock()
		if !ok {
			// No matching waiter: either it already timed out, or this is
			// spoofed/stray traffic. Either way, drop it silently.
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		ch <- data
	}
}

// Forward implements transaction.Forwarder: mint an id, register a one-shot
// waiter, send the query, and deliver whatever the reader loop hands back
// (or nothing, if ctx is canceled first — the caller's own timeout handling
// then synthesizes ServFail).
func (f *UDPForwarder) Forward(ctx context.Context, q wire.Question, out chan<- cache.Answer) {
	defer close(out)

	id := random.TransactionID()
	respCh := make(chan []byte, 1)
	f.mu.Lock()
	f.inflight[id] = respCh
	f.mu.Unlock()

	pkt := wire.Packet{
		Header:   wire.Header{ID: id, QR: false, Opcode: wire.OpQuery, RD: true},
		Question: &q,
	}
	buf := pkt.Emit(nil)

	if _, err := f.conn.Write(buf); err != nil {
		f.mu.Lock()
		delete(f.inflight, id)
		f.mu.Unlock()
		out <- cache.Answer{Err: wire.NewServFail()}
		return
	}

	select {
	case data := <-respCh:
		emitResponse(data, out)
	case <-ctx.Done():
		f.mu.Lock()
		delete(f.inflight, id)
		f.mu.Unlock()
	}
}

// emitResponse parses a raw upstream datagram and streams its records (or a
// single error Answer, if the response carries a non-NOERROR rcode) to out.
func emitResponse(data []byte, out chan<- cache.Answer) {
	p, err := wire.ParsePacket(data, 0)
	if err != nil {
		out <- cache.Answer{Err: wire.NewServFail()}
		return
	}
	if p.Header.RCode != wire.RCodeNoError {
		out <- cache.Answer{Err: rcodeToError(p.Header.RCode, p.Question)}
		return
	}
	for _, rr := range p.Answers {
		out <- cache.Answer{Section: cache.SectionAnswer, RR: rr}
	}
	for _, rr := range p.Authorities {
		out <- cache.Answer{Section: cache.SectionAuthority, RR: rr}
	}
	for _, rr := range p.Additions {
		out <- cache.Answer{Section: cache.SectionAddition, RR: rr}
	}
}

func rcodeToError(rcode wire.RCode, q *wire.Question) *wire.PacketError {
	switch rcode {
	case wire.RCodeFormErr:
		return wire.NewFormatError("upstream returned FORMERR")
	case wire.RCodeNXDomain:
		if q != nil {
			return wire.NewNameError(q.Name)
		}
		return wire.NewNameError(wire.RootName)
	case wire.RCodeNotImp:
		return wire.NewNotImpl(wire.OpQuery)
	case wire.RCodeRefused:
		return wire.NewRefused(nil)
	default:
		return wire.NewServFail()
	}
}
