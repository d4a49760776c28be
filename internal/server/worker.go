package server

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/dnscore/fwdresolver/internal/cache"
	"github.com/dnscore/fwdresolver/internal/pool"
	"github.com/dnscore/fwdresolver/internal/wire"
)

// State names the per-connection worker state machine in §4.5.
type State int

const (
	StateReading State = iota
	StateDispatching
	StateResponding
	StateSuspect
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateDispatching:
		return "dispatching"
	case StateResponding:
		return "responding"
	case StateSuspect:
		return "suspect"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// QueryRunner is the subset of *transaction.Engine a Worker needs. sink is
// closed by the runner when the transaction completes.
type QueryRunner interface {
	Query(ctx context.Context, q wire.Question, sink chan<- cache.Answer)
}

// Worker owns one accepted stream connection and runs the read-dispatch-
// respond loop against it until the peer disconnects, a second consecutive
// malformed message arrives, or it is told to shut down.
type Worker struct {
	client    net.Addr
	stream    io.ReadWriteCloser
	engine    QueryRunner
	shutdown  <-chan struct{}
	onUpdate  func()
	onClose   func()
	onQuery   func()
	gates     []Gate
	onRefusal func(gate string)

	state State
}

// NewWorker constructs a Worker. onUpdate is called whenever the worker
// completes an iteration without closing (the pool's TTL-reset signal);
// onClose is called exactly once when the worker exits.
func NewWorker(client net.Addr, stream io.ReadWriteCloser, engine QueryRunner, shutdown <-chan struct{}, onUpdate, onClose func()) *Worker {
	return &Worker{
		client:   client,
		stream:   stream,
		engine:   engine,
		shutdown: shutdown,
		onUpdate: onUpdate,
		onClose:  onClose,
		state:    StateReading,
	}
}

// WithOnQuery attaches a callback invoked once per well-formed query this
// worker accepts, before the Gates are consulted (so refused queries are
// counted too), for per-transport query counting; nil is a no-op.
func (w *Worker) WithOnQuery(f func()) *Worker {
	w.onQuery = f
	return w
}

// WithGates attaches the ACL/rate-limit Gates consulted before a well-formed
// query is dispatched, in order, first refusal wins. The same Gates given to
// the UDP path so a client refused on one transport cannot bypass it by
// reconnecting over another.
func (w *Worker) WithGates(gates []Gate) *Worker {
	w.gates = gates
	return w
}

// WithOnRefusal attaches a callback invoked with the refusing Gate's Name
// whenever a query is rejected before dispatch; nil is a no-op.
func (w *Worker) WithOnRefusal(f func(gate string)) *Worker {
	w.onRefusal = f
	return w
}

// checkGates returns the first non-nil refusal from w.gates for the
// connection's peer address, or nil if every gate allows it.
func (w *Worker) checkGates() *wire.PacketError {
	if len(w.gates) == 0 {
		return nil
	}
	ip := addrIP(w.client)
	for _, g := range w.gates {
		if refusal := g.Allow(ip); refusal != nil {
			if w.onRefusal != nil {
				w.onRefusal(g.Name())
			}
			return refusal
		}
	}
	return nil
}

// addrIP extracts the peer's IP from whatever concrete net.Addr type the
// listener surfaces (*net.TCPAddr for TCP/TLS, the QUIC transport's
// *net.UDPAddr-backed RemoteAddr for DoQ), falling back to parsing the
// address's host:port text form.
func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

// Run drives the worker loop to completion. It always calls onClose exactly
// once before returning.
func (w *Worker) Run(ctx context.Context) {
	defer func() {
		w.state = StateClosed
		w.onClose()
	}()

	suspect := false
	for {
		select {
		case <-w.shutdown:
			return
		case <-ctx.Done():
			return
		default:
		}

		w.state = StateReading
		pkt, err := readFramedPacket(w.stream)
		if err != nil {
			if wire.IsServFailEOF(err) {
				// clean EOF: peer closed its write side
				return
			}
			w.state = StateSuspect
			if writeFailure(w.stream, rcodeOf(err), idOf(err)) != nil || suspect {
				return
			}
			suspect = true
			w.onUpdate()
			continue
		}

		if !pkt.Header.IsQuery() {
			w.state = StateSuspect
			if writeFailure(w.stream, wire.RCodeFormErr, pkt.Header.ID) != nil || suspect {
				return
			}
			suspect = true
			w.onUpdate()
			continue
		}

		suspect = false
		if w.onQuery != nil {
			w.onQuery()
		}

		if refusal := w.checkGates(); refusal != nil {
			w.state = StateResponding
			resp := wire.NewErrorResponse(pkt.Header.ID, refusal.RCode(), pkt.Question)
			if writeFramedPacket(w.stream, resp) != nil {
				return
			}
			w.onUpdate()
			continue
		}

		w.state = StateDispatching
		resp := w.dispatch(ctx, pkt)

		w.state = StateResponding
		if writeFramedPacket(w.stream, resp) != nil {
			return
		}
		w.onUpdate()
	}
}

// dispatch runs pkt's question through the transaction engine and assembles
// the response packet, preserving the request id and question per §4.5 step
// 7. A packet with no question (e.g. a status query) yields an empty
// NOERROR response.
func (w *Worker) dispatch(ctx context.Context, pkt wire.Packet) wire.Packet {
	resp := wire.Packet{Header: wire.Header{ID: pkt.Header.ID, QR: true, RA: true}, Question: pkt.Question}
	if pkt.Question == nil {
		return resp
	}

	sink := make(chan cache.Answer, 8)
	w.engine.Query(ctx, *pkt.Question, sink)
	for a := range sink {
		if a.IsError() {
			resp.Header.RCode = a.Err.RCode()
			return resp
		}
		switch a.Section {
		case cache.SectionAnswer:
			resp.Answers = append(resp.Answers, a.RR)
		case cache.SectionAuthority:
			resp.Authorities = append(resp.Authorities, a.RR)
		case cache.SectionAddition:
			resp.Additions = append(resp.Additions, a.RR)
		}
	}
	return resp
}

func readFramedPacket(r io.Reader) (wire.Packet, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return wire.Packet{}, wire.NewServFail()
		}
		return wire.Packet{}, wire.NewFormatError("server: failed reading length prefix: %v", err)
	}
	n, err := wire.ParseStreamPrefix(prefix[:])
	if err != nil {
		// An undersized frame still carries its declared body; consume it
		// so the next read starts at a frame boundary.
		if declared := int(prefix[0])<<8 | int(prefix[1]); declared > 0 {
			_, _ = io.CopyN(io.Discard, r, int64(declared))
		}
		return wire.Packet{}, err
	}
	if n > wire.MaxStreamMessageSize {
		return wire.Packet{}, wire.NewFormatError("server: message too large (%d bytes)", n)
	}
	buf := pool.GetBuffer(n)[:n]
	defer pool.PutBuffer(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return wire.Packet{}, wire.NewFormatError("server: failed reading message body: %v", err)
	}
	return wire.ParsePacket(buf, 0)
}

func writeFramedPacket(w io.Writer, pkt wire.Packet) error {
	payload := pkt.Emit(nil)
	if len(payload) > wire.MaxStreamMessageSize {
		// Oversize response: substitute ServFail rather than emit a
		// truncated, unparseable message.
		payload = wire.NewErrorResponse(pkt.Header.ID, wire.RCodeServFail, pkt.Question).Emit(nil)
	}
	framed := wire.EmitStreamPrefix(make([]byte, 0, len(payload)+2), len(payload))
	framed = append(framed, payload...)
	_, err := w.Write(framed)
	return err
}

func writeFailure(w io.Writer, rcode wire.RCode, id uint16) error {
	return writeFramedPacket(w, wire.NewErrorResponse(id, rcode, nil))
}

func rcodeOf(err error) wire.RCode {
	var txErr *wire.TransactionError
	if errors.As(err, &txErr) {
		return txErr.Err.RCode()
	}
	var pe *wire.PacketError
	if errors.As(err, &pe) {
		return pe.RCode()
	}
	return wire.RCodeFormErr
}

func idOf(err error) uint16 {
	var txErr *wire.TransactionError
	if errors.As(err, &txErr) && txErr.HasID {
		return txErr.ID
	}
	return 0
}
