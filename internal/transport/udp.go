package transport

import (
	"context"
	"log"
	"net"

	"github.com/dnscore/fwdresolver/internal/cache"
	"github.com/dnscore/fwdresolver/internal/metrics"
	"github.com/dnscore/fwdresolver/internal/pool"
	"github.com/dnscore/fwdresolver/internal/server"
	"github.com/dnscore/fwdresolver/internal/wire"
)

// Gate is internal/server's Gate: the stream Workers consult the identical
// interface, since internal/server cannot import this package (it would
// cycle back through server.QueryRunner above).
type Gate = server.Gate

// UDPServer is the stateless per-datagram server in §4.5: no pool, no
// per-connection worker, one transaction per datagram. Adapted from the
// teacher's FastUDPServer goroutine-per-packet idiom, stripped of the
// DNSASM/ACL/RPZ/resolver coupling in favor of internal/wire and
// internal/transaction.
type UDPServer struct {
	conn    *net.UDPConn
	engine  server.QueryRunner
	gates   []Gate
	metrics *metrics.Metrics
}

// NewUDPServer wraps an already-bound, unconnected *net.UDPConn. gates are
// consulted in order before a query is dispatched to engine; the first
// refusal wins.
func NewUDPServer(conn *net.UDPConn, engine server.QueryRunner, gates ...Gate) *UDPServer {
	return &UDPServer{conn: conn, engine: engine, gates: gates}
}

// WithMetrics attaches a Metrics sink; nil is safe and disables recording.
func (s *UDPServer) WithMetrics(m *metrics.Metrics) *UDPServer {
	s.metrics = m
	return s
}

// Run reads datagrams until ctx is canceled or the socket is closed.
func (s *UDPServer) Run(ctx context.Context) {
	buf := make([]byte, wire.MaxUDPMessageSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		datagram := pool.GetBuffer(n)
		datagram = append(datagram, buf[:n]...)
		go s.handle(ctx, datagram, peer)
	}
}

func (s *UDPServer) handle(ctx context.Context, datagram []byte, peer *net.UDPAddr) {
	defer pool.PutBuffer(datagram)

	// Per §6, datagrams shorter than the 12-byte header are dropped
	// silently: there is no header to read an ID or opcode from, so no
	// response is sent at all.
	if len(datagram) < wire.MinMessageSize {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordQuery("udp")
	}

	pkt, err := wire.ParsePacket(datagram, 0)
	if err != nil {
		s.reply(peer, wire.NewErrorResponse(idOfErr(err), rcodeOfErr(err), nil))
		return
	}
	if !pkt.Header.IsQuery() || pkt.Question == nil {
		s.reply(peer, wire.NewErrorResponse(pkt.Header.ID, wire.RCodeFormErr, pkt.Question))
		return
	}

	for _, g := range s.gates {
		if refusal := g.Allow(peer.IP); refusal != nil {
			if s.metrics != nil {
				s.metrics.RecordRefusal(g.Name(), peer.IP)
			}
			s.reply(peer, wire.NewErrorResponse(pkt.Header.ID, refusal.RCode(), pkt.Question))
			return
		}
	}

	sink := make(chan cache.Answer, 8)
	s.engine.Query(ctx, *pkt.Question, sink)

	resp := wire.Packet{
		Header:   wire.Header{ID: pkt.Header.ID, QR: true, RA: true},
		Question: pkt.Question,
	}
	for a := range sink {
		if a.IsError() {
			resp.Header.RCode = a.Err.RCode()
			s.reply(peer, resp)
			return
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
	s.reply(peer, resp)
}

func (s *UDPServer) reply(peer *net.UDPAddr, pkt wire.Packet) {
	buf := pkt.Emit(nil)
	if len(buf) > wire.MaxUDPMessageSize {
		buf = wire.NewErrorResponse(pkt.Header.ID, wire.RCodeServFail, pkt.Question).Emit(nil)
	}
	if _, err := s.conn.WriteToUDP(buf, peer); err != nil {
		log.Printf("transport: udp write to %s failed: %v", peer, err)
	}
}

func idOfErr(err error) uint16 {
	if txErr, ok := err.(*wire.TransactionError); ok && txErr.HasID {
		return txErr.ID
	}
	return 0
}

func rcodeOfErr(err error) wire.RCode {
	if txErr, ok := err.(*wire.TransactionError); ok {
		return txErr.Err.RCode()
	}
	if pe, ok := err.(*wire.PacketError); ok {
		return pe.RCode()
	}
	return wire.RCodeFormErr
}
