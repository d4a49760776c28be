package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dnscore/fwdresolver/internal/cache"
	"github.com/dnscore/fwdresolver/internal/wire"
)

type fakeRunner struct {
	answer func(q wire.Question) []cache.Answer
}

func (f *fakeRunner) Query(ctx context.Context, q wire.Question, sink chan<- cache.Answer) {
	go func() {
		defer close(sink)
		for _, a := range f.answer(q) {
			sink <- a
		}
	}()
}

func writeFramed(t *testing.T, w io.Writer, pkt wire.Packet) {
	t.Helper()
	payload := pkt.Emit(nil)
	framed := wire.EmitStreamPrefix(make([]byte, 0, len(payload)+2), len(payload))
	framed = append(framed, payload...)
	_, err := w.Write(framed)
	require.NoError(t, err)
}

func readFramed(t *testing.T, r io.Reader) wire.Packet {
	t.Helper()
	var prefix [2]byte
	_, err := io.ReadFull(r, prefix[:])
	require.NoError(t, err)
	n, err := wire.ParseStreamPrefix(prefix[:])
	require.NoError(t, err)
	buf := make([]byte, n)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	p, err := wire.ParsePacket(buf, 0)
	require.NoError(t, err)
	return p
}

func testQuestionA() wire.Question {
	name, _ := wire.NameFromString("example.com.")
	return wire.Question{Name: name, Type: wire.TypeA, Class: wire.ClassInternet}
}

func newRunningWorker(t *testing.T, runner QueryRunner, gates ...Gate) (net.Conn, *Worker) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	shutdown := make(chan struct{})
	closed := make(chan struct{})
	w := NewWorker(clientSide.RemoteAddr(), serverSide, runner, shutdown,
		func() {},
		func() {
			serverSide.Close() // as Service's onClose does
			close(closed)
		},
	)
	if len(gates) > 0 {
		w.WithGates(gates)
	}
	go w.Run(context.Background())
	t.Cleanup(func() {
		clientSide.Close()
		select {
		case <-closed:
		case <-time.After(time.Second):
		}
	})
	return clientSide, w
}

type denyAllGate struct{}

func (denyAllGate) Allow(ip net.IP) *wire.PacketError { return wire.NewRefused(ip) }
func (denyAllGate) Name() string                      { return "deny-all" }

func TestWorkerAnswersWellFormedQuery(t *testing.T) {
	q := testQuestionA()
	runner := &fakeRunner{answer: func(wire.Question) []cache.Answer {
		return []cache.Answer{{Section: cache.SectionAnswer, RR: wire.RR{
			Name: q.Name, Class: wire.ClassInternet, TTL: 30,
			Data: wire.RDA{Addr: [4]byte{1, 2, 3, 4}},
		}}}
	}}
	client, _ := newRunningWorker(t, runner)

	req := wire.Packet{Header: wire.Header{ID: 42, RD: true}, Question: &q}
	writeFramed(t, client, req)

	resp := readFramed(t, client)
	require.Equal(t, uint16(42), resp.Header.ID)
	require.True(t, resp.Header.QR)
	require.Len(t, resp.Answers, 1)
}

func TestWorkerGateRefusal(t *testing.T) {
	q := testQuestionA()
	called := false
	runner := &fakeRunner{answer: func(wire.Question) []cache.Answer {
		called = true
		return nil
	}}
	client, _ := newRunningWorker(t, runner, denyAllGate{})

	req := wire.Packet{Header: wire.Header{ID: 5, RD: true}, Question: &q}
	writeFramed(t, client, req)

	resp := readFramed(t, client)
	require.Equal(t, uint16(5), resp.Header.ID)
	require.Equal(t, wire.RCodeRefused, resp.Header.RCode)
	require.False(t, called, "engine must not be queried once a gate refuses")

	// The connection stays open for further queries after a refusal; it is
	// not treated as a suspect/malformed message.
	q2 := testQuestionA()
	writeFramed(t, client, wire.Packet{Header: wire.Header{ID: 6, RD: true}, Question: &q2})
	resp2 := readFramed(t, client)
	require.Equal(t, uint16(6), resp2.Header.ID)
	require.Equal(t, wire.RCodeRefused, resp2.Header.RCode)
}

func TestWorkerSuspectThenClose(t *testing.T) {
	runner := &fakeRunner{answer: func(wire.Question) []cache.Answer { return nil }}
	client, _ := newRunningWorker(t, runner)

	// (a) well-formed query: expect an answer.
	q := testQuestionA()
	writeFramed(t, client, wire.Packet{Header: wire.Header{ID: 1, RD: true}, Question: &q})
	resp := readFramed(t, client)
	require.Equal(t, uint16(1), resp.Header.ID)

	// (b) malformed: a too-short length-prefixed body.
	client.Write([]byte{0x00, 0x02, 0xAB, 0xCD})
	failResp1 := readFramed(t, client)
	require.Equal(t, wire.RCodeFormErr, failResp1.Header.RCode)

	// (c) malformed again: connection should close after the response.
	client.Write([]byte{0x00, 0x02, 0xAB, 0xCD})
	failResp2 := readFramed(t, client)
	require.Equal(t, wire.RCodeFormErr, failResp2.Header.RCode)

	buf := make([]byte, 16)
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, err := client.Read(buf)
	require.Error(t, err) // connection closed by the worker
}
