package connpool

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func addr(s string) net.Addr {
	a, _ := net.ResolveTCPAddr("tcp", s)
	return a
}

func TestInsertThenRemoveClosesHandle(t *testing.T) {
	p := New(16)
	peer := addr("127.0.0.1:5555")
	h := p.Insert(peer, "tcp")
	require.Equal(t, 1, p.Len())

	p.Remove(peer)
	require.Equal(t, 0, p.Len())

	select {
	case <-h.Shutdown:
	default:
		t.Fatal("expected Shutdown to be closed after Remove")
	}
}

func TestUpdateKeepsEntryAlive(t *testing.T) {
	p := New(16)
	peer := addr("127.0.0.1:5556")
	p.Insert(peer, "tls")
	p.Update(peer)
	require.Equal(t, 1, p.Len())
}

func TestRemoveUnknownPeerIsNoop(t *testing.T) {
	p := New(16)
	require.NotPanics(t, func() {
		p.Remove(addr("127.0.0.1:9999"))
	})
}

func TestEvictionClosesHandle(t *testing.T) {
	p := New(1)
	first := addr("127.0.0.1:1")
	second := addr("127.0.0.1:2")
	h := p.Insert(first, "tcp")
	p.Insert(second, "tcp") // capacity 1: evicts first under LRU

	select {
	case <-h.Shutdown:
	default:
		t.Fatal("expected eviction to close the evicted handle")
	}
}
