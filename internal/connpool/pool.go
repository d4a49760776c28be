// Package connpool tracks the set of live per-connection workers, keyed by
// peer address, with a 120-second idle TTL. It is the Go counterpart of
// comm/stream/service.rs's pool: a worker registers itself on accept and is
// evicted either by its own shutdown signal or by TTL expiry if it stops
// reporting activity.
package connpool

import (
	"net"
	"time"

	"github.com/bluele/gcache"

	"github.com/dnscore/fwdresolver/internal/metrics"
)

// IdleTTL is how long a worker may go without an Update before the pool
// evicts it, per §4.5.
const IdleTTL = 120 * time.Second

// Handle is what the pool stores per peer: a one-shot signal the pool closes
// to tell the worker to shut down, plus the protocol tag used for logging.
type Handle struct {
	Protocol string
	Shutdown chan struct{}
}

// Pool maps peer_addr -> Handle. Eviction (TTL expiry or explicit Remove)
// closes the handle's Shutdown channel exactly once.
type Pool struct {
	cache   gcache.Cache
	metrics *metrics.Metrics
}

// New builds a Pool bounded to capacity entries, matching the 10x-limit
// sizing stretto::AsyncCacheBuilder used upstream loosely in spirit: gcache
// has no separate counters/capacity split, so capacity alone bounds it here.
func New(capacity int) *Pool {
	p := &Pool{}
	p.cache = gcache.New(capacity).
		LRU().
		EvictedFunc(func(_ interface{}, v interface{}) {
			if h, ok := v.(*Handle); ok {
				closeOnce(h)
				if p.metrics != nil {
					p.metrics.PoolEvictionsTotal.WithLabelValues(h.Protocol).Inc()
				}
			}
		}).
		Build()
	return p
}

// WithMetrics attaches a Metrics sink recording per-protocol evictions; nil
// is safe and disables recording.
func (p *Pool) WithMetrics(m *metrics.Metrics) *Pool {
	p.metrics = m
	return p
}

func closeOnce(h *Handle) {
	select {
	case <-h.Shutdown:
		// already closed
	default:
		close(h.Shutdown)
	}
}

// Insert registers a freshly accepted connection's worker, returning the
// Handle the worker should watch for its shutdown signal.
func (p *Pool) Insert(peer net.Addr, protocol string) *Handle {
	h := &Handle{Protocol: protocol, Shutdown: make(chan struct{})}
	_ = p.cache.SetWithExpire(peer.String(), h, IdleTTL)
	return h
}

// Update resets peer's idle TTL, per Message::Update in the worker loop.
func (p *Pool) Update(peer net.Addr) {
	// gcache's Get touches the LRU recency but does not refresh a
	// SetWithExpire deadline; re-set to actually push the TTL out.
	key := peer.String()
	v, err := p.cache.Get(key)
	if err != nil {
		return
	}
	_ = p.cache.SetWithExpire(key, v, IdleTTL)
}

// Remove evicts peer immediately, closing its Handle's Shutdown channel.
// Per Message::ShutDown in the worker loop, this is the worker announcing
// its own exit, so it is a no-op if the entry is already gone.
func (p *Pool) Remove(peer net.Addr) {
	v, err := p.cache.Get(peer.String())
	if err == nil {
		if h, ok := v.(*Handle); ok {
			closeOnce(h)
		}
	}
	p.cache.Remove(peer.String())
}

// Len reports the number of live entries, for metrics/introspection.
func (p *Pool) Len() int {
	return p.cache.Len(true)
}
