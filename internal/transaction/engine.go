// Package transaction implements the transaction engine described in
// §4.3: it sits between client-facing transports and the cache, dispatching
// cache misses to an upstream forwarder under a per-query timeout.
package transaction

import (
	"context"
	"time"

	"github.com/dnscore/fwdresolver/internal/cache"
	"github.com/dnscore/fwdresolver/internal/wire"
)

// DefaultTimeout is the default per-transaction deadline (§4.3, configurable).
const DefaultTimeout = 5 * time.Second

// Forwarder is the upstream adapter contract shared by the UDP and QUIC
// forwarders (§4.4). Forward streams zero or more record Answers to out,
// then closes it; a single error Answer terminates the stream early and out
// is still closed afterward. Forward must return promptly when ctx is
// canceled (the engine cancels ctx on timeout).
type Forwarder interface {
	Forward(ctx context.Context, q wire.Question, out chan<- cache.Answer)
}

// Engine is the transaction engine.
type Engine struct {
	cache     *cache.Cache
	forwarder Forwarder
	timeout   time.Duration
}

// New constructs an Engine. timeout <= 0 uses DefaultTimeout.
func New(c *cache.Cache, f Forwarder, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{cache: c, forwarder: f, timeout: timeout}
}

// Query handles one Task::Query: it consults the cache, and on a miss
// forwards to the upstream adapter under the engine's timeout, streaming
// results to sink. sink is closed when the task completes. Query returns
// immediately; the work runs on its own goroutine, matching the "one task
// per unit of work" topology in §5.
func (e *Engine) Query(ctx context.Context, q wire.Question, sink chan<- cache.Answer) {
	go e.run(ctx, q, sink)
}

func (e *Engine) run(ctx context.Context, q wire.Question, sink chan<- cache.Answer) {
	defer close(sink)

	answers, err := e.cache.GetOrFill(q, func(q wire.Question) ([]cache.Answer, time.Duration, error) {
		return e.forward(ctx, q)
	})
	if err != nil {
		sink <- cache.Answer{Err: wire.NewServFail()}
		return
	}
	for _, a := range answers {
		sink <- a
	}
}

// forward runs one round trip to the upstream adapter under the engine's
// timeout. A timeout or forwarder error yields a single error Answer rather
// than a Go error, since §4.3 describes this as the transaction result, not
// a cache-fill failure.
func (e *Engine) forward(parent context.Context, q wire.Question) ([]cache.Answer, time.Duration, error) {
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	out := make(chan cache.Answer, 8)
	go e.forwarder.Forward(ctx, q, out)

	var answers []cache.Answer
	for {
		select {
		case a, ok := <-out:
			if !ok {
				return answers, cache.MinTTL(answers), nil
			}
			if a.IsError() {
				return []cache.Answer{a}, 0, nil
			}
			answers = append(answers, a)
		case <-ctx.Done():
			return []cache.Answer{{Err: wire.NewServFail()}}, 0, nil
		}
	}
}
