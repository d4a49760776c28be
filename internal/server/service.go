package server

import (
	"context"
	"log"
	"sync"

	"github.com/dnscore/fwdresolver/internal/connpool"
	"github.com/dnscore/fwdresolver/internal/metrics"
)

// Service accepts connections from a Listener, starts one Worker per
// connection, and tracks them in a connpool.Pool. It generalizes
// comm::stream::service::Service<L>.
type Service struct {
	listener Listener
	engine   QueryRunner
	pool     *connpool.Pool
	metrics  *metrics.Metrics
	gates    []Gate
	wg       sync.WaitGroup
}

// NewService builds a Service. poolCapacity bounds the number of tracked
// live workers (see connpool.New).
func NewService(l Listener, engine QueryRunner, poolCapacity int) *Service {
	return &Service{
		listener: l,
		engine:   engine,
		pool:     connpool.New(poolCapacity),
	}
}

// WithMetrics attaches a Metrics sink, recording one query per well-formed
// request, refused or dispatched (tagged with the listener's protocol name),
// one refusal per Gate rejection, and one eviction per
// pool entry the idle-TTL or capacity limit drops.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	s.pool.WithMetrics(m)
	return s
}

// WithGates attaches the ACL/rate-limit Gates consulted, in order, before
// each worker dispatches a well-formed query to the engine. Every worker
// spawned after this call shares the same Gates, so a client refused over
// one stream transport is refused the same way over the others.
func (s *Service) WithGates(gates ...Gate) *Service {
	s.gates = gates
	return s
}

// Run accepts connections until ctx is canceled or the listener errors.
// Closing the listener stops the accept loop but lets in-flight workers
// drain: Run does not return until every spawned worker has exited.
func (s *Service) Run(ctx context.Context) {
	defer s.wg.Wait()

	for {
		stream, peer, err := s.listener.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("server: %s accept error: %v", s.listener.Name(), err)
				return
			}
		}

		handle := s.pool.Insert(peer, s.listener.Name())
		w := NewWorker(peer, stream, s.engine, handle.Shutdown,
			func() { s.pool.Update(peer) },
			func() {
				s.pool.Remove(peer)
				stream.Close()
			},
		)
		if len(s.gates) > 0 {
			w.WithGates(s.gates)
		}
		if s.metrics != nil {
			protocol := s.listener.Name()
			w.WithOnQuery(func() { s.metrics.RecordQuery(protocol) })
			w.WithOnRefusal(func(gate string) { s.metrics.RecordRefusal(gate, nil) })
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.Run(ctx)
		}()
	}
}

// PoolLen reports the number of live tracked workers, for metrics.
func (s *Service) PoolLen() int {
	return s.pool.Len()
}
