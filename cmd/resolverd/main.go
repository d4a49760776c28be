// Command resolverd is the caching forwarding resolver's process entrypoint:
// it wires config, cache, transaction engine, upstream forwarder, gates,
// metrics and every configured transport together, then waits for SIGINT or
// SIGTERM to shut down gracefully. Adapted from the teacher's
// cmd/dnsscienced/main.go bootstrap shape.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dnscore/fwdresolver/internal/acl"
	"github.com/dnscore/fwdresolver/internal/cache"
	"github.com/dnscore/fwdresolver/internal/config"
	"github.com/dnscore/fwdresolver/internal/forward"
	"github.com/dnscore/fwdresolver/internal/limiter"
	"github.com/dnscore/fwdresolver/internal/logging"
	"github.com/dnscore/fwdresolver/internal/metrics"
	"github.com/dnscore/fwdresolver/internal/server"
	"github.com/dnscore/fwdresolver/internal/transaction"
	"github.com/dnscore/fwdresolver/internal/transport"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config file (uses built-in defaults if empty)")
	flag.Parse()

	log := logging.Default()

	cfg := config.Default()
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = c
	}

	fmt.Println("fwdresolver starting")
	fmt.Printf("  UDP:      %s\n", cfg.Listen.UDP)
	fmt.Printf("  TCP:      %s\n", cfg.Listen.TCP)
	fmt.Printf("  TLS:      %s\n", cfg.Listen.TLS)
	fmt.Printf("  QUIC:     %s\n", cfg.Listen.QUIC)
	fmt.Printf("  Upstream: %s/%s\n", cfg.Upstream.Protocol, cfg.Upstream.Address)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	aclGate := acl.New(cfg.ACL.DefaultAllow)
	for _, n := range cfg.ACL.Allow {
		if err := aclGate.AllowNet(n); err != nil {
			log.Fatalf("acl: bad allow entry %q: %v", n, err)
		}
	}
	for _, n := range cfg.ACL.Deny {
		if err := aclGate.DenyNet(n); err != nil {
			log.Fatalf("acl: bad deny entry %q: %v", n, err)
		}
	}

	rl := limiter.New(limiter.Config{
		QueriesPerSecond: cfg.Limiter.QueriesPerSecond,
		BurstSize:        cfg.Limiter.BurstSize,
		CleanupInterval:  cfg.Limiter.CleanupInterval,
	})
	for _, n := range cfg.Limiter.Exempt {
		if err := rl.AddExempt(n); err != nil {
			log.Fatalf("rate limiter: bad exempt entry %q: %v", n, err)
		}
	}

	fwd, err := buildForwarder(ctx, cfg.Upstream)
	if err != nil {
		log.Fatalf("upstream forwarder: %v", err)
	}

	c := cache.New(cache.Config{MaxEntriesPerShard: cfg.Cache.MaxEntriesPerShard})
	engine := transaction.New(c, fwd, cfg.Timeout)

	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen, reg, log)
	}

	var wg sync.WaitGroup
	var closers []io.Closer
	type poolGauge struct {
		svc      *server.Service
		protocol string
	}
	var poolGauges []poolGauge

	if cfg.Listen.UDP != "" {
		udpAddr, err := net.ResolveUDPAddr("udp", cfg.Listen.UDP)
		if err != nil {
			log.Fatalf("udp listen address: %v", err)
		}
		udpConn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			log.Fatalf("udp listen: %v", err)
		}
		udpSrv := transport.NewUDPServer(udpConn, engine, aclGate, rl).WithMetrics(met)
		closers = append(closers, udpConn)
		wg.Add(1)
		go func() { defer wg.Done(); udpSrv.Run(ctx) }()
		log.Infof("udp listener on %s", cfg.Listen.UDP)
	}

	if cfg.Listen.TCP != "" {
		ln, err := transport.ListenTCP(cfg.Listen.TCP)
		if err != nil {
			log.Fatalf("tcp listen: %v", err)
		}
		closers = append(closers, ln)
		wg.Add(1)
		svc := server.NewService(ln, engine, 4096).WithMetrics(met).WithGates(aclGate, rl)
		poolGauges = append(poolGauges, poolGauge{svc, "tcp"})
		go func() { defer wg.Done(); svc.Run(ctx) }()
		log.Infof("tcp listener on %s", cfg.Listen.TCP)
	}

	if cfg.Listen.TLS != "" {
		tlsCfg, err := loadServerTLSConfig(cfg.Listen.TLSCert, cfg.Listen.TLSKey, []string{"dot"})
		if err != nil {
			log.Fatalf("tls config: %v", err)
		}
		ln, err := transport.ListenTLS(cfg.Listen.TLS, tlsCfg)
		if err != nil {
			log.Fatalf("tls listen: %v", err)
		}
		closers = append(closers, ln)
		wg.Add(1)
		svc := server.NewService(ln, engine, 4096).WithMetrics(met).WithGates(aclGate, rl)
		poolGauges = append(poolGauges, poolGauge{svc, "tls"})
		go func() { defer wg.Done(); svc.Run(ctx) }()
		log.Infof("tls (dot) listener on %s", cfg.Listen.TLS)
	}

	if cfg.Listen.QUIC != "" {
		tlsCfg, err := loadServerTLSConfig(cfg.Listen.TLSCert, cfg.Listen.TLSKey, transport.QUICALPNProtocols)
		if err != nil {
			log.Fatalf("quic tls config: %v", err)
		}
		ln, err := transport.ListenQUIC(cfg.Listen.QUIC, tlsCfg)
		if err != nil {
			log.Fatalf("quic listen: %v", err)
		}
		closers = append(closers, ln)
		wg.Add(1)
		svc := server.NewService(ln, engine, 4096).WithMetrics(met).WithGates(aclGate, rl)
		poolGauges = append(poolGauges, poolGauge{svc, "quic"})
		go func() { defer wg.Done(); svc.Run(ctx) }()
		log.Infof("quic (doq) listener on %s", cfg.Listen.QUIC)
	}

	if len(poolGauges) > 0 {
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, pg := range poolGauges {
						met.PoolOccupancy.WithLabelValues(pg.protocol).Set(float64(pg.svc.PoolLen()))
					}
				}
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutting down")
	cancel()
	for _, c := range closers {
		_ = c.Close()
	}
	wg.Wait()
}

func buildForwarder(ctx context.Context, cfg config.UpstreamConfig) (transaction.Forwarder, error) {
	switch cfg.Protocol {
	case "quic":
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS13}
		return forward.NewQUICForwarder(ctx, cfg.Address, tlsCfg)
	default:
		addr, err := net.ResolveUDPAddr("udp", cfg.Address)
		if err != nil {
			return nil, err
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			return nil, err
		}
		return forward.NewUDPForwarder(conn), nil
	}
}

func loadServerTLSConfig(certFile, keyFile string, alpn []string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   alpn,
	}, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("metrics server error: %v", err)
	}
}
