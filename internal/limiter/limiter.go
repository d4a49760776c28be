// Package limiter implements per-client rate limiting ahead of the
// transaction engine, adapted from the teacher's engine.RateLimiter:
// a token bucket per client IP on golang.org/x/time/rate. Once per cleanup
// interval every tracked bucket is dropped, active or not.
package limiter

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dnscore/fwdresolver/internal/wire"
)

// Config configures a RateLimiter.
type Config struct {
	QueriesPerSecond float64
	BurstSize        int
	CleanupInterval  time.Duration
}

// DefaultConfig returns sensible defaults: 100 QPS per client, burst 200,
// and all buckets dropped on the first query after each 5-minute interval.
func DefaultConfig() Config {
	return Config{QueriesPerSecond: 100, BurstSize: 200, CleanupInterval: 5 * time.Minute}
}

// RateLimiter is a per-client-IP token bucket limiter.
type RateLimiter struct {
	mu              sync.Mutex
	limitersByIP    map[string]*rate.Limiter
	queriesPerSec   rate.Limit
	burstSize       int
	cleanupInterval time.Duration
	lastCleanup     time.Time
	exemptNets      []*net.IPNet
}

// New constructs a RateLimiter from cfg.
func New(cfg Config) *RateLimiter {
	return &RateLimiter{
		limitersByIP:    make(map[string]*rate.Limiter),
		queriesPerSec:   rate.Limit(cfg.QueriesPerSecond),
		burstSize:       cfg.BurstSize,
		cleanupInterval: cfg.CleanupInterval,
		lastCleanup:     time.Now(),
	}
}

// AddExempt exempts a network (CIDR or bare IP) from rate limiting.
func (rl *RateLimiter) AddExempt(cidr string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		ip := net.ParseIP(cidr)
		if ip == nil {
			return err
		}
		if ip4 := ip.To4(); ip4 != nil {
			ipnet = &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}
		} else {
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
		}
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.exemptNets = append(rl.exemptNets, ipnet)
	return nil
}

func (rl *RateLimiter) isExempt(ip net.IP) bool {
	for _, exempt := range rl.exemptNets {
		if exempt.Contains(ip) {
			return true
		}
	}
	return false
}

// AllowIP reports whether a query from ip may proceed right now.
func (rl *RateLimiter) AllowIP(ip net.IP) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.isExempt(ip) {
		return true
	}

	if time.Since(rl.lastCleanup) > rl.cleanupInterval {
		rl.limitersByIP = make(map[string]*rate.Limiter)
		rl.lastCleanup = time.Now()
	}

	ipStr := ip.String()
	lim, ok := rl.limitersByIP[ipStr]
	if !ok {
		lim = rate.NewLimiter(rl.queriesPerSec, rl.burstSize)
		rl.limitersByIP[ipStr] = lim
	}
	return lim.Allow()
}

// Allow implements the transport and server packages' Gate interface: an
// over-budget client is refused.
func (rl *RateLimiter) Allow(ip net.IP) *wire.PacketError {
	if rl.AllowIP(ip) {
		return nil
	}
	return wire.NewRefused(ip)
}

// Name implements the Gate interface.
func (rl *RateLimiter) Name() string { return "limiter" }

// Stats reports the current tracked-client count for metrics.
type Stats struct {
	TrackedClients int
}

func (rl *RateLimiter) Stats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return Stats{TrackedClients: len(rl.limitersByIP)}
}
