// Package acl implements IP-based access control gating ahead of rate
// limiting, adapted from the teacher's engine.ACL with the same
// deny-then-allow-then-default evaluation order.
package acl

import (
	"net"
	"sync"

	"github.com/dnscore/fwdresolver/internal/wire"
)

// ACL is an access control list for inbound queries.
type ACL struct {
	mu           sync.RWMutex
	allowedNets  []*net.IPNet
	deniedNets   []*net.IPNet
	defaultAllow bool
}

// New creates an ACL with a default policy: if defaultAllow, clients are
// allowed unless explicitly denied; otherwise denied unless explicitly
// allowed.
func New(defaultAllow bool) *ACL {
	return &ACL{defaultAllow: defaultAllow}
}

func parseCIDROrIP(s string) (*net.IPNet, error) {
	_, ipnet, err := net.ParseCIDR(s)
	if err == nil {
		return ipnet, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, err
	}
	if ip4 := ip.To4(); ip4 != nil {
		return &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}, nil
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
}

// AllowNet adds a network (CIDR or bare IP) to the allow list.
func (a *ACL) AllowNet(cidr string) error {
	ipnet, err := parseCIDROrIP(cidr)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowedNets = append(a.allowedNets, ipnet)
	return nil
}

// DenyNet adds a network (CIDR or bare IP) to the deny list.
func (a *ACL) DenyNet(cidr string) error {
	ipnet, err := parseCIDROrIP(cidr)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deniedNets = append(a.deniedNets, ipnet)
	return nil
}

// IsAllowed reports whether ip may query: deny list first, then allow list,
// then the default policy.
func (a *ACL) IsAllowed(ip net.IP) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, denied := range a.deniedNets {
		if denied.Contains(ip) {
			return false
		}
	}
	for _, allowed := range a.allowedNets {
		if allowed.Contains(ip) {
			return true
		}
	}
	return a.defaultAllow
}

// Allow implements the transport and server packages' Gate interface: a
// denied client is refused with the offending IP attached, per the error
// taxonomy's ErrRefused variant.
func (a *ACL) Allow(ip net.IP) *wire.PacketError {
	if a.IsAllowed(ip) {
		return nil
	}
	return wire.NewRefused(ip)
}

// Name implements the Gate interface.
func (a *ACL) Name() string { return "acl" }
