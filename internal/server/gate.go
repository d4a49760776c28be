package server

import "net"

import "github.com/dnscore/fwdresolver/internal/wire"

// Gate decides whether a query from ip may proceed, returning a non-nil
// PacketError (ACL refusal or rate-limit refusal) to reject it instead.
// internal/acl and internal/limiter both implement this shape; it is
// consulted identically by the stateless UDP path (internal/transport) and
// by each stream Worker here, so a client blocked on one transport cannot
// simply reconnect over another to bypass it.
type Gate interface {
	Allow(ip net.IP) *wire.PacketError
	Name() string
}
