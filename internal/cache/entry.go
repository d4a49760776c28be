// Package cache implements the Question-keyed answer cache described in the
// component design: single-flight fill-on-miss, deadline-based expiry, and
// ARC eviction bounded by an entry count per shard. Record costs (see Cost)
// do not bound or influence eviction.
package cache

import (
	"time"

	"github.com/dnscore/fwdresolver/internal/wire"
)

// Section identifies which part of a DNS message an Answer came from.
type Section int

const (
	SectionAnswer Section = iota
	SectionAuthority
	SectionAddition
)

// Answer is one resource record tagged with the section it belongs in, or a
// terminal error in place of a record stream.
type Answer struct {
	Section Section
	RR      wire.RR
	Err     *wire.PacketError // non-nil terminates a stream of Answers
}

// IsError reports whether this Answer is a terminal error rather than a
// record.
func (a Answer) IsError() bool { return a.Err != nil }

// entry is what the cache stores per Question: the answers and the deadline
// derived from the minimum TTL across all returned records. Error answers
// are never stored (see the Open Question decision in DESIGN.md), so there
// is no failure TTL here.
type entry struct {
	answers  []Answer
	deadline time.Time
}

func (e entry) stale(now time.Time) bool {
	return !now.Before(e.deadline)
}

// rewriteTTL returns a copy of answers with each record's TTL rewritten to
// the residual time until deadline, per the lookup contract in §4.2.
func rewriteTTL(answers []Answer, deadline time.Time, now time.Time) []Answer {
	residual := deadline.Sub(now)
	if residual < 0 {
		residual = 0
	}
	out := make([]Answer, len(answers))
	for i, a := range answers {
		if !a.IsError() {
			a.RR = a.RR.WithTTL(residual)
		}
		out[i] = a
	}
	return out
}
