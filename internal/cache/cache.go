package cache

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/bluele/gcache"
	"github.com/dchest/siphash"
	"golang.org/x/sync/singleflight"

	"github.com/dnscore/fwdresolver/internal/wire"
)

// DefaultFailureTTL is the TTL a failure memo would use if this design
// enabled negative caching. It is never applied to a stored entry: per the
// Open Question decision recorded in DESIGN.md, this cache never caches
// error answers at all.
const DefaultFailureTTL = 600 * time.Second

const shardCount = 64

// Config configures a new Cache.
type Config struct {
	// MaxEntriesPerShard bounds each shard's gcache instance. The overall
	// capacity is approximately MaxEntriesPerShard * shardCount.
	MaxEntriesPerShard int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxEntriesPerShard: 2048}
}

// Producer resolves a cache miss for q. It is invoked at most once per
// concurrently-missing fingerprint (single-flight), matching the "at most
// one forwarding task per fingerprint" contract in §4.2.
type Producer func(q wire.Question) ([]Answer, time.Duration, error)

// Cache is the Question-keyed answer cache. It shards by a SipHash-keyed
// hash of the Question's canonical wire form, so an adversary who can watch
// cache timing cannot predict bucket collisions the way they could with an
// unkeyed hash (the teacher's own packet parser used FNV for this role;
// SipHash is substituted for the DoS-resistance property, see DESIGN.md).
type Cache struct {
	shards   [shardCount]gcache.Cache
	group    singleflight.Group
	sipKey0  uint64
	sipKey1  uint64
}

// New constructs a Cache with the given per-shard capacity.
func New(cfg Config) *Cache {
	c := &Cache{}
	var keyBuf [16]byte
	if _, err := rand.Read(keyBuf[:]); err != nil {
		panic("cache: crypto/rand unavailable: " + err.Error())
	}
	c.sipKey0 = binary.LittleEndian.Uint64(keyBuf[0:8])
	c.sipKey1 = binary.LittleEndian.Uint64(keyBuf[8:16])

	for i := range c.shards {
		c.shards[i] = gcache.New(cfg.MaxEntriesPerShard).ARC().Build()
	}
	return c
}

func (c *Cache) shardFor(key string) gcache.Cache {
	h := siphash.Hash(c.sipKey0, c.sipKey1, []byte(key))
	return c.shards[h%uint64(len(c.shards))]
}

// questionKey renders q's canonical wire form as a map key: the RRType and
// RRClass are fixed width, and Name's wire encoding is unambiguous (distinct
// names never produce the same byte string), so collisions only arise from
// SipHash's use as a shard selector, never as this cache's actual key.
func questionKey(q wire.Question) string {
	buf := wire.EmitUncompressed(nil, q.Name)
	var tail [4]byte
	binary.BigEndian.PutUint16(tail[0:2], uint16(q.Type))
	binary.BigEndian.PutUint16(tail[2:4], uint16(q.Class))
	return string(append(buf, tail[:]...))
}

// Get returns a fresh entry's answers, rewritten with residual TTLs, or
// false if absent or stale.
func (c *Cache) Get(q wire.Question) ([]Answer, bool) {
	key := questionKey(q)
	v, err := c.shardFor(key).Get(key)
	if err != nil {
		return nil, false
	}
	e := v.(entry)
	now := time.Now()
	if e.stale(now) {
		return nil, false
	}
	return rewriteTTL(e.answers, e.deadline, now), true
}

// GetOrFill implements the fill-on-miss policy in §4.2: on a cache hit it
// returns immediately; on a miss it calls produce at most once per
// concurrently-missing Question, regardless of how many callers arrive for
// the same key while the fill is in flight.
//
// Per the Open Question decision in DESIGN.md, an error result from produce
// is never cached: it is returned to every waiting caller but leaves no
// trace in the cache for the next lookup.
func (c *Cache) GetOrFill(q wire.Question, produce Producer) ([]Answer, error) {
	if answers, ok := c.Get(q); ok {
		return answers, nil
	}

	key := questionKey(q)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		answers, ttl, err := produce(q)
		if err != nil {
			return nil, err
		}
		for _, a := range answers {
			if a.IsError() {
				return answers, nil
			}
		}
		e := entry{answers: answers, deadline: time.Now().Add(ttl)}
		_ = c.shardFor(key).SetWithExpire(key, e, ttl)
		return answers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Answer), nil
}

// MinTTL returns the minimum TTL across answers, used to compute the
// cache's deadline for a freshly-forwarded response. Error answers do not
// participate (callers should not cache a response containing one at all).
func MinTTL(answers []Answer) time.Duration {
	var min time.Duration = -1
	for _, a := range answers {
		if a.IsError() {
			continue
		}
		d := a.RR.TTLDuration()
		if min < 0 || d < min {
			min = d
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// Cost returns the eviction-weight sum of answers per the RRData cost table
// in §3. gcache's ARC eviction is count-based per shard rather than
// cost-weighted, so this sum does not bound or influence eviction, and no
// metric in internal/metrics records it.
func Cost(answers []Answer) int {
	total := 0
	for _, a := range answers {
		if !a.IsError() {
			total += a.RR.Data.Cost()
		}
	}
	return total
}

// Stats summarizes shard occupancy for metrics/introspection.
type Stats struct {
	Entries int
}

func (c *Cache) Stats() Stats {
	total := 0
	for i := range c.shards {
		total += c.shards[i].Len(true)
	}
	return Stats{Entries: total}
}
