package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dnscore/fwdresolver/internal/wire"
)

func testQuestion(t *testing.T) wire.Question {
	t.Helper()
	name, err := wire.NameFromString("example.com.")
	require.NoError(t, err)
	return wire.Question{Name: name, Type: wire.TypeA, Class: wire.ClassInternet}
}

func TestGetOrFillMissThenHit(t *testing.T) {
	c := New(DefaultConfig())
	q := testQuestion(t)

	var calls int32
	produce := func(wire.Question) ([]Answer, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		rr := wire.RR{Name: q.Name, Class: wire.ClassInternet, TTL: 30, Data: wire.RDA{Addr: [4]byte{1, 1, 1, 1}}}
		return []Answer{{Section: SectionAnswer, RR: rr}}, 30 * time.Second, nil
	}

	answers, err := c.GetOrFill(q, produce)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	got, ok := c.Get(q)
	require.True(t, ok)
	require.Len(t, got, 1)

	// A second fill for the same key must not invoke produce again.
	_, err = c.GetOrFill(q, produce)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestConcurrentMissesSpawnOneFill(t *testing.T) {
	c := New(DefaultConfig())
	q := testQuestion(t)

	var calls int32
	release := make(chan struct{})
	produce := func(wire.Question) ([]Answer, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		rr := wire.RR{Name: q.Name, Class: wire.ClassInternet, TTL: 30, Data: wire.RDA{}}
		return []Answer{{Section: SectionAnswer, RR: rr}}, 30 * time.Second, nil
	}

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = c.GetOrFill(q, produce)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestErrorAnswersAreNeverCached(t *testing.T) {
	c := New(DefaultConfig())
	q := testQuestion(t)

	produce := func(wire.Question) ([]Answer, time.Duration, error) {
		return []Answer{{Err: wire.NewServFail()}}, 0, nil
	}
	_, err := c.GetOrFill(q, produce)
	require.NoError(t, err)

	_, ok := c.Get(q)
	require.False(t, ok)
}

func TestStaleEntryYieldsNoHit(t *testing.T) {
	c := New(DefaultConfig())
	q := testQuestion(t)

	produce := func(wire.Question) ([]Answer, time.Duration, error) {
		rr := wire.RR{Name: q.Name, Class: wire.ClassInternet, TTL: 0, Data: wire.RDA{}}
		return []Answer{{Section: SectionAnswer, RR: rr}}, time.Millisecond, nil
	}
	_, err := c.GetOrFill(q, produce)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get(q)
	require.False(t, ok)
}
