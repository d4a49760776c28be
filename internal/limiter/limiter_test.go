package limiter

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBurstThenRefused(t *testing.T) {
	rl := New(Config{QueriesPerSecond: 1, BurstSize: 2, CleanupInterval: time.Hour})
	ip := net.ParseIP("198.51.100.7")

	require.True(t, rl.AllowIP(ip))
	require.True(t, rl.AllowIP(ip))
	require.False(t, rl.AllowIP(ip))

	err := rl.Allow(ip)
	require.NotNil(t, err)
}

func TestExemptNetBypassesLimit(t *testing.T) {
	rl := New(Config{QueriesPerSecond: 1, BurstSize: 1, CleanupInterval: time.Hour})
	require.NoError(t, rl.AddExempt("198.51.100.0/24"))
	ip := net.ParseIP("198.51.100.7")

	for i := 0; i < 10; i++ {
		require.True(t, rl.AllowIP(ip))
	}
}

func TestStatsTracksDistinctClients(t *testing.T) {
	rl := New(DefaultConfig())
	rl.AllowIP(net.ParseIP("10.0.0.1"))
	rl.AllowIP(net.ParseIP("10.0.0.2"))
	require.Equal(t, 2, rl.Stats().TrackedClients)
}
