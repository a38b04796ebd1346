package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBootstrapSingleNodeBecomesLeader(t *testing.T) {
	e, err := Bootstrap(Config{
		NodeID:           "node-1",
		BindAddr:         "127.0.0.1:0",
		DataDir:          t.TempDir(),
		HeartbeatTimeout: 50 * time.Millisecond,
		ElectionTimeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer e.Shutdown()

	require.Eventually(t, e.IsLeader, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownIsIdempotentOnNilRaft(t *testing.T) {
	e := &Elector{}
	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())
	require.False(t, e.IsLeader())
}
