package eth

import (
	"context"
	"testing"
	"time"

	"github.com/sisu-network/txconfirm/config"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	b := newBackoff(config.Chain{RestartBackoffMin: 500, RestartBackoffMax: 3_000})

	require.Equal(t, 500*time.Millisecond, b.Next(0))
	require.Equal(t, 500*time.Millisecond, b.Next(1))
	require.Equal(t, time.Second, b.Next(2))
	require.Equal(t, 2*time.Second, b.Next(3))
	require.Equal(t, 3*time.Second, b.Next(4))
	require.Equal(t, 3*time.Second, b.Next(100))
}

func TestSleepCtx(t *testing.T) {
	require.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, sleepCtx(ctx, time.Hour))
}
