package stealth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	f, err := New(Config{MaxParallel: 3}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, cap(f.limiter))
	require.Equal(t, 60*time.Second, f.cfg.NavigationTimeout)
	require.Equal(t, 2*time.Second, f.cfg.SettleDelay)
	require.Equal(t, 20*time.Second, f.cfg.ProductWait)
}

func TestFetchAfterCloseFails(t *testing.T) {
	t.Parallel()

	f, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = f.Fetch(context.Background(), datasheet.FetchRequest{URL: "https://example.com"})
	require.EqualError(t, err, "stealth: fetcher closed")
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f, err := New(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.acquire(ctx), context.DeadlineExceeded)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
}
