package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func leaseClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestDocumentLeaseExcludes(t *testing.T) {
	client, _ := leaseClient(t)
	lease := NewDocumentLease(client, time.Minute)
	ctx := context.Background()

	release, err := lease.Acquire(ctx, 42)
	require.NoError(t, err)

	_, err = lease.Acquire(ctx, 42)
	require.ErrorIs(t, err, ErrDocumentBusy)

	// A different document is not blocked.
	other, err := lease.Acquire(ctx, 43)
	require.NoError(t, err)
	other()

	release()
	release2, err := lease.Acquire(ctx, 42)
	require.NoError(t, err)
	release2()
}

func TestDocumentLeaseReleaseOnlyDropsOwnToken(t *testing.T) {
	client, mr := leaseClient(t)
	lease := NewDocumentLease(client, time.Minute)
	ctx := context.Background()

	release, err := lease.Acquire(ctx, 42)
	require.NoError(t, err)

	// Simulate the TTL expiring and another holder taking the lease.
	mr.FastForward(2 * time.Minute)
	_, err = lease.Acquire(ctx, 42)
	require.NoError(t, err)

	// The stale release must not free the new holder's lease.
	release()
	require.True(t, mr.Exists(DocumentLockKey(42)))
}

func TestDocumentLeaseExpires(t *testing.T) {
	client, mr := leaseClient(t)
	lease := NewDocumentLease(client, time.Second)
	ctx := context.Background()

	_, err := lease.Acquire(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	release, err := lease.Acquire(ctx, 7)
	require.NoError(t, err)
	release()
}

func TestNilLeaseIsNoOp(t *testing.T) {
	var lease *DocumentLease
	release, err := lease.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
}
