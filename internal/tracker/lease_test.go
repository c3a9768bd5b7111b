// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLeaseExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lease, ok, err := s.AcquireLease(ctx, "10.1/a", "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "worker-1", lease.WorkerID)
	assert.NotEmpty(t, lease.Token)

	// A live lease cannot be taken by anyone, including the same worker.
	_, ok, err = s.AcquireLease(ctx, "10.1/a", "worker-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.AcquireLease(ctx, "10.1/a", "worker-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Different identifiers are independent.
	_, ok, err = s.AcquireLease(ctx, "10.1/b", "worker-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireLeaseStealsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale, ok, err := s.AcquireLease(ctx, "10.1/a", "worker-1", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	fresh, ok, err := s.AcquireLease(ctx, "10.1/a", "worker-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lease must be stealable")
	assert.NotEqual(t, stale.Token, fresh.Token)

	// The original holder's release must fail without touching the thief's lease.
	assert.ErrorIs(t, s.ReleaseLease(ctx, stale), ErrLeaseLost)
	leases, err := s.ActiveLeases(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 1)
	assert.Equal(t, "worker-2", leases[0].WorkerID)
}

func TestReleaseLease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lease, ok, err := s.AcquireLease(ctx, "10.1/a", "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.ReleaseLease(ctx, lease))

	// Released means immediately acquirable.
	_, ok, err = s.AcquireLease(ctx, "10.1/a", "worker-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Double release reports the loss.
	assert.ErrorIs(t, s.ReleaseLease(ctx, lease), ErrLeaseLost)
}

func TestExtendLease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lease, ok, err := s.AcquireLease(ctx, "10.1/a", "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	before := lease.ExpiresAt
	require.NoError(t, s.ExtendLease(ctx, &lease, 2*time.Minute))
	assert.True(t, lease.ExpiresAt.After(before))

	// An expired lease cannot be extended.
	short, ok, err := s.AcquireLease(ctx, "10.1/b", "worker-1", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond)
	assert.ErrorIs(t, s.ExtendLease(ctx, &short, time.Minute), ErrLeaseLost)
}

func TestActiveLeasesSkipsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.AcquireLease(ctx, "10.1/live", "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = s.AcquireLease(ctx, "10.1/stale", "worker-2", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	leases, err := s.ActiveLeases(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 1)
	assert.Equal(t, "10.1/live", leases[0].ID)
}
