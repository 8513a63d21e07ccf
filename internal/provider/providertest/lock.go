package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/internal/provider"
)

// TestLocking verifies acquire, double-acquire, different-key, release, re-acquire.
func TestLocking(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	// Acquire
	ok, err := prov.AcquireLock(ctx, "ct-lock:decision:model-a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Double acquire fails
	ok, err = prov.AcquireLock(ctx, "ct-lock:decision:model-a", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Different key succeeds
	ok, err = prov.AcquireLock(ctx, "ct-lock:monitor:model-a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Release
	err = prov.ReleaseLock(ctx, "ct-lock:decision:model-a")
	require.NoError(t, err)

	// Re-acquire after release
	ok, err = prov.AcquireLock(ctx, "ct-lock:decision:model-a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestLockExpiry verifies locks expire after their TTL. Not part of RunAll:
// it needs a backend that enforces TTLs (Redis, DynamoDB), which the
// in-memory mock does not.
func TestLockExpiry(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	// Acquire with short TTL
	ok, err := prov.AcquireLock(ctx, "ct-expiring-lock", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Immediately re-acquire fails
	ok, err = prov.AcquireLock(ctx, "ct-expiring-lock", 2*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Wait for TTL to expire
	time.Sleep(3 * time.Second)

	// Re-acquire succeeds after expiry
	ok, err = prov.AcquireLock(ctx, "ct-expiring-lock", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
