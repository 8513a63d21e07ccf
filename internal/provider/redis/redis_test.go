//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/internal/provider/providertest"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

func setupTestProvider(t *testing.T) *Provider {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	prefix := fmt.Sprintf("driftlock-test-%d:", time.Now().UnixNano())
	prov := NewFromClient(client, &types.RedisConfig{KeyPrefix: prefix}, nil)

	t.Cleanup(func() {
		// Clean up test keys
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				break
			}
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		client.Close()
	})

	return prov
}

func TestConformance(t *testing.T) {
	prov := setupTestProvider(t)
	providertest.RunAll(t, prov)
}

func TestLockExpiry(t *testing.T) {
	prov := setupTestProvider(t)
	providertest.TestLockExpiry(t, prov)
}

// Redis-specific tests that inspect internal key expiry and trimming.

func TestPredictionRetentionTTL(t *testing.T) {
	prov := setupTestProvider(t)
	ctx := context.Background()

	rec := types.PredictionRecord{
		ID:             "ttl-pred",
		Timestamp:      time.Now(),
		PredictedLabel: "approve",
		ModelVersion:   "ttl-model",
	}
	require.NoError(t, prov.PutPrediction(ctx, rec))

	ttl := prov.client.TTL(ctx, prov.predictionKey("ttl-pred")).Val()
	assert.InDelta(t, defaultRetentionTTL.Seconds(), ttl.Seconds(), 10,
		"prediction should have ~7 day TTL")

	ttl = prov.client.TTL(ctx, prov.predictionIndexKey("ttl-model")).Val()
	assert.InDelta(t, defaultRetentionTTL.Seconds(), ttl.Seconds(), 10,
		"prediction index should have ~7 day TTL")
}

func TestPredictionWindowTrimming(t *testing.T) {
	prov := setupTestProvider(t)
	prov.predictionMax = 5
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 8; i++ {
		rec := types.PredictionRecord{
			ID:             fmt.Sprintf("trim-pred-%d", i),
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			PredictedLabel: "approve",
			ModelVersion:   "trim-model",
		}
		require.NoError(t, prov.PutPrediction(ctx, rec))
	}

	recs, err := prov.ListPredictions(ctx, "trim-model", 100)
	require.NoError(t, err)
	require.Len(t, recs, 5, "index should be trimmed to predictionMax")
	assert.Equal(t, "trim-pred-7", recs[0].ID)
	assert.Equal(t, "trim-pred-3", recs[4].ID)
}

func TestEventStreamTrimming(t *testing.T) {
	prov := setupTestProvider(t)
	prov.eventMax = 10
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		ev := types.Event{
			Kind:         types.EventDriftEvaluated,
			ModelVersion: "trim-events",
			Feature:      fmt.Sprintf("feature-%d", i),
			Timestamp:    time.Now(),
		}
		require.NoError(t, prov.AppendEvent(ctx, ev))
	}

	length := prov.client.XLen(ctx, prov.eventStreamKey("trim-events")).Val()
	assert.LessOrEqual(t, length, int64(20),
		"stream should be trimmed near eventMax (MAXLEN ~ is approximate)")
}
