package providertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// TestEventAppendAndList verifies appending events and newest-first listing.
func TestEventAppendAndList(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		ev := types.Event{
			Kind:         types.EventDriftEvaluated,
			ModelVersion: "ct-model-event",
			Feature:      fmt.Sprintf("feature-%d", i),
			Status:       string(types.DriftStable),
			Timestamp:    base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, prov.AppendEvent(ctx, ev))
		// Small delay to ensure unique event ordering
		time.Sleep(5 * time.Millisecond)
	}

	events, err := prov.ListEvents(ctx, "ct-model-event", 10)
	require.NoError(t, err)
	require.Len(t, events, 5)
	// Newest first
	assert.Equal(t, "feature-4", events[0].Feature)
	assert.Equal(t, "feature-0", events[4].Feature)

	// Limit honored
	events, err = prov.ListEvents(ctx, "ct-model-event", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "feature-4", events[0].Feature)
}

// TestReadEventsSince verifies cursor-based forward reading of the audit trail.
func TestReadEventsSince(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		ev := types.Event{
			Kind:         types.EventDecisionEvaluated,
			ModelVersion: "ct-model-cursor",
			DecisionID:   fmt.Sprintf("ct-ev-dec-%d", i),
			Timestamp:    base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, prov.AppendEvent(ctx, ev))
		time.Sleep(5 * time.Millisecond)
	}

	// Read all from beginning, oldest first
	records, err := prov.ReadEventsSince(ctx, "ct-model-cursor", "", 100)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "ct-ev-dec-0", records[0].Event.DecisionID)
	assert.Equal(t, "ct-ev-dec-4", records[4].Event.DecisionID)

	// Resume from a cursor (after 2nd event, exclusive)
	cursor := records[1].StreamID
	records, err = prov.ReadEventsSince(ctx, "ct-model-cursor", cursor, 100)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "ct-ev-dec-2", records[0].Event.DecisionID)

	// "0-0" cursor also reads from the beginning
	records, err = prov.ReadEventsSince(ctx, "ct-model-cursor", "0-0", 100)
	require.NoError(t, err)
	assert.Len(t, records, 5)

	// Count caps the batch
	records, err = prov.ReadEventsSince(ctx, "ct-model-cursor", "", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ct-ev-dec-0", records[0].Event.DecisionID)
}
