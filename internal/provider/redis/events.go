package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

func (p *Provider) eventStreamKey(modelVersion string) string {
	if modelVersion == "" {
		modelVersion = "_global"
	}
	return p.prefix + "events:" + modelVersion
}

// AppendEvent writes an event to the model's audit stream, trimmed by both
// length and age.
func (p *Provider) AppendEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	streamKey := p.eventStreamKey(event.ModelVersion)
	minTimestamp := time.Now().Add(-p.retentionTTL).UnixMilli()
	minID := fmt.Sprintf("%d-0", minTimestamp)

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: p.eventMax,
		Approx: true,
		Values: map[string]interface{}{
			"kind": string(event.Kind),
			"data": string(data),
		},
	})
	pipe.XTrimMinID(ctx, streamKey, minID)
	_, err = pipe.Exec(ctx)
	return err
}

// ReadEventsSince reads events forward from after sinceID (exclusive).
// Use "0-0" to read from the beginning of the stream.
func (p *Provider) ReadEventsSince(ctx context.Context, modelVersion, sinceID string, count int64) ([]types.EventRecord, error) {
	if sinceID == "" {
		sinceID = "0-0"
	}
	if count <= 0 {
		count = 100
	}
	msgs, err := p.client.XRangeN(ctx, p.eventStreamKey(modelVersion), "("+sinceID, "+", count).Result()
	if err != nil {
		return nil, err
	}

	records := make([]types.EventRecord, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			p.logger.Warn("skipping event with missing data field", "streamID", msg.ID)
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			p.logger.Warn("skipping corrupt event data", "streamID", msg.ID, "error", err)
			continue
		}
		records = append(records, types.EventRecord{
			StreamID: msg.ID,
			Event:    ev,
		})
	}
	return records, nil
}

// ListEvents returns recent events for a model version, newest first.
func (p *Provider) ListEvents(ctx context.Context, modelVersion string, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := p.client.XRevRangeN(ctx, p.eventStreamKey(modelVersion), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]types.Event, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			p.logger.Warn("skipping event with missing data field", "streamID", msg.ID)
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			p.logger.Warn("skipping corrupt event data", "streamID", msg.ID, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
