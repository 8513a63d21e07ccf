package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// Index trim limits for sorted-set indexes.
const (
	driftReportIndexMax = 100
	decisionIndexMax    = 200
)

func (p *Provider) modelKey(id string) string {
	return p.prefix + "model:" + id
}

func (p *Provider) modelIndexKey() string {
	return p.prefix + "models"
}

func (p *Provider) snapshotKey(modelVersion string) string {
	return p.prefix + "snapshots:" + modelVersion
}

func (p *Provider) predictionKey(id string) string {
	return p.prefix + "prediction:" + id
}

func (p *Provider) predictionIndexKey(modelVersion string) string {
	return p.prefix + "predictions:" + modelVersion
}

func (p *Provider) groundTruthKey(id string) string {
	return p.prefix + "groundtruth:" + id
}

func (p *Provider) driftReportIndexKey(modelVersion string) string {
	return p.prefix + "driftreports:" + modelVersion
}

func (p *Provider) performanceKey(modelVersion string) string {
	return p.prefix + "performance:" + modelVersion
}

func (p *Provider) decisionKey(id string) string {
	return p.prefix + "decision:" + id
}

func (p *Provider) decisionIndexKey(modelVersion string) string {
	return p.prefix + "decisions:" + modelVersion
}

func (p *Provider) stalenessKey(modelVersion, component string) string {
	return p.prefix + "stale:" + modelVersion + ":" + component
}

func (p *Provider) lockKey(key string) string {
	return p.prefix + "lock:" + key
}

// PutModelVersion stores a model version record. Model records carry no TTL;
// the lifecycle, not retention, decides when they stop mattering.
func (p *Provider) PutModelVersion(ctx context.Context, mv types.ModelVersion) error {
	data, err := json.Marshal(mv)
	if err != nil {
		return fmt.Errorf("marshaling model version: %w", err)
	}
	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.modelKey(mv.ID), data, 0)
	pipe.SAdd(ctx, p.modelIndexKey(), mv.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetModelVersion retrieves a model version record.
func (p *Provider) GetModelVersion(ctx context.Context, id string) (*types.ModelVersion, error) {
	data, err := p.client.Get(ctx, p.modelKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var mv types.ModelVersion
	if err := json.Unmarshal(data, &mv); err != nil {
		return nil, err
	}
	return &mv, nil
}

// ListModelVersions returns all registered model versions.
func (p *Provider) ListModelVersions(ctx context.Context) ([]types.ModelVersion, error) {
	ids, err := p.client.SMembers(ctx, p.modelIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	var models []types.ModelVersion
	for _, id := range ids {
		mv, err := p.GetModelVersion(ctx, id)
		if err != nil || mv == nil {
			if err != nil {
				p.logger.Warn("skipping unreadable model entry", "id", id, "error", err)
			}
			continue
		}
		models = append(models, *mv)
	}
	return models, nil
}

// CompareAndSwapModelVersion atomically updates a model version if the
// stored version counter matches.
func (p *Provider) CompareAndSwapModelVersion(ctx context.Context, id string, expectedVersion int, next types.ModelVersion) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, err
	}
	result, err := p.casScript.Run(ctx, p.client, []string{p.modelKey(id)}, expectedVersion, string(data)).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// PutFeatureSnapshot stores one feature's reference distribution in the
// model's snapshot hash.
func (p *Provider) PutFeatureSnapshot(ctx context.Context, snap types.FeatureSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling feature snapshot: %w", err)
	}
	return p.client.HSet(ctx, p.snapshotKey(snap.ModelVersion), snap.FeatureName, data).Err()
}

// GetFeatureSnapshots retrieves all feature snapshots for a model version.
func (p *Provider) GetFeatureSnapshots(ctx context.Context, modelVersion string) ([]types.FeatureSnapshot, error) {
	fields, err := p.client.HGetAll(ctx, p.snapshotKey(modelVersion)).Result()
	if err != nil {
		return nil, err
	}
	var snaps []types.FeatureSnapshot
	for feature, data := range fields {
		var snap types.FeatureSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			p.logger.Warn("skipping corrupt snapshot entry", "model", modelVersion, "feature", feature, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// PutPrediction stores a prediction record with bounded retention and
// indexes it by model version, newest first.
func (p *Provider) PutPrediction(ctx context.Context, rec types.PredictionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling prediction: %w", err)
	}
	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.predictionKey(rec.ID), data, p.retentionTTL)
	pipe.ZAdd(ctx, p.predictionIndexKey(rec.ModelVersion), goredis.Z{
		Score:  float64(rec.Timestamp.UnixMilli()),
		Member: rec.ID,
	})
	pipe.ZRemRangeByRank(ctx, p.predictionIndexKey(rec.ModelVersion), 0, -(p.predictionMax + 1))
	pipe.Expire(ctx, p.predictionIndexKey(rec.ModelVersion), p.retentionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetPrediction retrieves a prediction record.
func (p *Provider) GetPrediction(ctx context.Context, id string) (*types.PredictionRecord, error) {
	data, err := p.client.Get(ctx, p.predictionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec types.PredictionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListPredictions returns the most recent predictions for a model version.
func (p *Provider) ListPredictions(ctx context.Context, modelVersion string, limit int) ([]types.PredictionRecord, error) {
	if limit <= 0 {
		limit = int(p.predictionMax)
	}
	ids, err := p.client.ZRangeArgs(ctx, goredis.ZRangeArgs{
		Key:   p.predictionIndexKey(modelVersion),
		Start: 0,
		Stop:  int64(limit - 1),
		Rev:   true,
	}).Result()
	if err != nil {
		return nil, err
	}
	var records []types.PredictionRecord
	for _, id := range ids {
		rec, err := p.GetPrediction(ctx, id)
		if err != nil || rec == nil {
			if err != nil {
				p.logger.Warn("skipping unreadable prediction", "id", id, "error", err)
			}
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// PutGroundTruth stores a ground-truth record with bounded retention.
func (p *Provider) PutGroundTruth(ctx context.Context, rec types.GroundTruthRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling ground truth: %w", err)
	}
	return p.client.Set(ctx, p.groundTruthKey(rec.ID), data, p.retentionTTL).Err()
}

// GetGroundTruth retrieves a ground-truth record.
func (p *Provider) GetGroundTruth(ctx context.Context, id string) (*types.GroundTruthRecord, error) {
	data, err := p.client.Get(ctx, p.groundTruthKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec types.GroundTruthRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutDriftReport stores a drift report on the model's report index, newest
// first, trimmed to the index limit.
func (p *Provider) PutDriftReport(ctx context.Context, report types.DriftReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling drift report: %w", err)
	}
	key := p.driftReportIndexKey(report.ModelVersion)
	pipe := p.client.Pipeline()
	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(report.EvaluatedAt.UnixMilli()),
		Member: data,
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -(driftReportIndexMax + 1))
	pipe.Expire(ctx, key, p.retentionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetLatestDriftReport returns the newest drift report for a model version.
func (p *Provider) GetLatestDriftReport(ctx context.Context, modelVersion string) (*types.DriftReport, error) {
	reports, err := p.ListDriftReports(ctx, modelVersion, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// ListDriftReports returns recent drift reports, newest first.
func (p *Provider) ListDriftReports(ctx context.Context, modelVersion string, limit int) ([]types.DriftReport, error) {
	if limit <= 0 {
		limit = driftReportIndexMax
	}
	members, err := p.client.ZRangeArgs(ctx, goredis.ZRangeArgs{
		Key:   p.driftReportIndexKey(modelVersion),
		Start: 0,
		Stop:  int64(limit - 1),
		Rev:   true,
	}).Result()
	if err != nil {
		return nil, err
	}
	var reports []types.DriftReport
	for _, member := range members {
		var report types.DriftReport
		if err := json.Unmarshal([]byte(member), &report); err != nil {
			p.logger.Warn("skipping corrupt drift report", "model", modelVersion, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// PutPerformanceSummary stores the latest performance summary for a model.
func (p *Provider) PutPerformanceSummary(ctx context.Context, summary types.PerformanceSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling performance summary: %w", err)
	}
	return p.client.Set(ctx, p.performanceKey(summary.ModelVersion), data, p.retentionTTL).Err()
}

// GetLatestPerformanceSummary retrieves the latest performance summary.
func (p *Provider) GetLatestPerformanceSummary(ctx context.Context, modelVersion string) (*types.PerformanceSummary, error) {
	data, err := p.client.Get(ctx, p.performanceKey(modelVersion)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var summary types.PerformanceSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// PutDecision stores a retrain decision and indexes it by model version.
func (p *Provider) PutDecision(ctx context.Context, decision types.RetrainDecision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}
	key := p.decisionIndexKey(decision.ModelVersion)
	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.decisionKey(decision.DecisionID), data, 0)
	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(decision.EvaluatedAt.UnixMilli()),
		Member: decision.DecisionID,
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -(decisionIndexMax + 1))
	_, err = pipe.Exec(ctx)
	return err
}

// GetDecision retrieves a retrain decision by ID.
func (p *Provider) GetDecision(ctx context.Context, decisionID string) (*types.RetrainDecision, error) {
	data, err := p.client.Get(ctx, p.decisionKey(decisionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var decision types.RetrainDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// GetLatestDecision returns the newest decision for a model version.
func (p *Provider) GetLatestDecision(ctx context.Context, modelVersion string) (*types.RetrainDecision, error) {
	decisions, err := p.ListDecisions(ctx, modelVersion, 1)
	if err != nil {
		return nil, err
	}
	if len(decisions) == 0 {
		return nil, nil
	}
	return &decisions[0], nil
}

// ListDecisions returns recent decisions for a model version, newest first.
func (p *Provider) ListDecisions(ctx context.Context, modelVersion string, limit int) ([]types.RetrainDecision, error) {
	if limit <= 0 {
		limit = decisionIndexMax
	}
	ids, err := p.client.ZRangeArgs(ctx, goredis.ZRangeArgs{
		Key:   p.decisionIndexKey(modelVersion),
		Start: 0,
		Stop:  int64(limit - 1),
		Rev:   true,
	}).Result()
	if err != nil {
		return nil, err
	}
	var decisions []types.RetrainDecision
	for _, id := range ids {
		dec, err := p.GetDecision(ctx, id)
		if err != nil || dec == nil {
			if err != nil {
				p.logger.Warn("skipping unreadable decision", "id", id, "error", err)
			}
			continue
		}
		decisions = append(decisions, *dec)
	}
	return decisions, nil
}

// SetStaleness records or clears a staleness marker for a component.
func (p *Provider) SetStaleness(ctx context.Context, modelVersion, component string, stale bool) error {
	key := p.stalenessKey(modelVersion, component)
	if !stale {
		return p.client.Del(ctx, key).Err()
	}
	return p.client.Set(ctx, key, "1", p.retentionTTL).Err()
}

// GetStaleness reports whether a component's last cycle failed.
func (p *Provider) GetStaleness(ctx context.Context, modelVersion, component string) (bool, error) {
	n, err := p.client.Exists(ctx, p.stalenessKey(modelVersion, component)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcquireLock attempts to acquire a distributed lock with the given key and TTL.
func (p *Provider) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return p.client.SetNX(ctx, p.lockKey(key), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock.
func (p *Provider) ReleaseLock(ctx context.Context, key string) error {
	return p.client.Del(ctx, p.lockKey(key)).Err()
}
