package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// UpsertPrediction archives a prediction record. Re-archiving the same ID
// refreshes the row, so late ground truth can be attached on a second pass.
func (s *Store) UpsertPrediction(ctx context.Context, rec types.PredictionRecord) error {
	featuresJSON, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("marshal prediction features: %w", err)
	}
	categoricalsJSON, err := json.Marshal(rec.Categoricals)
	if err != nil {
		return fmt.Errorf("marshal prediction categoricals: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO predictions (id, model_version, predicted_label, predicted_probability,
			features, categoricals, latency_millis, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			predicted_label       = EXCLUDED.predicted_label,
			predicted_probability = EXCLUDED.predicted_probability,
			features              = EXCLUDED.features,
			categoricals          = EXCLUDED.categoricals,
			latency_millis        = EXCLUDED.latency_millis,
			archived_at           = NOW()
	`, rec.ID, rec.ModelVersion, rec.PredictedLabel, rec.PredictedProbability,
		featuresJSON, categoricalsJSON, rec.LatencyMillis, rec.Timestamp)
	return err
}

// AttachGroundTruth records the observed outcome on an archived prediction.
// Predictions not yet archived are skipped; the next prediction pass picks
// them up and a later truth pass attaches the label.
func (s *Store) AttachGroundTruth(ctx context.Context, truth types.GroundTruthRecord) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE predictions SET
			actual_label = $2,
			observed_at  = $3,
			archived_at  = NOW()
		WHERE id = $1
	`, truth.ID, truth.ActualLabel, truth.ObservedAt)
	return err
}

// UpsertDriftReport archives a drift report, keyed by evaluation time.
func (s *Store) UpsertDriftReport(ctx context.Context, report types.DriftReport) error {
	featuresJSON, err := json.Marshal(report.Features)
	if err != nil {
		return fmt.Errorf("marshal drift report features: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO drift_reports (model_version, evaluated_at, aggregate, sample_size, features)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_version, evaluated_at) DO UPDATE SET
			aggregate   = EXCLUDED.aggregate,
			sample_size = EXCLUDED.sample_size,
			features    = EXCLUDED.features,
			archived_at = NOW()
	`, report.ModelVersion, report.EvaluatedAt, string(report.Aggregate), report.SampleSize, featuresJSON)
	return err
}

// UpsertDecision archives a retrain decision.
func (s *Store) UpsertDecision(ctx context.Context, decision types.RetrainDecision) error {
	reasonsJSON, err := json.Marshal(decision.Reasons)
	if err != nil {
		return fmt.Errorf("marshal decision reasons: %w", err)
	}
	detailsJSON, err := json.Marshal(decision.Details)
	if err != nil {
		return fmt.Errorf("marshal decision details: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO decisions (decision_id, model_version, evaluated_at, triggered,
			reasons, details, resolved, resolved_at, resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (decision_id) DO UPDATE SET
			resolved    = EXCLUDED.resolved,
			resolved_at = EXCLUDED.resolved_at,
			resolution  = EXCLUDED.resolution,
			archived_at = NOW()
	`, decision.DecisionID, decision.ModelVersion, decision.EvaluatedAt, decision.Triggered,
		reasonsJSON, detailsJSON, decision.Resolved, decision.ResolvedAt, decision.Resolution)
	return err
}

// InsertEvents batch-inserts audit events with stream-cursor dedup.
func (s *Store) InsertEvents(ctx context.Context, records []types.EventRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rec := range records {
		ev := rec.Event
		detailsJSON, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO events (stream_id, kind, model_version, decision_id, feature, status, message, details, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (model_version, stream_id) WHERE stream_id IS NOT NULL DO NOTHING
		`, rec.StreamID, string(ev.Kind), ev.ModelVersion, ev.DecisionID, ev.Feature,
			ev.Status, ev.Message, detailsJSON, ev.Timestamp)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetCursor retrieves an archive cursor value for a model version and data type.
func (s *Store) GetCursor(ctx context.Context, modelVersion, dataType string) (string, error) {
	var cursor string
	err := s.pool.QueryRow(ctx, `
		SELECT cursor_value FROM archive_cursors
		WHERE model_version = $1 AND data_type = $2
	`, modelVersion, dataType).Scan(&cursor)
	if err != nil {
		// Return empty string if no cursor found (pgx returns error for no rows)
		return "", nil
	}
	return cursor, nil
}

// SetCursor sets an archive cursor value for a model version and data type.
func (s *Store) SetCursor(ctx context.Context, modelVersion, dataType, cursorValue string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO archive_cursors (model_version, data_type, cursor_value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (model_version, data_type) DO UPDATE SET
			cursor_value = EXCLUDED.cursor_value,
			updated_at   = NOW()
	`, modelVersion, dataType, cursorValue)
	return err
}
