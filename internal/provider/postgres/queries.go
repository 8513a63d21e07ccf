package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// QueryOpenDecisionModels returns model versions with a triggered, unresolved
// decision on record, ordered by model version.
func (s *Store) QueryOpenDecisionModels(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT model_version FROM decisions
		WHERE triggered AND NOT resolved
		ORDER BY model_version
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QueryDecisionHistory returns archived decisions for a model version, most
// recent first.
func (s *Store) QueryDecisionHistory(ctx context.Context, modelVersion string, limit int) ([]types.RetrainDecision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT decision_id, model_version, evaluated_at, triggered,
			COALESCE(reasons, '[]'), COALESCE(details, '{}'),
			resolved, resolved_at, COALESCE(resolution, '')
		FROM decisions
		WHERE model_version = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, modelVersion, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []types.RetrainDecision
	for rows.Next() {
		var d types.RetrainDecision
		var reasonsJSON, detailsJSON []byte
		if err := rows.Scan(&d.DecisionID, &d.ModelVersion, &d.EvaluatedAt, &d.Triggered,
			&reasonsJSON, &detailsJSON, &d.Resolved, &d.ResolvedAt, &d.Resolution); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reasonsJSON, &d.Reasons); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(detailsJSON, &d.Details); err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// DriftReportRow represents a row from the drift_reports table.
type DriftReportRow struct {
	ModelVersion string
	EvaluatedAt  time.Time
	Aggregate    string
	SampleSize   int
	Features     json.RawMessage
}

// QueryDriftHistory returns archived drift reports for a model version since
// a point in time, most recent first.
func (s *Store) QueryDriftHistory(ctx context.Context, modelVersion string, since time.Time, limit int) ([]DriftReportRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT model_version, evaluated_at, aggregate, sample_size, COALESCE(features, '{}')
		FROM drift_reports
		WHERE model_version = $1 AND evaluated_at >= $2
		ORDER BY evaluated_at DESC
		LIMIT $3
	`, modelVersion, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []DriftReportRow
	for rows.Next() {
		var r DriftReportRow
		if err := rows.Scan(&r.ModelVersion, &r.EvaluatedAt, &r.Aggregate,
			&r.SampleSize, &r.Features); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// QueryLabelCoverage reports how many archived predictions for a model have
// ground truth attached within a time range.
func (s *Store) QueryLabelCoverage(ctx context.Context, modelVersion string, since time.Time) (total, labeled int64, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(actual_label)
		FROM predictions
		WHERE model_version = $1 AND timestamp >= $2
	`, modelVersion, since).Scan(&total, &labeled)
	return total, labeled, err
}
