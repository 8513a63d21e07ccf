// Package provider defines the storage backend interface for Driftlock.
package provider

import (
	"context"
	"time"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// Staleness components tracked per model version. Query handlers surface the
// flag so operators always get last-known-good data instead of an error.
const (
	ComponentDrift       = "drift"
	ComponentPerformance = "performance"
	ComponentDecision    = "decision"
)

// Provider is the storage backend interface. Redis/Valkey and DynamoDB are
// the online backends; Postgres is archival-only (see provider/postgres).
//
// Get methods return (nil, nil) when the record does not exist.
type Provider interface {
	// Model version registry (with CAS for lifecycle transitions)
	PutModelVersion(ctx context.Context, mv types.ModelVersion) error
	GetModelVersion(ctx context.Context, id string) (*types.ModelVersion, error)
	ListModelVersions(ctx context.Context) ([]types.ModelVersion, error)
	CompareAndSwapModelVersion(ctx context.Context, id string, expectedVersion int, next types.ModelVersion) (bool, error)

	// Feature snapshots — immutable once stored for a model version
	PutFeatureSnapshot(ctx context.Context, snap types.FeatureSnapshot) error
	GetFeatureSnapshots(ctx context.Context, modelVersion string) ([]types.FeatureSnapshot, error)

	// Prediction / ground-truth records (bounded retention)
	PutPrediction(ctx context.Context, rec types.PredictionRecord) error
	GetPrediction(ctx context.Context, id string) (*types.PredictionRecord, error)
	ListPredictions(ctx context.Context, modelVersion string, limit int) ([]types.PredictionRecord, error)
	PutGroundTruth(ctx context.Context, rec types.GroundTruthRecord) error
	GetGroundTruth(ctx context.Context, id string) (*types.GroundTruthRecord, error)

	// Drift reports
	PutDriftReport(ctx context.Context, report types.DriftReport) error
	GetLatestDriftReport(ctx context.Context, modelVersion string) (*types.DriftReport, error)
	ListDriftReports(ctx context.Context, modelVersion string, limit int) ([]types.DriftReport, error)

	// Performance summaries (persisted for the query surface)
	PutPerformanceSummary(ctx context.Context, summary types.PerformanceSummary) error
	GetLatestPerformanceSummary(ctx context.Context, modelVersion string) (*types.PerformanceSummary, error)

	// Retrain decision ledger
	PutDecision(ctx context.Context, decision types.RetrainDecision) error
	GetDecision(ctx context.Context, decisionID string) (*types.RetrainDecision, error)
	GetLatestDecision(ctx context.Context, modelVersion string) (*types.RetrainDecision, error)
	ListDecisions(ctx context.Context, modelVersion string, limit int) ([]types.RetrainDecision, error)

	// Event log — append-only audit trail
	AppendEvent(ctx context.Context, event types.Event) error
	ListEvents(ctx context.Context, modelVersion string, limit int) ([]types.Event, error)
	ReadEventsSince(ctx context.Context, modelVersion, sinceID string, count int64) ([]types.EventRecord, error)

	// Staleness markers — set when a computation cycle errors, cleared on success
	SetStaleness(ctx context.Context, modelVersion, component string, stale bool) error
	GetStaleness(ctx context.Context, modelVersion, component string) (bool, error)

	// Distributed locking for monitor/decision coordination
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
