// Package testutil provides shared test utilities for Driftlock.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*MockProvider)(nil)

// MockProvider is an in-memory Provider implementation for testing.
type MockProvider struct {
	mu           sync.Mutex
	models       map[string]types.ModelVersion
	snapshots    map[string][]types.FeatureSnapshot // key: model version
	predictions  map[string]types.PredictionRecord
	predIndex    map[string][]string // model version -> prediction IDs, newest first
	groundTruths map[string]types.GroundTruthRecord
	driftReports map[string][]types.DriftReport // newest first
	summaries    map[string]types.PerformanceSummary
	decisions    map[string]types.RetrainDecision
	decIndex     map[string][]string // model version -> decision IDs, newest first
	events       []types.Event
	staleness    map[string]bool // key: "modelVersion:component"
	locks        map[string]bool
}

// NewMockProvider creates a new in-memory mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		models:       make(map[string]types.ModelVersion),
		snapshots:    make(map[string][]types.FeatureSnapshot),
		predictions:  make(map[string]types.PredictionRecord),
		predIndex:    make(map[string][]string),
		groundTruths: make(map[string]types.GroundTruthRecord),
		driftReports: make(map[string][]types.DriftReport),
		summaries:    make(map[string]types.PerformanceSummary),
		decisions:    make(map[string]types.RetrainDecision),
		decIndex:     make(map[string][]string),
		staleness:    make(map[string]bool),
		locks:        make(map[string]bool),
	}
}

func (m *MockProvider) PutModelVersion(_ context.Context, mv types.ModelVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[mv.ID] = mv
	return nil
}

func (m *MockProvider) GetModelVersion(_ context.Context, id string) (*types.ModelVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv, ok := m.models[id]
	if !ok {
		return nil, nil
	}
	return &mv, nil
}

func (m *MockProvider) ListModelVersions(_ context.Context) ([]types.ModelVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ModelVersion
	for _, mv := range m.models {
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockProvider) CompareAndSwapModelVersion(_ context.Context, id string, expectedVersion int, next types.ModelVersion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.models[id]
	if !ok {
		return false, nil
	}
	if current.Version != expectedVersion {
		return false, nil
	}
	m.models[id] = next
	return true, nil
}

func (m *MockProvider) PutFeatureSnapshot(_ context.Context, snap types.FeatureSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.snapshots[snap.ModelVersion]
	for i, s := range existing {
		if s.FeatureName == snap.FeatureName {
			existing[i] = snap
			return nil
		}
	}
	m.snapshots[snap.ModelVersion] = append(existing, snap)
	return nil
}

func (m *MockProvider) GetFeatureSnapshots(_ context.Context, modelVersion string) ([]types.FeatureSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.FeatureSnapshot, len(m.snapshots[modelVersion]))
	copy(out, m.snapshots[modelVersion])
	return out, nil
}

func (m *MockProvider) PutPrediction(_ context.Context, rec types.PredictionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.predictions[rec.ID]
	m.predictions[rec.ID] = rec
	if !exists {
		m.predIndex[rec.ModelVersion] = append([]string{rec.ID}, m.predIndex[rec.ModelVersion]...)
	}
	return nil
}

func (m *MockProvider) GetPrediction(_ context.Context, id string) (*types.PredictionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.predictions[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockProvider) ListPredictions(_ context.Context, modelVersion string, limit int) ([]types.PredictionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.predIndex[modelVersion]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	var out []types.PredictionRecord
	for _, id := range ids[:limit] {
		out = append(out, m.predictions[id])
	}
	return out, nil
}

func (m *MockProvider) PutGroundTruth(_ context.Context, rec types.GroundTruthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groundTruths[rec.ID] = rec
	return nil
}

func (m *MockProvider) GetGroundTruth(_ context.Context, id string) (*types.GroundTruthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.groundTruths[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockProvider) PutDriftReport(_ context.Context, report types.DriftReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driftReports[report.ModelVersion] = append([]types.DriftReport{report}, m.driftReports[report.ModelVersion]...)
	return nil
}

func (m *MockProvider) GetLatestDriftReport(_ context.Context, modelVersion string) (*types.DriftReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reports := m.driftReports[modelVersion]
	if len(reports) == 0 {
		return nil, nil
	}
	r := reports[0]
	return &r, nil
}

func (m *MockProvider) ListDriftReports(_ context.Context, modelVersion string, limit int) ([]types.DriftReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reports := m.driftReports[modelVersion]
	if limit <= 0 || limit > len(reports) {
		limit = len(reports)
	}
	out := make([]types.DriftReport, limit)
	copy(out, reports[:limit])
	return out, nil
}

func (m *MockProvider) PutPerformanceSummary(_ context.Context, summary types.PerformanceSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summary.ModelVersion] = summary
	return nil
}

func (m *MockProvider) GetLatestPerformanceSummary(_ context.Context, modelVersion string) (*types.PerformanceSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[modelVersion]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MockProvider) PutDecision(_ context.Context, decision types.RetrainDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.decisions[decision.DecisionID]
	m.decisions[decision.DecisionID] = decision
	if !exists {
		m.decIndex[decision.ModelVersion] = append([]string{decision.DecisionID}, m.decIndex[decision.ModelVersion]...)
	}
	return nil
}

func (m *MockProvider) GetDecision(_ context.Context, decisionID string) (*types.RetrainDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[decisionID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *MockProvider) GetLatestDecision(_ context.Context, modelVersion string) (*types.RetrainDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.decIndex[modelVersion]
	if len(ids) == 0 {
		return nil, nil
	}
	d := m.decisions[ids[0]]
	return &d, nil
}

func (m *MockProvider) ListDecisions(_ context.Context, modelVersion string, limit int) ([]types.RetrainDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.decIndex[modelVersion]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	var out []types.RetrainDecision
	for _, id := range ids[:limit] {
		out = append(out, m.decisions[id])
	}
	return out, nil
}

func (m *MockProvider) AppendEvent(_ context.Context, event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockProvider) ListEvents(_ context.Context, modelVersion string, limit int) ([]types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].ModelVersion == modelVersion {
			result = append(result, m.events[i])
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MockProvider) ReadEventsSince(_ context.Context, modelVersion, sinceID string, count int64) ([]types.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// sinceID is a 1-based index formatted as "<idx>-0"; "0-0" means start from beginning
	startIdx := 0
	if sinceID != "" && sinceID != "0-0" {
		_, _ = fmt.Sscanf(sinceID, "%d-", &startIdx)
	}

	// Events partition by exact model version; "" is the global partition,
	// matching the real backends.
	var records []types.EventRecord
	idx := 0
	for _, e := range m.events {
		if e.ModelVersion != modelVersion {
			continue
		}
		idx++
		if idx <= startIdx {
			continue
		}
		records = append(records, types.EventRecord{
			StreamID: fmt.Sprintf("%d-0", idx),
			Event:    e,
		})
		if int64(len(records)) >= count {
			break
		}
	}
	return records, nil
}

func (m *MockProvider) SetStaleness(_ context.Context, modelVersion, component string, stale bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := modelVersion + ":" + component
	if stale {
		m.staleness[key] = true
	} else {
		delete(m.staleness, key)
	}
	return nil
}

func (m *MockProvider) GetStaleness(_ context.Context, modelVersion, component string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staleness[modelVersion+":"+component], nil
}

func (m *MockProvider) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MockProvider) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *MockProvider) Start(_ context.Context) error { return nil }
func (m *MockProvider) Stop(_ context.Context) error  { return nil }
func (m *MockProvider) Ping(_ context.Context) error  { return nil }

// Events returns a copy of all stored events (test helper).
func (m *MockProvider) Events() []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfKind filters stored events by kind (test helper).
func (m *MockProvider) EventsOfKind(kind types.EventKind) []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Event
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// HoldLock marks a lock as held directly (test helper for simulating a
// competing replica).
func (m *MockProvider) HoldLock(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[key] = true
}
