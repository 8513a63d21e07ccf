package perf

import (
	"sync"
	"time"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// ownerEntry remembers which model observed a prediction and when, so routing
// entries expire on the same horizon as the tracker's pending predictions.
type ownerEntry struct {
	modelVersion string
	timestamp    time.Time
}

// Registry multiplexes trackers by model version. Canary scoring uses the
// same machinery as the active model: each version gets its own window.
type Registry struct {
	mu              sync.RWMutex
	config          types.PerformanceConfig
	maxLabelLatency time.Duration
	trackers        map[string]*Tracker
	owner           map[string]ownerEntry // prediction ID -> owner, for ground-truth routing
	nextSweep       time.Time
}

// NewRegistry creates an empty tracker registry.
func NewRegistry(cfg types.PerformanceConfig) *Registry {
	return &Registry{
		config:          cfg,
		maxLabelLatency: parseDurationDefault(cfg.MaxLabelLatency, defaultMaxLabelLatency),
		trackers:        make(map[string]*Tracker),
		owner:           make(map[string]ownerEntry),
	}
}

// Tracker returns the tracker for a model version, creating it on demand.
func (r *Registry) Tracker(modelVersion string) *Tracker {
	r.mu.RLock()
	t, ok := r.trackers[modelVersion]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok = r.trackers[modelVersion]; ok {
		return t
	}
	t = NewTracker(modelVersion, r.config)
	r.trackers[modelVersion] = t
	return t
}

// Observe routes a prediction to its model's tracker and remembers the
// ID for later ground-truth routing.
func (r *Registry) Observe(rec types.PredictionRecord) {
	t := r.Tracker(rec.ModelVersion)

	r.mu.Lock()
	r.sweepOwnersLocked(time.Now())
	r.owner[rec.ID] = ownerEntry{modelVersion: rec.ModelVersion, timestamp: rec.Timestamp}
	r.mu.Unlock()

	t.Observe(rec)
}

// Resolve routes a ground-truth record to the tracker that observed the
// matching prediction. Returns false when no prediction is known for the ID.
func (r *Registry) Resolve(truth types.GroundTruthRecord) bool {
	r.mu.Lock()
	entry, ok := r.owner[truth.ID]
	if ok {
		delete(r.owner, truth.ID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.Tracker(entry.modelVersion).Resolve(truth)
}

// Snapshot returns the current summary for a model version.
func (r *Registry) Snapshot(modelVersion string) (*types.PerformanceSummary, error) {
	return r.Tracker(modelVersion).Snapshot()
}

// sweepOwnersLocked drops routing entries for predictions whose label can no
// longer arrive within the max label latency; the trackers sweep their
// pendings on the same horizon. Throttled so hot ingest paths don't rescan
// the map.
func (r *Registry) sweepOwnersLocked(now time.Time) {
	if now.Before(r.nextSweep) {
		return
	}
	r.nextSweep = now.Add(time.Minute)
	cutoff := now.Add(-r.maxLabelLatency)
	for id, e := range r.owner {
		if e.timestamp.Before(cutoff) {
			delete(r.owner, id)
		}
	}
}
